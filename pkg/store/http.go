package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davidalonso/posstack-backend/pkg/config"
	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/google/uuid"
)

// HTTPClient talks to the hosted store's admin API: one query endpoint, one
// transact endpoint, bearer-token auth, JSON bodies.
type HTTPClient struct {
	baseURL string
	appID   string
	token   string
	timeout time.Duration
	httpc   *http.Client
}

var (
	errBaseURLRequired = errors.New("store base url is required")
	errAppIDRequired   = errors.New("store app id is required")
	errTokenRequired   = errors.New("store admin token is required")
)

// NewHTTPClient validates the endpoint configuration and returns a client.
func NewHTTPClient(cfg config.StoreConfig) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, errAppIDRequired
	}
	if strings.TrimSpace(cfg.AdminToken) == "" {
		return nil, errTokenRequired
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		appID:   cfg.AppID,
		token:   cfg.AdminToken,
		timeout: timeout,
		httpc:   &http.Client{},
	}, nil
}

// NewID returns a fresh unique identifier.
func (c *HTTPClient) NewID() string {
	return uuid.NewString()
}

type queryRequest struct {
	Query Query `json:"query"`
}

type queryResponse struct {
	Result Result `json:"result"`
}

type transactRequest struct {
	Steps []Mutation `json:"steps"`
}

type apiError struct {
	Message string `json:"message"`
}

// Query implements Client.
func (c *HTTPClient) Query(ctx context.Context, q Query) (Result, error) {
	var resp queryResponse
	if err := c.post(ctx, "query", queryRequest{Query: q}, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		resp.Result = Result{}
	}
	return resp.Result, nil
}

// Transact implements Client.
func (c *HTTPClient) Transact(ctx context.Context, muts []Mutation) error {
	return c.post(ctx, "transact", transactRequest{Steps: muts}, nil)
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode store request")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/apps/%s/%s", c.baseURL, c.appID, endpoint)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build store request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("store %s call", endpoint))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.mapStatus(resp)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode store response")
	}
	return nil
}

func (c *HTTPClient) mapStatus(resp *http.Response) error {
	var detail apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&detail)
	message := strings.TrimSpace(detail.Message)
	if message == "" {
		message = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "store: %s", message)
	case resp.StatusCode == http.StatusConflict:
		return pkgerrors.Newf(pkgerrors.CodeConflict, "store: %s", message)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "store: %s", message)
	default:
		return pkgerrors.Newf(pkgerrors.CodeDependency, "store: %s", message)
	}
}
