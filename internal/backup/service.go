package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davidalonso/posstack-backend/pkg/config"
	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/metrics"
	"github.com/davidalonso/posstack-backend/pkg/security"
	"github.com/davidalonso/posstack-backend/pkg/store"
	"go.uber.org/multierr"
)

var (
	errStoreRequired         = errors.New("store client is required")
	errLoggerRequired        = errors.New("logger is required")
	errArchiveClientRequired = errors.New("archive db client is required")
)

// archiveWriter is the slice of Archive the service depends on.
type archiveWriter interface {
	Insert(ctx context.Context, rec *ArchiveRecord) error
}

// envelopeCipher seals and opens snapshot payloads.
type envelopeCipher interface {
	Seal(plaintext []byte) (security.Envelope, error)
	Open(env security.Envelope) ([]byte, error)
}

// ServiceParams configure the snapshot engine.
type ServiceParams struct {
	Store   store.Client
	Logger  *logger.Logger
	Schema  *store.Schema
	Config  config.BackupConfig
	Cipher  envelopeCipher
	Archive archiveWriter
	Metrics *metrics.JobMetrics
	Now     func() time.Time
}

// Service captures, persists, and restores snapshots.
type Service struct {
	store   store.Client
	logg    *logger.Logger
	schema  *store.Schema
	cfg     config.BackupConfig
	cipher  envelopeCipher
	archive archiveWriter
	metrics *metrics.JobMetrics
	now     func() time.Time
}

// NewService validates dependencies and builds the snapshot engine. A nil
// Cipher means plaintext persistence, which must be opted into explicitly.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, errStoreRequired
	}
	if params.Logger == nil {
		return nil, errLoggerRequired
	}
	if params.Cipher == nil && !params.Config.AllowPlaintext {
		return nil, pkgerrors.New(pkgerrors.CodeConfig,
			"backup passphrase is not set; set one or explicitly allow plaintext snapshots")
	}
	schema := params.Schema
	if schema == nil {
		schema = store.DefaultSchema()
	}
	cfg := params.Config
	if cfg.Directory == "" {
		cfg.Directory = "backup"
	}
	if cfg.LinkBatchSize <= 0 {
		cfg.LinkBatchSize = 100
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   params.Store,
		logg:    params.Logger,
		schema:  schema,
		cfg:     cfg,
		cipher:  params.Cipher,
		archive: params.Archive,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// Capture reads the full entity graph in one logical query and splits it
// into clean entity records plus edge pairs.
func (s *Service) Capture(ctx context.Context) (*Snapshot, error) {
	result, err := s.store.Query(ctx, s.captureQuery())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capture query")
	}

	snap := &Snapshot{
		Timestamp: s.now().UnixMilli(),
		Entities:  map[string][]store.Record{},
		Links:     map[string][]LinkPair{},
	}

	for _, kind := range s.schema.EntityKinds() {
		records := result[kind]
		clean := make([]store.Record, 0, len(records))
		for _, rec := range records {
			clean = append(clean, s.stripLabels(kind, rec))
		}
		snap.Entities[kind] = clean
	}

	for _, edge := range s.schema.Edges() {
		pairs := []LinkPair{}
		for _, rec := range result[edge.Forward.Kind] {
			for _, related := range rec.Related(edge.Forward.Label) {
				if related.ID() == "" {
					continue
				}
				pairs = append(pairs, LinkPair{
					edge.ForwardField: rec.ID(),
					edge.ReverseField: related.ID(),
				})
			}
		}
		snap.Links[edge.Name] = pairs
	}

	return snap, nil
}

// captureQuery fetches every entity kind, with the forward-side relation of
// each edge attached so edge pairs can be extracted.
func (s *Service) captureQuery() store.Query {
	q := store.Query{}
	for _, kind := range s.schema.EntityKinds() {
		q[kind] = store.Selection{}
	}
	for _, edge := range s.schema.Edges() {
		sel := q[edge.Forward.Kind]
		if sel.With == nil {
			sel.With = map[string]store.Selection{}
		}
		sel.With[edge.Forward.Label] = store.Selection{}
		q[edge.Forward.Kind] = sel
	}
	return q
}

func (s *Service) stripLabels(kind string, rec store.Record) store.Record {
	clean := rec.Clone()
	for _, label := range s.schema.LabelsFor(kind) {
		delete(clean, label)
	}
	return clean
}

// Persist serializes the snapshot, seals it when a cipher is configured, and
// writes it to the backup directory. The archive write is best-effort:
// failures are logged, never fatal.
func (s *Service) Persist(ctx context.Context, snap *Snapshot) (Result, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialize snapshot")
	}
	s.metrics.ObserveSnapshotBytes(len(payload))

	fileBytes := payload
	if s.cipher != nil {
		env, err := s.cipher.Seal(payload)
		if err != nil {
			return Result{}, err
		}
		fileBytes, err = json.MarshalIndent(env, "", "  ")
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialize envelope")
		}
	}

	filename := s.now().Format("backup_2006-01-02_15-04-05") + ".json"
	if err := os.MkdirAll(s.cfg.Directory, 0o755); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create backup directory")
	}
	filePath := filepath.Join(s.cfg.Directory, filename)
	if err := os.WriteFile(filePath, fileBytes, 0o600); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write snapshot file")
	}

	stats := s.statistics(snap)
	s.archiveInsert(ctx, filename, snap.Timestamp, stats, fileBytes)

	fileCtx := s.logg.WithSnapshot(ctx, filename)
	s.logg.Info(fileCtx, "snapshot persisted")

	return Result{Filename: filename, FilePath: filePath, Statistics: stats}, nil
}

func (s *Service) archiveInsert(ctx context.Context, filename string, timestamp int64, stats Statistics, data []byte) {
	if s.archive == nil {
		return
	}
	var errs error
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("serialize statistics: %w", err))
		statsJSON = []byte("{}")
	}
	if err := s.archive.Insert(ctx, &ArchiveRecord{
		Filename:   filename,
		Timestamp:  timestamp,
		Statistics: string(statsJSON),
		Data:       data,
		CreatedAt:  s.now(),
	}); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("insert archive record: %w", err))
	}
	if errs != nil {
		s.logg.Error(s.logg.WithSnapshot(ctx, filename), "archive write failed", errs)
	}
}

func (s *Service) statistics(snap *Snapshot) Statistics {
	stats := Statistics{}
	for _, kind := range s.schema.EntityKinds() {
		stats[kind] = len(snap.Entities[kind])
	}
	return stats
}

// Backup is capture followed by persist.
func (s *Service) Backup(ctx context.Context) (Result, error) {
	snap, err := s.Capture(ctx)
	if err != nil {
		return Result{}, err
	}
	return s.Persist(ctx, snap)
}
