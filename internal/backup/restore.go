package backup

import (
	"context"
	"encoding/json"
	"os"
	"time"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/security"
	"github.com/davidalonso/posstack-backend/pkg/store"
)

// Restore reads a snapshot file, decrypts it when sealed, and reconstructs
// the entity graph: two dependency-ordered entity waves, then edges in
// sequential fixed-size batches.
func (s *Service) Restore(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read snapshot file")
	}

	snap, err := s.decode(raw)
	if err != nil {
		return err
	}

	s.logg.Warn(ctx, "restore will overwrite records sharing ids with the snapshot")
	if s.cfg.RestoreWarnPause > 0 {
		select {
		case <-ctx.Done():
			return pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "restore canceled")
		case <-time.After(s.cfg.RestoreWarnPause):
		}
	}

	if err := s.restoreWave(ctx, snap, wave1Kinds); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore wave 1")
	}
	if err := s.restoreWave(ctx, snap, wave2Kinds); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore wave 2")
	}
	if err := s.restoreLinks(ctx, snap); err != nil {
		return err
	}

	s.logg.Info(ctx, "restore completed")
	return nil
}

// decode distinguishes a sealed envelope from a plaintext snapshot by the
// presence of the "encrypted" field.
func (s *Service) decode(raw []byte) (*Snapshot, error) {
	var header struct {
		Encrypted string `json:"encrypted"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse snapshot file")
	}

	payload := raw
	if header.Encrypted != "" {
		if s.cipher == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConfig,
				"snapshot is encrypted but no passphrase is configured")
		}
		var env security.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse envelope")
		}
		payload, err := s.cipher.Open(env)
		if err != nil {
			return nil, err
		}
		return unmarshalSnapshot(payload)
	}

	if !s.cfg.AllowPlaintext {
		return nil, pkgerrors.New(pkgerrors.CodeConfig,
			"snapshot file is plaintext; restoring it requires explicitly allowing plaintext snapshots")
	}
	return unmarshalSnapshot(payload)
}

func unmarshalSnapshot(payload []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse snapshot payload")
	}
	if snap.Entities == nil {
		snap.Entities = map[string][]store.Record{}
	}
	if snap.Links == nil {
		snap.Links = map[string][]LinkPair{}
	}
	return &snap, nil
}

// restoreWave upserts every record of the given kinds in one transact, using
// the original ids so edge pairs stay valid.
func (s *Service) restoreWave(ctx context.Context, snap *Snapshot, kinds []string) error {
	var muts []store.Mutation
	for _, kind := range kinds {
		for _, rec := range snap.Entities[kind] {
			id := rec.ID()
			if id == "" {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "%s record without id in snapshot", kind)
			}
			muts = append(muts, store.Upsert(kind, id, rec))
		}
	}
	if len(muts) == 0 {
		return nil
	}
	return s.store.Transact(ctx, muts)
}

// restoreLinks rebuilds edges per edge kind, in the schema's canonical
// order, batching the combined mutation list sequentially.
func (s *Service) restoreLinks(ctx context.Context, snap *Snapshot) error {
	var muts []store.Mutation
	for _, edge := range s.schema.Edges() {
		for _, pair := range snap.Links[edge.Name] {
			forwardID := pair[edge.ForwardField]
			reverseID := pair[edge.ReverseField]
			if forwardID == "" || reverseID == "" {
				return pkgerrors.Newf(pkgerrors.CodeValidation,
					"%s pair missing %s or %s", edge.Name, edge.ForwardField, edge.ReverseField)
			}
			muts = append(muts, store.Link(edge.Forward.Kind, forwardID, edge.Forward.Label, reverseID))
		}
	}

	batchSize := s.cfg.LinkBatchSize
	for start := 0; start < len(muts); start += batchSize {
		end := start + batchSize
		if end > len(muts) {
			end = len(muts)
		}
		if err := s.store.Transact(ctx, muts[start:end]); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore links batch")
		}
	}
	return nil
}
