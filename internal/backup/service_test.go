package backup

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/davidalonso/posstack-backend/pkg/config"
	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/security"
	"github.com/davidalonso/posstack-backend/pkg/store"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "backup-test", Output: io.Discard})
}

func testCipher(t *testing.T) *security.Cipher {
	t.Helper()
	c, err := security.NewCipher("test-passphrase", 1000)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func newEncryptedService(t *testing.T, client store.Client, dir string) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Store:  client,
		Logger: testLogger(),
		Config: config.BackupConfig{Directory: dir, LinkBatchSize: 100},
		Cipher: testCipher(t),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

// seedStore loads a small but fully connected graph: every entity kind and
// every edge kind is represented.
func seedStore(t *testing.T, m *store.Memory) {
	t.Helper()
	ctx := context.Background()
	muts := []store.Mutation{
		store.Create(store.KindAppSettings, "set-1", map[string]any{"storeName": "Main Street POS", "currency": "USD"}),
		store.Create(store.KindUsers, "user-1", map[string]any{"fullName": "Pat Operator", "role": "pos"}),
		store.Create(store.KindAttributeCategory, "cat-1", map[string]any{"title": "Color"}),
		store.Create(store.KindAttributeItem, "attr-1", map[string]any{"name": "Red"}),
		store.Create(store.KindSuppliers, "sup-1", map[string]any{"name": "Acme Wholesale"}),
		store.Create(store.KindCustomers, "cust-1", map[string]any{"fullName": "Jordan Buyer", "email": "jordan@example.com"}),
		store.Create(store.KindCustomerAddress, "addr-1", map[string]any{"street": "1 Main St", "isPrimary": true}),
		store.Create(store.KindInventoryItems, "inv-1", map[string]any{"name": "Widget", "quantity": float64(10)}),
		store.Create(store.KindOrders, "ord-1", map[string]any{"orderNumber": "1001", "status": "CREATED"}),
		store.Link(store.KindAttributeItem, "attr-1", store.LabelCategory, "cat-1"),
		store.Link(store.KindOrders, "ord-1", store.LabelCustomer, "cust-1"),
		store.Link(store.KindOrders, "ord-1", store.LabelPosOperator, "user-1"),
		store.Link(store.KindInventoryItems, "inv-1", store.LabelSupplier, "sup-1"),
		store.Link(store.KindInventoryItems, "inv-1", store.LabelAttributes, "attr-1"),
		store.Link(store.KindCustomers, "cust-1", store.LabelAddresses, "addr-1"),
	}
	if err := m.Transact(ctx, muts); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func sortedPairs(pairs []LinkPair) []LinkPair {
	out := make([]LinkPair, len(pairs))
	copy(out, pairs)
	sort.Slice(out, func(i, j int) bool {
		return keyOf(out[i]) < keyOf(out[j])
	})
	return out
}

func keyOf(p LinkPair) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += k + "=" + p[k] + ";"
	}
	return s
}

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := store.NewMemory(nil)
	seedStore(t, source)

	dir := t.TempDir()
	svc := newEncryptedService(t, source, dir)

	original, err := svc.Capture(ctx)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	result, err := svc.Persist(ctx, original)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if result.Statistics[store.KindOrders] != 1 || result.Statistics[store.KindCustomers] != 1 {
		t.Fatalf("statistics = %v", result.Statistics)
	}

	target := store.NewMemory(nil)
	restoreSvc := newEncryptedService(t, target, dir)
	if err := restoreSvc.Restore(ctx, result.FilePath); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := restoreSvc.Capture(ctx)
	if err != nil {
		t.Fatalf("re-capture: %v", err)
	}

	for kind, want := range original.Entities {
		got := restored.Entities[kind]
		if len(got) != len(want) {
			t.Fatalf("%s: %d records restored, want %d", kind, len(got), len(want))
		}
		byID := map[string]store.Record{}
		for _, rec := range got {
			byID[rec.ID()] = rec
		}
		for _, rec := range want {
			if !reflect.DeepEqual(byID[rec.ID()], rec) {
				t.Fatalf("%s %s: restored %v, want %v", kind, rec.ID(), byID[rec.ID()], rec)
			}
		}
	}
	for name, want := range original.Links {
		if !reflect.DeepEqual(sortedPairs(restored.Links[name]), sortedPairs(want)) {
			t.Fatalf("%s pairs: restored %v, want %v", name, restored.Links[name], want)
		}
	}
}

func TestTamperedSnapshotFailsRestore(t *testing.T) {
	ctx := context.Background()
	source := store.NewMemory(nil)
	seedStore(t, source)

	dir := t.TempDir()
	svc := newEncryptedService(t, source, dir)
	result, err := svc.Backup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	raw, err := os.ReadFile(result.FilePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env security.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("parse envelope: %v", err)
	}

	corrupt := func(t *testing.T, env security.Envelope) string {
		t.Helper()
		raw, err := json.Marshal(env)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		path := filepath.Join(t.TempDir(), "tampered.json")
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		return path
	}

	tampered := env
	tampered.Encrypted = flipFirstHexByte(t, env.Encrypted)
	if err := svc.Restore(ctx, corrupt(t, tampered)); !pkgerrors.HasCode(err, pkgerrors.CodeIntegrity) {
		t.Fatalf("ciphertext tamper: expected INTEGRITY_ERROR, got %v", err)
	}

	tampered = env
	tampered.AuthTag = flipFirstHexByte(t, env.AuthTag)
	if err := svc.Restore(ctx, corrupt(t, tampered)); !pkgerrors.HasCode(err, pkgerrors.CodeIntegrity) {
		t.Fatalf("tag tamper: expected INTEGRITY_ERROR, got %v", err)
	}
}

func flipFirstHexByte(t *testing.T, s string) string {
	t.Helper()
	if len(s) < 2 {
		t.Fatal("hex string too short")
	}
	head := "00"
	if s[:2] == "00" {
		head = "ff"
	}
	return head + s[2:]
}

func TestIdempotentBackupsProduceDistinctFiles(t *testing.T) {
	ctx := context.Background()
	source := store.NewMemory(nil)
	seedStore(t, source)

	dir := t.TempDir()
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	calls := 0
	svc, err := NewService(ServiceParams{
		Store:  source,
		Logger: testLogger(),
		Config: config.BackupConfig{Directory: dir},
		Cipher: testCipher(t),
		Now: func() time.Time {
			calls++
			return base.Add(time.Duration(calls) * time.Second)
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	first, err := svc.Backup(ctx)
	if err != nil {
		t.Fatalf("first backup: %v", err)
	}
	second, err := svc.Backup(ctx)
	if err != nil {
		t.Fatalf("second backup: %v", err)
	}
	if first.Filename == second.Filename {
		t.Fatalf("backups must not share a filename: %q", first.Filename)
	}
	for _, res := range []Result{first, second} {
		if _, err := os.Stat(res.FilePath); err != nil {
			t.Fatalf("snapshot %s missing: %v", res.Filename, err)
		}
	}
}

func TestCaptureCustomerWithoutAddressesEmitsNoPairs(t *testing.T) {
	ctx := context.Background()
	source := store.NewMemory(nil)
	if err := source.Transact(ctx, []store.Mutation{
		store.Create(store.KindCustomers, "cust-1", map[string]any{"fullName": "No Address"}),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := newEncryptedService(t, source, t.TempDir())
	snap, err := svc.Capture(ctx)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if got := len(snap.Links[store.EdgeCustomerCustomerAddresses]); got != 0 {
		t.Fatalf("expected zero address pairs, got %d", got)
	}
	if len(snap.Entities[store.KindCustomers]) != 1 {
		t.Fatalf("customer record missing from snapshot")
	}
}

func TestCaptureStripsRelationLabels(t *testing.T) {
	ctx := context.Background()
	source := store.NewMemory(nil)
	seedStore(t, source)

	svc := newEncryptedService(t, source, t.TempDir())
	snap, err := svc.Capture(ctx)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	for _, rec := range snap.Entities[store.KindOrders] {
		if _, ok := rec[store.LabelCustomer]; ok {
			t.Fatalf("order record still carries %q relation: %v", store.LabelCustomer, rec)
		}
		if _, ok := rec[store.LabelPosOperator]; ok {
			t.Fatalf("order record still carries %q relation: %v", store.LabelPosOperator, rec)
		}
	}
}

func TestNewServiceRejectsPlaintextWithoutOptIn(t *testing.T) {
	_, err := NewService(ServiceParams{
		Store:  store.NewMemory(nil),
		Logger: testLogger(),
		Config: config.BackupConfig{},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConfig) {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}

	_, err = NewService(ServiceParams{
		Store:  store.NewMemory(nil),
		Logger: testLogger(),
		Config: config.BackupConfig{AllowPlaintext: true},
	})
	if err != nil {
		t.Fatalf("plaintext opt-in rejected: %v", err)
	}
}

func TestPlaintextRoundTripWithOptIn(t *testing.T) {
	ctx := context.Background()
	source := store.NewMemory(nil)
	seedStore(t, source)

	dir := t.TempDir()
	newPlain := func(client store.Client) *Service {
		svc, err := NewService(ServiceParams{
			Store:  client,
			Logger: testLogger(),
			Config: config.BackupConfig{Directory: dir, AllowPlaintext: true},
		})
		if err != nil {
			t.Fatalf("NewService: %v", err)
		}
		return svc
	}

	result, err := newPlain(source).Backup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	raw, err := os.ReadFile(result.FilePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("plaintext snapshot should parse directly: %v", err)
	}

	target := store.NewMemory(nil)
	if err := newPlain(target).Restore(ctx, result.FilePath); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestRestoreRejectsPlaintextWithoutOptIn(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.json")
	raw, _ := json.Marshal(Snapshot{Timestamp: 1, Entities: map[string][]store.Record{}, Links: map[string][]LinkPair{}})
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	svc := newEncryptedService(t, store.NewMemory(nil), dir)
	if err := svc.Restore(ctx, path); !pkgerrors.HasCode(err, pkgerrors.CodeConfig) {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}
}

type failingArchive struct {
	calls int
}

func (f *failingArchive) Insert(ctx context.Context, rec *ArchiveRecord) error {
	f.calls++
	return os.ErrPermission
}

func TestArchiveFailureDoesNotFailBackup(t *testing.T) {
	ctx := context.Background()
	source := store.NewMemory(nil)
	seedStore(t, source)

	archive := &failingArchive{}
	svc, err := NewService(ServiceParams{
		Store:   source,
		Logger:  testLogger(),
		Config:  config.BackupConfig{Directory: t.TempDir()},
		Cipher:  testCipher(t),
		Archive: archive,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.Backup(ctx); err != nil {
		t.Fatalf("archive failure must not fail the backup: %v", err)
	}
	if archive.calls != 1 {
		t.Fatalf("expected one archive attempt, got %d", archive.calls)
	}
}

type recordingArchive struct {
	records []*ArchiveRecord
}

func (r *recordingArchive) Insert(ctx context.Context, rec *ArchiveRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func TestArchiveReceivesSameBytesAsFile(t *testing.T) {
	ctx := context.Background()
	source := store.NewMemory(nil)
	seedStore(t, source)

	archive := &recordingArchive{}
	svc, err := NewService(ServiceParams{
		Store:   source,
		Logger:  testLogger(),
		Config:  config.BackupConfig{Directory: t.TempDir()},
		Cipher:  testCipher(t),
		Archive: archive,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Backup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if len(archive.records) != 1 {
		t.Fatalf("expected one archive record, got %d", len(archive.records))
	}
	fileBytes, err := os.ReadFile(result.FilePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(archive.records[0].Data) != string(fileBytes) {
		t.Fatal("archive record must carry the exact bytes written to the file")
	}
	if archive.records[0].Filename != result.Filename {
		t.Fatalf("archive filename = %q, want %q", archive.records[0].Filename, result.Filename)
	}
}
