package sessionstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func sampleRecord() *schemas.SessionRecord {
	return &schemas.SessionRecord{
		SiteKey:    "example.com",
		AccountKey: "a1b2c3d4e5f6",
		Cookies: []schemas.Cookie{
			{Name: "sid", Value: "abc123", Domain: ".example.com", Path: "/", Secure: true, HTTPOnly: true},
		},
		Storage: map[string]map[string]string{
			"localStorage": {"cart_token": "tok-1"},
		},
		CreatedAt:      time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		LastVerifiedAt: time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC),
	}
}

func TestStoreSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord()

	require.NoError(t, store.Save(rec))

	got, ok, err := store.Load(rec.SiteKey, rec.AccountKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestStoreLoadAbsentIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	got, ok, err := store.Load("example.com", schemas.AnonymousAccountKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStoreResaveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord()

	require.NoError(t, store.Save(rec))
	first, err := os.ReadFile(filepath.Join(store.Dir(), "example.com__a1b2c3d4e5f6.json"))
	require.NoError(t, err)

	require.NoError(t, store.Save(rec))
	second, err := os.ReadFile(filepath.Join(store.Dir(), "example.com__a1b2c3d4e5f6.json"))
	require.NoError(t, err)

	assert.Equal(t, first, second)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "re-saving must not produce extra files")
}

func TestStoreDistinctAccountsDoNotCollide(t *testing.T) {
	store := newTestStore(t)

	recA := sampleRecord()
	recB := sampleRecord()
	recB.AccountKey = "ffffffffffff"
	recB.Cookies[0].Value = "other"

	require.NoError(t, store.Save(recA))
	require.NoError(t, store.Save(recB))

	gotA, ok, err := store.Load(recA.SiteKey, recA.AccountKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", gotA.Cookies[0].Value)

	gotB, ok, err := store.Load(recB.SiteKey, recB.AccountKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "other", gotB.Cookies[0].Value)
}

func TestStoreCorruptRecordTreatedAsAbsent(t *testing.T) {
	store := newTestStore(t)

	path := filepath.Join(store.Dir(), "example.com__a1b2c3d4e5f6.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	got, ok, err := store.Load("example.com", "a1b2c3d4e5f6")
	require.NoError(t, err, "a corrupt record must not abort the run")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStoreKeyMismatchTreatedAsAbsent(t *testing.T) {
	store := newTestStore(t)

	// A record whose payload names a different site than its file key.
	rec := sampleRecord()
	rec.SiteKey = "other.com"
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	path := filepath.Join(store.Dir(), "example.com__a1b2c3d4e5f6.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, ok, err := store.Load("example.com", "a1b2c3d4e5f6")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord()
	require.NoError(t, store.Save(rec))

	require.NoError(t, store.Delete(rec.SiteKey, rec.AccountKey))

	_, ok, err := store.Load(rec.SiteKey, rec.AccountKey)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is a no-op.
	require.NoError(t, store.Delete(rec.SiteKey, rec.AccountKey))
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)

	recA := sampleRecord()
	recB := sampleRecord()
	recB.SiteKey = "another.com"
	require.NoError(t, store.Save(recA))
	require.NoError(t, store.Save(recB))

	// Junk files are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "junk.json"), []byte("nope"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0o600))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "another.com", records[0].SiteKey)
	assert.Equal(t, "example.com", records[1].SiteKey)
}

func TestStoreSanitizesHostileKeys(t *testing.T) {
	store := newTestStore(t)

	rec := sampleRecord()
	rec.SiteKey = "../escape"
	require.NoError(t, store.Save(rec))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".._escape__a1b2c3d4e5f6.json", entries[0].Name())
}
