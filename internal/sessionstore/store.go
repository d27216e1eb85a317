// Package sessionstore persists per-(site, account) authentication artifacts
// on disk. One JSON file per key; saves go through a temp file and rename so
// an interrupted write can never corrupt the previous record.
package sessionstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	homedir "github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrCorruptRecord marks a record that exists on disk but cannot be decoded.
// Load treats it as absent; it is surfaced only so callers can log it.
var ErrCorruptRecord = errors.New("corrupt session record")

const recordSuffix = ".json"

// Store is the filesystem-backed schemas.SessionStore. It is the only
// component that touches the session directory. Not safe for concurrent
// writers to the same key; callers serialize runs per (site, account).
type Store struct {
	dir string
	log *zap.Logger
}

var _ schemas.SessionStore = (*Store)(nil)

// DefaultDir resolves the default session directory under the user's home.
func DefaultDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cartwright", "sessions"), nil
}

// New creates the store rooted at dir, creating it if needed. An empty dir
// selects DefaultDir.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	return &Store{
		dir: dir,
		log: logger.Named("session_store"),
	}, nil
}

// Dir returns the resolved session directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the record for (site, account), or (nil, false, nil) when no
// usable record exists. A corrupt record is reported as absent, never as a
// fatal error.
func (s *Store) Load(siteKey, accountKey string) (*schemas.SessionRecord, bool, error) {
	path, err := s.recordPath(siteKey, accountKey)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read session record %s: %w", path, err)
	}

	var rec schemas.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Warn("Discarding unreadable session record",
			zap.String("path", path),
			zap.Error(fmt.Errorf("%w: %v", ErrCorruptRecord, err)))
		return nil, false, nil
	}
	if rec.SiteKey != siteKey || rec.AccountKey != accountKey {
		s.log.Warn("Session record key mismatch, treating as absent",
			zap.String("path", path),
			zap.String("record_site", rec.SiteKey))
		return nil, false, nil
	}
	return &rec, true, nil
}

// Save atomically upserts the record for its (site, account) key. The
// previous record stays intact if the process dies mid-write.
func (s *Store) Save(rec *schemas.SessionRecord) error {
	if rec == nil {
		return fmt.Errorf("cannot save a nil session record")
	}
	path, err := s.recordPath(rec.SiteKey, rec.AccountKey)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	// Belt and braces: remove the temp file on any failure path.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp session file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set session record permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to commit session record: %w", err)
	}

	s.log.Debug("Session record saved",
		zap.String("site", rec.SiteKey),
		zap.String("account", rec.AccountKey),
		zap.Int("cookies", len(rec.Cookies)))
	return nil
}

// Delete removes the record for (site, account). Deleting a missing record
// is not an error; the end state is the same.
func (s *Store) Delete(siteKey, accountKey string) error {
	path, err := s.recordPath(siteKey, accountKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session record %s: %w", path, err)
	}
	return nil
}

// List returns every decodable record in the store, sorted by site then
// account. Unreadable files are skipped.
func (s *Store) List() ([]schemas.SessionRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	var records []schemas.SessionRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec schemas.SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Debug("Skipping unreadable session record", zap.String("file", entry.Name()))
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].SiteKey != records[j].SiteKey {
			return records[i].SiteKey < records[j].SiteKey
		}
		return records[i].AccountKey < records[j].AccountKey
	})
	return records, nil
}

// recordPath builds the canonical file path for a key pair. Both parts are
// validated so a crafted site string cannot escape the session directory.
func (s *Store) recordPath(siteKey, accountKey string) (string, error) {
	if siteKey == "" || accountKey == "" {
		return "", fmt.Errorf("session record requires both site and account keys")
	}
	name := sanitizeKeyPart(siteKey) + "__" + sanitizeKeyPart(accountKey) + recordSuffix
	return filepath.Join(s.dir, name), nil
}

func sanitizeKeyPart(part string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, part)
}
