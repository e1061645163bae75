package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gofrs/flock"

	"github.com/agrisight/agrisight/internal/log"
)

// ErrLocked indicates another process holds the profile file lock.
var ErrLocked = errors.New("profile file is locked by another process")

// ErrUnknownField indicates a SetField call with a field this package does
// not define.
var ErrUnknownField = errors.New("unknown profile field")

// Store is the durable profile store: a JSON file keyed by user ID, loaded
// once at Open and rewritten atomically (temp file + rename) on every
// mutation, so a successful write survives a crash.
//
// A flock sidecar lock guards against a second process instance opening the
// same file. Store is safe for concurrent use; the dispatcher additionally
// serializes same-user turns.
type Store struct {
	mu       sync.RWMutex
	path     string
	lock     *flock.Flock
	logger   log.Logger
	profiles map[int64]Profile
}

// Open loads (or creates) the profile file at path and acquires its lock.
func Open(path string, logger log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating profile directory: %w", err)
	}

	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking profile file: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	s := &Store{
		path:     path,
		lock:     fl,
		logger:   logger,
		profiles: make(map[int64]Profile),
	}
	if err := s.load(); err != nil {
		_ = fl.Unlock()
		return nil, err
	}

	logger.Info("profile store opened", "path", path, "profiles", len(s.profiles))
	return s, nil
}

// load reads the profile file into memory. A missing file is an empty
// store, not an error.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading profile file: %w", err)
	}

	// Keys are serialized as strings so the file stays valid JSON.
	var raw map[string]Profile
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing profile file: %w", err)
	}
	for k, p := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q in profile file: %w", k, err)
		}
		p.ID = id
		s.profiles[id] = p
	}
	return nil
}

// flush rewrites the whole profile file atomically. Callers must hold mu.
func (s *Store) flush() error {
	raw := make(map[string]Profile, len(s.profiles))
	for id, p := range s.profiles {
		raw[strconv.FormatInt(id, 10)] = p
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profiles: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing profile temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing profile file: %w", err)
	}
	return nil
}

// Get returns the profile for id. Absent users get a zero-value profile
// with only the ID set; Get never fails.
func (s *Store) Get(id int64) Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.profiles[id]; ok {
		return p
	}
	return Profile{ID: id}
}

// Complete reports whether the user's profile has every required field.
func (s *Store) Complete(id int64) bool {
	return s.Get(id).Complete()
}

// SetField updates one field and durably flushes the file before
// returning. The returned profile reflects the update.
func (s *Store) SetField(id int64, field Field, value string) (Profile, error) {
	switch field {
	case FieldName, FieldLanguage, FieldCountry, FieldRegion:
	default:
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.profiles[id]
	p := prev
	if !had {
		p = Profile{ID: id}
	}
	p = p.set(field, value)
	s.profiles[id] = p

	if err := s.flush(); err != nil {
		// Keep memory and file in agreement: readers must not see a
		// value that was never made durable.
		if had {
			s.profiles[id] = prev
		} else {
			delete(s.profiles, id)
		}
		return Profile{}, err
	}
	s.logger.Debug("profile field updated", "user_id", id, "field", field)
	return p, nil
}

// Put replaces the whole record in one durable operation. Flow commits use
// this so a multi-field update can never leave a torn profile.
func (s *Store) Put(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.profiles[p.ID]
	s.profiles[p.ID] = p
	if err := s.flush(); err != nil {
		if had {
			s.profiles[p.ID] = prev
		} else {
			delete(s.profiles, p.ID)
		}
		return err
	}
	s.logger.Debug("profile committed", "user_id", p.ID, "complete", p.Complete())
	return nil
}

// Close releases the file lock. The file itself is already durable.
func (s *Store) Close() error {
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("releasing profile lock: %w", err)
	}
	return nil
}
