package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FileStore keeps the deployment state in one JSON document. The document is
// rewritten on every mutation, so writers are serialised by a single lock.
// A failed write leaves the in-memory mutation in place: the ledger may
// over-count after a crash but never under-count.
type FileStore struct {
	path string
	now  func() time.Time

	mu    sync.RWMutex
	state State
}

// OpenFile loads path, or starts an empty state when it does not exist. An
// empty path keeps the state in memory only.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, now: time.Now, state: newState()}
	if path == "" {
		return s, nil
	}

	if _, err := ReadJSONFile(path, &s.state); err != nil {
		return nil, err
	}
	if s.state.Users == nil {
		s.state.Users = map[string]*User{}
	}
	if s.state.Licenses == nil {
		s.state.Licenses = map[string]string{}
	}
	return s, nil
}

func (s *FileStore) Touch(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Users[identity]; ok {
		return nil
	}
	s.userLocked(identity)
	return s.persistLocked()
}

func (s *FileStore) AddUsage(_ context.Context, identity, day string, minutes decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.userLocked(identity)
	total := user.Usage[day].Add(minutes)
	user.Usage[day] = total
	return total, s.persistLocked()
}

func (s *FileStore) Usage(_ context.Context, identity, day string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.state.Users[identity]
	if !ok {
		return decimal.Zero, nil
	}
	return user.Usage[day], nil
}

func (s *FileStore) BindLicense(_ context.Context, identity, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.state.Licenses[key]; ok {
		if owner != identity {
			return false, ErrAlreadyBound
		}
		return false, nil
	}

	user := s.userLocked(identity)
	if user.LicenseKey != "" && s.state.Licenses[user.LicenseKey] == identity {
		delete(s.state.Licenses, user.LicenseKey)
	}
	s.state.Licenses[key] = identity
	user.LicenseKey = key
	user.IsPro = true
	return true, s.persistLocked()
}

func (s *FileStore) LicenseFor(_ context.Context, identity string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.state.Users[identity]
	if !ok {
		return "", nil
	}
	return user.LicenseKey, nil
}

// Snapshot returns a deep copy of the current state.
func (s *FileStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := newState()
	for key, owner := range s.state.Licenses {
		out.Licenses[key] = owner
	}
	for id, user := range s.state.Users {
		copied := *user
		copied.Usage = make(map[string]decimal.Decimal, len(user.Usage))
		for day, minutes := range user.Usage {
			copied.Usage[day] = minutes
		}
		out.Users[id] = &copied
	}
	return out
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) userLocked(identity string) *User {
	user, ok := s.state.Users[identity]
	if !ok {
		user = &User{DeviceID: identity, CreatedAt: s.now().UTC()}
		s.state.Users[identity] = user
	}
	if user.Usage == nil {
		user.Usage = map[string]decimal.Decimal{}
	}
	return user
}

func (s *FileStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	return WriteJSONFile(s.path, s.state)
}
