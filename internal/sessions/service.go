package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Service wraps repository operations with session lifecycle logic.
type Service struct {
	repo Repository
	ttl  time.Duration
}

func NewService(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 8 * 24 * time.Hour
	}
	return &Service{repo: repo, ttl: ttl}
}

// NewSessionID produces an opaque client correlation identifier.
func NewSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("sessions: rand.Read failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Establish stores the credential pair for (sessionID, collection),
// minting a fresh session identifier when the client has none, and
// returns the identifier in use. query is the signin's narrowing
// filter, carried so every later use is verified under it.
func (s *Service) Establish(ctx context.Context, sessionID, collection, key, password string, query map[string]any) (string, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	rec := &Record{
		SessionID:  sessionID,
		Collection: collection,
		Key:        key,
		Password:   password,
		Query:      query,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(s.ttl),
	}
	if err := s.repo.Put(ctx, rec); err != nil {
		return "", err
	}
	return sessionID, nil
}

// Fetch returns the record for (sessionID, collection), or nil when
// absent or expired.
func (s *Service) Fetch(ctx context.Context, sessionID, collection string) (*Record, error) {
	if sessionID == "" {
		return nil, nil
	}
	return s.repo.Get(ctx, sessionID, collection)
}

// Clear removes the record; clearing a missing record is not an
// error.
func (s *Service) Clear(ctx context.Context, sessionID, collection string) error {
	if sessionID == "" {
		return nil
	}
	return s.repo.Delete(ctx, sessionID, collection)
}
