package accounts

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/corestack/corestack/internal/password"
	"github.com/corestack/corestack/internal/store"
	"github.com/corestack/corestack/internal/tokens"
)

// Service orchestrates signup, signin, refresh and per-request
// re-verification over the document store. It owns password hashing:
// no other component reads or writes the digest field.
type Service struct {
	store    *store.Service
	hasher   *password.Hasher
	codec    *tokens.Codec
	tokenTTL time.Duration
}

func NewService(st *store.Service, hasher *password.Hasher, codec *tokens.Codec, tokenTTL time.Duration) *Service {
	return &Service{store: st, hasher: hasher, codec: codec, tokenTTL: tokenTTL}
}

// Signup registers a new account under key in collection. Extra
// fields are stored alongside; they cannot shadow the reserved
// fields. Returns the new account identifier or ErrKeyTaken.
func (s *Service) Signup(ctx context.Context, collection, key, plain string, extra store.Document) (string, error) {
	if key == "" || plain == "" {
		return "", fmt.Errorf("%w: key and password are required", store.ErrInvalidUpdate)
	}
	_, err := s.store.Find(ctx, collection, store.Document{KeyField: key}, nil)
	if err == nil {
		return "", ErrKeyTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	digest, err := s.hasher.Hash(plain)
	if err != nil {
		return "", err
	}
	doc := store.Document{KeyField: key, PasswordField: digest}
	for k, v := range extra {
		if k == KeyField || k == PasswordField || k == "_id" {
			continue
		}
		doc[k] = v
	}
	ids, err := s.store.Insert(ctx, collection, []store.Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// Signin authenticates key/plain against collection, optionally
// narrowed by extraQuery (e.g. {"active": true}). On success it
// returns the account and a signed token whose claims carry the
// stored digest and the narrowing query, so later re-verification
// re-applies both. All failure modes yield ErrInvalidCredentials.
func (s *Service) Signin(ctx context.Context, collection, key, plain string, extraQuery store.Document) (*Account, string, error) {
	doc, err := s.lookup(ctx, collection, key, extraQuery)
	if err != nil {
		return nil, "", err
	}
	digest, _ := doc[PasswordField].(string)
	if !s.hasher.Verify(plain, digest) {
		return nil, "", ErrInvalidCredentials
	}
	claims := map[string]any{
		"collection": collection,
		"key":        key,
		"hash":       digest,
	}
	if len(extraQuery) > 0 {
		claims["query"] = extraQuery
	}
	token, err := s.codec.Encode(claims, s.tokenTTL)
	if err != nil {
		return nil, "", err
	}
	return fromDocument(doc), token, nil
}

// VerifyPassword re-checks a plaintext credential pair against the
// stored account. Used on the session path of AuthContext.
func (s *Service) VerifyPassword(ctx context.Context, collection, key, plain string, extraQuery store.Document) (*Account, error) {
	doc, err := s.lookup(ctx, collection, key, extraQuery)
	if err != nil {
		return nil, err
	}
	digest, _ := doc[PasswordField].(string)
	if !s.hasher.Verify(plain, digest) {
		return nil, ErrInvalidCredentials
	}
	return fromDocument(doc), nil
}

// VerifyDigest re-checks a digest proof (carried in token claims)
// against the stored digest. The comparison is constant time; a
// rotated password changes the stored digest and invalidates every
// previously issued token for the account.
func (s *Service) VerifyDigest(ctx context.Context, collection, key, digest string, extraQuery store.Document) (*Account, error) {
	doc, err := s.lookup(ctx, collection, key, extraQuery)
	if err != nil {
		return nil, err
	}
	stored, _ := doc[PasswordField].(string)
	if digest == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(digest)) != 1 {
		return nil, ErrInvalidCredentials
	}
	return fromDocument(doc), nil
}

// Refresh patches the account stored under key. A new password inside
// $set is re-hashed before it reaches the store. Returns the modified
// count or ErrNotFound.
func (s *Service) Refresh(ctx context.Context, collection, key string, patch store.Document) (int64, error) {
	_, err := s.store.Find(ctx, collection, store.Document{KeyField: key}, nil)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	rewritten, err := s.rehashPatch(patch)
	if err != nil {
		return 0, err
	}
	n, err := s.store.Update(ctx, collection, rewritten, store.Document{KeyField: key})
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrNotFound
	}
	return n, err
}

func (s *Service) rehashPatch(patch store.Document) (store.Document, error) {
	out := store.Document{}
	for op, body := range patch {
		fields, ok := body.(map[string]any)
		if ok && op == "$set" {
			if plain, has := fields[PasswordField].(string); has {
				digest, err := s.hasher.Hash(plain)
				if err != nil {
					return nil, err
				}
				copied := map[string]any{}
				for k, v := range fields {
					copied[k] = v
				}
				copied[PasswordField] = digest
				out[op] = copied
				continue
			}
		}
		out[op] = body
	}
	return out, nil
}

// lookup fetches exactly one account by key (plus extraQuery). Any
// miss, ambiguity or filter exclusion collapses into
// ErrInvalidCredentials; store-level input errors pass through so
// callers can 400 on malformed extra queries.
func (s *Service) lookup(ctx context.Context, collection, key string, extraQuery store.Document) (store.Document, error) {
	query := store.Document{KeyField: key}
	for k, v := range extraQuery {
		if k == KeyField || k == PasswordField {
			continue
		}
		query[k] = v
	}
	docs, err := s.store.Find(ctx, collection, query, nil)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if len(docs) != 1 {
		return nil, ErrInvalidCredentials
	}
	return docs[0], nil
}
