package archive

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/corestack/corestack/internal/store"
	"github.com/corestack/corestack/pkg/logger"
)

// ObjectStore is the minimal binary storage interface the service
// depends on. MinIOStorage implements it.
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// Presigner is implemented by object stores that can mint direct,
// time-limited download URLs.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// ErrPresignUnsupported reports an object store without presign
// support.
var ErrPresignUnsupported = errors.New("archive: object store cannot presign")

// Service pairs binary payloads in the object store with a metadata
// document per entry. The metadata document's id doubles as the object
// key, so the two sides can never drift apart on naming.
type Service struct {
	objects    ObjectStore
	docs       *store.Service
	collection string
}

func NewService(objects ObjectStore, docs *store.Service, collection string) *Service {
	if collection == "" {
		collection = "archive"
	}
	return &Service{objects: objects, docs: docs, collection: collection}
}

// Upload stores the payload and its metadata and returns the metadata
// document. The metadata is written first so the generated id can name
// the object; a failed payload write rolls the metadata back.
func (s *Service) Upload(ctx context.Context, name, contentType string, size int64, reader io.Reader, owner string) (store.Document, error) {
	doc := store.Document{
		"name":        name,
		"contentType": contentType,
		"size":        size,
		"uploadedBy":  owner,
		"createdAt":   time.Now().UTC(),
	}
	ids, err := s.docs.Insert(ctx, s.collection, []store.Document{doc})
	if err != nil {
		return nil, err
	}
	id := ids[0]
	if err := s.objects.Put(ctx, id, reader, size, contentType); err != nil {
		if _, derr := s.docs.Delete(ctx, s.collection, store.Document{"_id": id}); derr != nil {
			logger.Errorf("archive: orphaned metadata %s after failed upload: %v", id, derr)
		}
		return nil, err
	}
	doc["_id"] = id
	return doc, nil
}

// List returns metadata entries matching the query (all entries when
// the query is empty and any exist).
func (s *Service) List(ctx context.Context, query store.Document) ([]store.Document, error) {
	return s.docs.Find(ctx, s.collection, query, nil)
}

// Open returns the metadata and a stream of the payload for one entry.
// The caller owns closing the stream.
func (s *Service) Open(ctx context.Context, id string) (store.Document, io.ReadCloser, error) {
	doc, err := s.docs.Get(ctx, s.collection, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.objects.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// PresignURL returns a direct download URL for one entry, valid for
// expires. The entry's metadata must exist.
func (s *Service) PresignURL(ctx context.Context, id string, expires time.Duration) (string, error) {
	if _, err := s.docs.Get(ctx, s.collection, id); err != nil {
		return "", err
	}
	p, ok := s.objects.(Presigner)
	if !ok {
		return "", ErrPresignUnsupported
	}
	return p.PresignedURL(ctx, id, expires)
}

// Remove deletes the metadata and then the payload. A payload removal
// failure is logged, not returned: the entry is already unreachable.
func (s *Service) Remove(ctx context.Context, id string) error {
	if _, err := s.docs.Delete(ctx, s.collection, store.Document{"_id": id}); err != nil {
		return err
	}
	if err := s.objects.Remove(ctx, id); err != nil {
		logger.Warnf("archive: object %s removal failed: %v", id, err)
	}
	return nil
}
