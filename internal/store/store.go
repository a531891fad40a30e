package store

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/corestack/corestack/internal/identifier"
)

// Document is a schema-less record. Values are restricted to the
// closed set enforced by normalizeValue.
type Document = map[string]any

// Repository is the raw persistence surface. All input reaching a
// repository has already passed validation; implementations never see
// a non-whitelisted operator.
type Repository interface {
	Find(ctx context.Context, collection string, query, projection Document) ([]Document, error)
	// Insert writes documents that already carry a _id. A uniqueness
	// violation is reported as ErrConflict.
	Insert(ctx context.Context, collection string, docs []Document) error
	Update(ctx context.Context, collection string, query, patch Document) (matched, modified int64, err error)
	Delete(ctx context.Context, collection string, query Document) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error)
}

// insertAttempts bounds identifier regeneration on the (practically
// unreachable) duplicate-key collision.
const insertAttempts = 3

// Service owns validation, identifier assignment and failure
// classification on top of a Repository. It is safe for concurrent
// use when the underlying repository is.
type Service struct {
	repo    Repository
	timeout time.Duration
}

func NewService(repo Repository, opTimeout time.Duration) *Service {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &Service{repo: repo, timeout: opTimeout}
}

func (s *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Find returns all documents matching query. Zero matches is
// ErrNotFound, never an empty list; single lookups by identifier use
// Get.
func (s *Service) Find(ctx context.Context, collection string, query, projection Document) ([]Document, error) {
	q, err := NormalizeQuery(query)
	if err != nil {
		return nil, err
	}
	p, err := NormalizeProjection(projection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	docs, err := s.repo.Find(ctx, collection, q, p)
	if err != nil {
		return nil, classify(err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs, nil
}

// Get fetches exactly one document by its identifier.
func (s *Service) Get(ctx context.Context, collection, id string) (Document, error) {
	docs, err := s.Find(ctx, collection, Document{"_id": id}, nil)
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// Insert assigns a fresh identifier to every document and writes them
// all, returning identifiers in input order. The write is not atomic
// across documents; on cancellation a prefix may be committed.
func (s *Service) Insert(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, errors.New("store: nothing to insert")
	}
	prepared := make([]Document, 0, len(docs))
	for _, d := range docs {
		nd, err := NormalizeDocument(d)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, nd)
	}

	var ids []string
	for attempt := 1; ; attempt++ {
		ids = make([]string, len(prepared))
		for i := range prepared {
			ids[i] = identifier.New()
			prepared[i]["_id"] = ids[i]
		}
		ctx2, cancel := s.opCtx(ctx)
		err := s.repo.Insert(ctx2, collection, prepared)
		cancel()
		if err == nil {
			return ids, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= insertAttempts {
			return nil, classify(err)
		}
	}
}

// Update applies patch to every document matching query and returns
// the modified count. Zero matched documents is ErrNotFound;
// matched-but-unchanged collapses into the modified count.
func (s *Service) Update(ctx context.Context, collection string, patch, query Document) (int64, error) {
	p, err := NormalizeUpdate(patch)
	if err != nil {
		return 0, err
	}
	q, err := NormalizeQuery(query)
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	matched, modified, err := s.repo.Update(ctx, collection, q, p)
	if err != nil {
		return 0, classify(err)
	}
	if matched == 0 {
		return 0, ErrNotFound
	}
	return modified, nil
}

// Delete removes every document matching query and returns the count.
func (s *Service) Delete(ctx context.Context, collection string, query Document) (int64, error) {
	q, err := NormalizeQuery(query)
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	deleted, err := s.repo.Delete(ctx, collection, q)
	if err != nil {
		return 0, classify(err)
	}
	if deleted == 0 {
		return 0, ErrNotFound
	}
	return deleted, nil
}

// Aggregate runs a validated pipeline. An empty result is ErrNotFound
// for symmetry with Find.
func (s *Service) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	p, err := NormalizePipeline(pipeline)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	docs, err := s.repo.Aggregate(ctx, collection, p)
	if err != nil {
		return nil, classify(err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs, nil
}

// classify maps transport-level failures to ErrUnavailable so callers
// can retry, and passes sentinels through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict),
		errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidUpdate),
		errors.Is(err, ErrInvalidPipeline):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}
