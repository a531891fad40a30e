package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// guardRepo fails the test if any repository method is reached;
// used to prove validation happens before the datastore.
type guardRepo struct{ t *testing.T }

func (g *guardRepo) Find(context.Context, string, Document, Document) ([]Document, error) {
	g.t.Fatal("repository reached with invalid input")
	return nil, nil
}
func (g *guardRepo) Insert(context.Context, string, []Document) error {
	g.t.Fatal("repository reached with invalid input")
	return nil
}
func (g *guardRepo) Update(context.Context, string, Document, Document) (int64, int64, error) {
	g.t.Fatal("repository reached with invalid input")
	return 0, 0, nil
}
func (g *guardRepo) Delete(context.Context, string, Document) (int64, error) {
	g.t.Fatal("repository reached with invalid input")
	return 0, nil
}
func (g *guardRepo) Aggregate(context.Context, string, []Document) ([]Document, error) {
	g.t.Fatal("repository reached with invalid input")
	return nil, nil
}

func TestService_InvalidInputNeverReachesRepository(t *testing.T) {
	svc := NewService(&guardRepo{t: t}, time.Second)
	ctx := context.Background()
	bad := Document{"$where": "1"}

	_, err := svc.Find(ctx, "c", bad, nil)
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.Update(ctx, "c", Document{"$rename": map[string]any{"a": "b"}}, nil)
	require.ErrorIs(t, err, ErrInvalidUpdate)

	_, err = svc.Update(ctx, "c", Document{"$set": map[string]any{"a": 1}}, bad)
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.Delete(ctx, "c", bad)
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.Aggregate(ctx, "c", []Document{{"$out": "x"}})
	require.ErrorIs(t, err, ErrInvalidPipeline)

	_, err = svc.Aggregate(ctx, "c", []Document{{"$project": map[string]any{
		"x": map[string]any{"$function": map[string]any{"body": "function(){}", "lang": "js"}},
	}}})
	require.ErrorIs(t, err, ErrInvalidPipeline)

	_, err = svc.Insert(ctx, "c", []Document{{"$bad": 1}})
	require.ErrorIs(t, err, ErrInvalidUpdate)
}

// collideRepo rejects the first n insert attempts with ErrConflict.
type collideRepo struct {
	*MemoryRepository
	rejections int
	attempts   int
}

func (c *collideRepo) Insert(ctx context.Context, collection string, docs []Document) error {
	c.attempts++
	if c.attempts <= c.rejections {
		return fmt.Errorf("%w: simulated", ErrConflict)
	}
	return c.MemoryRepository.Insert(ctx, collection, docs)
}

func TestService_InsertRetriesOnCollision(t *testing.T) {
	repo := &collideRepo{MemoryRepository: NewMemoryRepository(), rejections: 2}
	svc := NewService(repo, time.Second)

	ids, err := svc.Insert(context.Background(), "c", []Document{{"a": 1}})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, 3, repo.attempts)
}

func TestService_InsertCollisionExhaustion(t *testing.T) {
	repo := &collideRepo{MemoryRepository: NewMemoryRepository(), rejections: 100}
	svc := NewService(repo, time.Second)

	_, err := svc.Insert(context.Background(), "c", []Document{{"a": 1}})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, insertAttempts, repo.attempts)
}

func TestService_FindEmptyIsNotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository(), time.Second)
	_, err := svc.Find(context.Background(), "empty", Document{"a": 1}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_TimeoutClassifiedUnavailable(t *testing.T) {
	repo := &slowRepo{}
	svc := NewService(repo, 10*time.Millisecond)
	_, err := svc.Find(context.Background(), "c", nil, nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

type slowRepo struct{ Repository }

func (s *slowRepo) Find(ctx context.Context, collection string, query, projection Document) ([]Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
