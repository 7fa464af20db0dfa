package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agegate/internal/verification/models"
	dErrors "agegate/pkg/domain-errors"
)

func TestPutAndGet(t *testing.T) {
	s := New(300 * time.Second)
	ctx := context.Background()

	session := models.NewSession("sess-1", "topic-1", nil, time.Now())
	require.NoError(t, s.Put(ctx, session))

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "topic-1", got.ConnectionID)
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	s := New(300 * time.Second)

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestEvictExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("evicts regardless of status", func(t *testing.T) {
		s := New(300 * time.Second)
		now := time.Now()

		stale := models.NewSession("stale", "t1", nil, now.Add(-310*time.Second))
		require.NoError(t, stale.MarkVerified(nil, "0xabc"))
		fresh := models.NewSession("fresh", "t2", nil, now.Add(-10*time.Second))
		require.NoError(t, s.Put(ctx, stale))
		require.NoError(t, s.Put(ctx, fresh))

		assert.Equal(t, 1, s.EvictExpired(now))

		_, err := s.Get(ctx, "stale")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.Get(ctx, "fresh")
		assert.NoError(t, err)
	})

	t.Run("marks the record expired before removal", func(t *testing.T) {
		s := New(300 * time.Second)
		now := time.Now()

		stale := models.NewSession("stale", "t1", nil, now.Add(-310*time.Second))
		require.NoError(t, s.Put(ctx, stale))
		s.EvictExpired(now)

		assert.Equal(t, models.StatusExpired, stale.Status)
	})

	t.Run("reports eviction counts to the hook", func(t *testing.T) {
		var hooked int
		s := New(300*time.Second, WithEvictionHook(func(n int) { hooked += n }))
		now := time.Now()

		require.NoError(t, s.Put(ctx, models.NewSession("s1", "t1", nil, now.Add(-310*time.Second))))
		require.NoError(t, s.Put(ctx, models.NewSession("s2", "t2", nil, now.Add(-320*time.Second))))
		require.NoError(t, s.Put(ctx, models.NewSession("s3", "t3", nil, now.Add(-10*time.Second))))

		s.EvictExpired(now)
		assert.Equal(t, 2, hooked)

		// A sweep that evicts nothing stays silent.
		s.EvictExpired(now)
		assert.Equal(t, 2, hooked)
	})

	t.Run("session exactly at the TTL boundary survives", func(t *testing.T) {
		s := New(300 * time.Second)
		now := time.Now()

		edge := models.NewSession("edge", "t1", nil, now.Add(-300*time.Second))
		require.NoError(t, s.Put(ctx, edge))

		assert.Equal(t, 0, s.EvictExpired(now))
	})
}

func TestMutate(t *testing.T) {
	ctx := context.Background()
	s := New(300 * time.Second)

	session := models.NewSession("sess-1", "topic-1", nil, time.Now())
	require.NoError(t, s.Put(ctx, session))

	err := s.Mutate(ctx, "sess-1", func(v *models.VerificationSession) error {
		return v.MarkVerified(nil, "0xabc")
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, got.Status)

	err = s.Mutate(ctx, "missing", func(*models.VerificationSession) error { return nil })
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := New(300 * time.Second)
	require.NoError(t, s.Put(ctx, models.NewSession("a", "t", nil, time.Now())))
	require.NoError(t, s.Put(ctx, models.NewSession("b", "t", nil, time.Now())))

	assert.Equal(t, 2, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
}

func TestRunSweeper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(time.Millisecond)
	require.NoError(t, s.Put(ctx, models.NewSession("old", "t", nil, time.Now().Add(-time.Second))))

	go s.RunSweeper(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return s.Len() == 0
	}, time.Second, 5*time.Millisecond)
}
