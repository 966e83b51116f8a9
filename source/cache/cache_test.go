package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

func countingSource(calls *int, err error) source.Source {
	return source.Func{SourceName: "fake", Fn: func(context.Context, source.Query) ([]offer.Offer, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return []offer.Offer{{DisplayName: "Acme", Rate: offer.NumberFromFloat(0.1), CancellationFee: offer.Text("$50")}}, nil
	}}
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestCachedSource_ReadThrough(t *testing.T) {
	calls := 0
	s := Wrap(countingSource(&calls, nil), NewMemoryCache(), time.Minute)
	assert.Equal(t, "fake", s.Name())
	assert.Equal(t, "escopt:offers:fake:10001", s.Key("10001"))

	for i := 0; i < 3; i++ {
		offers, err := s.Fetch(context.Background(), source.Query{ZipCode: "10001"})
		require.NoError(t, err)
		require.Len(t, offers, 1)
		assert.Equal(t, offer.KindText, offers[0].CancellationFee.Kind())
		assert.Equal(t, "$50", offers[0].CancellationFee.String())
	}
	assert.Equal(t, 1, calls)

	_, err := s.Fetch(context.Background(), source.Query{ZipCode: "14850"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCachedSource_Expiry(t *testing.T) {
	calls := 0
	mem := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem.now = func() time.Time { return now }

	s := Wrap(countingSource(&calls, nil), mem, time.Minute)
	_, _ = s.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	now = now.Add(2 * time.Minute)
	_, _ = s.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	assert.Equal(t, 2, calls)
}

func TestMemoryCache_DropsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem.now = func() time.Time { return now }

	require.NoError(t, mem.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, mem.Set(ctx, "b", []byte("2"), time.Hour))
	assert.Equal(t, 2, mem.Len())

	now = now.Add(2 * time.Minute)

	_, ok, err := mem.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, mem.Len())

	v, ok, err := mem.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)
}

func TestMemoryCache_SetSweepsExpired(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem.now = func() time.Time { return now }

	for _, zip := range []string{"10001", "10002", "10003"} {
		require.NoError(t, mem.Set(ctx, zip, []byte("[]"), time.Minute))
	}
	assert.Equal(t, 3, mem.Len())

	now = now.Add(time.Hour)
	require.NoError(t, mem.Set(ctx, "10004", []byte("[]"), time.Minute))
	assert.Equal(t, 1, mem.Len())
}

func TestCachedSource_ErrorsNotCached(t *testing.T) {
	calls := 0
	s := Wrap(countingSource(&calls, errors.New("boom")), NewMemoryCache(), 0)
	_, err := s.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	assert.Error(t, err)
	_, err = s.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestCachedSource_BrokenCacheFallsThrough(t *testing.T) {
	calls := 0
	s := Wrap(countingSource(&calls, nil), brokenCache{}, time.Minute)
	offers, err := s.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	require.NoError(t, err)
	assert.Len(t, offers, 1)
}

func TestCachedSource_InvalidZip(t *testing.T) {
	calls := 0
	s := Wrap(countingSource(&calls, nil), NewMemoryCache(), time.Minute)
	_, err := s.Fetch(context.Background(), source.Query{ZipCode: "x"})
	assert.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestNewRedisClient_EmptyAddr(t *testing.T) {
	_, err := NewRedisClient(" ", "", 0)
	assert.Error(t, err)
}
