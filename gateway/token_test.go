package gateway_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamshmas/personal-rehabilitation-docs/gateway"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenSource_SingleFlight(t *testing.T) {
	t.Parallel()
	clk := newClock()
	release := make(chan struct{})
	var fetches atomic.Int32

	src := gateway.NewTokenSource(func(ctx context.Context) (gateway.AccessToken, error) {
		fetches.Add(1)
		<-release
		return gateway.AccessToken{Value: "shared", ExpiresAt: clk.Now().Add(time.Hour)}, nil
	}, gateway.TokenSourceConfig{Now: clk.Now})

	const n = 16
	var wg sync.WaitGroup
	got := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := src.Token(context.Background())
			assert.NoError(t, err)
			got[i] = v
		}()
	}
	// let the goroutines pile up behind the first fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load())
	for _, v := range got {
		assert.Equal(t, "shared", v)
	}

	// cached afterwards
	v, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shared", v)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestTokenSource_RefreshesInsideMargin(t *testing.T) {
	t.Parallel()
	clk := newClock()
	var fetches atomic.Int32
	src := gateway.NewTokenSource(func(ctx context.Context) (gateway.AccessToken, error) {
		n := fetches.Add(1)
		return gateway.AccessToken{Value: "tok-" + string(rune('0'+n)), ExpiresAt: clk.Now().Add(time.Hour)}, nil
	}, gateway.TokenSourceConfig{Now: clk.Now, Margin: 5 * time.Minute})

	v, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", v)

	clk.Advance(54 * time.Minute)
	v, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", v)

	clk.Advance(2 * time.Minute) // 4 minutes left, inside the margin
	v, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", v)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestTokenSource_WaiterCancellationDoesNotAbortFetch(t *testing.T) {
	t.Parallel()
	clk := newClock()
	release := make(chan struct{})
	src := gateway.NewTokenSource(func(ctx context.Context) (gateway.AccessToken, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return gateway.AccessToken{}, ctx.Err()
		}
		return gateway.AccessToken{Value: "late", ExpiresAt: clk.Now().Add(time.Hour)}, nil
	}, gateway.TokenSourceConfig{Now: clk.Now})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := src.Token(ctx)
		errCh <- err
	}()
	okCh := make(chan string, 1)
	go func() {
		v, _ := src.Token(context.Background())
		okCh <- v
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	err := <-errCh
	require.ErrorIs(t, err, gateway.ErrTokenFetchFailed)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.Equal(t, "late", <-okCh)
}

func TestTokenSource_FetchError(t *testing.T) {
	t.Parallel()
	boom := &gateway.Error{Kind: gateway.KindTokenFetchFailed, Message: "denied"}
	var fetches atomic.Int32
	src := gateway.NewTokenSource(func(ctx context.Context) (gateway.AccessToken, error) {
		fetches.Add(1)
		return gateway.AccessToken{}, boom
	}, gateway.TokenSourceConfig{})

	_, err := src.Token(context.Background())
	require.ErrorIs(t, err, gateway.ErrTokenFetchFailed)
	// failures are not cached
	_, err = src.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

type failingStore struct{ gateway.MemoryTokenStore }

func (failingStore) Load(context.Context) (gateway.AccessToken, bool, error) {
	return gateway.AccessToken{}, false, errors.New("store down")
}

func TestTokenSource_SharedStore(t *testing.T) {
	t.Parallel()
	clk := newClock()
	store := gateway.NewMemoryTokenStore()
	reg := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(reg)

	var fetches atomic.Int32
	fetch := func(ctx context.Context) (gateway.AccessToken, error) {
		fetches.Add(1)
		return gateway.AccessToken{Value: "from-endpoint", ExpiresAt: clk.Now().Add(time.Hour)}, nil
	}
	cfg := gateway.TokenSourceConfig{Store: store, Now: clk.Now, Metrics: metrics}

	a := gateway.NewTokenSource(fetch, cfg)
	b := gateway.NewTokenSource(fetch, cfg)

	v, err := a.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-endpoint", v)
	v, err = b.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-endpoint", v)

	assert.Equal(t, int32(1), fetches.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenFetches.WithLabelValues("fetched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenFetches.WithLabelValues("shared")))

	a.Invalidate(context.Background())
	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	// a broken store degrades to fetching
	c := gateway.NewTokenSource(fetch, gateway.TokenSourceConfig{Store: &failingStore{}, Now: clk.Now})
	v, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-endpoint", v)
}

func TestAccessToken_Usable(t *testing.T) {
	t.Parallel()
	now := time.Now()
	assert.False(t, gateway.AccessToken{}.Usable(now, 0))
	assert.True(t, gateway.AccessToken{Value: "x", ExpiresAt: now.Add(time.Hour)}.Usable(now, time.Minute))
	assert.False(t, gateway.AccessToken{Value: "x", ExpiresAt: now.Add(time.Minute)}.Usable(now, 5*time.Minute))
}
