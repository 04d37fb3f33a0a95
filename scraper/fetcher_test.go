package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/distill/cache"
	"github.com/use-agent/distill/models"
)

// scriptedProvider replays one response or error per call.
type scriptedProvider struct {
	responses [][]byte
	errs      []error
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Scrape(_ context.Context, _ string) ([]byte, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return nil, fmt.Errorf("call %d: no scripted response", i+1)
}

// recordSleeps swaps the fetcher's sleep for one that records delays.
func recordSleeps(f *Fetcher) *[]time.Duration {
	var slept []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &slept
}

func TestFetch_AllAttemptsFail(t *testing.T) {
	for _, attempts := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("attempts=%d", attempts), func(t *testing.T) {
			errs := make([]error, attempts)
			for i := range errs {
				errs[i] = models.NewPipelineError(models.ErrCodeFetch, fmt.Sprintf("boom %d", i+1), nil)
			}
			p := &scriptedProvider{errs: errs}
			f := NewFetcher(p, "markdown")
			slept := recordSleeps(f)

			res, err := f.Fetch(context.Background(), "https://example.com", RetryPolicy{Attempts: attempts, Delay: 5 * time.Second})

			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, attempts, p.calls)
			assert.Len(t, *slept, attempts-1, "no pause after the final attempt")
			for _, d := range *slept {
				assert.Equal(t, 5*time.Second, d)
			}
			assert.Same(t, errs[attempts-1], err, "last attempt's error is returned unchanged")
		})
	}
}

func TestFetch_SucceedsOnAttemptK(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name     string
		provider *scriptedProvider
		wantK    int
	}{
		{
			name:     "first attempt",
			provider: &scriptedProvider{responses: [][]byte{[]byte(`{"markdown":"page one"}`)}},
			wantK:    1,
		},
		{
			name: "after a network error",
			provider: &scriptedProvider{
				errs:      []error{boom, nil},
				responses: [][]byte{nil, []byte(`{"markdown":"page two"}`)},
			},
			wantK: 2,
		},
		{
			name: "after a missing payload",
			provider: &scriptedProvider{
				responses: [][]byte{
					[]byte(`{"html":"<p>no markdown</p>"}`),
					[]byte(`{"markdown":null}`),
					[]byte(`{"markdown":"page three"}`),
				},
			},
			wantK: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFetcher(tt.provider, "")
			slept := recordSleeps(f)

			res, err := f.Fetch(context.Background(), "https://example.com", RetryPolicy{Attempts: 3, Delay: time.Second})

			require.NoError(t, err)
			assert.Equal(t, tt.wantK, tt.provider.calls)
			assert.Equal(t, tt.wantK, res.Attempts)
			assert.Len(t, *slept, tt.wantK-1)
			assert.Equal(t, "scripted", res.Provider)
			assert.Contains(t, res.Content, "page")
		})
	}
}

func TestFetch_MissingPayloadIsNoContent(t *testing.T) {
	p := &scriptedProvider{responses: [][]byte{[]byte(`{"metadata":{"title":"x"}}`)}}
	f := NewFetcher(p, "markdown")
	recordSleeps(f)

	_, err := f.Fetch(context.Background(), "https://example.com", RetryPolicy{Attempts: 1})

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeNoContent, models.CodeOf(err))
}

func TestFetch_NestedPayloadKey(t *testing.T) {
	p := &scriptedProvider{responses: [][]byte{[]byte(`{"data":{"markdown":"nested"}}`)}}
	f := NewFetcher(p, "data.markdown")

	res, err := f.Fetch(context.Background(), "https://example.com", RetryPolicy{Attempts: 1})

	require.NoError(t, err)
	assert.Equal(t, "nested", res.Content)
}

func TestFetch_InvalidPolicy(t *testing.T) {
	p := &scriptedProvider{}
	f := NewFetcher(p, "markdown")

	_, err := f.Fetch(context.Background(), "https://example.com", RetryPolicy{Attempts: 0})

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
	assert.Zero(t, p.calls, "no provider call is made")
}

func TestFetch_CancelledDuringDelay(t *testing.T) {
	p := &scriptedProvider{errs: []error{errors.New("fail"), errors.New("fail")}}
	f := NewFetcher(p, "markdown")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}

	_, err := f.Fetch(ctx, "https://example.com", RetryPolicy{Attempts: 2, Delay: time.Hour})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.ErrCodeFetch, models.CodeOf(err))
	assert.Equal(t, 1, p.calls)
}

func TestFetch_ExpiredContextMakesNoCalls(t *testing.T) {
	p := &scriptedProvider{responses: [][]byte{[]byte(`{"markdown":"page"}`)}}
	f := NewFetcher(p, "markdown")

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	_, err := f.Fetch(ctx, "https://example.com", RetryPolicy{Attempts: 3})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, p.calls)
}

func TestFetch_StopsRetryingOnceContextEnds(t *testing.T) {
	p := &scriptedProvider{errs: []error{errors.New("fail"), errors.New("fail"), errors.New("fail")}}
	f := NewFetcher(p, "markdown")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The delay itself completes, but the context ends while it runs.
	f.sleep = func(context.Context, time.Duration) error {
		cancel()
		return nil
	}

	_, err := f.Fetch(ctx, "https://example.com", RetryPolicy{Attempts: 3, Delay: time.Second})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func TestFetch_ServesFromCache(t *testing.T) {
	p := &scriptedProvider{
		errs:      []error{errors.New("flaky")},
		responses: [][]byte{nil, []byte(`{"markdown":"page"}`)},
	}
	f := NewFetcher(p, "").WithCache(cache.New(8, time.Hour))
	recordSleeps(f)
	policy := RetryPolicy{Attempts: 3, Delay: time.Second}

	first, err := f.Fetch(context.Background(), "https://example.com", policy)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 2, first.Attempts)

	second, err := f.Fetch(context.Background(), "https://example.com", policy)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Zero(t, second.Attempts)
	assert.Equal(t, "page", second.Content)
	assert.Equal(t, 2, p.calls, "cached fetch makes no provider call")

	_, err = f.Fetch(context.Background(), "https://example.com/other", policy)
	require.Error(t, err, "a different URL misses the cache")
}
