package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link-resolver/internal/models"
)

// chainHandler serves /r/<n> as a 302 to /r/<n-1>, and /r/0 as 200.
func chainHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/r/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if n == 0 {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<title>end</title>"))
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/r/%d", n-1))
		w.WriteHeader(http.StatusFound)
	})
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestResolveFollowsShortChains(t *testing.T) {
	srv := httptest.NewServer(chainHandler(t))
	defer srv.Close()

	for n := 0; n < DefaultMaxHops; n++ {
		r := NewResolver(DefaultConfig())
		res, err := r.Resolve(context.Background(), mustURL(t, fmt.Sprintf("%s/r/%d", srv.URL, n)))
		r.Close()

		require.NoError(t, err, "chain of %d", n)
		assert.Equal(t, n, res.Hops)
		assert.Equal(t, srv.URL+"/r/0", res.URI.String())
	}
}

func TestResolveHopLimit(t *testing.T) {
	srv := httptest.NewServer(chainHandler(t))
	defer srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	res, err := r.Resolve(context.Background(), mustURL(t, srv.URL+"/r/5"))
	require.ErrorIs(t, err, ErrHopLimitExceeded)

	var hopErr *HopLimitError
	require.True(t, errors.As(err, &hopErr))
	assert.Equal(t, DefaultMaxHops, hopErr.Hops)
	assert.Equal(t, srv.URL+"/r/0", hopErr.Last.String())
	assert.Equal(t, DefaultMaxHops, res.Hops)
}

func TestResolveRedirectLoopStopsAtLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Location", r.URL.Path)
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	_, err := r.Resolve(context.Background(), mustURL(t, srv.URL+"/loop"))
	require.ErrorIs(t, err, ErrHopLimitExceeded)
	assert.EqualValues(t, DefaultMaxHops, hits.Load())
}

func TestResolveStatusClasses(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusOK, nil},
		{http.StatusCreated, nil},
		{http.StatusAccepted, nil},
		{http.StatusNoContent, nil},
		{http.StatusResetContent, nil},
		{http.StatusPartialContent, nil},
		{http.StatusNotModified, nil},
		{http.StatusNonAuthoritativeInfo, ErrUnclassifiedStatus},
		{http.StatusTemporaryRedirect, ErrUnclassifiedStatus},
		{http.StatusPermanentRedirect, ErrUnclassifiedStatus},
		{http.StatusNotFound, ErrUnclassifiedStatus},
		{http.StatusInternalServerError, ErrUnclassifiedStatus},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Location", "/elsewhere")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			r := NewResolver(DefaultConfig())
			defer r.Close()

			res, err := r.Resolve(context.Background(), mustURL(t, srv.URL+"/start"))
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, 0, res.Hops)
				assert.Equal(t, srv.URL+"/start", res.URI.String())
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveRedirectStatuses(t *testing.T) {
	for _, status := range []int{300, 301, 302, 303} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/final" {
				return
			}
			w.Header().Set("Location", "/final")
			w.WriteHeader(status)
		}))

		r := NewResolver(DefaultConfig())
		res, err := r.Resolve(context.Background(), mustURL(t, srv.URL+"/start"))
		r.Close()
		srv.Close()

		require.NoError(t, err, "status %d", status)
		assert.Equal(t, 1, res.Hops)
		assert.Equal(t, "/final", res.URI.Path)
	}
}

func TestResolveRedirectWithoutLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	_, err := r.Resolve(context.Background(), mustURL(t, srv.URL))
	assert.ErrorIs(t, err, ErrRedirectWithoutLocation)
}

func TestResolveRelativeLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a/b":
			w.Header().Set("Location", "next?x=1")
			w.WriteHeader(http.StatusSeeOther)
		case "/a/next":
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	res, err := r.Resolve(context.Background(), mustURL(t, srv.URL+"/a/b"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/a/next?x=1", res.URI.String())
	assert.Equal(t, 1, res.Hops)
}

func TestResolveAbsoluteLocationAcrossHosts(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer final.Close()
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", final.URL+"/landing")
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer first.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	res, err := r.Resolve(context.Background(), mustURL(t, first.URL))
	require.NoError(t, err)
	assert.Equal(t, final.URL+"/landing", res.URI.String())
}

func TestResolveSendsHeadWithUserAgent(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
		agents  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		agents = append(agents, r.UserAgent())
		mu.Unlock()
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "probe-test/1"
	r := NewResolver(cfg)
	defer r.Close()

	_, err := r.Resolve(context.Background(), mustURL(t, srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []string{http.MethodHead}, methods)
	assert.Equal(t, []string{"probe-test/1"}, agents)
}

func TestResolveTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := mustURL(t, srv.URL)
	srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	_, err := r.Resolve(context.Background(), target)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StageProbe, te.Stage)
	assert.Equal(t, "transport", Reason(err))
}

func TestResolveTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	r := NewResolver(Config{Timeout: 100 * time.Millisecond})
	defer r.Close()

	start := time.Now()
	_, err := r.Resolve(context.Background(), mustURL(t, srv.URL))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestResolveCancelledBetweenHops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var secondHop atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/second" {
			secondHop.Store(true)
			return
		}
		// cancel while the first probe is in flight; it must still complete
		cancel()
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Location", "/second")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	res, err := r.Resolve(ctx, mustURL(t, srv.URL+"/first"))
	require.ErrorIs(t, err, ErrCancelled)
	assert.False(t, secondHop.Load())
	assert.Equal(t, 0, res.Hops)
	assert.Equal(t, "cancelled", Reason(err))
}

func TestResolveCancelledBeforeSuccessWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
	}))
	defer srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	_, err := r.Resolve(ctx, mustURL(t, srv.URL))
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestClassifyTextualErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("<title>Down</title>"))
	}))
	defer srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	_, err := r.Classify(context.Background(), mustURL(t, srv.URL))
	assert.ErrorIs(t, err, ErrUnclassifiedStatus)
}

func TestClassifyBinaryErrorStatusKeepsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	f, err := r.Classify(context.Background(), mustURL(t, srv.URL))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, models.ContentBinary, f.Classification.Kind)
	assert.Equal(t, "image/png", f.Classification.MediaType)
}

func TestClassifyReturnsOpenBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<title>Open</title>"))
	}))
	defer srv.Close()

	r := NewResolver(DefaultConfig())
	defer r.Close()

	fetched, err := r.Classify(context.Background(), mustURL(t, srv.URL))
	require.NoError(t, err)
	defer fetched.Close()

	assert.True(t, fetched.Classification.Textual())
	assert.Equal(t, "text/html", fetched.Classification.MediaType)

	title, err := ExtractTitle(fetched.Body)
	require.NoError(t, err)
	assert.Equal(t, "Open", title)
	require.NoError(t, fetched.Close())
	require.NoError(t, fetched.Close())
}
