package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Resolution is where the redirect chain ended and how many hops it took.
type Resolution struct {
	URI  *url.URL
	Hops int
}

// Resolver probes and fetches links for exactly one request. It owns its
// transport; call Close when done.
type Resolver struct {
	cfg       Config
	client    *http.Client
	transport *http.Transport
}

// NewResolver creates a Resolver with its own connections.
func NewResolver(cfg Config) *Resolver {
	cfg = cfg.withDefaults()
	client, transport := newHTTPClient(cfg.Timeout)
	return &Resolver{cfg: cfg, client: client, transport: transport}
}

// Close drops any connection still held by the transport.
func (r *Resolver) Close() {
	r.transport.CloseIdleConnections()
}

// Resolve follows redirects from start with HEAD probes. It returns the final
// URI once a success status is seen, a *HopLimitError once MaxHops redirects
// were followed, or one of the silent abort errors.
func (r *Resolver) Resolve(ctx context.Context, start *url.URL) (Resolution, error) {
	curr := start
	hops := 0
	for {
		next, resolved, err := r.probe(ctx, curr)
		if err != nil {
			return Resolution{URI: curr, Hops: hops}, err
		}
		if ctx.Err() != nil {
			return Resolution{URI: curr, Hops: hops}, ErrCancelled
		}
		if resolved {
			return Resolution{URI: curr, Hops: hops}, nil
		}
		curr = next
		hops++
		if hops >= r.cfg.MaxHops {
			return Resolution{URI: curr, Hops: hops}, &HopLimitError{Last: curr, Hops: hops}
		}
	}
}

// probe issues one HEAD and reports either the next hop or that curr is final.
// The response is closed before returning on every path.
func (r *Resolver) probe(ctx context.Context, curr *url.URL) (*url.URL, bool, error) {
	callCtx, cancel := detached(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodHead, curr.String(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, false, &TransportError{Stage: StageProbe, URL: curr.String(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case isSuccessStatus(resp.StatusCode):
		return curr, true, nil
	case isRedirectStatus(resp.StatusCode):
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, false, fmt.Errorf("%w: %d from %s", ErrRedirectWithoutLocation, resp.StatusCode, curr)
		}
		ref, err := url.Parse(location)
		if err != nil {
			return nil, false, fmt.Errorf("%w: location %q: %v", ErrMalformedInput, location, err)
		}
		return curr.ResolveReference(ref), false, nil
	default:
		return nil, false, fmt.Errorf("%w: %d from %s", ErrUnclassifiedStatus, resp.StatusCode, curr)
	}
}

func isSuccessStatus(code int) bool {
	switch code {
	case http.StatusOK,
		http.StatusCreated,
		http.StatusAccepted,
		http.StatusNoContent,
		http.StatusResetContent,
		http.StatusPartialContent,
		http.StatusNotModified:
		return true
	}
	return false
}

// 307 and 308 are deliberately absent.
func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMultipleChoices,
		http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther:
		return true
	}
	return false
}
