package resolver

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// newHTTPClient builds a client owned by a single resolution. Keep-alives are
// off so every hop opens and closes its own connection, redirects are never
// followed automatically, and compression is off so Content-Length is the
// server's own figure.
func newHTTPClient(timeout time.Duration) (*http.Client, *http.Transport) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		DisableKeepAlives:     true,
		DisableCompression:    true,
	}
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return client, transport
}

// detached returns a context for a single network call. Cancelling the parent
// does not interrupt the call; cancellation is only honored between hops.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(ctx))
}

// readTimeoutBody cancels the request when a single Read blocks longer than
// timeout, the stream equivalent of a socket read timeout.
type readTimeoutBody struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	once    sync.Once
}

func newReadTimeoutBody(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *readTimeoutBody {
	b := &readTimeoutBody{body: body, timeout: timeout, cancel: cancel}
	b.timer = time.AfterFunc(timeout, cancel)
	return b
}

func (b *readTimeoutBody) Read(p []byte) (int, error) {
	b.timer.Reset(b.timeout)
	n, err := b.body.Read(p)
	b.timer.Stop()
	return n, err
}

func (b *readTimeoutBody) Close() error {
	var err error
	b.once.Do(func() {
		b.timer.Stop()
		err = b.body.Close()
		b.cancel()
	})
	return err
}
