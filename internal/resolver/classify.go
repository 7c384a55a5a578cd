package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"link-resolver/internal/models"
)

var textualPattern = regexp.MustCompile(`(?i)^(text/.+|.*xhtml.*)$`)

// Fetched is an open GET response and its classification. Close releases the
// connection.
type Fetched struct {
	Classification models.Classification
	Body           io.ReadCloser
}

// Close closes the response body. Safe to call more than once.
func (f *Fetched) Close() error {
	if f == nil || f.Body == nil {
		return nil
	}
	return f.Body.Close()
}

// Classify issues a GET on an already resolved URI and classifies the media type.
// The caller owns the returned body.
func (r *Resolver) Classify(ctx context.Context, u *url.URL) (*Fetched, error) {
	callCtx, cancel := detached(ctx)

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		return nil, &TransportError{Stage: StageFetch, URL: u.String(), Err: err}
	}
	// An error status still describes binary content by its headers; only a
	// textual body is unusable, since its title would be the error page's.
	class := ClassifyHeader(resp.Header.Get("Content-Type"), resp.ContentLength)
	if resp.StatusCode >= http.StatusBadRequest && class.Kind == models.ContentTextual {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: GET %d from %s", ErrUnclassifiedStatus, resp.StatusCode, u)
	}

	return &Fetched{
		Classification: class,
		Body:           newReadTimeoutBody(resp.Body, r.cfg.Timeout, cancel),
	}, nil
}

// ClassifyHeader classifies a raw Content-Type value. contentLength < 0 means
// the server did not declare one.
func ClassifyHeader(contentType string, contentLength int64) models.Classification {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.TrimSpace(mediaType)

	kind := models.ContentBinary
	if textualPattern.MatchString(mediaType) {
		kind = models.ContentTextual
	}
	return models.Classification{
		Kind:           kind,
		MediaType:      mediaType,
		RawContentType: contentType,
		Size:           sizeOrUnknown(contentLength),
	}
}

func sizeOrUnknown(n int64) int64 {
	if n < 0 {
		return models.UnknownSize
	}
	return n
}
