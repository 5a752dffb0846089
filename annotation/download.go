package annotation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/annotar/anno"
)

// HTTPFetcher fetches URLs with a plain HTTP GET.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher whose requests time out after the given duration.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GET %s: %d %s: %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return io.ReadAll(resp.Body)
}

// AnnotationIDFromURL extracts the annotation id from a viewer URL of the form
// .../annotations/<id> or .../annotations/<type>/<id> and returns the archive download URL
// on the same host.  A URL without a host resolves against baseURL.
func AnnotationIDFromURL(rawURL, baseURL string) (id, downloadURL string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", anno.InvalidArgumentf("bad annotation URL %q: %v", rawURL, err)
	}
	if u.Host == "" {
		base, err := url.Parse(baseURL)
		if err != nil || base.Host == "" {
			return "", "", anno.InvalidArgumentf("annotation URL %q has no host and no usable base %q", rawURL, baseURL)
		}
		u = base.ResolveReference(u)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if part != "annotations" {
			continue
		}
		switch rest := parts[i+1:]; len(rest) {
		case 1:
			id = rest[0]
		case 2:
			id = rest[1]
		}
		if id != "" {
			break
		}
	}
	if id == "" {
		return "", "", anno.InvalidArgumentf("no annotation id in URL %q", rawURL)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	downloadURL = fmt.Sprintf("%s://%s/api/annotations/%s/download", scheme, u.Host, url.PathEscape(id))
	return id, downloadURL, nil
}

// Download fetches the archive of the annotation behind a viewer URL and decodes it like
// Load.  A body that is not an annotation returns an error matching anno.ErrFormat.
func Download(ctx context.Context, rawURL string, opts ...Option) (*Annotation, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	id, downloadURL, err := AnnotationIDFromURL(rawURL, o.remoteURL)
	if err != nil {
		return nil, err
	}
	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(anno.DefaultRemoteTimeout)
	}

	timedLog := anno.NewTimeLog()
	data, err := fetcher.Fetch(ctx, downloadURL)
	if err != nil {
		return nil, fmt.Errorf("downloading annotation %s: %w", id, err)
	}
	a, err := decode(ctx, downloadURL, data, opts)
	if err != nil {
		return nil, err
	}
	timedLog.Infof("Downloaded annotation %s from %s (%s)", id, downloadURL, humanize.Bytes(uint64(len(data))))
	return a, nil
}
