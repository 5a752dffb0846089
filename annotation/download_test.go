package annotation

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/janelia-flyem/annotar/anno"
)

func TestAnnotationIDFromURL(t *testing.T) {
	tests := []struct {
		url      string
		id       string
		download string
	}{
		{
			"https://webknossos.org/annotations/61c20205010000cc004a6356",
			"61c20205010000cc004a6356",
			"https://webknossos.org/api/annotations/61c20205010000cc004a6356/download",
		},
		{
			"https://webknossos.org/annotations/Explorational/61c20205010000cc004a6356#2371,4063,1676,0,1.3",
			"61c20205010000cc004a6356",
			"https://webknossos.org/api/annotations/61c20205010000cc004a6356/download",
		},
		{
			"http://localhost:9000/annotations/Task/abc123/",
			"abc123",
			"http://localhost:9000/api/annotations/abc123/download",
		},
		{
			"/annotations/abc123",
			"abc123",
			"https://webknossos.org/api/annotations/abc123/download",
		},
	}
	for _, tc := range tests {
		id, download, err := AnnotationIDFromURL(tc.url, anno.DefaultRemoteURL)
		if err != nil {
			t.Errorf("AnnotationIDFromURL(%q): %v", tc.url, err)
			continue
		}
		if id != tc.id || download != tc.download {
			t.Errorf("AnnotationIDFromURL(%q) = %q, %q; expected %q, %q", tc.url, id, download, tc.id, tc.download)
		}
	}

	for _, bad := range []string{
		"https://webknossos.org/datasets/l4_sample/view",
		"https://webknossos.org/annotations",
		"https://webknossos.org/annotations/a/b/c",
		"://bad",
	} {
		if _, _, err := AnnotationIDFromURL(bad, anno.DefaultRemoteURL); !errors.Is(err, anno.ErrInvalidArgument) {
			t.Errorf("expected invalid argument for %q, got %v", bad, err)
		}
	}
}

func TestDownload(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	src := newSampleAnnotation(t)
	defer src.Close()
	var archive bytes.Buffer
	if err := src.Encode(context.Background(), &archive); err != nil {
		t.Fatalf("encoding archive: %v", err)
	}

	httpmock.RegisterResponder("GET", "https://webknossos.org/api/annotations/61c20205010000cc004a6356/download",
		httpmock.NewBytesResponder(http.StatusOK, archive.Bytes()))
	httpmock.RegisterResponder("GET", "https://webknossos.org/api/annotations/broken/download",
		httpmock.NewStringResponder(http.StatusOK, "<html><body>maintenance</body></html>"))
	httpmock.RegisterResponder("GET", "https://webknossos.org/api/annotations/private/download",
		httpmock.NewStringResponder(http.StatusForbidden, "not allowed"))

	ctx := context.Background()
	a, err := Download(ctx, "https://webknossos.org/annotations/Explorational/61c20205010000cc004a6356")
	if err != nil {
		t.Fatalf("downloading: %v", err)
	}
	defer a.Close()
	if id, found := a.AnnotationID(); !found || id != sampleAnnotationID {
		t.Errorf("bad annotation id %q", id)
	}
	if names := a.VolumeLayerNames(); len(names) != 1 || names[0] != "Volume" {
		t.Errorf("bad layer names %v", names)
	}
	if label := readLabel(t, a, "Volume", anno.Point3d{590, 512, 16}); label != 7718 {
		t.Errorf("expected label 7718, got %d", label)
	}

	_, err = Download(ctx, "https://webknossos.org/annotations/broken")
	if !errors.Is(err, anno.ErrFormat) {
		t.Errorf("expected format error for malformed body, got %v", err)
	}

	_, err = Download(ctx, "https://webknossos.org/annotations/private")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 status error, got %v", err)
	}

	if count := httpmock.GetTotalCallCount(); count != 3 {
		t.Errorf("expected 3 requests, got %d", count)
	}
}

type staticFetcher struct {
	data []byte
	urls []string
}

func (f *staticFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.data, nil
}

func TestDownloadWithFetcher(t *testing.T) {
	f := &staticFetcher{data: []byte(`<things><parameters><experiment name="l4_sample"/></parameters></things>`)}
	a, err := Download(context.Background(), "/annotations/abc", WithFetcher(f))
	if err != nil {
		t.Fatalf("downloading: %v", err)
	}
	defer a.Close()
	if a.DatasetName() != "l4_sample" {
		t.Errorf("bad dataset name %q", a.DatasetName())
	}
	if len(f.urls) != 1 || f.urls[0] != "https://webknossos.org/api/annotations/abc/download" {
		t.Errorf("bad fetched urls %v", f.urls)
	}
}
