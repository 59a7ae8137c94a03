package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/telefile/telefile/internal/config"
	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/services/extractor"
	"github.com/telefile/telefile/internal/utils"
)

type fakeExtractor struct {
	desc    *models.MediaDescriptor
	err     error
	gotOpts extractor.Options
}

func (f *fakeExtractor) Extract(ctx context.Context, url string, opts extractor.Options) (*models.MediaDescriptor, error) {
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.desc, nil
}

func resolverConfig() *config.DownloadConfig {
	return &config.DownloadConfig{
		MaxBytes:           1 << 30,
		DefaultMaxHeight:   1080,
		SupportedPlatforms: []string{"youtube.com", "youtu.be", "tiktok.com"},
	}
}

func TestIsPlatformURL(t *testing.T) {
	r := NewResolver(&fakeExtractor{}, nil, resolverConfig())

	testCases := []struct {
		name     string
		url      string
		expected bool
	}{
		{name: "Exact host", url: "https://youtube.com/watch?v=abc", expected: true},
		{name: "Subdomain", url: "https://www.youtube.com/watch?v=abc", expected: true},
		{name: "Short host", url: "https://youtu.be/abc", expected: true},
		{name: "Unlisted host", url: "https://example.com/video.mp4", expected: false},
		{name: "Host suffix trick", url: "https://notyoutube.com/watch", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.IsPlatformURL(tc.url); got != tc.expected {
				t.Errorf("IsPlatformURL(%q) = %v, expected %v", tc.url, got, tc.expected)
			}
		})
	}
}

func TestPlatformName(t *testing.T) {
	if got := PlatformName("https://www.youtube.com/watch?v=abc"); got != "YouTube" {
		t.Errorf("Expected YouTube, got %q", got)
	}
	if got := PlatformName("https://example.com/a.bin"); got != "Direct Link" {
		t.Errorf("Expected Direct Link, got %q", got)
	}
}

func TestResolveRejectsInvalidURL(t *testing.T) {
	r := NewResolver(&fakeExtractor{}, nil, resolverConfig())

	_, _, err := r.Resolve(context.Background(), &models.TransferRequest{SourceURL: "not a url"})
	if err == nil {
		t.Fatal("Expected error")
	}
	te := utils.AsTransferError(err)
	if te.Category != models.ErrorCategoryResolution || te.Retryable {
		t.Errorf("Expected permanent resolution_error, got %+v", te)
	}
}

func TestResolvePlatformUsesExtractor(t *testing.T) {
	ext := &fakeExtractor{desc: &models.MediaDescriptor{
		Title:    "clip",
		Platform: "YouTube",
		Formats: []models.FormatOption{
			{ID: "18", Height: 360, Container: "mp4", URL: "https://cdn/v18"},
			{ID: "22", Height: 720, Container: "mp4", URL: "https://cdn/v22"},
		},
	}}
	r := NewResolver(ext, nil, resolverConfig())

	desc, format, err := r.Resolve(context.Background(), &models.TransferRequest{
		SourceURL: "https://youtube.com/watch?v=abc",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if desc.Platform != "YouTube" {
		t.Errorf("Expected YouTube, got %q", desc.Platform)
	}
	if format == nil || format.ID != "22" {
		t.Errorf("Expected highest format under ceiling, got %+v", format)
	}
	if ext.gotOpts.MaxHeight != 1080 {
		t.Errorf("Expected default ceiling passed through, got %d", ext.gotOpts.MaxHeight)
	}
}

func TestResolvePlatformExplicitFormat(t *testing.T) {
	ext := &fakeExtractor{desc: &models.MediaDescriptor{
		Platform: "YouTube",
		Formats: []models.FormatOption{
			{ID: "18", Height: 360},
			{ID: "22", Height: 720},
		},
	}}
	r := NewResolver(ext, nil, resolverConfig())

	_, format, err := r.Resolve(context.Background(), &models.TransferRequest{
		SourceURL: "https://youtube.com/watch?v=abc",
		FormatID:  "18",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if format.ID != "18" {
		t.Errorf("Expected requested format honored, got %q", format.ID)
	}

	_, _, err = r.Resolve(context.Background(), &models.TransferRequest{
		SourceURL: "https://youtube.com/watch?v=abc",
		FormatID:  "missing",
	})
	if err == nil {
		t.Fatal("Expected error for unknown format id")
	}
}

func TestResolveDirectProbesHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", `attachment; filename="probe.mp4"`)
		w.Header().Set("Content-Length", "2048")
	}))
	defer srv.Close()

	r := NewResolver(&fakeExtractor{}, srv.Client(), resolverConfig())

	desc, format, err := r.Resolve(context.Background(), &models.TransferRequest{SourceURL: srv.URL + "/x"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if format != nil {
		t.Error("Expected nil format in direct-link mode")
	}
	if !desc.DirectFetch || desc.FetchURL != srv.URL+"/x" {
		t.Errorf("Expected direct fetch of source URL, got %+v", desc)
	}
	if desc.FileName != "probe.mp4" {
		t.Errorf("Expected name from disposition header, got %q", desc.FileName)
	}
	if desc.ContentLength == nil || *desc.ContentLength != 2048 {
		t.Errorf("Expected content length 2048, got %v", desc.ContentLength)
	}
}

func TestResolveDirectDeclaredSizeExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.FormatInt(10<<30, 10))
	}))
	defer srv.Close()

	cfg := resolverConfig()
	cfg.MaxBytes = 1 << 20
	r := NewResolver(&fakeExtractor{}, srv.Client(), cfg)

	_, _, err := r.Resolve(context.Background(), &models.TransferRequest{SourceURL: srv.URL + "/huge.bin"})
	if err == nil {
		t.Fatal("Expected size error")
	}
	if got := utils.CategoryOf(err); got != models.ErrorCategorySizeExceeded {
		t.Errorf("Expected size_exceeded, got %s", got)
	}
}

func TestResolveDirectHeadRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	r := NewResolver(&fakeExtractor{}, srv.Client(), resolverConfig())

	desc, _, err := r.Resolve(context.Background(), &models.TransferRequest{SourceURL: srv.URL + "/file.bin"})
	if err != nil {
		t.Fatalf("Expected deferred size determination, got %v", err)
	}
	if desc.ContentLength != nil {
		t.Error("Expected unknown content length")
	}
}

func TestResolveDirectErrorStatuses(t *testing.T) {
	testCases := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{name: "Not found is permanent", status: http.StatusNotFound, wantRetryable: false},
		{name: "Forbidden is permanent", status: http.StatusForbidden, wantRetryable: false},
		{name: "Rate limited is transient", status: http.StatusTooManyRequests, wantRetryable: true},
		{name: "Server error is transient", status: http.StatusServiceUnavailable, wantRetryable: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			r := NewResolver(&fakeExtractor{}, srv.Client(), resolverConfig())
			_, _, err := r.Resolve(context.Background(), &models.TransferRequest{SourceURL: srv.URL + "/x"})
			if err == nil {
				t.Fatal("Expected error")
			}
			te := utils.AsTransferError(err)
			if te.Category != models.ErrorCategoryResolution {
				t.Errorf("Expected resolution_error, got %s", te.Category)
			}
			if te.Retryable != tc.wantRetryable {
				t.Errorf("Retryable = %v, expected %v", te.Retryable, tc.wantRetryable)
			}
		})
	}
}

func TestSelectFormat(t *testing.T) {
	formats := []models.FormatOption{
		{ID: "audio-lo", AudioOnly: true, AudioBitrate: 64, Size: 10},
		{ID: "audio-hi", AudioOnly: true, AudioBitrate: 160, Size: 20},
		{ID: "360p", Height: 360, Bitrate: 700, Size: 100},
		{ID: "720p", Height: 720, Bitrate: 2500, Size: 300},
		{ID: "1080p", Height: 1080, Bitrate: 5000, Size: 700},
		{ID: "2160p", Height: 2160, Bitrate: 16000, Size: 3000},
	}

	testCases := []struct {
		name      string
		maxHeight int
		audioOnly bool
		maxBytes  int64
		wantID    string
	}{
		{
			name:      "Largest height under ceiling",
			maxHeight: 1080,
			wantID:    "1080p",
		},
		{
			name:      "Ceiling excludes larger renditions",
			maxHeight: 720,
			wantID:    "720p",
		},
		{
			name:      "No ceiling takes the top",
			maxHeight: 0,
			wantID:    "2160p",
		},
		{
			name:      "Audio only takes highest audio bitrate",
			maxHeight: 1080,
			audioOnly: true,
			wantID:    "audio-hi",
		},
		{
			name:      "Oversized formats excluded before selection",
			maxHeight: 2160,
			maxBytes:  500,
			wantID:    "720p",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SelectFormat(formats, tc.maxHeight, tc.audioOnly, tc.maxBytes)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.ID != tc.wantID {
				t.Errorf("Selected %q, expected %q", got.ID, tc.wantID)
			}
		})
	}
}

func TestSelectFormatTieBreaking(t *testing.T) {
	formats := []models.FormatOption{
		{ID: "a", Height: 720, Bitrate: 1500, Size: 100},
		{ID: "b", Height: 720, Bitrate: 2500, Size: 90},
		{ID: "c", Height: 720, Bitrate: 2500, Size: 120},
	}
	got, err := SelectFormat(formats, 1080, false, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.ID != "c" {
		t.Errorf("Expected bitrate then size tie-break to pick c, got %q", got.ID)
	}
}

func TestSelectFormatFallbackAboveCeiling(t *testing.T) {
	formats := []models.FormatOption{
		{ID: "1440p", Height: 1440, Bitrate: 8000},
		{ID: "2160p", Height: 2160, Bitrate: 16000},
	}
	got, err := SelectFormat(formats, 480, false, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.ID != "2160p" {
		t.Errorf("Expected best-overall fallback, got %q", got.ID)
	}
}

func TestSelectFormatAllOversized(t *testing.T) {
	formats := []models.FormatOption{
		{ID: "a", Height: 720, Size: 5000},
		{ID: "b", Height: 1080, Size: 9000},
	}
	_, err := SelectFormat(formats, 1080, false, 1000)
	if err == nil {
		t.Fatal("Expected error when every format exceeds the byte limit")
	}
	if got := utils.CategoryOf(err); got != models.ErrorCategorySizeExceeded {
		t.Errorf("Expected size_exceeded, got %s", got)
	}
}

func TestSelectFormatEmpty(t *testing.T) {
	if _, err := SelectFormat(nil, 1080, false, 0); err == nil {
		t.Fatal("Expected error for empty format list")
	}
}
