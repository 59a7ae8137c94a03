package extractor

import (
	"context"

	"github.com/telefile/telefile/internal/models"
)

// Options narrows what the extraction backend should report.
type Options struct {
	AudioOnly bool
	MaxHeight int
}

// Client is the extraction backend: one blocking call that turns a platform
// URL into a normalized MediaDescriptor. Implementations run the backend in
// its own process, so calling Extract never stalls other users' chat
// interactions.
type Client interface {
	Extract(ctx context.Context, url string, opts Options) (*models.MediaDescriptor, error)
}
