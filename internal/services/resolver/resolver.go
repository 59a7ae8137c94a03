package resolver

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/telefile/telefile/internal/config"
	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/services/extractor"
	"github.com/telefile/telefile/internal/utils"
)

var platformNames = map[string]string{
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"instagram.com":   "Instagram",
	"tiktok.com":      "TikTok",
	"twitter.com":     "Twitter/X",
	"x.com":           "Twitter/X",
	"facebook.com":    "Facebook",
	"reddit.com":      "Reddit",
	"vimeo.com":       "Vimeo",
	"dailymotion.com": "Dailymotion",
	"soundcloud.com":  "SoundCloud",
	"twitch.tv":       "Twitch",
	"streamable.com":  "Streamable",
}

// Resolver classifies a source URL and normalizes remote metadata into a
// MediaDescriptor. It performs no side effects beyond remote metadata
// queries.
type Resolver struct {
	extractor extractor.Client
	http      *http.Client
	cfg       *config.DownloadConfig
}

func NewResolver(ext extractor.Client, httpClient *http.Client, cfg *config.DownloadConfig) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Resolver{extractor: ext, http: httpClient, cfg: cfg}
}

// IsPlatformURL reports whether the URL's host is in the platform table and
// is therefore handled by the extraction backend.
func (r *Resolver) IsPlatformURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range r.cfg.SupportedPlatforms {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}

// PlatformName returns the display label for a URL ("YouTube", "Direct
// Link", ...).
func PlatformName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "Direct Link"
	}
	host := strings.ToLower(u.Hostname())
	for domain, name := range platformNames {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return name
		}
	}
	return "Direct Link"
}

// Resolve decides the fetch strategy for a URL request and returns the
// normalized descriptor plus the selected format (nil in direct-link mode).
func (r *Resolver) Resolve(ctx context.Context, req *models.TransferRequest) (*models.MediaDescriptor, *models.FormatOption, error) {
	if err := utils.ValidateURL(req.SourceURL); err != nil {
		return nil, nil, utils.NewResolutionError(err.Error(), false)
	}

	if r.IsPlatformURL(req.SourceURL) {
		return r.resolvePlatform(ctx, req)
	}
	return r.resolveDirect(ctx, req)
}

func (r *Resolver) resolvePlatform(ctx context.Context, req *models.TransferRequest) (*models.MediaDescriptor, *models.FormatOption, error) {
	maxHeight := req.MaxHeight
	if maxHeight == 0 {
		maxHeight = r.cfg.DefaultMaxHeight
	}

	desc, err := r.extractor.Extract(ctx, req.SourceURL, extractor.Options{
		AudioOnly: req.AudioOnly,
		MaxHeight: maxHeight,
	})
	if err != nil {
		return nil, nil, err
	}
	if desc.Platform == "" {
		desc.Platform = PlatformName(req.SourceURL)
	}

	if req.FormatID != "" {
		for i := range desc.Formats {
			if desc.Formats[i].ID == req.FormatID {
				if desc.Formats[i].Size > r.cfg.MaxBytes {
					return nil, nil, utils.NewSizeExceededError(desc.Formats[i].Size, r.cfg.MaxBytes)
				}
				return desc, &desc.Formats[i], nil
			}
		}
		return nil, nil, utils.NewResolutionError("requested format is not available", false)
	}

	chosen, err := SelectFormat(desc.Formats, maxHeight, req.AudioOnly, r.cfg.MaxBytes)
	if err != nil {
		return nil, nil, err
	}
	return desc, chosen, nil
}

func (r *Resolver) resolveDirect(ctx context.Context, req *models.TransferRequest) (*models.MediaDescriptor, *models.FormatOption, error) {
	desc := &models.MediaDescriptor{
		Platform:    "Direct Link",
		SourceURL:   req.SourceURL,
		DirectFetch: true,
		FetchURL:    req.SourceURL,
		FileName:    utils.FileNameFromURL(req.SourceURL),
	}

	headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, req.SourceURL, nil)
	if err != nil {
		return nil, nil, utils.NewResolutionError(err.Error(), false)
	}

	resp, err := r.http.Do(headReq)
	if err != nil {
		// HEAD refused: size determination is deferred to the fetch step.
		return desc, nil, nil
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return desc, nil, nil
	}
	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, nil, utils.NewResolutionError("remote returned "+resp.Status, retryable)
	}

	desc.ContentType = resp.Header.Get("Content-Type")
	desc.FileName = utils.FileNameFromDisposition(resp.Header.Get("Content-Disposition"), req.SourceURL)
	if resp.ContentLength > 0 {
		length := resp.ContentLength
		desc.ContentLength = &length
		if length > r.cfg.MaxBytes {
			return nil, nil, utils.NewSizeExceededError(length, r.cfg.MaxBytes)
		}
	}
	desc.Title = desc.FileName

	return desc, nil, nil
}

// SelectFormat applies the format selection policy: formats whose declared
// size exceeds maxBytes are excluded first; audio-only requests take the
// highest audio bitrate; otherwise the largest resolution at or under the
// ceiling wins, ties broken by bitrate, then by declared size. When nothing
// fits under the ceiling the best remaining entry is used, matching the
// extractor's own "best[height<=N]/best" fallback.
func SelectFormat(formats []models.FormatOption, maxHeight int, audioOnly bool, maxBytes int64) (*models.FormatOption, error) {
	candidates := make([]models.FormatOption, 0, len(formats))
	excluded := 0
	for _, f := range formats {
		if maxBytes > 0 && f.Size > maxBytes {
			excluded++
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		if excluded > 0 {
			return nil, utils.NewDeclaredSizeError(maxBytes)
		}
		return nil, utils.NewResolutionError("no usable formats", false)
	}

	if audioOnly {
		audio := make([]models.FormatOption, 0, len(candidates))
		for _, f := range candidates {
			if f.AudioOnly {
				audio = append(audio, f)
			}
		}
		if len(audio) == 0 {
			audio = candidates
		}
		sort.SliceStable(audio, func(i, j int) bool {
			if audio[i].AudioBitrate != audio[j].AudioBitrate {
				return audio[i].AudioBitrate > audio[j].AudioBitrate
			}
			return audio[i].Size > audio[j].Size
		})
		best := audio[0]
		return &best, nil
	}

	within := make([]models.FormatOption, 0, len(candidates))
	for _, f := range candidates {
		if f.AudioOnly {
			continue
		}
		if maxHeight == 0 || f.Height <= maxHeight {
			within = append(within, f)
		}
	}
	pool := within
	if len(pool) == 0 {
		pool = candidates
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Height != pool[j].Height {
			return pool[i].Height > pool[j].Height
		}
		if pool[i].Bitrate != pool[j].Bitrate {
			return pool[i].Bitrate > pool[j].Bitrate
		}
		return pool[i].Size > pool[j].Size
	})
	best := pool[0]
	return &best, nil
}
