package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/utils"
)

// YtDlpClient shells out to the yt-dlp binary for metadata extraction.
type YtDlpClient struct {
	binary  string
	timeout time.Duration
}

func NewYtDlpClient(binary string, timeout time.Duration) *YtDlpClient {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDlpClient{binary: binary, timeout: timeout}
}

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	URL            string  `json:"url"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	FormatNote     string  `json:"format_note"`
	Protocol       string  `json:"protocol"`
}

type ytdlpInfo struct {
	Title        string        `json:"title"`
	Duration     float64       `json:"duration"`
	Uploader     string        `json:"uploader"`
	ExtractorKey string        `json:"extractor_key"`
	WebpageURL   string        `json:"webpage_url"`
	Formats      []ytdlpFormat `json:"formats"`
}

func (c *YtDlpClient) Extract(ctx context.Context, url string, opts Options) (*models.MediaDescriptor, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctxTimeout, c.binary, buildArgs(url, opts)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxTimeout.Err() == context.DeadlineExceeded {
			return nil, utils.NewResolutionError("extraction timed out", true)
		}
		if ctx.Err() == context.Canceled {
			return nil, utils.NewCancelledError()
		}
		// The backend's stderr carries the reason (private, geo-blocked,
		// rate limited); keep it so the orchestrator can classify it.
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, utils.NewResolutionError(fmt.Sprintf("extraction failed: %s", msg), true)
	}

	return parseInfo(stdout.Bytes(), url)
}

func buildArgs(url string, opts Options) []string {
	args := []string{"-J", "--no-warnings", "--no-playlist", "--skip-download"}
	if opts.AudioOnly {
		args = append(args, "-f", "bestaudio/best")
	} else if opts.MaxHeight > 0 {
		args = append(args, "-f", fmt.Sprintf("best[height<=%d]/best", opts.MaxHeight))
	}
	return append(args, url)
}

func parseInfo(data []byte, url string) (*models.MediaDescriptor, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, utils.NewResolutionError(fmt.Sprintf("extraction returned unparseable data: %v", err), true)
	}

	desc := &models.MediaDescriptor{
		Title:       utils.SanitizeFileName(info.Title),
		DurationSec: info.Duration,
		Platform:    info.ExtractorKey,
		SourceURL:   url,
	}

	for _, f := range info.Formats {
		if f.URL == "" {
			continue
		}
		// Fragmented protocols cannot be streamed as a single byte range.
		if strings.HasPrefix(f.Protocol, "m3u8") || f.Protocol == "http_dash_segments" {
			continue
		}
		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}
		desc.Formats = append(desc.Formats, models.FormatOption{
			ID:           f.FormatID,
			URL:          f.URL,
			Container:    f.Ext,
			Width:        f.Width,
			Height:       f.Height,
			FPS:          f.FPS,
			Bitrate:      f.TBR,
			AudioBitrate: f.ABR,
			VideoCodec:   f.VCodec,
			AudioCodec:   f.ACodec,
			Size:         size,
			AudioOnly:    (f.VCodec == "none" || f.VCodec == "") && f.ACodec != "none",
			Note:         f.FormatNote,
		})
	}

	if len(desc.Formats) == 0 {
		return nil, utils.NewResolutionError("extraction returned no usable formats", false)
	}

	return desc, nil
}
