package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telefile/telefile/internal/config"
	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/services/publisher"
	"github.com/telefile/telefile/internal/utils"
)

// Publisher pushes a staged local file to the hosting backend.
type Publisher interface {
	Upload(ctx context.Context, in publisher.UploadInput) (*models.PublishedArtifact, error)
}

// Operation executes exactly one transfer attempt: stream the source bytes
// into a uniquely named staging file, verify it, then hand off to the
// publish client. The staging file is removed on every exit path; a local
// file supplied by the caller is left for the caller to clean up.
type Operation struct {
	http      *http.Client
	publisher Publisher
	cfg       *config.DownloadConfig
}

func NewOperation(httpClient *http.Client, pub Publisher, cfg *config.DownloadConfig) *Operation {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Operation{http: httpClient, publisher: pub, cfg: cfg}
}

// Run performs one attempt and returns a result fragment; the orchestrator
// fills in the aggregate retry count. Errors are always *utils.TransferError.
func (o *Operation) Run(ctx context.Context, req *models.TransferRequest, desc *models.MediaDescriptor, format *models.FormatOption, sink Sink) (*models.TransferResult, error) {
	started := time.Now()

	staging := req.LocalPath
	ownsStaging := false

	fileName := o.pickFileName(req, desc, format)
	platform := "Direct Link"
	if desc != nil {
		platform = desc.Platform
	}

	if staging == "" {
		path, err := o.fetch(ctx, req, desc, format, fileName, platform, sink)
		if err != nil {
			return nil, err
		}
		staging = path
		ownsStaging = true
	}
	if ownsStaging {
		defer os.Remove(staging)
	}

	info, err := os.Stat(staging)
	if err != nil {
		return nil, utils.NewFetchError(fmt.Errorf("staged file missing: %w", err))
	}
	if info.Size() == 0 {
		return nil, utils.NewEmptyArtifactError(fileName)
	}
	maxPublish := o.cfg.MaxPublishBytes
	if maxPublish > 0 && info.Size() > maxPublish {
		return nil, utils.NewSizeExceededError(info.Size(), maxPublish)
	}

	artifact, finalSnap, err := o.publish(ctx, req, staging, fileName, platform, info.Size(), sink)
	if err != nil {
		return nil, err
	}

	result := &models.TransferResult{
		Success:       true,
		Artifact:      artifact,
		FileName:      artifact.FileName,
		FileSize:      info.Size(),
		Format:        strings.TrimPrefix(filepath.Ext(fileName), "."),
		Platform:      platform,
		SourceURL:     req.SourceURL,
		Elapsed:       time.Since(started),
		FinalProgress: finalSnap,
	}
	if desc != nil {
		result.DurationSec = desc.DurationSec
	}
	if format != nil {
		result.Format = format.Container
	}
	return result, nil
}

func (o *Operation) pickFileName(req *models.TransferRequest, desc *models.MediaDescriptor, format *models.FormatOption) string {
	if req.FileName != "" {
		return utils.SanitizeFileName(req.FileName)
	}
	if desc != nil {
		if desc.DirectFetch && desc.FileName != "" {
			return desc.FileName
		}
		if desc.Title != "" {
			ext := "bin"
			if format != nil && format.Container != "" {
				ext = format.Container
			}
			return utils.SanitizeFileName(desc.Title + "." + ext)
		}
	}
	if req.LocalPath != "" {
		return utils.SanitizeFileName(filepath.Base(req.LocalPath))
	}
	return utils.FileNameFromURL(req.SourceURL)
}

// fetch streams the source into a staging file named uniquely per attempt,
// so a retry never clobbers a file still being cleaned up from the previous
// one. The size ceiling is enforced inside the loop because totals are
// frequently unknown or misreported up front.
func (o *Operation) fetch(ctx context.Context, req *models.TransferRequest, desc *models.MediaDescriptor, format *models.FormatOption, fileName, platform string, sink Sink) (path string, err error) {
	fetchURL := ""
	if format != nil {
		fetchURL = format.URL
	} else if desc != nil {
		fetchURL = desc.FetchURL
	}
	if fetchURL == "" {
		return "", utils.NewResolutionError("nothing to fetch", false)
	}

	timeout := req.FetchTimeout
	if timeout <= 0 {
		timeout = o.cfg.FetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return "", utils.NewFetchError(err)
	}

	resp, err := o.http.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return "", utils.NewCancelledError()
		}
		return "", utils.NewFetchError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", utils.NewFetchError(fmt.Errorf("remote returned %s", resp.Status))
	}

	var total *int64
	switch {
	case format != nil && format.Size > 0:
		total = &format.Size
	case resp.ContentLength > 0:
		length := resp.ContentLength
		total = &length
	case desc != nil && desc.ContentLength != nil:
		total = desc.ContentLength
	}

	maxBytes := req.MaxBytes
	if maxBytes <= 0 {
		maxBytes = o.cfg.MaxBytes
	}

	staging := filepath.Join(o.cfg.TempDir, uuid.New().String()+"_"+fileName)
	out, err := os.Create(staging)
	if err != nil {
		return "", utils.NewFetchError(err)
	}
	// Cleanup on every failed exit path, including mid-write cancellation.
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(staging)
		}
	}()

	var done int64
	fetchStart := time.Now()
	buf := make([]byte, o.cfg.ChunkSize)
	for {
		select {
		case <-ctx.Done():
			return "", utils.NewCancelledError()
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return "", utils.NewFetchError(werr)
			}
			done += int64(n)
			if done > maxBytes {
				return "", utils.NewSizeExceededError(done, maxBytes)
			}
			sink(snapshot(models.PhaseDownloading, done, total, fetchStart, fileName, platform))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if ctx.Err() == context.Canceled {
				return "", utils.NewCancelledError()
			}
			if fetchCtx.Err() == context.DeadlineExceeded {
				return "", utils.NewFetchError(fmt.Errorf("download timed out after %s", timeout))
			}
			return "", utils.NewFetchError(readErr)
		}
	}

	if cerr := out.Close(); cerr != nil {
		err = utils.NewFetchError(cerr)
		return "", err
	}
	return staging, nil
}

func (o *Operation) publish(ctx context.Context, req *models.TransferRequest, staging, fileName, platform string, size int64, sink Sink) (*models.PublishedArtifact, *models.ProgressSnapshot, error) {
	timeout := req.UploadTimeout
	if timeout <= 0 {
		timeout = o.cfg.UploadTimeout
	}
	uploadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	uploadStart := time.Now()
	artifact, err := o.publisher.Upload(uploadCtx, publisher.UploadInput{
		Path:         staging,
		FileName:     fileName,
		AccountToken: req.AccountToken,
		Progress: func(done, total int64) {
			sink(snapshot(models.PhaseUploading, done, &total, uploadStart, fileName, platform))
		},
	})
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, nil, utils.NewCancelledError()
		}
		if uploadCtx.Err() == context.DeadlineExceeded {
			return nil, nil, utils.NewPublishError(fmt.Sprintf("upload timed out after %s", timeout), true)
		}
		return nil, nil, utils.AsTransferError(err)
	}

	final := snapshot(models.PhaseFinished, size, &size, uploadStart, artifact.FileName, platform)
	sink(final)
	return artifact, &final, nil
}

// snapshot builds a ProgressSnapshot from raw counters and wall-clock
// elapsed time.
func snapshot(phase models.Phase, done int64, total *int64, started time.Time, fileName, platform string) models.ProgressSnapshot {
	elapsed := time.Since(started).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(done) / elapsed
	}

	snap := models.ProgressSnapshot{
		Phase:     phase,
		BytesDone: done,
		Rate:      rate,
		FileName:  fileName,
		Platform:  platform,
	}
	if total != nil && *total > 0 {
		t := *total
		snap.BytesTotal = &t
		if rate > 0 && t > done {
			eta := int64(float64(t-done) / rate)
			snap.ETASeconds = &eta
		}
	}
	snap.Label = progressLabel(snap)
	return snap
}

func progressLabel(snap models.ProgressSnapshot) string {
	verb := "Working"
	switch snap.Phase {
	case models.PhaseResolving:
		return "Resolving source"
	case models.PhaseDownloading:
		verb = "Downloading"
	case models.PhaseUploading:
		verb = "Uploading"
	case models.PhaseFinished:
		return fmt.Sprintf("Done: %s (%s)", snap.FileName, utils.FormatBytes(snap.BytesDone))
	}
	if pct := snap.Percent(); pct != nil {
		return fmt.Sprintf("%s %s: %.0f%% of %s at %s", verb, snap.FileName, *pct,
			utils.FormatBytes(*snap.BytesTotal), utils.FormatSpeed(snap.Rate))
	}
	return fmt.Sprintf("%s %s: %s at %s", verb, snap.FileName,
		utils.FormatBytes(snap.BytesDone), utils.FormatSpeed(snap.Rate))
}
