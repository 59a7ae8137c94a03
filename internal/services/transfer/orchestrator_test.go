package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/telefile/telefile/internal/config"
	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/utils"
)

type fakeResolver struct {
	calls  int
	err    error
	desc   *models.MediaDescriptor
	format *models.FormatOption
}

func (f *fakeResolver) Resolve(ctx context.Context, req *models.TransferRequest) (*models.MediaDescriptor, *models.FormatOption, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.desc, f.format, nil
}

// fakeRunner plays back one scripted error per attempt; a nil entry means
// the attempt succeeds.
type fakeRunner struct {
	calls  int
	script []error
}

func (f *fakeRunner) Run(ctx context.Context, req *models.TransferRequest, desc *models.MediaDescriptor, format *models.FormatOption, sink Sink) (*models.TransferResult, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.script) && f.script[idx] != nil {
		return nil, f.script[idx]
	}
	return &models.TransferResult{
		Success:  true,
		Artifact: &models.PublishedArtifact{RemoteID: "abc123", PublicURL: "https://gofile.io/d/abc123"},
		FileName: "file.bin",
		FileSize: 42,
	}, nil
}

func noopSink(models.ProgressSnapshot) error { return nil }

func testConfig() *config.DownloadConfig {
	return &config.DownloadConfig{
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
	}
}

func directRequest() *models.TransferRequest {
	return &models.TransferRequest{SourceURL: "https://example.com/file.bin"}
}

func TestOrchestratorSucceedsAfterRetries(t *testing.T) {
	res := &fakeResolver{desc: &models.MediaDescriptor{Platform: "Direct Link", DirectFetch: true}}
	runner := &fakeRunner{script: []error{
		utils.NewFetchError(errReadReset),
		utils.NewFetchError(errReadReset),
		nil,
	}}
	o := NewOrchestrator(res, runner, testConfig())

	result := o.Run(context.Background(), directRequest(), noopSink)

	if !result.Success {
		t.Fatalf("Expected success, got failure: %s", result.ErrorMessage)
	}
	if runner.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", runner.calls)
	}
	if result.RetryCount != 2 {
		t.Errorf("Expected retry count 2, got %d", result.RetryCount)
	}
	if res.calls != 1 {
		t.Errorf("Expected resolution cached across attempts, resolver called %d times", res.calls)
	}
}

func TestOrchestratorExhaustsBudget(t *testing.T) {
	res := &fakeResolver{desc: &models.MediaDescriptor{Platform: "Direct Link"}}
	runner := &fakeRunner{script: []error{
		utils.NewFetchError(errReadReset),
		utils.NewFetchError(errReadReset),
		utils.NewFetchError(errReadReset),
	}}
	o := NewOrchestrator(res, runner, testConfig())

	result := o.Run(context.Background(), directRequest(), noopSink)

	if result.Success {
		t.Fatal("Expected failure after budget exhaustion")
	}
	if runner.calls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", runner.calls)
	}
	if result.RetryCount != 2 {
		t.Errorf("Expected retry count 2, got %d", result.RetryCount)
	}
	if result.ErrorCategory != models.ErrorCategoryFetch {
		t.Errorf("Expected fetch_error, got %s", result.ErrorCategory)
	}
}

func TestOrchestratorDeclaredSizeSkipsFetch(t *testing.T) {
	res := &fakeResolver{err: utils.NewDeclaredSizeError(100)}
	runner := &fakeRunner{}
	o := NewOrchestrator(res, runner, testConfig())

	result := o.Run(context.Background(), directRequest(), noopSink)

	if result.Success {
		t.Fatal("Expected failure")
	}
	if runner.calls != 0 {
		t.Errorf("Expected zero fetch attempts, got %d", runner.calls)
	}
	if result.ErrorCategory != models.ErrorCategorySizeExceeded {
		t.Errorf("Expected size_exceeded, got %s", result.ErrorCategory)
	}
	if result.RetryCount != 0 {
		t.Errorf("Expected retry count 0, got %d", result.RetryCount)
	}
}

func TestOrchestratorEmptyArtifactRetriedOnce(t *testing.T) {
	res := &fakeResolver{desc: &models.MediaDescriptor{Platform: "Direct Link"}}
	runner := &fakeRunner{script: []error{
		utils.NewEmptyArtifactError("file.bin"),
		utils.NewEmptyArtifactError("file.bin"),
		utils.NewEmptyArtifactError("file.bin"),
	}}
	o := NewOrchestrator(res, runner, testConfig())

	result := o.Run(context.Background(), directRequest(), noopSink)

	if result.Success {
		t.Fatal("Expected failure")
	}
	if runner.calls != 2 {
		t.Errorf("Expected empty artifact retried exactly once (2 attempts), got %d", runner.calls)
	}
	if result.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", result.RetryCount)
	}
	if result.ErrorCategory != models.ErrorCategoryEmptyArtifact {
		t.Errorf("Expected empty_artifact, got %s", result.ErrorCategory)
	}
}

func TestOrchestratorNonRetryableStops(t *testing.T) {
	res := &fakeResolver{desc: &models.MediaDescriptor{Platform: "Direct Link"}}
	runner := &fakeRunner{script: []error{
		utils.NewPublishError("upload rejected: 403 Forbidden", false),
	}}
	o := NewOrchestrator(res, runner, testConfig())

	result := o.Run(context.Background(), directRequest(), noopSink)

	if result.Success {
		t.Fatal("Expected failure")
	}
	if runner.calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", runner.calls)
	}
	if result.ErrorCategory != models.ErrorCategoryPublish {
		t.Errorf("Expected publish_error, got %s", result.ErrorCategory)
	}
}

func TestOrchestratorCancelledStopsImmediately(t *testing.T) {
	res := &fakeResolver{desc: &models.MediaDescriptor{Platform: "Direct Link"}}
	runner := &fakeRunner{script: []error{utils.NewCancelledError()}}
	o := NewOrchestrator(res, runner, testConfig())

	result := o.Run(context.Background(), directRequest(), noopSink)

	if runner.calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", runner.calls)
	}
	if result.ErrorCategory != models.ErrorCategoryCancelled {
		t.Errorf("Expected cancelled, got %s", result.ErrorCategory)
	}
}

func TestOrchestratorKeywordDowngradesRetry(t *testing.T) {
	cfg := testConfig()
	cfg.NonRetryableKeywords = []string{"private", "not found"}

	res := &fakeResolver{err: utils.NewResolutionError("ERROR: This video is private", true)}
	runner := &fakeRunner{}
	o := NewOrchestrator(res, runner, cfg)

	result := o.Run(context.Background(), directRequest(), noopSink)

	if result.Success {
		t.Fatal("Expected failure")
	}
	if res.calls != 1 {
		t.Errorf("Expected keyword match to stop retries, resolver called %d times", res.calls)
	}
	if result.ErrorCategory != models.ErrorCategoryResolution {
		t.Errorf("Expected resolution_error, got %s", result.ErrorCategory)
	}
}

func TestOrchestratorLocalPathSkipsResolution(t *testing.T) {
	res := &fakeResolver{}
	runner := &fakeRunner{}
	o := NewOrchestrator(res, runner, testConfig())

	req := &models.TransferRequest{LocalPath: "/tmp/upload.bin"}
	result := o.Run(context.Background(), req, noopSink)

	if !result.Success {
		t.Fatalf("Expected success, got %s", result.ErrorMessage)
	}
	if res.calls != 0 {
		t.Errorf("Expected resolver skipped for local files, called %d times", res.calls)
	}
}

func TestOrchestratorBackoffGrowsLinearly(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBaseDelay = 20 * time.Millisecond

	res := &fakeResolver{desc: &models.MediaDescriptor{Platform: "Direct Link"}}
	runner := &fakeRunner{script: []error{
		utils.NewFetchError(errReadReset),
		utils.NewFetchError(errReadReset),
		nil,
	}}
	o := NewOrchestrator(res, runner, cfg)

	started := time.Now()
	result := o.Run(context.Background(), directRequest(), noopSink)
	elapsed := time.Since(started)

	if !result.Success {
		t.Fatalf("Expected success, got %s", result.ErrorMessage)
	}
	// Delays are base*1 before attempt 2 and base*2 before attempt 3.
	if elapsed < 60*time.Millisecond {
		t.Errorf("Expected at least 60ms of backoff, got %s", elapsed)
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier([]string{"Private", "not found", "geo"})

	testCases := []struct {
		name          string
		err           error
		wantRetryable bool
	}{
		{
			name:          "Keyword downgrades retryable error",
			err:           utils.NewResolutionError("Video unavailable: this video is PRIVATE", true),
			wantRetryable: false,
		},
		{
			name:          "Non-matching retryable error unchanged",
			err:           utils.NewFetchError(errReadReset),
			wantRetryable: true,
		},
		{
			name:          "Non-retryable error stays non-retryable",
			err:           utils.NewPublishError("geo is irrelevant here", false),
			wantRetryable: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			te := c.Classify(tc.err)
			if te.Retryable != tc.wantRetryable {
				t.Errorf("Retryable = %v, expected %v", te.Retryable, tc.wantRetryable)
			}
		})
	}
}

var errReadReset = &readResetError{}

type readResetError struct{}

func (*readResetError) Error() string { return "read: connection reset by peer" }
