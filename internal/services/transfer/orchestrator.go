package transfer

import (
	"context"
	"strings"
	"time"

	"github.com/telefile/telefile/internal/config"
	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/services/resolver"
	"github.com/telefile/telefile/internal/utils"
)

// Classifier decides whether a failed attempt is worth retrying. The
// permanent-failure keyword list is configuration, not code: source sites
// phrase geo-blocks and takedowns differently and the table grows over time.
type Classifier struct {
	nonRetryable []string
}

func NewClassifier(nonRetryableKeywords []string) *Classifier {
	keywords := make([]string, len(nonRetryableKeywords))
	for i, k := range nonRetryableKeywords {
		keywords[i] = strings.ToLower(k)
	}
	return &Classifier{nonRetryable: keywords}
}

// Classify normalizes an error and downgrades it to non-retryable when its
// message matches a permanent-failure keyword. The keyword table only ever
// removes retries, never adds them.
func (c *Classifier) Classify(err error) *utils.TransferError {
	te := utils.AsTransferError(err)
	if !te.Retryable {
		return te
	}
	msg := strings.ToLower(te.Message)
	for _, keyword := range c.nonRetryable {
		if strings.Contains(msg, keyword) {
			return &utils.TransferError{
				Category:  te.Category,
				Message:   te.Message,
				Retryable: false,
				Err:       te.Err,
			}
		}
	}
	return te
}

// SourceResolver yields the fetch plan for a request.
type SourceResolver interface {
	Resolve(ctx context.Context, req *models.TransferRequest) (*models.MediaDescriptor, *models.FormatOption, error)
}

// AttemptRunner executes one fetch-and-publish attempt.
type AttemptRunner interface {
	Run(ctx context.Context, req *models.TransferRequest, desc *models.MediaDescriptor, format *models.FormatOption, sink Sink) (*models.TransferResult, error)
}

// Orchestrator drives repeated transfer attempts until success, a
// non-retryable failure, or retry-budget exhaustion. Direct links and
// platform URLs share the same budget.
type Orchestrator struct {
	resolver   SourceResolver
	operation  AttemptRunner
	classifier *Classifier
	cfg        *config.DownloadConfig
}

func NewOrchestrator(res SourceResolver, op AttemptRunner, cfg *config.DownloadConfig) *Orchestrator {
	return &Orchestrator{
		resolver:   res,
		operation:  op,
		classifier: NewClassifier(cfg.NonRetryableKeywords),
		cfg:        cfg,
	}
}

// Run executes the retry loop. Progress flows through sink; a new attempt
// restarts its progress from zero. Cancellation is observed during the
// backoff sleep and inside the active attempt's fetch loop, and always
// leaves the staging directory clean.
func (o *Orchestrator) Run(ctx context.Context, req *models.TransferRequest, sink Sink) *models.TransferResult {
	started := time.Now()

	var desc *models.MediaDescriptor
	var format *models.FormatOption
	var lastErr *utils.TransferError
	attempts := 0
	emptyRetries := 0

	for i := 0; i < o.cfg.MaxAttempts; i++ {
		if i > 0 {
			// Linear backoff: B × attempt index, cancellable.
			delay := o.cfg.RetryBaseDelay * time.Duration(i)
			select {
			case <-ctx.Done():
				return o.failure(req, desc, started, attempts, utils.NewCancelledError())
			case <-time.After(delay):
			}
		}

		attempt := models.TransferAttempt{
			Index:     i,
			StartedAt: time.Now(),
			Outcome:   models.AttemptPending,
		}
		attempts++

		// Resolution is part of the attempt so transient extraction
		// failures consume the same budget; a successful resolution is
		// cached for later attempts.
		if req.LocalPath == "" && desc == nil {
			sink(snapshot(models.PhaseResolving, 0, nil, attempt.StartedAt, "", resolver.PlatformName(req.SourceURL)))
			d, f, err := o.resolver.Resolve(ctx, req)
			if err != nil {
				lastErr = o.classifier.Classify(err)
				attempt.Outcome = models.AttemptFailed
				attempt.Category = lastErr.Category
				attempt.Error = lastErr.Message
				o.logAttempt(ctx, req, attempt, lastErr)
				if lastErr.Category == models.ErrorCategoryCancelled {
					return o.failure(req, desc, started, attempts, lastErr)
				}
				if !lastErr.Retryable {
					break
				}
				continue
			}
			desc, format = d, f
		}

		result, err := o.operation.Run(ctx, req, desc, format, sink)
		if err == nil {
			attempt.Outcome = models.AttemptSucceeded
			result.RetryCount = attempts - 1
			utils.LogInfo(ctx, "Transfer succeeded", utils.Fields{
				"request_id":  req.ID.String(),
				"attempt":     attempt.Index,
				"retry_count": result.RetryCount,
				"file_size":   result.FileSize,
				"remote_id":   result.Artifact.RemoteID,
			})
			return result
		}

		lastErr = o.classifier.Classify(err)
		attempt.Outcome = models.AttemptFailed
		attempt.Category = lastErr.Category
		attempt.Error = lastErr.Message
		o.logAttempt(ctx, req, attempt, lastErr)

		if lastErr.Category == models.ErrorCategoryCancelled {
			return o.failure(req, desc, started, attempts, lastErr)
		}
		if lastErr.Category == models.ErrorCategoryEmptyArtifact {
			// Empty responses are occasionally transient, but they must
			// not consume the whole budget.
			emptyRetries++
			if emptyRetries > 1 {
				break
			}
			continue
		}
		if !lastErr.Retryable {
			break
		}
	}

	return o.failure(req, desc, started, attempts, lastErr)
}

func (o *Orchestrator) logAttempt(ctx context.Context, req *models.TransferRequest, attempt models.TransferAttempt, te *utils.TransferError) {
	utils.LogWarn(ctx, "Transfer attempt failed", utils.Fields{
		"request_id": req.ID.String(),
		"attempt":    attempt.Index,
		"category":   string(te.Category),
		"retryable":  te.Retryable,
		"error":      te.Message,
	})
}

func (o *Orchestrator) failure(req *models.TransferRequest, desc *models.MediaDescriptor, started time.Time, attempts int, te *utils.TransferError) *models.TransferResult {
	if te == nil {
		te = utils.NewFetchError(errNoAttempts)
	}
	retryCount := attempts - 1
	if retryCount < 0 {
		retryCount = 0
	}

	result := &models.TransferResult{
		Success:       false,
		SourceURL:     req.SourceURL,
		Elapsed:       time.Since(started),
		RetryCount:    retryCount,
		ErrorCategory: te.Category,
		ErrorMessage:  te.Message,
		Platform:      resolver.PlatformName(req.SourceURL),
	}
	if desc != nil {
		result.Platform = desc.Platform
		result.FileName = desc.FileName
	}
	return result
}

var errNoAttempts = &noAttemptsError{}

type noAttemptsError struct{}

func (*noAttemptsError) Error() string { return "no attempts were made" }
