package models

import (
	"time"

	"github.com/google/uuid"
)

// Phase identifies where inside a transfer a progress snapshot was taken.
type Phase string

const (
	PhaseResolving   Phase = "resolving"
	PhaseDownloading Phase = "downloading"
	PhaseUploading   Phase = "uploading"
	PhaseFinished    Phase = "finished"
)

// ErrorCategory classifies a terminal transfer failure.
type ErrorCategory string

const (
	ErrorCategoryResolution    ErrorCategory = "resolution_error"
	ErrorCategoryFetch         ErrorCategory = "fetch_error"
	ErrorCategorySizeExceeded  ErrorCategory = "size_exceeded"
	ErrorCategoryEmptyArtifact ErrorCategory = "empty_artifact"
	ErrorCategoryPublish       ErrorCategory = "publish_error"
	ErrorCategoryCancelled     ErrorCategory = "cancelled"
)

// TransferRequest is the immutable input for one user-initiated transfer.
// Source is either SourceURL or LocalPath, never both. LocalPath files are
// already staged and belong to the caller; the pipeline never deletes them.
type TransferRequest struct {
	ID            uuid.UUID
	UserID        int64
	SourceURL     string
	LocalPath     string
	FileName      string
	FormatID      string
	MaxHeight     int
	AudioOnly     bool
	MaxBytes      int64
	FetchTimeout  time.Duration
	UploadTimeout time.Duration
	AccountToken  string
	CreatedAt     time.Time
}

type AttemptOutcome string

const (
	AttemptPending   AttemptOutcome = "pending"
	AttemptSucceeded AttemptOutcome = "succeeded"
	AttemptFailed    AttemptOutcome = "failed"
)

// TransferAttempt is one try of a TransferRequest. Owned by the retry
// orchestrator; a new one is created per retry.
type TransferAttempt struct {
	Index     int
	StartedAt time.Time
	Outcome   AttemptOutcome
	Category  ErrorCategory
	Error     string
}

// ProgressSnapshot is one point-in-time view of a running transfer.
// Immutable once emitted; superseded by the next snapshot. BytesTotal and
// ETASeconds are nil when the total size is not (yet) known.
type ProgressSnapshot struct {
	Phase      Phase
	BytesDone  int64
	BytesTotal *int64
	Rate       float64
	ETASeconds *int64
	FileName   string
	Platform   string
	Label      string
}

// Percent returns the completed fraction in [0,100], or nil when the total
// is unknown.
func (p ProgressSnapshot) Percent() *float64 {
	if p.BytesTotal == nil || *p.BytesTotal <= 0 {
		return nil
	}
	pct := float64(p.BytesDone) / float64(*p.BytesTotal) * 100
	if pct > 100 {
		pct = 100
	}
	return &pct
}

// PublishedArtifact is the hosting-service response for a completed upload.
type PublishedArtifact struct {
	RemoteID     string
	PublicURL    string
	DirectURL    string
	FileName     string
	Server       string
	AccountBound bool
}

// TransferResult is the terminal record of a transfer. Success is true if
// and only if Artifact is non-nil.
type TransferResult struct {
	Success       bool
	Artifact      *PublishedArtifact
	FileName      string
	FileSize      int64
	Format        string
	DurationSec   float64
	Platform      string
	SourceURL     string
	Elapsed       time.Duration
	RetryCount    int
	ErrorCategory ErrorCategory
	ErrorMessage  string
	FinalProgress *ProgressSnapshot
}

// FormatOption is one candidate rendition of a remote resource.
type FormatOption struct {
	ID           string
	URL          string
	Container    string
	Width        int
	Height       int
	FPS          float64
	Bitrate      float64
	AudioBitrate float64
	VideoCodec   string
	AudioCodec   string
	Size         int64
	AudioOnly    bool
	Note         string
}

// MediaDescriptor is normalized metadata about a remote resource. For
// platform URLs it carries the extractor's candidate formats; for direct
// links DirectFetch is set and FetchURL points at the raw bytes.
type MediaDescriptor struct {
	Title         string
	DurationSec   float64
	Platform      string
	SourceURL     string
	DirectFetch   bool
	FetchURL      string
	FileName      string
	ContentType   string
	ContentLength *int64
	Formats       []FormatOption
}

// User is the per-user persistence record.
type User struct {
	UserID          int64      `bson:"user_id"`
	Username        string     `bson:"username,omitempty"`
	FirstName       string     `bson:"first_name,omitempty"`
	LastName        string     `bson:"last_name,omitempty"`
	Banned          bool       `bson:"banned"`
	BanReason       string     `bson:"ban_reason,omitempty"`
	GoFileToken     string     `bson:"gofile_token,omitempty"`
	GoFileAccountID string     `bson:"gofile_account_id,omitempty"`
	Stats           UserStats  `bson:"stats"`
	CreatedAt       time.Time  `bson:"created_at"`
	LastSeenAt      time.Time  `bson:"last_seen_at"`
	BannedAt        *time.Time `bson:"banned_at,omitempty"`
}

type UserStats struct {
	Transfers        int64 `bson:"transfers"`
	Failures         int64 `bson:"failures"`
	BytesTransferred int64 `bson:"bytes_transferred"`
}

// FileRecord describes one successfully published artifact.
type FileRecord struct {
	ID         uuid.UUID `bson:"id"`
	UserID     int64     `bson:"user_id"`
	FileName   string    `bson:"file_name"`
	FileSize   int64     `bson:"file_size"`
	Format     string    `bson:"format,omitempty"`
	Platform   string    `bson:"platform,omitempty"`
	RemoteID   string    `bson:"remote_id"`
	PublicURL  string    `bson:"public_url"`
	DirectURL  string    `bson:"direct_url,omitempty"`
	UploadedAt time.Time `bson:"uploaded_at"`
}

// TransferRecord is the persisted form of a terminal TransferResult.
type TransferRecord struct {
	ID            uuid.UUID     `bson:"id"`
	UserID        int64         `bson:"user_id"`
	SourceURL     string        `bson:"source_url,omitempty"`
	Platform      string        `bson:"platform,omitempty"`
	Success       bool          `bson:"success"`
	ErrorCategory ErrorCategory `bson:"error_category,omitempty"`
	ErrorMessage  string        `bson:"error_message,omitempty"`
	FileSize      int64         `bson:"file_size"`
	RemoteID      string        `bson:"remote_id,omitempty"`
	PublicURL     string        `bson:"public_url,omitempty"`
	ElapsedMillis int64         `bson:"elapsed_ms"`
	RetryCount    int           `bson:"retry_count"`
	CreatedAt     time.Time     `bson:"created_at"`
}

// AdminLog records one privileged action.
type AdminLog struct {
	AdminID   int64                  `bson:"admin_id"`
	Action    string                 `bson:"action"`
	Details   map[string]interface{} `bson:"details,omitempty"`
	CreatedAt time.Time              `bson:"created_at"`
}

// BotStats is the aggregate counters surfaced by /stats.
type BotStats struct {
	TotalUsers       int64   `json:"total_users"`
	TotalFiles       int64   `json:"total_files"`
	TotalTransfers   int64   `json:"total_transfers"`
	FailedTransfers  int64   `json:"failed_transfers"`
	TotalBytesStored int64   `json:"total_bytes_stored"`
	SuccessRate      float64 `json:"success_rate"`
}
