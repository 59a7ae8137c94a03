package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/telefile/telefile/internal/config"
	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/utils"
)

// UploadInput describes one local byte source to publish.
type UploadInput struct {
	Path         string
	FileName     string
	AccountToken string
	// Progress receives cumulative uploaded byte counts. May be nil.
	Progress func(done, total int64)
}

// AccountInfo is the hosting backend's view of a linked account.
type AccountInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

// Client uploads local files to the hosting backend. It carries its own
// bounded retry around transient HTTP failures: upload failures are cheap to
// retry compared to re-fetching the source bytes, so they are invisible to
// the outer retry orchestrator.
type Client struct {
	http          *http.Client
	apiBase       string
	defaultServer string
	maxRetries    int
	retryInterval time.Duration
	uploadURL     func(server string) string
}

func NewClient(httpClient *http.Client, cfg *config.GoFileConfig) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:          httpClient,
		apiBase:       cfg.APIBase,
		defaultServer: cfg.DefaultServer,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		uploadURL: func(server string) string {
			return fmt.Sprintf("https://%s.gofile.io/uploadFile", server)
		},
	}
}

type apiResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type serverData struct {
	Server string `json:"server"`
}

type uploadData struct {
	Code         string `json:"code"`
	DownloadPage string `json:"downloadPage"`
	DirectLink   string `json:"directLink"`
	FileName     string `json:"fileName"`
	ParentFolder string `json:"parentFolder"`
}

// DiscoverServer asks the backend which upload server to use. Discovery
// failure falls back to the configured default rather than failing the
// upload: availability wins over optimal server selection.
func (c *Client) DiscoverServer(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/getServer", nil)
	if err != nil {
		return c.defaultServer
	}
	resp, err := c.http.Do(req)
	if err != nil {
		utils.LogWarn(ctx, "Server discovery failed, using default", utils.Fields{"server": c.defaultServer})
		return c.defaultServer
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.defaultServer
	}
	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Status != "ok" {
		return c.defaultServer
	}
	var data serverData
	if err := json.Unmarshal(parsed.Data, &data); err != nil || data.Server == "" {
		return c.defaultServer
	}
	return data.Server
}

// Upload streams the file as multipart form content and returns the
// published artifact. Transient failures (5xx, connection reset, 429) are
// retried up to the configured limit with exponential backoff; other 4xx
// responses fail permanently.
func (c *Client) Upload(ctx context.Context, in UploadInput) (*models.PublishedArtifact, error) {
	info, err := os.Stat(in.Path)
	if err != nil {
		return nil, utils.NewPublishError(fmt.Sprintf("local file missing: %v", err), false)
	}
	if info.Size() == 0 {
		return nil, utils.NewPublishError("refusing to upload empty file", false)
	}

	server := c.DiscoverServer(ctx)

	var artifact *models.PublishedArtifact
	operation := func() error {
		a, err := c.uploadOnce(ctx, server, in, info.Size())
		if err != nil {
			return err
		}
		artifact = a
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	policy := backoff.WithMaxRetries(backoff.WithContext(bo, ctx), uint64(c.maxRetries-1))

	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil {
			return nil, utils.NewCancelledError()
		}
		te := utils.AsTransferError(err)
		if te.Category != models.ErrorCategoryPublish {
			te = utils.NewPublishError(err.Error(), true)
		}
		return nil, te
	}

	artifact.Server = server
	artifact.AccountBound = in.AccountToken != ""
	return artifact, nil
}

func (c *Client) uploadOnce(ctx context.Context, server string, in UploadInput, totalSize int64) (*models.PublishedArtifact, error) {
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, backoff.Permanent(utils.NewPublishError(err.Error(), false))
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		var werr error
		defer func() { pw.CloseWithError(werr) }()

		if in.AccountToken != "" {
			if werr = mw.WriteField("token", in.AccountToken); werr != nil {
				return
			}
		}
		part, perr := mw.CreateFormFile("file", in.FileName)
		if perr != nil {
			werr = perr
			return
		}
		src := io.Reader(f)
		if in.Progress != nil {
			src = &countingReader{r: f, total: totalSize, report: in.Progress}
		}
		if _, werr = io.Copy(part, src); werr != nil {
			return
		}
		werr = mw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL(server), pr)
	if err != nil {
		return nil, backoff.Permanent(utils.NewPublishError(err.Error(), false))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if in.AccountToken != "" {
		req.Header.Set("Authorization", "Bearer "+in.AccountToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// transport error, connection reset included
		return nil, utils.NewPublishError(err.Error(), true)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to body parsing
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, utils.NewPublishError("rate limited by hosting backend", true)
	case resp.StatusCode >= 500:
		return nil, utils.NewPublishError(fmt.Sprintf("hosting backend error: %s", resp.Status), true)
	default:
		return nil, backoff.Permanent(utils.NewPublishError(fmt.Sprintf("upload rejected: %s", resp.Status), false))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, utils.NewPublishError(fmt.Sprintf("unparseable upload response: %v", err), true)
	}
	if parsed.Status != "ok" {
		return nil, utils.NewPublishError(fmt.Sprintf("upload status %q", parsed.Status), true)
	}

	var data uploadData
	if err := json.Unmarshal(parsed.Data, &data); err != nil {
		return nil, utils.NewPublishError(fmt.Sprintf("unparseable upload data: %v", err), true)
	}
	if data.Code == "" || data.DownloadPage == "" {
		return nil, backoff.Permanent(utils.NewPublishError("upload response missing artifact identity", false))
	}

	name := data.FileName
	if name == "" {
		name = in.FileName
	}
	return &models.PublishedArtifact{
		RemoteID:  data.Code,
		PublicURL: data.DownloadPage,
		DirectURL: data.DirectLink,
		FileName:  name,
	}, nil
}

// VerifyToken checks an account token against the backend and returns the
// account it belongs to.
func (c *Client) VerifyToken(ctx context.Context, token string) (*AccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/getAccountDetails", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token rejected: %s", resp.Status)
	}
	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if parsed.Status != "ok" {
		return nil, fmt.Errorf("token rejected: status %q", parsed.Status)
	}
	var account AccountInfo
	if err := json.Unmarshal(parsed.Data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

type countingReader struct {
	r      io.Reader
	done   int64
	total  int64
	report func(done, total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.done += int64(n)
		c.report(c.done, c.total)
	}
	return n, err
}
