package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/telefile/telefile/internal/config"
	"github.com/telefile/telefile/internal/database"
	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/services/publisher"
	"github.com/telefile/telefile/internal/services/transfer"
	"github.com/telefile/telefile/internal/utils"
)

// Bot is the Telegram chat surface. It receives file URLs and uploaded
// documents, drives transfers through the orchestrator and reports progress
// by editing a status message in place.
type Bot struct {
	api          *tgbotapi.BotAPI
	db           *database.MongoDB
	orchestrator *transfer.Orchestrator
	publisher    *publisher.Client
	cfg          *config.Config
	sessions     *SessionManager
}

func New(cfg *config.Config, db *database.MongoDB, orch *transfer.Orchestrator, pub *publisher.Client) (*Bot, error) {
	// Long polling holds the connection open for UpdateTimeout seconds, so
	// the HTTP timeout has to sit above it.
	httpTimeout := cfg.Telegram.FileAPITimeout
	if min := time.Duration(cfg.Telegram.UpdateTimeout+10) * time.Second; httpTimeout < min {
		httpTimeout = min
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, tgbotapi.APIEndpoint, &http.Client{Timeout: httpTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api: %w", err)
	}
	return &Bot{
		api:          api,
		db:           db,
		orchestrator: orch,
		publisher:    pub,
		cfg:          cfg,
		sessions:     NewSessionManager(),
	}, nil
}

// Run starts long polling and blocks until the context is cancelled.
// Cancelling the context also cancels every in-flight transfer, since each
// operation context derives from it.
func (b *Bot) Run(ctx context.Context) error {
	utils.LogInfo(ctx, "Telegram bot started", map[string]interface{}{
		"username": b.api.Self.UserName,
	})

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.cfg.Telegram.UpdateTimeout
	updates := b.api.GetUpdatesChan(updateCfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	msgCtx := utils.WithUserID(utils.WithCorrelationID(ctx, utils.GenerateCorrelationID()), userID)

	if err := b.db.UpsertUser(msgCtx, &models.User{
		UserID:    userID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}); err != nil {
		utils.LogError(msgCtx, "Failed to upsert user", err)
	}

	banned, err := b.db.IsUserBanned(msgCtx, userID)
	if err != nil {
		utils.LogError(msgCtx, "Failed to check ban status", err)
	}
	if banned {
		b.reply(msg.Chat.ID, "🚫 You are banned from using this bot.")
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(msgCtx, msg)
	case msg.Document != nil:
		b.handleUpload(msgCtx, msg, msg.Document.FileID, msg.Document.FileName, int64(msg.Document.FileSize))
	case msg.Video != nil:
		b.handleUpload(msgCtx, msg, msg.Video.FileID, msg.Video.FileName, int64(msg.Video.FileSize))
	case msg.Audio != nil:
		b.handleUpload(msgCtx, msg, msg.Audio.FileID, msg.Audio.FileName, int64(msg.Audio.FileSize))
	case strings.TrimSpace(msg.Text) != "":
		b.handleURL(msgCtx, msg, strings.TrimSpace(msg.Text), false)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID, helpText)
	case "audio":
		url := strings.TrimSpace(msg.CommandArguments())
		if url == "" {
			b.reply(msg.Chat.ID, "Usage: /audio <url>")
			return
		}
		b.handleURL(ctx, msg, url, true)
	case "stats":
		b.handleStats(ctx, msg)
	case "files":
		b.handleFiles(ctx, msg)
	case "platforms":
		b.handlePlatforms(msg.Chat.ID)
	case "gofile":
		b.handleGoFile(ctx, msg)
	case "unlink":
		b.handleUnlink(ctx, msg)
	case "cancel":
		if b.sessions.Cancel(msg.From.ID) {
			b.reply(msg.Chat.ID, "🛑 Transfer cancelled.")
		} else {
			b.reply(msg.Chat.ID, "Nothing to cancel.")
		}
	case "ban":
		b.handleBan(ctx, msg, true)
	case "unban":
		b.handleBan(ctx, msg, false)
	case "logs":
		b.handleLogs(ctx, msg)
	default:
		b.reply(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.db.GetUser(ctx, msg.From.ID)
	if err != nil || user == nil {
		b.reply(msg.Chat.ID, "No stats recorded yet.")
		return
	}
	text := fmt.Sprintf("📊 Your stats\n\nTransfers: %d\nFailed: %d\nTotal size: %s",
		user.Stats.Transfers, user.Stats.Failures, utils.FormatBytes(user.Stats.BytesTransferred))
	if user.GoFileToken != "" {
		text += "\n\n🔗 GoFile account linked."
	}
	if b.cfg.Telegram.IsAdmin(msg.From.ID) {
		stats, err := b.db.GetStats(ctx)
		if err == nil {
			text += fmt.Sprintf("\n\n🌍 Global\nUsers: %d\nTransfers: %d (%.1f%% ok)\nFiles: %d (%s)\nActive now: %d",
				stats.TotalUsers, stats.TotalTransfers, stats.SuccessRate,
				stats.TotalFiles, utils.FormatBytes(stats.TotalBytesStored), b.sessions.ActiveCount())
		}
	}
	b.reply(msg.Chat.ID, text)
}

func (b *Bot) handleFiles(ctx context.Context, msg *tgbotapi.Message) {
	files, err := b.db.ListUserFiles(ctx, msg.From.ID, 10)
	if err != nil {
		utils.LogError(ctx, "Failed to list files", err)
		b.reply(msg.Chat.ID, "❌ Could not load your files, try again later.")
		return
	}
	if len(files) == 0 {
		b.reply(msg.Chat.ID, "No uploads yet. Send me a link or a file to get started.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📂 Your recent uploads:\n\n")
	for _, f := range files {
		fmt.Fprintf(&sb, "• %s (%s)\n  %s\n", f.FileName, utils.FormatBytes(f.FileSize), f.PublicURL)
	}
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) handleLogs(ctx context.Context, msg *tgbotapi.Message) {
	if !b.cfg.Telegram.IsAdmin(msg.From.ID) {
		b.reply(msg.Chat.ID, "Admins only.")
		return
	}
	logs, err := b.db.GetAdminLogs(ctx, 20)
	if err != nil {
		utils.LogError(ctx, "Failed to load admin logs", err)
		b.reply(msg.Chat.ID, "❌ Could not load logs: "+err.Error())
		return
	}
	if len(logs) == 0 {
		b.reply(msg.Chat.ID, "No admin actions recorded.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🗒 Recent admin actions:\n")
	for _, l := range logs {
		fmt.Fprintf(&sb, "• %s by %d at %s\n", l.Action, l.AdminID, l.CreatedAt.Format("2006-01-02 15:04"))
	}
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) handlePlatforms(chatID int64) {
	var sb strings.Builder
	sb.WriteString("🌐 Supported platforms:\n")
	for _, host := range b.cfg.Download.SupportedPlatforms {
		fmt.Fprintf(&sb, "• %s\n", host)
	}
	sb.WriteString("\nDirect file URLs from any host work too.")
	b.reply(chatID, sb.String())
}

func (b *Bot) handleGoFile(ctx context.Context, msg *tgbotapi.Message) {
	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		b.reply(msg.Chat.ID, "Usage: /gofile <account token>\nUploads will then land in your own GoFile account.")
		return
	}
	info, err := b.publisher.VerifyToken(ctx, token)
	if err != nil {
		b.reply(msg.Chat.ID, "❌ Token check failed: "+err.Error())
		return
	}
	if err := b.db.LinkGoFileAccount(ctx, msg.From.ID, token, info.ID); err != nil {
		utils.LogError(ctx, "Failed to link GoFile account", err)
		b.reply(msg.Chat.ID, "❌ Could not save the token, try again later.")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("✅ Linked GoFile account %s (%s tier).", info.Email, info.Tier))
}

func (b *Bot) handleUnlink(ctx context.Context, msg *tgbotapi.Message) {
	if err := b.db.UnlinkGoFileAccount(ctx, msg.From.ID); err != nil {
		utils.LogError(ctx, "Failed to unlink GoFile account", err)
		b.reply(msg.Chat.ID, "❌ Could not unlink, try again later.")
		return
	}
	b.reply(msg.Chat.ID, "✅ GoFile account unlinked.")
}

func (b *Bot) handleBan(ctx context.Context, msg *tgbotapi.Message, ban bool) {
	if !b.cfg.Telegram.IsAdmin(msg.From.ID) {
		b.reply(msg.Chat.ID, "Admins only.")
		return
	}
	target, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		b.reply(msg.Chat.ID, "Usage: /ban <user id> or /unban <user id>")
		return
	}
	if ban {
		err = b.db.BanUser(ctx, target, msg.From.ID, "banned via bot command")
	} else {
		err = b.db.UnbanUser(ctx, target, msg.From.ID)
	}
	if err != nil {
		utils.LogError(ctx, "Failed to update ban state", err)
		b.reply(msg.Chat.ID, "❌ Failed: "+err.Error())
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("✅ Done for user %d.", target))
}

// handleURL submits a transfer for a pasted link.
func (b *Bot) handleURL(ctx context.Context, msg *tgbotapi.Message, url string, audioOnly bool) {
	if err := utils.ValidateURL(url); err != nil {
		b.reply(msg.Chat.ID, "That does not look like a valid http(s) URL.")
		return
	}
	req := b.newRequest(ctx, msg.From.ID)
	req.SourceURL = url
	req.AudioOnly = audioOnly
	b.startTransfer(ctx, msg.Chat.ID, req)
}

// handleUpload submits a transfer for a file the user sent to the chat. The
// Bot API hands us a temporary download URL, which the pipeline treats as a
// direct link.
func (b *Bot) handleUpload(ctx context.Context, msg *tgbotapi.Message, fileID, fileName string, fileSize int64) {
	if fileSize > 0 && fileSize > b.cfg.Download.MaxBytes {
		b.reply(msg.Chat.ID, fmt.Sprintf("File is too large (%s, limit %s).",
			utils.FormatBytes(fileSize), utils.FormatBytes(b.cfg.Download.MaxBytes)))
		return
	}
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		utils.LogError(ctx, "Failed to fetch file metadata from Telegram", err)
		b.reply(msg.Chat.ID, "❌ Could not fetch that file from Telegram: "+err.Error())
		return
	}
	req := b.newRequest(ctx, msg.From.ID)
	req.SourceURL = file.Link(b.api.Token)
	req.FileName = utils.SanitizeFileName(fileName)
	b.startTransfer(ctx, msg.Chat.ID, req)
}

func (b *Bot) newRequest(ctx context.Context, userID int64) *models.TransferRequest {
	req := &models.TransferRequest{
		ID:            uuid.New(),
		UserID:        userID,
		MaxHeight:     b.cfg.Download.DefaultMaxHeight,
		MaxBytes:      b.cfg.Download.MaxBytes,
		FetchTimeout:  b.cfg.Download.FetchTimeout,
		UploadTimeout: b.cfg.Download.UploadTimeout,
		CreatedAt:     time.Now(),
	}
	user, err := b.db.GetUser(ctx, userID)
	if err == nil && user != nil && user.GoFileToken != "" {
		req.AccountToken = user.GoFileToken
	} else if b.cfg.GoFile.AccountToken != "" {
		req.AccountToken = b.cfg.GoFile.AccountToken
	}
	return req
}

// startTransfer runs the orchestrator in a goroutine, editing one status
// message as progress comes in. A second submission from the same user
// cancels the first.
func (b *Bot) startTransfer(ctx context.Context, chatID int64, req *models.TransferRequest) {
	statusMsg, err := b.api.Send(tgbotapi.NewMessage(chatID, "⏳ Starting transfer..."))
	if err != nil {
		utils.LogError(ctx, "Failed to send status message", err)
		return
	}

	opCtx, cancel := context.WithCancel(ctx)
	session := b.sessions.Begin(req.UserID, cancel)

	go func() {
		defer cancel()
		defer b.sessions.End(session)

		agg := transfer.NewAggregator(b.progressSink(chatID, statusMsg.MessageID), b.cfg.Download.ProgressInterval)
		result := b.orchestrator.Run(opCtx, req, agg.Sink())
		b.finishTransfer(ctx, chatID, statusMsg.MessageID, req, result)
	}()
}

func (b *Bot) progressSink(chatID int64, messageID int) transfer.Sink {
	return func(snap models.ProgressSnapshot) error {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, renderSnapshot(snap))
		_, err := b.api.Send(edit)
		return err
	}
}

// finishTransfer replaces the status message with the terminal result and
// records the outcome. Persistence failures are logged but never shown to
// the user; the link already exists at that point.
func (b *Bot) finishTransfer(ctx context.Context, chatID int64, messageID int, req *models.TransferRequest, result *models.TransferResult) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, renderResult(result))
	edit.DisableWebPagePreview = true
	if _, err := b.api.Send(edit); err != nil {
		utils.LogError(ctx, "Failed to edit result message", err)
	}

	record := &models.TransferRecord{
		ID:            req.ID,
		UserID:        req.UserID,
		SourceURL:     req.SourceURL,
		Platform:      result.Platform,
		Success:       result.Success,
		FileSize:      result.FileSize,
		RetryCount:    result.RetryCount,
		ErrorCategory: result.ErrorCategory,
		ErrorMessage:  result.ErrorMessage,
		ElapsedMillis: result.Elapsed.Milliseconds(),
		CreatedAt:     req.CreatedAt,
	}
	if result.Artifact != nil {
		record.RemoteID = result.Artifact.RemoteID
		record.PublicURL = result.Artifact.PublicURL
	}
	if err := b.db.SaveTransfer(ctx, record); err != nil {
		utils.LogError(ctx, "Failed to save transfer record", err)
	}
	if err := b.db.IncrementUserStats(ctx, req.UserID, result.Success, result.FileSize); err != nil {
		utils.LogError(ctx, "Failed to update user stats", err)
	}
	if !result.Success {
		return
	}

	fileRecord := &models.FileRecord{
		ID:         uuid.New(),
		UserID:     req.UserID,
		FileName:   result.FileName,
		FileSize:   result.FileSize,
		Format:     result.Format,
		Platform:   result.Platform,
		RemoteID:   result.Artifact.RemoteID,
		PublicURL:  result.Artifact.PublicURL,
		DirectURL:  result.Artifact.DirectURL,
		UploadedAt: time.Now(),
	}
	if err := b.db.SaveFile(ctx, fileRecord); err != nil {
		utils.LogError(ctx, "Failed to save file record", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		utils.LogError(context.Background(), "Failed to send message", err)
	}
}
