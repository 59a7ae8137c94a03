package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/utils"
)

const progressBarWidth = 10

func renderProgressBar(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * progressBarWidth)
	return strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
}

// renderSnapshot formats a progress snapshot for the status message.
func renderSnapshot(snap models.ProgressSnapshot) string {
	var b strings.Builder

	switch snap.Phase {
	case models.PhaseResolving:
		b.WriteString("🔎 Resolving source")
		if snap.Platform != "" {
			fmt.Fprintf(&b, " (%s)", snap.Platform)
		}
		b.WriteString("...")
		return b.String()
	case models.PhaseDownloading:
		b.WriteString("⬇️ Downloading")
	case models.PhaseUploading:
		b.WriteString("⬆️ Uploading")
	case models.PhaseFinished:
		b.WriteString("✅ Finishing up...")
		return b.String()
	}

	if snap.FileName != "" {
		fmt.Fprintf(&b, " %s", snap.FileName)
	}
	b.WriteString("\n")

	if pct := snap.Percent(); pct != nil {
		fmt.Fprintf(&b, "%s %.1f%%\n", renderProgressBar(*pct), *pct)
		fmt.Fprintf(&b, "%s / %s", utils.FormatBytes(snap.BytesDone), utils.FormatBytes(*snap.BytesTotal))
	} else {
		fmt.Fprintf(&b, "%s", utils.FormatBytes(snap.BytesDone))
	}
	if snap.Rate > 0 {
		fmt.Fprintf(&b, " at %s", utils.FormatSpeed(snap.Rate))
	}
	if snap.ETASeconds != nil {
		fmt.Fprintf(&b, "\nETA %s", utils.FormatDuration(time.Duration(*snap.ETASeconds)*time.Second))
	}
	return b.String()
}

// renderResult formats the terminal message for a finished transfer.
func renderResult(result *models.TransferResult) string {
	if !result.Success {
		var b strings.Builder
		b.WriteString("❌ Transfer failed")
		if result.RetryCount > 0 {
			fmt.Fprintf(&b, " after %d attempts", result.RetryCount+1)
		}
		if result.ErrorMessage != "" {
			fmt.Fprintf(&b, ": %s", result.ErrorMessage)
		}
		return b.String()
	}

	var b strings.Builder
	b.WriteString("✅ Done!\n\n")
	fmt.Fprintf(&b, "📄 %s\n", result.FileName)
	fmt.Fprintf(&b, "💾 %s\n", utils.FormatBytes(result.FileSize))
	if result.DurationSec > 0 {
		fmt.Fprintf(&b, "⏱ %s\n", utils.FormatDuration(time.Duration(result.DurationSec)*time.Second))
	}
	if result.Platform != "" {
		fmt.Fprintf(&b, "🌐 %s\n", result.Platform)
	}
	fmt.Fprintf(&b, "\n🔗 %s", result.Artifact.PublicURL)
	if result.Artifact.DirectURL != "" {
		fmt.Fprintf(&b, "\n⚡ %s", result.Artifact.DirectURL)
	}
	if result.Artifact.AccountBound {
		b.WriteString("\n\n📁 Saved to your linked GoFile account.")
	}
	return b.String()
}

const helpText = `I republish files as permanent GoFile links.

Send me:
• a direct file URL
• a video link from a supported platform (see /platforms)
• an uploaded document, video or audio file

Commands:
/start — register and show this help
/help — show this help
/audio <url> — extract audio only
/stats — your usage stats
/files — your recent uploads
/platforms — supported platforms
/gofile <token> — link your GoFile account
/unlink — unlink your GoFile account
/cancel — cancel the running transfer`
