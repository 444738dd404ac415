package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cwygoda/linkbatch/internal/domain"
	"github.com/cwygoda/linkbatch/internal/wizard"
	"github.com/cwygoda/linkbatch/internal/worker"
)

const (
	cookiesTimeout  = 120 * time.Second
	t2tTextTimeout  = 120 * time.Second
	t2tNameTimeout  = 60 * time.Second
	defaultTextName = "txt_file"
)

const helpText = "• /upload - Upload .txt file with links\n" +
	"• /drm - DRM batch downloader (send .txt)\n" +
	"• /t2t - Convert text to .txt file\n" +
	"• /cookies - Upload cookies file\n" +
	"• /getcookies - Get current cookies file\n" +
	"• /cancel - Stop the running task"

func (b *Bot) cmdStart(ctx context.Context, msg domain.Message) {
	if msg.ChatType == "channel" {
		b.reply(ctx, msg.ChatID, "✨ Bot is active in this channel. Use /upload or /drm in the channel.")
		return
	}
	name := msg.FirstName
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hello %s!\n\n%s", name, helpText)
	if b.isAdmin(ctx, msg.FromID) {
		text += "\n\nAdmin: /setlog <channel_id> | /getlog | /stop"
	}
	b.reply(ctx, msg.ChatID, text)
}

func (b *Bot) cmdSetLog(ctx context.Context, msg domain.Message, args string) {
	if !b.isAdmin(ctx, msg.FromID) {
		b.reply(ctx, msg.ChatID, "❌ You are not authorized.")
		return
	}
	parts := strings.Fields(args)
	if len(parts) != 1 {
		b.reply(ctx, msg.ChatID, "Usage: /setlog <channel_id>")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		b.reply(ctx, msg.ChatID, "Invalid channel id.")
		return
	}
	if b.settings == nil {
		b.reply(ctx, msg.ChatID, "❌ Settings storage is not available.")
		return
	}
	if err := b.settings.SetLogChannel(ctx, id); err != nil {
		b.logger.Error("store log channel", "error", err)
		b.reply(ctx, msg.ChatID, "❌ Could not save the log channel.")
		return
	}
	b.reply(ctx, msg.ChatID, fmt.Sprintf("✅ Log channel set to %d", id))
}

func (b *Bot) cmdGetLog(ctx context.Context, msg domain.Message) {
	if !b.isAdmin(ctx, msg.FromID) {
		b.reply(ctx, msg.ChatID, "❌ You are not authorized.")
		return
	}
	if id := b.logChannel(ctx); id != 0 {
		b.reply(ctx, msg.ChatID, fmt.Sprintf("Log channel: %d", id))
		return
	}
	b.reply(ctx, msg.ChatID, "No log channel set. Use /setlog <channel_id>.")
}

func (b *Bot) cmdGetCookies(ctx context.Context, msg domain.Message) {
	if _, err := os.Stat(b.cfg.CookiesFile); err != nil {
		b.reply(ctx, msg.ChatID, "No cookies file found.")
		return
	}
	if err := b.transport.SendDocument(ctx, msg.ChatID, b.cfg.CookiesFile, "Here is the cookies file."); err != nil {
		b.logger.Warn("send cookies file", "error", err)
		b.reply(ctx, msg.ChatID, "❌ Could not send the cookies file.")
	}
}

func (b *Bot) cmdStop(ctx context.Context, msg domain.Message) {
	if !b.isAdmin(ctx, msg.FromID) {
		b.reply(ctx, msg.ChatID, "❌ You are not authorized.")
		return
	}
	b.reply(ctx, msg.ChatID, "🛑 Restarting bot...")
	b.logger.Info("restart requested", "user_id", msg.FromID)
	if err := b.restart(); err != nil {
		b.logger.Error("restart failed", "error", err)
		b.reply(ctx, msg.ChatID, "❌ Restart failed: "+err.Error())
	}
}

// Reexec replaces the running process with a fresh copy of itself.
func Reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return syscall.Exec(exe, os.Args, os.Environ())
}

// batchSession collects parameters with the wizard and runs the batch.
func (b *Bot) batchSession(flow wizard.Flow) sessionFunc {
	return func(ctx context.Context, msg domain.Message) error {
		dir := b.workDir(msg.ChatID)
		res, err := b.wizard.Run(ctx, msg.ChatID, dir, flow)
		if err != nil {
			os.RemoveAll(dir)
			return err
		}
		b.reply(ctx, msg.ChatID, fmt.Sprintf("🔄 Starting downloads from index %d ...", res.Params.StartIndex))
		_, err = b.runner.Run(ctx, worker.Batch{
			ChatID:     msg.ChatID,
			WorkDir:    dir,
			Links:      res.Links,
			Params:     res.Params,
			LogChannel: b.logChannel(ctx),
		})
		return err
	}
}

// quickSession downloads a single link sent as plain text.
func (b *Bot) quickSession(ctx context.Context, msg domain.Message) error {
	links := domain.ParseLinks(msg.Text)
	if len(links) == 0 {
		return nil
	}
	b.reply(ctx, msg.ChatID, "🔎 Processing link. Send quality (144/240/360/480/720/1080) or /d for 480.")
	quality := domain.DefaultQuality
	qm, err := b.inbox.Await(ctx, msg.ChatID, b.cfg.UploadTimeout)
	switch {
	case errors.Is(err, domain.ErrWizardTimeout):
	case err != nil:
		return err
	default:
		if q, ok := domain.ParseQuality(qm.Text); ok {
			quality = q
		}
	}

	_, err = b.runner.Run(ctx, worker.Batch{
		ChatID:  msg.ChatID,
		WorkDir: b.workDir(msg.ChatID),
		Links:   links[:1],
		Params: domain.BatchParameters{
			StartIndex:     1,
			Quality:        quality,
			Watermark:      domain.DefaultWatermark,
			Credit:         b.cfg.Credit,
			FilenamePrefix: b.cfg.FilenamePrefix,
			Thumbnail:      domain.ThumbnailPolicy{Kind: domain.ThumbnailDefault},
			Channel:        msg.ChatID,
			Flow:           domain.FlowSingle,
		},
	})
	return err
}

// cookiesSession replaces the downloader cookies file with an uploaded one.
func (b *Bot) cookiesSession(ctx context.Context, msg domain.Message) error {
	b.reply(ctx, msg.ChatID, "📥 Send cookies file (.txt)")
	m, err := b.inbox.Await(ctx, msg.ChatID, cookiesTimeout)
	if errors.Is(err, domain.ErrWizardTimeout) {
		b.reply(ctx, msg.ChatID, "⏳ Timeout: send cookies within 2 minutes.")
		return nil
	}
	if err != nil {
		return err
	}
	if m.Document == nil || !strings.HasSuffix(strings.ToLower(m.Document.Name), ".txt") {
		b.reply(ctx, msg.ChatID, "❌ Please upload a .txt file.")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(b.cfg.CookiesFile), 0o755); err != nil {
		return err
	}
	tmp := b.cfg.CookiesFile + ".part"
	if err := b.transport.DownloadFile(ctx, m.Document.ID, tmp); err != nil {
		os.Remove(tmp)
		b.reply(ctx, msg.ChatID, "Error saving cookies: "+err.Error())
		return err
	}
	if err := os.Rename(tmp, b.cfg.CookiesFile); err != nil {
		os.Remove(tmp)
		b.reply(ctx, msg.ChatID, "Error saving cookies: "+err.Error())
		return err
	}
	b.reply(ctx, msg.ChatID, "✅ Cookies updated.")
	return nil
}

// textToFileSession turns a text message into a .txt document.
func (b *Bot) textToFileSession(ctx context.Context, msg domain.Message) error {
	b.reply(ctx, msg.ChatID, "✍️ Send the text to convert into a .txt file (you have 2 minutes).")
	tm, err := b.inbox.Await(ctx, msg.ChatID, t2tTextTimeout)
	if errors.Is(err, domain.ErrWizardTimeout) {
		b.reply(ctx, msg.ChatID, "⏳ Timeout: try /t2t again.")
		return nil
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(tm.Text) == "" {
		b.reply(ctx, msg.ChatID, "❌ Send valid text.")
		return nil
	}
	b.deleteQuietly(ctx, msg.ChatID, tm.ID)

	b.reply(ctx, msg.ChatID, "📁 Send filename or /d for default")
	name := defaultTextName
	nm, err := b.inbox.Await(ctx, msg.ChatID, t2tNameTimeout)
	switch {
	case errors.Is(err, domain.ErrWizardTimeout):
	case err != nil:
		return err
	default:
		name = textFileName(nm.Text)
		b.deleteQuietly(ctx, msg.ChatID, nm.ID)
	}

	dir := b.workDir(msg.ChatID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, name+".txt")
	if err := os.WriteFile(path, []byte(tm.Text), 0o644); err != nil {
		return err
	}
	defer os.Remove(path)
	return b.transport.SendDocument(ctx, msg.ChatID, path, fmt.Sprintf("`%s.txt` created.", name))
}

func textFileName(input string) string {
	input = strings.TrimSpace(input)
	if input == "" || input == wizard.DefaultInput {
		return defaultTextName
	}
	return strings.TrimSuffix(domain.DisplayName(input), ".txt")
}

func (b *Bot) deleteQuietly(ctx context.Context, chatID, messageID int64) {
	if messageID == 0 {
		return
	}
	if err := b.transport.DeleteMessage(ctx, chatID, messageID); err != nil {
		b.logger.Debug("delete message", "chat_id", chatID, "error", err)
	}
}
