// Package telegram implements domain.Transport over the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwygoda/linkbatch/internal/domain"
)

const (
	maxMessageRunes = 4096
	maxCaptionRunes = 1024
	maxFileBytes    = 20 << 20

	// uploadTimeout caps any single request of the default client; long
	// polls carry their own, shorter deadline.
	uploadTimeout = 10 * time.Minute
)

// pollGrace is how long a getUpdates request may outlive its poll timeout.
var pollGrace = 5 * time.Second

// Client talks to the Bot API. Outgoing sends share one rate limiter.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a client. sendRate is the number of outgoing sends per second;
// zero or less disables pacing. A nil httpClient gets a client sized for
// large uploads.
func New(httpClient *http.Client, baseURL, token string, sendRate float64, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: uploadTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if sendRate > 0 {
		limit = rate.Limit(sendRate)
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

type update struct {
	UpdateID    int64    `json:"update_id"`
	Message     *message `json:"message,omitempty"`
	ChannelPost *message `json:"channel_post,omitempty"`
}

type message struct {
	MessageID int64       `json:"message_id"`
	Chat      *chat       `json:"chat,omitempty"`
	From      *user       `json:"from,omitempty"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Document  *document   `json:"document,omitempty"`
	Photo     []photoSize `json:"photo,omitempty"`
}

type chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

type user struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

type document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type photoSize struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
}

type file struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path,omitempty"`
}

type response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// APIError is a non-OK Bot API reply.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Updates long-polls for new messages. It returns the offset for the next
// call. Updates without a message are skipped but still advance the offset.
func (c *Client) Updates(ctx context.Context, offset int64, timeout time.Duration) ([]domain.Message, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	q := url.Values{"timeout": {strconv.Itoa(secs)}}
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+pollGrace)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.methodURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, offset, err
	}
	var updates []update
	if err := c.do(req, "getUpdates", &updates); err != nil {
		return nil, offset, err
	}

	next := offset
	var out []domain.Message
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
		m := u.Message
		if m == nil {
			m = u.ChannelPost
		}
		if m == nil || m.Chat == nil {
			continue
		}
		out = append(out, toDomain(m))
	}
	return out, next, nil
}

func toDomain(m *message) domain.Message {
	msg := domain.Message{
		ID:       m.MessageID,
		ChatID:   m.Chat.ID,
		ChatType: m.Chat.Type,
		Text:     m.Text,
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}
	if m.From != nil {
		msg.FromID = m.From.ID
		msg.FromBot = m.From.IsBot
		msg.FirstName = m.From.FirstName
	}
	if m.Document != nil {
		msg.Document = &domain.FileRef{ID: m.Document.FileID, Name: m.Document.FileName, Size: m.Document.FileSize}
	}
	if n := len(m.Photo); n > 0 {
		// Sizes are ordered smallest first.
		p := m.Photo[n-1]
		msg.Photo = &domain.FileRef{ID: p.FileID, Size: p.FileSize}
	}
	return msg
}

// SendMessage sends plain text and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	body := map[string]any{
		"chat_id":                  chatID,
		"text":                     truncateRunes(text, maxMessageRunes),
		"disable_web_page_preview": true,
	}
	var sent message
	if err := c.postJSON(ctx, "sendMessage", body, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	body := map[string]any{"chat_id": chatID, "message_id": messageID}
	return c.postJSON(ctx, "deleteMessage", body, nil)
}

// SendDocument uploads a file as a document.
func (c *Client) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	return c.sendFile(ctx, "sendDocument", chatID, caption, upload{field: "document", path: path}, nil)
}

// SendPhoto uploads an image.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	return c.sendFile(ctx, "sendPhoto", chatID, caption, upload{field: "photo", path: path}, nil)
}

// SendVideo uploads a streamable video with an optional thumbnail.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption, thumb string) error {
	var extra []upload
	if thumb != "" {
		extra = append(extra, upload{field: "thumbnail", path: thumb})
	}
	return c.sendFile(ctx, "sendVideo", chatID, caption, upload{field: "video", path: path}, extra,
		"supports_streaming", "true")
}

// DownloadFile resolves fileID and writes its content to dst.
func (c *Client) DownloadFile(ctx context.Context, fileID, dst string) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return errors.New("missing file_id")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.methodURL("getFile")+"?file_id="+url.QueryEscape(fileID), nil)
	if err != nil {
		return err
	}
	var f file
	if err := c.do(req, "getFile", &f); err != nil {
		return err
	}
	if strings.TrimSpace(f.FilePath) == "" {
		return errors.New("telegram getFile: missing file_path")
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(f.FilePath, "/"))
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram download http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(resp.Body, maxFileBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxFileBytes {
		err = fmt.Errorf("telegram file too large (>%d bytes)", maxFileBytes)
	}
	if err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

type upload struct {
	field string
	path  string
}

// sendFile streams a multipart upload. kv holds extra form fields as
// alternating keys and values.
func (c *Client) sendFile(ctx context.Context, method string, chatID int64, caption string, primary upload, extra []upload, kv ...string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	files := append([]upload{primary}, extra...)
	for _, u := range files {
		st, err := os.Stat(u.path)
		if err != nil {
			return err
		}
		if st.IsDir() {
			return fmt.Errorf("path is a directory: %s", u.path)
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeForm(mw, chatID, caption, files, kv)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	err = c.do(req, method, nil)
	pr.Close()
	return err
}

func writeForm(mw *multipart.Writer, chatID int64, caption string, files []upload, kv []string) error {
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if caption = strings.TrimSpace(caption); caption != "" {
		if err := mw.WriteField("caption", truncateRunes(caption, maxCaptionRunes)); err != nil {
			return err
		}
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if err := mw.WriteField(kv[i], kv[i+1]); err != nil {
			return err
		}
	}
	for _, u := range files {
		if err := writeFile(mw, u); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(mw *multipart.Writer, u upload) error {
	f, err := os.Open(u.path)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := mw.CreateFormFile(u.field, filepath.Base(u.path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func (c *Client) postJSON(ctx context.Context, method string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

// do sends req and decodes the result envelope. A 429 reply becomes a
// *domain.RateLimitError.
func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("telegram %s: decode: %w", method, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || env.ErrorCode == http.StatusTooManyRequests {
		wait := time.Second
		if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
			wait = time.Duration(env.Parameters.RetryAfter) * time.Second
		}
		c.logger.Warn("telegram rate limit", "method", method, "retry_after", wait)
		return &domain.RateLimitError{RetryAfter: wait}
	}
	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: env.Description}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
