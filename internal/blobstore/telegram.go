package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

const progressMinBytes = 64 * 1024

// TelegramStore implements blobstore.Store against a single Telegram chat
// acting as opaque remote storage ("Saved Messages"): every upload is one
// document message, and the message ID is the blob's public ID.
type TelegramStore struct {
	sessionPath string
	indexPath   string
	httpClient  *http.Client

	mu      sync.Mutex
	bot     *tgbotapi.BotAPI
	session *session
	index   *blobIndex
}

func NewTelegramStore(appDataDir string) (*TelegramStore, error) {
	sessionPath := filepath.Join(appDataDir, "telegram_session.json")
	indexPath := filepath.Join(appDataDir, "blob_index.jsonl")

	s, err := loadSession(sessionPath)
	if err != nil {
		return nil, err
	}
	idx, err := openBlobIndex(indexPath)
	if err != nil {
		return nil, err
	}

	t := &TelegramStore{
		sessionPath: sessionPath,
		indexPath:   indexPath,
		httpClient:  &http.Client{Timeout: 70 * time.Second},
		session:     s,
		index:       idx,
	}
	if s != nil && s.BotToken != "" {
		_ = t.connect()
	}
	return t, nil
}

func (t *TelegramStore) connect() error {
	bot, err := tgbotapi.NewBotAPIWithClient(t.session.BotToken, tgbotapi.APIEndpoint, t.httpClient)
	if err != nil {
		return err
	}
	t.bot = bot
	return nil
}

func (t *TelegramStore) IsCredentialed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil && t.session.BotToken != ""
}

func (t *TelegramStore) IsAuthorized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bot != nil && t.session != nil && t.session.Verified && t.session.ChatID != 0
}

// RequestLoginCode sends no code: the Bot API backend has no phone/code
// login flow, only a static bot token supplied out of band. It stores
// identifier as the bot token of a fresh, unverified session and persists
// that session; SignIn completes it.
func (t *TelegramStore) RequestLoginCode(_ context.Context, identifier string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = &session{BotToken: identifier}
	return saveSession(t.sessionPath, t.session)
}

// SignIn treats "code" as "<bot token>:<chat id>", verifies the token via
// GetMe, and persists the session.
func (t *TelegramStore) SignIn(_ context.Context, code string) error {
	parts := strings.SplitN(code, ":", 2)
	if len(parts) != 2 {
		return verr.New(verr.KindInvalidInput, "sign-in code must be \"<bot token>:<chat id>\"")
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return verr.New(verr.KindInvalidInput, "chat id must be numeric")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(strings.TrimSpace(parts[0]), tgbotapi.APIEndpoint, t.httpClient)
	if err != nil {
		return verr.Wrap(verr.KindExternalBackend, "bot token rejected", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.bot = bot
	t.session = &session{BotToken: strings.TrimSpace(parts[0]), ChatID: chatID, Verified: true}
	return saveSession(t.sessionPath, t.session)
}

func (t *TelegramStore) Logout(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bot = nil
	t.session = nil
	return os.Remove(t.sessionPath)
}

type progressReader struct {
	r         io.Reader
	total     int64
	sent      int64
	lastEmit  int64
	threshold int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.sent += int64(n)
		if pr.onProgress != nil && (pr.sent-pr.lastEmit >= pr.threshold || err == io.EOF) {
			pr.onProgress(pr.sent, pr.total)
			pr.lastEmit = pr.sent
		}
	}
	return n, err
}

func (t *TelegramStore) UploadStream(ctx context.Context, r io.Reader, totalBytes int64, filename string, progress ProgressFunc) (string, error) {
	t.mu.Lock()
	bot, chatID := t.bot, int64(0)
	if t.session != nil {
		chatID = t.session.ChatID
	}
	t.mu.Unlock()
	if bot == nil || chatID == 0 {
		return "", verr.New(verr.KindExternalBackend, "blob store not authorized")
	}

	threshold := totalBytes / 100
	if threshold < progressMinBytes {
		threshold = progressMinBytes
	}
	pr := &progressReader{r: r, total: totalBytes, threshold: threshold, onProgress: progress}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filename, Reader: pr})
	msg, err := bot.Send(doc)
	if err != nil {
		return "", classifyTelegramErr(err)
	}
	if msg.Document == nil {
		return "", verr.New(verr.KindExternalBackend, "upload returned no document")
	}

	entry := indexEntry{
		MessageID:  int64(msg.MessageID),
		FileID:     msg.Document.FileID,
		Filename:   filename,
		MimeType:   msg.Document.MimeType,
		SizeBytes:  totalBytes,
		UploadedAt: time.Now().UTC(),
	}
	if err := t.index.append(entry); err != nil {
		return "", err
	}
	return strconv.FormatInt(entry.MessageID, 10), nil
}

func (t *TelegramStore) Download(ctx context.Context, blobID, destPath string) error {
	messageID, err := strconv.ParseInt(blobID, 10, 64)
	if err != nil {
		return verr.New(verr.KindInvalidInput, "malformed blob id")
	}
	entry, ok := t.index.lookup(messageID)
	if !ok {
		return verr.New(verr.KindNotFound, "blob not found in local index")
	}

	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return verr.New(verr.KindExternalBackend, "blob store not authorized")
	}

	url, err := bot.GetFileDirectURL(entry.FileID)
	if err != nil {
		return classifyTelegramErr(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return verr.New(verr.KindExternalBackend, fmt.Sprintf("download status %d", resp.StatusCode))
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	tmp := destPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, destPath)
}

func (t *TelegramStore) History(ctx context.Context, offset, limit int) ([]BlobRef, error) {
	entries := t.index.list(offset, limit)
	out := make([]BlobRef, 0, len(entries))
	for _, e := range entries {
		out = append(out, BlobRef{
			ID:         strconv.FormatInt(e.MessageID, 10),
			Filename:   e.Filename,
			MimeType:   e.MimeType,
			SizeBytes:  e.SizeBytes,
			UploadedAt: e.UploadedAt,
		})
	}
	return out, nil
}

func (t *TelegramStore) Delete(ctx context.Context, blobIDs []string) (int, error) {
	t.mu.Lock()
	bot, chatID := t.bot, int64(0)
	if t.session != nil {
		chatID = t.session.ChatID
	}
	t.mu.Unlock()
	if bot == nil {
		return 0, verr.New(verr.KindExternalBackend, "blob store not authorized")
	}

	count := 0
	for _, id := range blobIDs {
		messageID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		_, err = bot.Request(tgbotapi.NewDeleteMessage(chatID, int(messageID)))
		if err != nil {
			continue
		}
		if t.index.markDeleted(messageID) {
			count++
		}
	}
	return count, nil
}

var retryAfterPattern = regexp.MustCompile(`retry after (\d+)`)

// classifyTelegramErr folds Telegram's 429 "retry after N" condition into
// the FLOOD_WAIT textual form the Upload Worker parses, so one rate-limit
// parser serves every backend.
func classifyTelegramErr(err error) error {
	if m := retryAfterPattern.FindStringSubmatch(strings.ToLower(err.Error())); m != nil {
		return fmt.Errorf("FLOOD_WAIT (%s)", m[1])
	}
	return verr.Wrap(verr.KindExternalBackend, "blob store request failed", err)
}
