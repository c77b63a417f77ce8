// Package bot answers Telegram photos with a species prediction.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Brownie44l1/butterfly-api/internal/handlers"
	"github.com/Brownie44l1/butterfly-api/internal/imageio"
	"github.com/Brownie44l1/butterfly-api/internal/pipeline"
	"github.com/Brownie44l1/butterfly-api/internal/postprocess"
	"github.com/Brownie44l1/butterfly-api/internal/species"
	"github.com/Brownie44l1/butterfly-api/internal/store"
)

const (
	helpText = "Send me a photo of a butterfly and I will tell you which of 75 species it most likely is.\nCommands: /start, /help, /health"

	pollTimeout = 30
	baseDelay   = time.Second
	maxDelay    = 15 * time.Second
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	GetFileDirectURL(fileID string) (string, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Recorder stores successful predictions.
type Recorder interface {
	RecordPrediction(ctx context.Context, p *store.Prediction) error
}

type Options struct {
	Catalog   *species.Catalog
	History   Recorder
	Logger    *slog.Logger
	MaxUpload int64
	Timeout   time.Duration
	Client    *http.Client
}

type Bot struct {
	api       API
	pipeline  *pipeline.Pipeline
	catalog   *species.Catalog
	history   Recorder
	logger    *slog.Logger
	maxUpload int64
	timeout   time.Duration
	client    *http.Client
}

func New(api API, p *pipeline.Pipeline, opts Options) *Bot {
	b := &Bot{
		api:       api,
		pipeline:  p,
		catalog:   opts.Catalog,
		history:   opts.History,
		logger:    opts.Logger,
		maxUpload: opts.MaxUpload,
		timeout:   opts.Timeout,
		client:    opts.Client,
	}
	if b.catalog == nil {
		b.catalog = species.Default()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.client == nil {
		b.client = &http.Client{Timeout: 60 * time.Second}
	}
	return b
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = pollTimeout
		updates, err := b.poll(ctx, u)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			d := min(max(retryDelay(err), baseDelay), maxDelay)
			b.logger.Warn("polling failed", "error", err, "retry_in", d)
			if !sleep(ctx, d) {
				return nil
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// poll returns as soon as ctx ends. GetUpdates takes no context, so an
// abandoned long poll finishes in the background and, its offset never being
// acknowledged, those updates are delivered again on the next start.
func (b *Bot) poll(ctx context.Context, u tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	type result struct {
		updates []tgbotapi.Update
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		updates, err := b.api.GetUpdates(u)
		ch <- result{updates, err}
	}()

	select {
	case r := <-ch:
		return r.updates, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleUpdate replies to one message.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	switch {
	case msg.IsCommand():
		b.command(chatID, msg.Command())
	case len(msg.Photo) > 0:
		// the last size is the largest
		b.classify(ctx, msg, msg.Photo[len(msg.Photo)-1].FileID, "")
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		b.classify(ctx, msg, msg.Document.FileID, msg.Document.FileName)
	default:
		b.send(chatID, helpText)
	}
}

func (b *Bot) command(chatID int64, cmd string) {
	switch cmd {
	case "start", "help":
		b.send(chatID, helpText)
	case "health":
		if b.pipeline == nil {
			b.send(chatID, "Model is not loaded.")
			return
		}
		info := b.pipeline.Runtime().Info()
		b.send(chatID, fmt.Sprintf("OK: %s model, %d classes", info.Backend, info.Classes))
	default:
		b.send(chatID, "Unknown command. "+helpText)
	}
}

func (b *Bot) classify(ctx context.Context, msg *tgbotapi.Message, fileID, filename string) {
	chatID := msg.Chat.ID
	if b.pipeline == nil {
		b.send(chatID, "The classifier is unavailable right now.")
		return
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	dec, err := b.download(ctx, fileID)
	if err != nil {
		b.logger.Warn("telegram download failed", "chat", chatID, "error", err)
		b.send(chatID, fmt.Sprintf("Could not read that image: %v", err))
		return
	}

	pred, err := b.pipeline.Classify(ctx, dec.Image)
	if err != nil {
		b.logger.Error("telegram prediction failed", "chat", chatID, "error", err)
		b.send(chatID, fmt.Sprintf("Could not identify the image. Please try another photo. (Error: %v)", err))
		return
	}

	if b.history != nil {
		var user string
		if msg.From != nil {
			user = msg.From.UserName
		}
		err := b.history.RecordPrediction(ctx, &store.Prediction{
			Source:     store.SourceTelegram,
			Username:   user,
			Filename:   filename,
			Label:      pred.Label,
			Confidence: pred.Confidence,
		})
		if err != nil {
			b.logger.Warn("could not record prediction", "chat", chatID, "error", err)
		}
	}

	b.send(chatID, Reply(pred, b.catalog.Lookup(pred.Label)))
}

func (b *Bot) download(ctx context.Context, fileID string) (*imageio.Decoded, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return imageio.Decode(resp.Body, b.maxUpload)
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("telegram send failed", "chat", chatID, "error", err)
	}
}

// Reply is the message text for a prediction.
func Reply(pred postprocess.Prediction, d species.Details) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", handlers.TitleCase(pred.Label), handlers.FormatConfidence(pred.Confidence))
	fmt.Fprintf(&sb, "Scientific name: %s\n", d.ScientificName)
	fmt.Fprintf(&sb, "Habitat: %s\n", d.Habitat)
	fmt.Fprintf(&sb, "Common in: %s\n\n", d.CommonIn)
	sb.WriteString(d.Description)
	return sb.String()
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelay(err error) time.Duration {
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return time.Second
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
