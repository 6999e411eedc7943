// Package notify posts save outcomes and audit reports to Telegram chats.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"workload/internal/events"
	"workload/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier fans messages out to a fixed set of chats.
type Notifier struct {
	sender  Sender
	chatIDs []int64
	limiter *rate.Limiter
	logger  *zerolog.Logger
	retries int
}

// New builds a notifier limited to rps messages per second.
func New(sender Sender, chatIDs []int64, rps float64, logger *zerolog.Logger) *Notifier {
	if rps <= 0 {
		rps = 20
	}
	return &Notifier{
		sender:  sender,
		chatIDs: chatIDs,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
		retries: 2,
	}
}

// NewBot connects to the Telegram Bot API.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

// Notify sends text to every chat.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range n.chatIDs {
		if err := n.send(ctx, tgbotapi.NewMessage(chatID, text)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// SendDocument sends a file to every chat.
func (n *Notifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	var errs []error
	for _, chatID := range n.chatIDs {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: content})
		doc.Caption = caption
		if err := n.send(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// HandleEvent turns a save event into a chat message.
func (n *Notifier) HandleEvent(ev events.Event) error {
	var out events.SaveOutcome
	if err := ev.Decode(&out); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return n.Notify(ctx, FormatOutcome(ev.Type, out))
}

// FormatOutcome renders the message for a save event.
func FormatOutcome(eventType string, out events.SaveOutcome) string {
	switch eventType {
	case events.DetailsSaved:
		return fmt.Sprintf("✅ Employee %s updated availability details", out.EmployeeID)
	case events.ProfileSaved:
		return fmt.Sprintf("✅ Employee %s updated profile", out.EmployeeID)
	case events.PasswordUpdated:
		return fmt.Sprintf("🔑 Employee %s changed password", out.EmployeeID)
	case events.DetailsSaveFailed, events.ProfileSaveFailed:
		return fmt.Sprintf("⚠️ Employee %s: %s save failed: %s", out.EmployeeID, out.Form, out.Error)
	default:
		return fmt.Sprintf("%s: employee %s", eventType, out.EmployeeID)
	}
}

func (n *Notifier) send(ctx context.Context, c tgbotapi.Chattable) error {
	var lastErr error
	for attempt := 0; attempt <= n.retries; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		_, err := n.sender.Send(c)
		if err == nil {
			metrics.IncNotification("sent")
			return nil
		}
		lastErr = err

		var tgErr *tgbotapi.Error
		if !errors.As(err, &tgErr) || tgErr.Code != 429 {
			break
		}
		wait := time.Duration(tgErr.RetryAfter) * time.Second
		n.logger.Info().Dur("retry_after", wait).Msg("rate limited by telegram, waiting")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	metrics.IncNotification("failed")
	n.logger.Error().Err(lastErr).Msg("telegram send failed")
	return lastErr
}
