package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"library/internal/models"
)

// Telegram posts borrow notifications to a single chat
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewTelegram creates a notifier for chatID using the public Bot API
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, chatID, &http.Client{Timeout: 15 * time.Second}, logger)
}

// NewTelegramWithEndpoint creates a notifier that talks to a custom Bot API endpoint.
// endpoint is a format string taking the token and the method name.
func NewTelegramWithEndpoint(token, endpoint string, chatID int64, client tgbotapi.HTTPClient, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}

	logger.Info("Telegram notifier created",
		zap.String("bot_username", api.Self.UserName),
		zap.Int64("chat_id", chatID),
	)
	return &Telegram{api: api, chatID: chatID, logger: logger}, nil
}

// BookBorrowed sends a short message describing the borrow
func (t *Telegram) BookBorrowed(ctx context.Context, book models.Book, borrow models.Borrow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, borrowMessage(book, borrow))
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send borrow notification: %w", err)
	}

	t.logger.Debug("Borrow notification sent", zap.String("borrow_id", borrow.ID), zap.Int64("chat_id", t.chatID))
	return nil
}

func borrowMessage(book models.Book, borrow models.Borrow) string {
	return fmt.Sprintf("📚 Book borrowed\n\n%s by %s (ISBN %s)\nQuantity: %d\nDue: %s\nCopies left: %d",
		book.Title, book.Author, book.ISBN,
		borrow.Quantity,
		borrow.DueDate.Format(time.DateOnly),
		book.Copies,
	)
}
