// Package notify tells the workshop about new orders.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Simplici0/resinquote/internal/payments"
)

// Order is what the workshop needs to know about a checkout.
type Order struct {
	Reference      string
	QuoteReference string
	ContactName    string
	ContactEmail   string
	AmountCents    int64
	Currency       string
	Material       string
	Quantity       int
	Filename       string
	PaymentURL     string
}

type Notifier interface {
	OrderPlaced(ctx context.Context, o Order) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) OrderPlaced(context.Context, Order) error { return nil }

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts order notifications to a chat.
type Telegram struct {
	bot    Sender
	chatID int64
	logger *zap.Logger
}

func NewTelegram(bot Sender, chatID int64, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{bot: bot, chatID: chatID, logger: logger}
}

func (t *Telegram) OrderPlaced(ctx context.Context, o Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, Message(o))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("send order notification",
			zap.Int64("chat_id", t.chatID),
			zap.String("order", o.Reference),
			zap.Error(err))
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Message renders the notification text.
func Message(o Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nouvelle commande %s\n", o.Reference)
	fmt.Fprintf(&b, "Devis: %s\n", o.QuoteReference)
	if o.Filename != "" {
		fmt.Fprintf(&b, "Fichier: %s\n", o.Filename)
	}
	fmt.Fprintf(&b, "Matériau: %s x%d\n", o.Material, o.Quantity)
	fmt.Fprintf(&b, "Montant: %s\n", payments.FormatCents(o.AmountCents, o.Currency))
	contact := o.ContactEmail
	if o.ContactName != "" {
		contact = o.ContactName + " <" + o.ContactEmail + ">"
	}
	fmt.Fprintf(&b, "Contact: %s", contact)
	return b.String()
}
