package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramPoster implements BotPoster against the Telegram Bot API. It is
// a one-way shell — the chat-bot front end's inbound side is out of
// scope here, so this type exists only to give a "bot" routine channel
// somewhere real to post to, not to receive or manage conversations.
//
// Trimmed to the single capability this repo needs: post a framed
// message to a chat id over the Bot API.
type TelegramPoster struct {
	bot *telego.Bot
}

// NewTelegramPoster constructs a poster from a bot token.
func NewTelegramPoster(token string) (*TelegramPoster, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramPoster{bot: bot}, nil
}

// PostMessage sends message to chatID, satisfying channels.BotPoster.
func (p *TelegramPoster) PostMessage(chatID, message string) error {
	var id int64
	if _, err := fmt.Sscanf(chatID, "%d", &id); err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := p.bot.SendMessage(ctx, tu.Message(tu.ID(id), message)); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}
