// Package bot adapts Telegram messages onto the command dispatcher. The core
// packages never import the transport; everything Telegram-specific lives
// here.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"points-game-bot/internal/config"
	"points-game-bot/internal/dispatch"
)

// Bot wraps the telebot instance with the command router.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	router *dispatch.Router
}

// New creates a Bot polling with the given token.
func New(cfg *config.Config, router *dispatch.Router) (*Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	teleBot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{bot: teleBot, cfg: cfg, router: router}
	teleBot.Use(RecoveryMiddleware())
	teleBot.Use(WhitelistMiddleware(cfg))
	teleBot.Use(LoggingMiddleware())
	teleBot.Handle(tele.OnText, b.handleText)
	return b, nil
}

// handleText parses marker-prefixed commands out of ordinary messages and
// relays the router's reply. Non-commands and unknown commands are ignored.
func (b *Bot) handleText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if !strings.HasPrefix(text, b.router.Marker()) {
		return nil
	}
	tokens := strings.Fields(text)
	key := strings.TrimPrefix(tokens[0], b.router.Marker())
	if key == "" {
		return nil
	}

	sender := c.Sender()
	if sender == nil {
		return nil
	}
	username := sender.Username
	if username == "" {
		username = sender.FirstName
	}
	chatCtx := dispatch.ChatContext{
		UserID:   strconv.FormatInt(sender.ID, 10),
		Username: username,
		Mod:      b.cfg.IsMod(sender.ID),
	}

	reply, ok := b.router.Invoke(context.Background(), chatCtx, key, tokens[1:])
	if !ok || reply == "" {
		return nil
	}
	// Replies are a single flat line by contract; enforce it anyway.
	reply = strings.ReplaceAll(reply, "\n", " ")
	return c.Reply(reply)
}

// Start starts the bot polling. Blocks until Stop.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
