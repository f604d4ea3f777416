package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const (
	pollTimeout = 60
	// workers bounds the number of commands handled at once
	workers = 4
	// maxMessageLen is the platform limit for one text message, in characters
	maxMessageLen = 4096
)

// Bot polls the chat platform and dispatches commands to the router
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *logrus.Logger
	router *Router
}

// NewBot authorizes token and creates a bot. observe may be nil.
func NewBot(token string, logger *logrus.Logger, observe CommandObserver) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	logger.WithField("account", api.Self.UserName).Info("Bot authorized")

	return &Bot{
		api:    api,
		logger: logger,
		router: NewRouter(logger, observe),
	}, nil
}

// Start long-polls for updates until ctx is cancelled. In-flight commands
// are finished before it returns.
func (b *Bot) Start(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	queue := make(chan *tgbotapi.Message)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for message := range queue {
				b.handleMessage(message)
			}
		}()
	}

	b.logger.WithField("commands", len(b.router.Commands())).Info("Bot started with long polling")

	defer func() {
		close(queue)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping bot...")
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			select {
			case queue <- update.Message:
			case <-ctx.Done():
			}
		}
	}
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("chat_id", message.Chat.ID).Errorf("Panic in command handler: %v", r)
		}
	}()
	b.router.HandleMessage(b.api, message)
}

// SendMessage sends text to a chat, split on line boundaries when it exceeds
// the message size limit.
func (b *Bot) SendMessage(chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

// splitMessage cuts text into parts of at most limit characters, preferring
// line breaks. A single longer line is cut mid-line.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	var cur strings.Builder
	n := 0
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.TrimSuffix(cur.String(), "\n"))
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		l := utf8.RuneCountInString(line)
		if n+l > limit {
			flush()
		}
		for l > limit {
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
			l -= limit
		}
		cur.WriteString(line)
		n += l
	}
	flush()
	return parts
}

// RegisterCommand registers a command handler on the router
func (b *Bot) RegisterCommand(command string, handler CommandHandler) {
	b.router.RegisterCommand(command, handler)
}
