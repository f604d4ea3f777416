package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/asso-tools/assobot/internal/format"
)

// SeasonHandler handles /season [name]
type SeasonHandler struct {
	env *Env
}

// NewSeasonHandler creates a new SeasonHandler.
func NewSeasonHandler(env *Env) *SeasonHandler {
	return &SeasonHandler{env: env}
}

// Handle processes the /season command.
func (h *SeasonHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	text, err := h.reply(context.Background(), h.env.caller(message), args)
	if err != nil {
		return err
	}
	return reply(bot, message.Chat.ID, text)
}

func (h *SeasonHandler) reply(ctx context.Context, c caller, args []string) (string, error) {
	summary, err := h.env.Core.SeasonSummary(ctx, join(args))
	if err != nil {
		return "", err
	}
	verbosity := format.Summary
	if c.admin {
		verbosity = format.Full
	}
	return format.SeasonSummary(summary, verbosity), nil
}
