package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/asso-tools/assobot/internal/format"
)

// RoleSyncHandler handles /rolesync
type RoleSyncHandler struct {
	env *Env
}

// NewRoleSyncHandler creates a new RoleSyncHandler.
func NewRoleSyncHandler(env *Env) *RoleSyncHandler {
	return &RoleSyncHandler{env: env}
}

// Handle processes the /rolesync command.
func (h *RoleSyncHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	text, err := h.reply(context.Background(), h.env.caller(message))
	if err != nil {
		return err
	}
	return reply(bot, message.Chat.ID, text)
}

func (h *RoleSyncHandler) reply(ctx context.Context, c caller) (string, error) {
	if !c.admin {
		return forbiddenText, nil
	}
	if h.env.Directory == nil {
		return "Aucun annuaire configuré (DIRECTORY_FILE).", nil
	}
	rep, err := h.env.Core.ReconcileRoles(ctx, h.env.Directory, h.env.Core.Now(), h.env.ResetAfter)
	if err != nil {
		return "", err
	}
	return format.ReconcileReport(rep), nil
}
