package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/asso-tools/assobot/internal/format"
	"github.com/asso-tools/assobot/internal/resolve"
)

// MemberHandler handles /member <token> [verbosity]
type MemberHandler struct {
	env *Env
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(env *Env) *MemberHandler {
	return &MemberHandler{env: env}
}

func isVerbosity(s string) bool {
	return format.ParseVerbosity(s, -1) != -1
}

// Handle processes the /member command.
func (h *MemberHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	text, err := h.reply(context.Background(), h.env.caller(message), args)
	if err != nil {
		return err
	}
	return reply(bot, message.Chat.ID, text)
}

func (h *MemberHandler) reply(ctx context.Context, c caller, args []string) (string, error) {
	args, level := splitTrailing(args, isVerbosity)
	token := join(args)
	if token == "" {
		return "Usage : /member <nom | @pseudo | numéro> [restricted|summary|full|debug]", nil
	}

	verbosity := format.ParseVerbosity(level, format.Summary)
	if verbosity > format.Summary && !c.admin {
		verbosity = format.Summary
	}

	matches, err := h.env.Core.ResolveMember(ctx, token, resolve.Options{Threshold: h.env.Threshold})
	if err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "Aucun membre ne correspond à « " + token + " ».", nil
	case 1:
		m := matches[0].Member
		st, err := h.env.Core.Status(ctx, m)
		if err != nil {
			return "", err
		}
		season, err := h.env.Core.CurrentSeason(ctx)
		if err != nil {
			return "", err
		}
		text := format.Member(m, st, season, verbosity)
		if matches[0].Scored {
			text = format.Match(matches[0]) + "\n\n" + text
		}
		return text, nil
	default:
		var sb strings.Builder
		sb.WriteString("Plusieurs membres correspondent :\n")
		sb.WriteString(format.Matches(matches))
		return sb.String(), nil
	}
}
