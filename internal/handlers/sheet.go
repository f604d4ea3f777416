package handlers

import (
	"bytes"
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/asso-tools/assobot/internal/report"
)

// SheetHandler handles /sheet [season] and sends the attendance sheet workbook
type SheetHandler struct {
	env *Env
}

// NewSheetHandler creates a new SheetHandler.
func NewSheetHandler(env *Env) *SheetHandler {
	return &SheetHandler{env: env}
}

// Handle processes the /sheet command.
func (h *SheetHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	c := h.env.caller(message)
	if !c.admin {
		return reply(bot, message.Chat.ID, forbiddenText)
	}
	name, data, err := h.workbook(context.Background(), args)
	if err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(message.Chat.ID, tgbotapi.FileBytes{Name: name, Bytes: data})
	if _, err := bot.Send(doc); err != nil {
		return fmt.Errorf("failed to send sheet: %w", err)
	}
	return nil
}

func (h *SheetHandler) workbook(ctx context.Context, args []string) (string, []byte, error) {
	sheet, err := h.env.Core.AttendanceSheet(ctx, join(args))
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, sheet); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("emargement-%s.xlsx", sheet.Season.Name), buf.Bytes(), nil
}
