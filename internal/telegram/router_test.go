package telegram

import (
	"errors"
	"fmt"
	"io"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/asso-tools/assobot/internal/errs"
)

func TestErrorText(t *testing.T) {
	tests := []struct {
		err    error
		prefix string
	}{
		{errs.NotFound("member", 9), "🔍"},
		{fmt.Errorf("wrapped: %w", errs.NotFound("season", "x")), "🔍"},
		{&errs.AmbiguityError{Token: "jean", Count: 2}, "🤔"},
		{&errs.ValidationError{UnknownIDs: []int64{4}}, "⚠️"},
		{&errs.IntegrityError{Handle: "h", MemberIDs: []int64{1, 2}}, "🛠"},
		{errs.MissingAuthor, "🛠"},
		{errors.New("connection refused"), "❌"},
	}
	for _, tt := range tests {
		assert.Contains(t, ErrorText(tt.err), tt.prefix, tt.err.Error())
	}
	assert.NotContains(t, ErrorText(errors.New("connection refused")), "refused", "storage details stay in logs")
}

type nopHandler struct{}

func (nopHandler) Handle(*tgbotapi.BotAPI, *tgbotapi.Message, []string) error { return nil }

func TestRegisterCommand(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	r := NewRouter(l, nil)
	r.RegisterCommand("member", nopHandler{})
	r.RegisterCommand("help", nopHandler{})

	assert.ElementsMatch(t, []string{"member", "help"}, r.Commands())
}
