package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/format"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/resolve"
	"github.com/asso-tools/assobot/internal/service"
)

const badDateText = "Date invalide, format attendu AAAA-MM-JJ."

// labelDate parses the date part of "YYYY-MM-DD [name]"
func labelDate(label string) (time.Time, bool) {
	first, _, _ := strings.Cut(strings.TrimSpace(label), " ")
	date, err := time.Parse(models.DateLayout, first)
	return date, err == nil
}

// findEvent returns the events matching "YYYY-MM-DD [name]"
func findEvent(ctx context.Context, core Core, label string) ([]*models.Event, error) {
	label = strings.TrimSpace(label)
	date, ok := labelDate(label)
	if !ok {
		return nil, nil
	}
	if strings.Contains(label, " ") {
		return core.EventsBy(ctx, service.EventPredicate{Label: &label})
	}

	all, err := core.EventsBy(ctx, service.EventPredicate{})
	if err != nil {
		return nil, err
	}
	var found []*models.Event
	for _, e := range all {
		if models.Day(e.Date).Equal(date) {
			found = append(found, e)
		}
	}
	return found, nil
}

// EventHandler handles /event [label]
type EventHandler struct {
	env *Env
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(env *Env) *EventHandler {
	return &EventHandler{env: env}
}

// Handle processes the /event command.
func (h *EventHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	text, err := h.reply(context.Background(), h.env.caller(message), args)
	if err != nil {
		return err
	}
	return reply(bot, message.Chat.ID, text)
}

func (h *EventHandler) reply(ctx context.Context, c caller, args []string) (string, error) {
	verbosity := format.Summary
	if c.admin {
		verbosity = format.Full
	}

	if len(args) == 0 {
		season, err := h.env.Core.CurrentSeason(ctx)
		if err != nil {
			return "", err
		}
		if season == nil {
			return "Aucune saison en cours.", nil
		}
		events, err := h.env.Core.EventsBy(ctx, service.EventPredicate{Season: &season.Name})
		if err != nil {
			return "", err
		}
		if len(events) == 0 {
			return "Aucun événement pour la saison " + season.Name + ".", nil
		}
		lines := make([]string, len(events))
		for i, e := range events {
			lines[i] = format.Event(e, format.Restricted)
		}
		return "Événements " + season.Name + " :\n" + strings.Join(lines, "\n"), nil
	}

	if _, ok := labelDate(join(args)); !ok {
		return badDateText, nil
	}
	events, err := findEvent(ctx, h.env.Core, join(args))
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "Aucun événement « " + join(args) + " ».", nil
	}
	texts := make([]string, len(events))
	for i, e := range events {
		texts[i] = format.Event(e, verbosity)
	}
	return strings.Join(texts, "\n\n"), nil
}

// PresenceHandler handles /presence <label> : <member>, <member>...
type PresenceHandler struct {
	env *Env
}

// NewPresenceHandler creates a new PresenceHandler.
func NewPresenceHandler(env *Env) *PresenceHandler {
	return &PresenceHandler{env: env}
}

// Handle processes the /presence command.
func (h *PresenceHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	text, err := h.reply(context.Background(), h.env.caller(message), args)
	if err != nil {
		return err
	}
	return reply(bot, message.Chat.ID, text)
}

func (h *PresenceHandler) reply(ctx context.Context, c caller, args []string) (string, error) {
	if !c.admin {
		return forbiddenText, nil
	}

	label, list, ok := strings.Cut(join(args), ":")
	if !ok {
		return "Usage : /presence <AAAA-MM-JJ [nom]> : <membre>, <membre>...", nil
	}
	if _, ok := labelDate(label); !ok {
		return badDateText, nil
	}

	events, err := findEvent(ctx, h.env.Core, label)
	if err != nil {
		return "", err
	}
	switch len(events) {
	case 0:
		return "", errs.NotFound("event", strings.TrimSpace(label))
	case 1:
	default:
		return "Plusieurs événements à cette date, précisez le nom.", nil
	}
	event := events[0]

	var ids []int64
	var problems []string
	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		matches, err := h.env.Core.ResolveMember(ctx, token, resolve.Options{Threshold: h.env.Threshold, Strict: true})
		if err != nil {
			return "", err
		}
		if len(matches) != 1 || matches[0].Scored {
			problems = append(problems, fmt.Sprintf("« %s » : %d correspondance(s) approchée(s)", token, len(matches)))
			continue
		}
		ids = append(ids, matches[0].Member.ID)
	}
	if len(problems) > 0 {
		return "Participants non reconnus, rien n'a été modifié :\n" + strings.Join(problems, "\n"), nil
	}

	author, err := h.env.author(ctx, c)
	if err != nil {
		return "", err
	}
	change, err := h.env.Core.AddAttendanceForEvent(ctx, event.ID, ids, author)
	if err != nil {
		return "", err
	}

	h.env.Logger.WithFields(logrus.Fields{
		"event_id": event.ID,
		"added":    len(change.Added),
		"removed":  len(change.Removed),
	}).Info("Participants updated")

	if change.Empty() {
		return fmt.Sprintf("%s : liste déjà à jour (%d participant(s)).", event.Label(), len(ids)), nil
	}
	return fmt.Sprintf("%s : %d ajout(s), %d retrait(s).", event.Label(), len(change.Added), len(change.Removed)), nil
}
