// Package handlers implements the chat commands. Handlers only parse
// arguments, call the core and render its results.
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/reconcile"
	"github.com/asso-tools/assobot/internal/report"
	"github.com/asso-tools/assobot/internal/resolve"
	"github.com/asso-tools/assobot/internal/service"
	"github.com/asso-tools/assobot/internal/status"
)

// Core is the part of the service the commands use
type Core interface {
	Now() time.Time
	ResolveMember(ctx context.Context, token string, opts resolve.Options) ([]resolve.Match, error)
	MemberByHandle(ctx context.Context, handle string) (*models.Member, error)
	Status(ctx context.Context, m *models.Member) (status.Status, error)
	CurrentSeason(ctx context.Context) (*models.Season, error)
	SeasonSummary(ctx context.Context, name string) (*service.Summary, error)
	EventsBy(ctx context.Context, p service.EventPredicate) ([]*models.Event, error)
	AddAttendanceForEvent(ctx context.Context, eventID int64, memberIDs []int64, author int64) (service.AttendanceChange, error)
	ReconcileRoles(ctx context.Context, dir reconcile.Directory, now time.Time, resetAfter time.Duration) (*reconcile.Report, error)
	AttendanceSheet(ctx context.Context, season string) (*report.Sheet, error)
}

// Access decides who may run write and audit commands
type Access interface {
	IsAdmin(handle string) bool
}

// Env carries the dependencies shared by every handler
type Env struct {
	Core       Core
	Logger     *logrus.Logger
	Access     Access
	Threshold  int
	Directory  reconcile.Directory
	ResetAfter time.Duration
}

// caller identifies the chat user issuing a command
type caller struct {
	handle string
	admin  bool
}

func (e *Env) caller(message *tgbotapi.Message) caller {
	if message.From == nil {
		return caller{}
	}
	c := caller{handle: message.From.UserName}
	c.admin = c.handle != "" && e.Access != nil && e.Access.IsAdmin(c.handle)
	return c
}

// author resolves the acting member of a write from the caller's handle
func (e *Env) author(ctx context.Context, c caller) (int64, error) {
	if c.handle == "" {
		return 0, errs.MissingAuthor
	}
	m, err := e.Core.MemberByHandle(ctx, c.handle)
	if err != nil {
		return 0, err
	}
	if m == nil {
		return 0, errs.MissingAuthor
	}
	return m.ID, nil
}

const forbiddenText = "⛔ Cette commande est réservée au bureau."

func reply(bot *tgbotapi.BotAPI, chatID int64, text string) error {
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// splitTrailing removes a trailing argument accepted by keep
func splitTrailing(args []string, keep func(string) bool) ([]string, string) {
	if len(args) > 0 && keep(args[len(args)-1]) {
		return args[:len(args)-1], args[len(args)-1]
	}
	return args, ""
}

func join(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
