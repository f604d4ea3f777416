package telegram

import (
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/asso-tools/assobot/internal/errs"
)

// Router handles message routing and command parsing
type Router struct {
	logger   *logrus.Logger
	handlers map[string]CommandHandler
	observe  CommandObserver
}

// CommandHandler defines the interface for command handlers
type CommandHandler interface {
	Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error
}

// CommandObserver is notified after every handled command
type CommandObserver func(command string, err error)

// NewRouter creates a new message router. observe may be nil.
func NewRouter(logger *logrus.Logger, observe CommandObserver) *Router {
	return &Router{
		logger:   logger,
		handlers: make(map[string]CommandHandler),
		observe:  observe,
	}
}

// RegisterCommand registers a command handler
func (r *Router) RegisterCommand(command string, handler CommandHandler) {
	r.handlers[command] = handler
	r.logger.Debugf("Registered command: %s", command)
}

// Commands returns the registered command names
func (r *Router) Commands() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// HandleMessage handles incoming messages
func (r *Router) HandleMessage(bot *tgbotapi.BotAPI, message *tgbotapi.Message) {
	// Only process text commands
	if message.Text == "" || !message.IsCommand() || message.From == nil {
		return
	}

	command := message.Command()
	args := strings.Fields(message.CommandArguments())

	fields := logrus.Fields{
		"command":  command,
		"chat_id":  message.Chat.ID,
		"user_id":  message.From.ID,
		"username": message.From.UserName,
	}
	r.logger.WithFields(fields).Info("Received command")

	handler, exists := r.handlers[command]
	if !exists {
		r.logger.WithFields(fields).Warn("Unknown command")
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "❓ Commande inconnue. Tapez /help pour la liste des commandes."))
		return
	}

	err := handler.Handle(bot, message, args)
	if r.observe != nil {
		r.observe(command, err)
	}
	if err != nil {
		fields["error"] = err
		r.logger.WithFields(fields).Error("Command handler failed")
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, ErrorText(err)))
	}
}

// ErrorText turns a core error into a user message. Missing data gets a
// friendly answer, anything else a diagnostic one.
func ErrorText(err error) string {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return "🔍 Introuvable : " + err.Error()
	case errors.Is(err, errs.ErrAmbiguous):
		return "🤔 Plusieurs correspondances exactes, précisez la recherche : " + err.Error()
	case errors.Is(err, errs.ErrValidation):
		return "⚠️ Données refusées : " + err.Error()
	case errors.Is(err, errs.ErrIntegrity), errors.Is(err, errs.ErrConfiguration):
		return "🛠 Problème de données à corriger par un administrateur : " + err.Error()
	default:
		return "❌ Une erreur est survenue pendant le traitement de la commande."
	}
}
