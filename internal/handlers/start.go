package handlers

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const helpText = `Commandes disponibles :
/member <nom | @pseudo | numéro> [restricted|summary|full|debug] - fiche d'un membre
/season [saison] - bilan d'une saison (la saison en cours par défaut)
/event [AAAA-MM-JJ [nom]] - événements d'une date ou de la saison en cours

Réservé au bureau :
/presence <AAAA-MM-JJ [nom]> : <membre>, <membre>... - liste des participants
/rolesync - compare les groupes de la messagerie aux rôles attendus
/sheet [saison] - feuille d'émargement au format xlsx
/help - ce message`

// StartHandler handles the /start and /help commands
type StartHandler struct {
	logger *logrus.Logger
}

// NewStartHandler creates a new start command handler
func NewStartHandler(logger *logrus.Logger) *StartHandler {
	return &StartHandler{
		logger: logger,
	}
}

// Handle processes the /start command
func (h *StartHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if err := reply(bot, message.Chat.ID, "Bonjour ! Je tiens le registre des membres de l'association.\n\n"+helpText); err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
	}).Info("Sent start message")

	return nil
}
