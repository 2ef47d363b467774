// internal/telegram/sender.go
//
// Package telegram delivers research results to Telegram chats. Session
// keys of the form "telegram:<chatID>" route here through the delivery
// registry.
package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxMessageLen = 4096

// Sender posts messages through the Bot API.
type Sender struct {
	bot *tgbotapi.BotAPI
}

// New authenticates against the Bot API with the given token.
func New(token string) (*Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Sender{bot: bot}, nil
}

// Deliver sends message to the chat named by sessionKey, splitting it to
// fit the Bot API message limit. Matches the delivery.Handler signature.
func (s *Sender) Deliver(sessionKey, message string) error {
	chatID, err := ChatID(sessionKey)
	if err != nil {
		return err
	}
	for _, part := range splitMessage(message) {
		if err := s.send(chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := s.bot.Send(msg); err == nil {
		return nil
	}
	// Model output often breaks Telegram's markdown parser; retry plain.
	msg.ParseMode = ""
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// ChatID extracts the chat id from a "telegram:<chatID>" session key.
func ChatID(sessionKey string) (int64, error) {
	rest, ok := strings.CutPrefix(sessionKey, "telegram:")
	if !ok {
		return 0, fmt.Errorf("not a telegram session key: %s", sessionKey)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad chat id in session key %s: %w", sessionKey, err)
	}
	return id, nil
}

func splitMessage(text string) []string {
	if len(text) <= maxMessageLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := min(maxMessageLen, len(text))
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
