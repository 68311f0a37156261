package service

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"betpool/internal/logger"
	"betpool/internal/storage"

	"gopkg.in/telebot.v3"
)

// NotificationService delivers Telegram notifications best-effort: a failure
// for one recipient is logged and never blocks delivery to the others.
type NotificationService struct {
	bot       *telebot.Bot
	store     *storage.Store
	mu        sync.Mutex
	channelID string
}

// NewNotificationService creates a new notification service
func NewNotificationService(bot *telebot.Bot, store *storage.Store, channelID string) *NotificationService {
	return &NotificationService{
		bot:       bot,
		store:     store,
		channelID: channelID,
	}
}

// Broadcast sends text to each user independently. Recipients are internal
// user IDs; users without a Telegram ID are skipped.
func (s *NotificationService) Broadcast(userIDs []int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, userID := range userIDs {
		user, err := s.store.GetUserByID(userID)
		if err != nil || user == nil || user.TelegramID == 0 {
			logger.Debug(userID, "notification_skip", "no deliverable recipient")
			continue
		}
		if _, err := s.bot.Send(&telebot.User{ID: user.TelegramID}, text); err != nil {
			logger.Error(userID, "notification_send_failed", err)
		}
	}
}

// BroadcastSettlement notifies every participant of a resolved prediction
// and publishes the result to the public channel when one is configured.
func (s *NotificationService) BroadcastSettlement(p *storage.Prediction, settlement *Settlement) {
	if p == nil || settlement == nil {
		return
	}

	var text string
	if settlement.Outcome == storage.OutcomeNoResult {
		text = fmt.Sprintf("Prediction '%s' resolved with no result.\nAll stakes are forfeited.", truncateString(p.Question, 80))
	} else {
		text = fmt.Sprintf("Prediction '%s' resolved.\nThe winning choice is: %s.", truncateString(p.Question, 80), settlement.Outcome)
		if settlement.TopWinnerID != 0 {
			topName := s.displayName(settlement.TopWinnerID)
			text += fmt.Sprintf("\nTop winner: %s with %d tokens!", topName, settlement.TopReward)
		}
	}

	s.Broadcast(settlement.ParticipantIDs, text)
	s.publishToChannel(p, settlement)
}

// displayName returns a human-readable name for a user, falling back to the
// numeric ID.
func (s *NotificationService) displayName(userID int64) string {
	user, err := s.store.GetUserByID(userID)
	if err != nil || user == nil {
		return fmt.Sprintf("#%d", userID)
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return user.FirstName
}

// publishToChannel posts the resolution to the configured public channel.
func (s *NotificationService) publishToChannel(p *storage.Prediction, settlement *Settlement) {
	if s.channelID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	outcomeLine := settlement.Outcome
	if settlement.Outcome == storage.OutcomeNoResult {
		outcomeLine = "no result (void)"
	}
	message := fmt.Sprintf("🏁 *Prediction Resolved*\n\n*#%d* %s\n\nOutcome: *%s*\n💰 Total Pool: %d tokens\n💸 %d winners paid",
		p.ID,
		escapeMarkdown(truncateString(p.Question, 80)),
		escapeMarkdown(outcomeLine),
		settlement.TotalPool,
		settlement.PayoutCount)

	_, err := s.bot.Send(s.channelRecipient(), message, &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdown,
	})
	if err != nil {
		logger.Error(0, "broadcast_channel_failed", err)
	} else {
		logger.Debug(0, "broadcast_resolution", fmt.Sprintf("prediction_id=%d outcome=%s channel=%s", p.ID, settlement.Outcome, s.channelID))
	}
}

// channelRecipient returns the appropriate recipient for the configured channel
func (s *NotificationService) channelRecipient() telebot.Recipient {
	if strings.HasPrefix(s.channelID, "@") {
		return &telebot.Chat{Username: s.channelID}
	}
	id, err := strconv.ParseInt(s.channelID, 10, 64)
	if err != nil {
		return &telebot.Chat{ID: 0}
	}
	return &telebot.Chat{ID: id}
}

// truncateString truncates a string to maxLen and adds ellipsis if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(s[:maxLen-3]) + "..."
}

// escapeMarkdown escapes special characters for Telegram Markdown mode
func escapeMarkdown(s string) string {
	escaped := s
	escaped = strings.ReplaceAll(escaped, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "*", `\*`)
	escaped = strings.ReplaceAll(escaped, "_", `\_`)
	escaped = strings.ReplaceAll(escaped, "`", `\`)
	escaped = strings.ReplaceAll(escaped, "[", `\[`)
	escaped = strings.ReplaceAll(escaped, "]", `\]`)
	return escaped
}
