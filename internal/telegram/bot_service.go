// Package telegram is the moderator side channel: new abuse reports are
// posted to a moderator chat, and moderators answer with commands or inline
// buttons to ban, unban or confirm.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"matcha/backend/internal/chathub"
	"matcha/backend/internal/complaint"
	"matcha/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Moderation is what moderators can do from the chat.
type Moderation interface {
	BanUser(ctx context.Context, subjectID string, d time.Duration) (*complaint.Ban, error)
	Unban(ctx context.Context, subjectID string) error
	ConfirmReport(ctx context.Context, reportID uint) error
}

// Hub is the live side the bot reports on and kicks from.
type Hub interface {
	Kick(subjectID string)
	Stats(ctx context.Context) (chathub.Stats, error)
}

const (
	callbackBan     = "ban:"
	callbackConfirm = "confirm:"
	maxListedRooms  = 5
)

// BotService posts reports to the moderator chat and serves its commands.
type BotService struct {
	Bot        Client
	ChatID     int64
	Hub        Hub
	Moderation Moderation
	Timeout    time.Duration
	Log        *logrus.Entry
}

// NewBotService creates a new BotService instance.
func NewBotService(bot Client, chatID int64, hub Hub, mod Moderation, log *logrus.Logger) *BotService {
	return &BotService{
		Bot:        bot,
		ChatID:     chatID,
		Hub:        hub,
		Moderation: mod,
		Timeout:    10 * time.Second,
		Log:        log.WithField("component", "telegram"),
	}
}

func reportSubject(r *models.Report) string {
	if r.ReportedID != "" {
		return r.ReportedID
	}
	return r.ReportedAnonID
}

// NotifyReport posts a stored report with ban and confirm buttons.
func (s *BotService) NotifyReport(ctx context.Context, r *models.Report) error {
	subject := reportSubject(r)
	reporter := r.ReporterID
	if reporter == "" {
		reporter = r.ReporterAnonID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdownV2(fmt.Sprintf("Report #%d: %s", r.ID, r.Reason)))
	fmt.Fprintf(&b, "Room: `%s`\n", escapeMarkdownV2(r.RoomID))
	fmt.Fprintf(&b, "Reported: `%s`\n", escapeMarkdownV2(orDash(subject)))
	fmt.Fprintf(&b, "Reporter: `%s`", escapeMarkdownV2(orDash(reporter)))
	if r.Details != "" {
		fmt.Fprintf(&b, "\n\n%s", escapeMarkdownV2(r.Details))
	}

	msg := tgbotapi.NewMessage(s.ChatID, b.String())
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	row := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Confirm", callbackConfirm+strconv.FormatUint(uint64(r.ID), 10)),
	)
	if subject != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Ban 24h", callbackBan+subject))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)

	if _, err := s.Bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send report %d: %w", r.ID, err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Run handles updates until ctx is cancelled or updates is closed.
func (s *BotService) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	s.Log.Info("moderation bot started")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.handleUpdate(ctx, update)
		}
	}
}

func (s *BotService) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		if update.Message.Chat.ID != s.ChatID {
			s.Log.WithField("chat_id", update.Message.Chat.ID).Debug("ignoring message from foreign chat")
			return
		}
		if update.Message.IsCommand() {
			s.reply(s.handleCommand(ctx, update.Message.Command(), update.Message.CommandArguments()))
		}
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.Message == nil || q.Message.Chat.ID != s.ChatID {
			return
		}
		text := s.handleCallback(ctx, q.Data)
		if _, err := s.Bot.Request(tgbotapi.NewCallback(q.ID, text)); err != nil {
			s.Log.WithError(err).Warn("failed to answer callback")
		}
		s.reply(text)
	}
}

func (s *BotService) handleCommand(ctx context.Context, command, args string) string {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	fields := strings.Fields(args)

	switch command {
	case "stats":
		return s.stats(ctx)
	case "ban":
		if len(fields) == 0 {
			return "Usage: /ban <user or anon id> [duration]"
		}
		var d time.Duration
		if len(fields) > 1 {
			var err error
			if d, err = time.ParseDuration(fields[1]); err != nil || d <= 0 {
				return fmt.Sprintf("Bad duration %q", fields[1])
			}
		}
		return s.ban(ctx, fields[0], d)
	case "unban":
		if len(fields) == 0 {
			return "Usage: /unban <user or anon id>"
		}
		if err := s.Moderation.Unban(ctx, fields[0]); err != nil {
			s.Log.WithError(err).WithField("subject_id", fields[0]).Error("unban failed")
			return "Unban failed: " + err.Error()
		}
		return fmt.Sprintf("Unbanned %s", fields[0])
	case "confirm":
		if len(fields) == 0 {
			return "Usage: /confirm <report id>"
		}
		return s.confirm(ctx, fields[0])
	default:
		return "Commands: /stats, /ban <id> [duration], /unban <id>, /confirm <report id>"
	}
}

func (s *BotService) handleCallback(ctx context.Context, data string) string {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	switch {
	case strings.HasPrefix(data, callbackBan):
		return s.ban(ctx, strings.TrimPrefix(data, callbackBan), 0)
	case strings.HasPrefix(data, callbackConfirm):
		return s.confirm(ctx, strings.TrimPrefix(data, callbackConfirm))
	default:
		return "Unknown action"
	}
}

func (s *BotService) ban(ctx context.Context, subject string, d time.Duration) string {
	ban, err := s.Moderation.BanUser(ctx, subject, d)
	if err != nil {
		s.Log.WithError(err).WithField("subject_id", subject).Error("ban failed")
		return "Ban failed: " + err.Error()
	}
	s.Hub.Kick(subject)
	return fmt.Sprintf("Banned %s until %s", subject, ban.Until.UTC().Format(time.RFC3339))
}

func (s *BotService) confirm(ctx context.Context, raw string) string {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Sprintf("Bad report id %q", raw)
	}
	if err := s.Moderation.ConfirmReport(ctx, uint(id)); err != nil {
		s.Log.WithError(err).WithField("report_id", id).Error("confirm failed")
		return "Confirm failed: " + err.Error()
	}
	return fmt.Sprintf("Report #%d confirmed", id)
}

func (s *BotService) stats(ctx context.Context) string {
	st, err := s.Hub.Stats(ctx)
	if err != nil {
		return "Stats unavailable: " + err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Connections: %d\nWaiting: %d\nActive rooms: %d", st.Connections, st.Waiting, st.ActiveRooms)
	for i, room := range st.Rooms {
		if i == maxListedRooms {
			fmt.Fprintf(&b, "\n… and %d more", len(st.Rooms)-maxListedRooms)
			break
		}
		fmt.Fprintf(&b, "\n%s %s %s", room.RoomID, room.State, time.Duration(room.AgeSeconds)*time.Second)
	}
	return b.String()
}

func (s *BotService) reply(text string) {
	if _, err := s.Bot.Send(tgbotapi.NewMessage(s.ChatID, text)); err != nil {
		s.Log.WithError(err).Warn("failed to send reply")
	}
}
