package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"matcha/backend/internal/chathub"
	"matcha/backend/internal/complaint"
	"matcha/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const modChat = int64(-1001)

type fakeClient struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	err      error
}

func (f *fakeClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func (f *fakeClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeClient) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sent)
	msg, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	return msg.Text
}

type MockModeration struct {
	mock.Mock
}

func (m *MockModeration) BanUser(ctx context.Context, subjectID string, d time.Duration) (*complaint.Ban, error) {
	args := m.Called(ctx, subjectID, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*complaint.Ban), args.Error(1)
}

func (m *MockModeration) Unban(ctx context.Context, subjectID string) error {
	return m.Called(ctx, subjectID).Error(0)
}

func (m *MockModeration) ConfirmReport(ctx context.Context, reportID uint) error {
	return m.Called(ctx, reportID).Error(0)
}

type MockHub struct {
	mock.Mock
}

func (m *MockHub) Kick(subjectID string) { m.Called(subjectID) }

func (m *MockHub) Stats(ctx context.Context) (chathub.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(chathub.Stats), args.Error(1)
}

func newBot() (*BotService, *fakeClient, *MockHub, *MockModeration) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := &fakeClient{}
	hub := new(MockHub)
	mod := new(MockModeration)
	return NewBotService(client, modChat, hub, mod, logger), client, hub, mod
}

func command(chatID int64, text string) tgbotapi.Update {
	name, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text:     text,
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
			From:     &tgbotapi.User{ID: 42},
			Chat:     tgbotapi.Chat{ID: chatID},
		},
	}
}

func TestNotifyReport(t *testing.T) {
	bot, client, _, _ := newBot()

	err := bot.NotifyReport(context.Background(), &models.Report{
		ID:             7,
		ReportedAnonID: "anon-1",
		ReporterID:     "u1",
		RoomID:         "room-1",
		Reason:         "spam",
		Details:        "sent links (lots).",
	})
	require.NoError(t, err)

	require.Len(t, client.sent, 1)
	msg := client.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, modChat, msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.Contains(t, msg.Text, `Report \#7: spam`)
	assert.Contains(t, msg.Text, `anon\-1`)
	assert.Contains(t, msg.Text, `sent links \(lots\)\.`)

	markup := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, markup.InlineKeyboard, 1)
	row := markup.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, "confirm:7", *row[0].CallbackData)
	assert.Equal(t, "ban:anon-1", *row[1].CallbackData)
}

func TestNotifyReport_NoSubjectNoBanButton(t *testing.T) {
	bot, client, _, _ := newBot()

	require.NoError(t, bot.NotifyReport(context.Background(), &models.Report{ID: 1, Reason: "spam"}))

	markup := client.sent[0].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Len(t, markup.InlineKeyboard[0], 1)
}

func TestNotifyReport_SendError(t *testing.T) {
	bot, client, _, _ := newBot()
	client.err = errors.New("flood")

	assert.Error(t, bot.NotifyReport(context.Background(), &models.Report{ID: 1}))
}

func TestCommand_Stats(t *testing.T) {
	bot, client, hub, _ := newBot()
	hub.On("Stats", mock.Anything).Return(chathub.Stats{
		Connections: 3,
		Waiting:     1,
		ActiveRooms: 1,
		Rooms:       []chathub.RoomStats{{RoomID: "room-1", State: "Ready", AgeSeconds: 90}},
	}, nil)

	bot.handleUpdate(context.Background(), command(modChat, "/stats"))

	text := client.lastText(t)
	assert.Contains(t, text, "Connections: 3")
	assert.Contains(t, text, "room-1 Ready 1m30s")
}

func TestCommand_BanKicks(t *testing.T) {
	bot, client, hub, mod := newBot()
	until := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	mod.On("BanUser", mock.Anything, "u2", 6*time.Hour).Return(&complaint.Ban{SubjectID: "u2", Until: until}, nil)
	hub.On("Kick", "u2").Once()

	bot.handleUpdate(context.Background(), command(modChat, "/ban u2 6h"))

	assert.Contains(t, client.lastText(t), "Banned u2")
	hub.AssertExpectations(t)
}

func TestCommand_BanDefaultDuration(t *testing.T) {
	bot, _, hub, mod := newBot()
	mod.On("BanUser", mock.Anything, "anon-1", time.Duration(0)).Return(&complaint.Ban{SubjectID: "anon-1"}, nil)
	hub.On("Kick", "anon-1").Once()

	bot.handleUpdate(context.Background(), command(modChat, "/ban anon-1"))

	mod.AssertExpectations(t)
}

func TestCommand_BanFailureDoesNotKick(t *testing.T) {
	bot, client, hub, mod := newBot()
	mod.On("BanUser", mock.Anything, "u2", time.Duration(0)).Return(nil, errors.New("db down"))

	bot.handleUpdate(context.Background(), command(modChat, "/ban u2"))

	assert.Contains(t, client.lastText(t), "Ban failed")
	hub.AssertNotCalled(t, "Kick", mock.Anything)
}

func TestCommand_Validation(t *testing.T) {
	bot, client, _, _ := newBot()

	for text, want := range map[string]string{
		"/ban":         "Usage: /ban",
		"/ban u2 soon": "Bad duration",
		"/unban":       "Usage: /unban",
		"/confirm":     "Usage: /confirm",
		"/confirm abc": "Bad report id",
		"/help":        "Commands:",
	} {
		bot.handleUpdate(context.Background(), command(modChat, text))
		assert.Contains(t, client.lastText(t), want, text)
	}
}

func TestCommand_UnbanAndConfirm(t *testing.T) {
	bot, client, _, mod := newBot()
	mod.On("Unban", mock.Anything, "u2").Return(nil).Once()
	mod.On("ConfirmReport", mock.Anything, uint(9)).Return(nil).Once()

	bot.handleUpdate(context.Background(), command(modChat, "/unban u2"))
	assert.Equal(t, "Unbanned u2", client.lastText(t))

	bot.handleUpdate(context.Background(), command(modChat, "/confirm 9"))
	assert.Equal(t, "Report #9 confirmed", client.lastText(t))
	mod.AssertExpectations(t)
}

func TestCommand_ForeignChatIgnored(t *testing.T) {
	bot, client, _, mod := newBot()

	bot.handleUpdate(context.Background(), command(12345, "/ban u2"))

	assert.Empty(t, client.sent)
	mod.AssertNotCalled(t, "BanUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestCallbacks(t *testing.T) {
	bot, _, hub, mod := newBot()
	mod.On("BanUser", mock.Anything, "anon-1", time.Duration(0)).Return(&complaint.Ban{SubjectID: "anon-1"}, nil)
	mod.On("ConfirmReport", mock.Anything, uint(7)).Return(nil)
	hub.On("Kick", "anon-1").Once()

	assert.Contains(t, bot.handleCallback(context.Background(), "ban:anon-1"), "Banned anon-1")
	assert.Equal(t, "Report #7 confirmed", bot.handleCallback(context.Background(), "confirm:7"))
	assert.Equal(t, "Unknown action", bot.handleCallback(context.Background(), "nope"))
	hub.AssertExpectations(t)
}

func TestRun_StopsOnClosedChannel(t *testing.T) {
	bot, client, _, mod := newBot()
	mod.On("Unban", mock.Anything, "u2").Return(nil)

	updates := make(chan tgbotapi.Update, 1)
	updates <- command(modChat, "/unban u2")
	close(updates)

	done := make(chan struct{})
	go func() {
		bot.Run(context.Background(), updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Len(t, client.sent, 1)
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `a\_b \*c\* \[d\]\(e\) 1\.5\!`, escapeMarkdownV2("a_b *c* [d](e) 1.5!"))
}
