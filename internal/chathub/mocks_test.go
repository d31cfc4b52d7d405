package chathub

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"matcha/backend/internal/complaint"
	"matcha/backend/internal/models"
	"matcha/backend/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

// Session operations
func (m *MockStorage) CreateSession(ctx context.Context, session *models.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockStorage) CloseSession(ctx context.Context, roomID string, endedAt time.Time, duration time.Duration, reason string) error {
	return m.Called(ctx, roomID, endedAt, duration, reason).Error(0)
}

func (m *MockStorage) MarkFriendshipCreated(ctx context.Context, roomID string) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *MockStorage) AppendSessionMessage(ctx context.Context, roomID string, msg *models.SessionMessage) error {
	return m.Called(ctx, roomID, msg).Error(0)
}

func (m *MockStorage) RecordSessionMetric(ctx context.Context, roomID string, metric *models.SessionMetric) error {
	return m.Called(ctx, roomID, metric).Error(0)
}

func (m *MockStorage) GetSessionHistory(ctx context.Context, roomID string) (*models.Session, []models.SessionMessage, error) {
	args := m.Called(ctx, roomID)
	var session *models.Session
	if v := args.Get(0); v != nil {
		session = v.(*models.Session)
	}
	var messages []models.SessionMessage
	if v := args.Get(1); v != nil {
		messages = v.([]models.SessionMessage)
	}
	return session, messages, args.Error(2)
}

func (m *MockStorage) CloseOpenSessions(ctx context.Context, endedAt time.Time, reason string) (int64, error) {
	args := m.Called(ctx, endedAt, reason)
	return args.Get(0).(int64), args.Error(1)
}

// Account operations
func (m *MockStorage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) SetOnlineStatus(ctx context.Context, userID string, online bool, at time.Time) error {
	return m.Called(ctx, userID, online, at).Error(0)
}

func (m *MockStorage) SendFriendRequest(ctx context.Context, senderID, receiverID, message string) (*storage.FriendRequestResult, error) {
	args := m.Called(ctx, senderID, receiverID, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.FriendRequestResult), args.Error(1)
}

func (m *MockStorage) AcceptFriendRequest(ctx context.Context, requestID uint, receiverID string) (*models.FriendRequest, error) {
	args := m.Called(ctx, requestID, receiverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendRequest), args.Error(1)
}

func (m *MockStorage) RejectFriendRequest(ctx context.Context, requestID uint, receiverID string) (*models.FriendRequest, error) {
	args := m.Called(ctx, requestID, receiverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendRequest), args.Error(1)
}

// Moderation operations
func (m *MockStorage) SaveReport(ctx context.Context, report *models.Report) error {
	return m.Called(ctx, report).Error(0)
}

func (m *MockStorage) GetReportByID(ctx context.Context, id uint) (*models.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Report), args.Error(1)
}

func (m *MockStorage) MarkReportConfirmed(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStorage) CountReportsSince(ctx context.Context, reportedID string, since time.Time) (int64, error) {
	args := m.Called(ctx, reportedID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) UpdateUserReputation(ctx context.Context, userID string, delta int) error {
	return m.Called(ctx, userID, delta).Error(0)
}

func (m *MockStorage) UpdateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockStorage) SetBan(ctx context.Context, subjectID string, d time.Duration) error {
	return m.Called(ctx, subjectID, d).Error(0)
}

func (m *MockStorage) ClearBan(ctx context.Context, subjectID string) error {
	return m.Called(ctx, subjectID).Error(0)
}

func (m *MockStorage) IsUserBanned(ctx context.Context, subjectID string) (bool, error) {
	args := m.Called(ctx, subjectID)
	return args.Bool(0), args.Error(1)
}

// allowSessions accepts every session record write.
func (m *MockStorage) allowSessions() *MockStorage {
	m.On("CreateSession", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("CloseSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// MockReportHandler is a testify mock of ReportHandler.
type MockReportHandler struct {
	mock.Mock
}

func (m *MockReportHandler) HandleReport(ctx context.Context, report *models.Report) (*complaint.Ban, error) {
	args := m.Called(ctx, report)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*complaint.Ban), args.Error(1)
}

// MockClient records every event the hub sends to it.
type MockClient struct {
	mu     sync.Mutex
	events []models.Event
	full   bool
	closed bool
}

func newMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) Send(ev models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns the received events of the given type, or all of them when
// typ is empty.
func (c *MockClient) Events(typ string) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Event
	for _, ev := range c.events {
		if typ == "" || ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (c *MockClient) Last(t *testing.T, typ string) models.Event {
	t.Helper()
	evs := c.Events(typ)
	require.NotEmpty(t, evs, "no %s event received", typ)
	return evs[len(evs)-1]
}

func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// testClock is a settable clock.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// runNow runs a store task and its completion on the calling goroutine.
func runNow(task func() func()) {
	if done := task(); done != nil {
		done()
	}
}

// newTestHub builds a hub whose store calls and their completions run
// synchronously inside the calling handler.
func newTestHub(store *MockStorage) (*Hub, *testClock) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := newTestClock()
	h := NewHub(store, Options{RoomMaxAge: 30 * time.Minute, ReaperInterval: time.Minute}, logger)
	h.now = clock.Now
	h.coin = func() bool { return true }
	n := 0
	h.newID = func() string {
		n++
		return fmt.Sprintf("room-%d", n)
	}
	h.spawn = runNow
	h.spawnOrdered = runNow
	return h, clock
}

// connect registers an anonymous connection.
func connect(h *Hub, id string) (*Connection, *MockClient) {
	client := newMockClient()
	c := &Connection{ID: id, Client: client}
	h.register(c)
	return c, client
}

// connectUser registers a connection carrying an account.
func connectUser(h *Hub, id, userID string) (*Connection, *MockClient) {
	client := newMockClient()
	c := &Connection{
		ID:      id,
		UserID:  userID,
		Client:  client,
		Profile: &models.ProfileSummary{UserID: userID, Username: userID, DisplayName: "User " + userID},
	}
	h.register(c)
	return c, client
}

func deliver(h *Hub, c *Connection, typ, roomID string, payload any) {
	ev := models.NewEvent(typ, roomID, payload)
	ev.SenderID = c.ID
	h.dispatch(Inbound{ConnID: c.ID, Event: ev})
}

// pairedRoom connects two anonymous connections, pairs them and joins both.
func pairedRoom(t *testing.T, h *Hub) (*Room, *Connection, *MockClient, *Connection, *MockClient) {
	t.Helper()
	a, ca := connect(h, "c1")
	b, cb := connect(h, "c2")
	return readyRoom(t, h, a, ca, b, cb)
}

func readyRoom(t *testing.T, h *Hub, a *Connection, ca *MockClient, b *Connection, cb *MockClient) (*Room, *Connection, *MockClient, *Connection, *MockClient) {
	t.Helper()
	deliver(h, a, models.EventFindPartner, "", nil)
	deliver(h, b, models.EventFindPartner, "", nil)
	roomID := h.roomOf[a.ID]
	require.NotEmpty(t, roomID)
	deliver(h, a, models.EventJoinRoom, roomID, nil)
	deliver(h, b, models.EventJoinRoom, roomID, nil)
	room := h.rooms[roomID]
	require.Equal(t, RoomReady, room.State)
	ca.Reset()
	cb.Reset()
	return room, a, ca, b, cb
}

func decode[T any](t *testing.T, ev models.Event) T {
	t.Helper()
	var v T
	require.NoError(t, ev.Decode(&v))
	return v
}

// taskQueue holds store tasks until the test runs them, to simulate slow
// store calls.
type taskQueue struct {
	tasks []func() func()
}

func (q *taskQueue) spawn(task func() func()) {
	q.tasks = append(q.tasks, task)
}

func (q *taskQueue) runAll() {
	for len(q.tasks) > 0 {
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		runNow(task)
	}
}
