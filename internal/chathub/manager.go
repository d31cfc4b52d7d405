// Package chathub is the realtime core: it owns the connection registry, the
// matchmaking queue and the active rooms, and relays signaling between the two
// participants of a room. All of that state is mutated by a single goroutine
// (Hub.Run); store calls run on their own goroutines and post their results
// back to it.
package chathub

import (
	"context"
	"math/rand/v2"
	"time"

	"matcha/backend/internal/complaint"
	"matcha/backend/internal/localization"
	"matcha/backend/internal/models"
	"matcha/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReportHandler applies moderation consequences to a stored report.
type ReportHandler interface {
	HandleReport(ctx context.Context, report *models.Report) (*complaint.Ban, error)
}

// ReportNotifier forwards stored reports to human moderators.
type ReportNotifier interface {
	NotifyReport(ctx context.Context, report *models.Report) error
}

// Options configures a Hub. Zero durations fall back to the defaults below.
type Options struct {
	RoomMaxAge     time.Duration
	ReaperInterval time.Duration
	StoreTimeout   time.Duration

	Complaints ReportHandler
	Notifier   ReportNotifier
	Localizer  *localization.Localizer
}

const (
	defaultRoomMaxAge     = 30 * time.Minute
	defaultReaperInterval = 5 * time.Minute
	defaultStoreTimeout   = 5 * time.Second
)

// Inbound is one event read from a connection.
type Inbound struct {
	ConnID string
	Event  models.Event
}

// spawner runs task off the hub goroutine and schedules the returned
// completion, if any, back onto it.
type spawner func(task func() func())

// Hub is the single owner of the connection registry, the matchmaking queue
// and the room map.
type Hub struct {
	// Channels
	RegisterCh   chan *Connection
	UnregisterCh chan string
	IncomingCh   chan Inbound

	actions chan func()
	statsCh chan chan Stats
	done    chan struct{}

	Storage    storage.Storage
	Complaints ReportHandler
	Notifier   ReportNotifier
	Localizer  *localization.Localizer
	Log        *logrus.Entry

	registry *Registry
	queue    *Queue
	rooms    map[string]*Room
	roomOf   map[string]string

	roomMaxAge     time.Duration
	reaperInterval time.Duration
	storeTimeout   time.Duration
	flushing       bool

	now          func() time.Time
	coin         func() bool
	newID        func() string
	spawn        spawner
	spawnOrdered spawner
	presence     chan func()
}

// NewHub creates a hub. Call Run to start it.
func NewHub(s storage.Storage, opts Options, log *logrus.Logger) *Hub {
	h := &Hub{
		RegisterCh:   make(chan *Connection),
		UnregisterCh: make(chan string),
		IncomingCh:   make(chan Inbound),
		actions:      make(chan func(), 64),
		statsCh:      make(chan chan Stats),
		done:         make(chan struct{}),

		Storage:    s,
		Complaints: opts.Complaints,
		Notifier:   opts.Notifier,
		Localizer:  opts.Localizer,
		Log:        log.WithField("component", "chathub"),

		registry: NewRegistry(),
		queue:    NewQueue(),
		rooms:    make(map[string]*Room),
		roomOf:   make(map[string]string),

		roomMaxAge:     orDefault(opts.RoomMaxAge, defaultRoomMaxAge),
		reaperInterval: orDefault(opts.ReaperInterval, defaultReaperInterval),
		storeTimeout:   orDefault(opts.StoreTimeout, defaultStoreTimeout),

		now:      time.Now,
		coin:     func() bool { return rand.IntN(2) == 0 },
		newID:    uuid.NewString,
		presence: make(chan func(), 256),
	}
	h.spawn = h.goSpawn
	h.spawnOrdered = h.queuePresence
	return h
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Run processes events until ctx is cancelled, then flushes every room.
func (h *Hub) Run(ctx context.Context) {
	h.Log.Info("hub started")
	ticker := time.NewTicker(h.reaperInterval)
	defer ticker.Stop()
	go h.runPresence()

	for {
		select {
		case c := <-h.RegisterCh:
			h.register(c)
		case id := <-h.UnregisterCh:
			h.unregister(id)
		case in := <-h.IncomingCh:
			h.dispatch(in)
		case done := <-h.actions:
			done()
		case reply := <-h.statsCh:
			reply <- h.stats()
		case <-ticker.C:
			h.reap()
		case <-ctx.Done():
			h.shutdown()
			close(h.done)
			return
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Register hands a new connection to the hub. Once it returns, events
// delivered for c are processed after the registration.
func (h *Hub) Register(c *Connection) error {
	select {
	case h.RegisterCh <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(connID string) {
	select {
	case h.UnregisterCh <- connID:
	case <-h.done:
	}
}

// Deliver passes an event read from connID to the hub.
func (h *Hub) Deliver(connID string, ev models.Event) {
	select {
	case h.IncomingCh <- Inbound{ConnID: connID, Event: ev}:
	case <-h.done:
	}
}

// Kick closes every connection of a user or anonymous id, ending their rooms
// with reason "banned".
func (h *Hub) Kick(subjectID string) {
	h.post(func() { h.kick(subjectID) })
}

func (h *Hub) post(fn func()) {
	select {
	case h.actions <- fn:
	case <-h.done:
	}
}

func (h *Hub) goSpawn(task func() func()) {
	go func() {
		if done := task(); done != nil {
			h.post(done)
		}
	}()
}

func (h *Hub) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.storeTimeout)
}

func (h *Hub) text(lang, key string) string {
	if h.Localizer == nil {
		return key
	}
	return h.Localizer.GetString(lang, key)
}

func (h *Hub) format(lang, key string, args ...string) string {
	if h.Localizer == nil {
		return key
	}
	return h.Localizer.Format(lang, key, args...)
}

// send queues ev for c. A client that cannot keep up is closed; its read
// pump then unregisters it.
func (h *Hub) send(c *Connection, ev models.Event) {
	if c == nil || !c.alive {
		return
	}
	if c.Client.Send(ev) {
		return
	}
	h.Log.WithField("conn_id", c.ID).Warn("client send buffer full, closing connection")
	c.alive = false
	h.queue.Cancel(c.ID)
	c.Client.Close()
}

func (h *Hub) sendError(c *Connection, typ string, err error) {
	code := errorCode(err)
	h.send(c, models.NewEvent(typ, "", models.ErrorPayload{
		Code:    code,
		Message: h.text(c.Lang, "error."+code),
	}))
}

func (h *Hub) register(c *Connection) {
	if c.Lang == "" {
		c.Lang = localization.DefaultLang
	}
	first := h.registry.Add(c)
	h.Log.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID}).Info("client registered")
	if first {
		h.publishPresence(c.UserID, true)
	}
}

// unregister drops a connection: it leaves the queue, its room is torn down
// and its transport is closed. Unknown ids are ignored.
func (h *Hub) unregister(connID string) {
	c := h.registry.Get(connID)
	if c == nil {
		return
	}
	c.alive = false
	h.queue.Cancel(connID)
	if roomID, ok := h.roomOf[connID]; ok {
		h.teardown(roomID, models.EndReasonDisconnected, connID)
	}
	_, last := h.registry.Remove(connID)
	c.Client.Close()
	h.Log.WithField("conn_id", connID).Info("client unregistered")
	if last {
		h.publishPresence(c.UserID, false)
	}
}

func (h *Hub) kick(subjectID string) {
	for _, c := range h.registry.Matching(subjectID) {
		if roomID, ok := h.roomOf[c.ID]; ok {
			h.teardown(roomID, models.EndReasonBanned, c.ID)
		}
		h.sendError(c, models.EventError, ErrBanned)
		h.unregister(c.ID)
	}
}

func (h *Hub) dispatch(in Inbound) {
	c := h.registry.Get(in.ConnID)
	if c == nil || !c.alive {
		return
	}
	ev := in.Event
	log := h.Log.WithFields(logrus.Fields{"conn_id": c.ID, "event": ev.Type})
	log.Debug("event received")

	var err error
	errType := models.EventError
	switch ev.Type {
	case models.EventFindPartner:
		h.findPartner(c)
	case models.EventCancelSearch:
		h.queue.Cancel(c.ID)
	case models.EventJoinRoom:
		err = h.joinRoom(c, ev.RoomID)
	case models.EventLeaveRoom:
		err = h.leaveRoom(c, ev.RoomID)
	case models.EventOffer, models.EventAnswer, models.EventICECandidate, models.EventTyping,
		models.EventUserInfo, models.EventSendReaction,
		models.EventScreenShareStarted, models.EventScreenShareStopped:
		h.relay(c, ev)
	case models.EventChatMessage:
		err = h.chat(c, ev)
	case models.EventConnectionQuality:
		h.recordQuality(c, ev)
	case models.EventGetChatHistory:
		err = h.chatHistory(c, ev)
	case models.EventFriendRequest:
		errType = models.EventFriendRequestError
		err = h.friendRequest(c, ev)
	case models.EventFriendAccept:
		errType = models.EventFriendRequestError
		err = h.respondFriendRequest(c, ev, true)
	case models.EventFriendReject:
		errType = models.EventFriendRequestError
		err = h.respondFriendRequest(c, ev, false)
	case models.EventReportUser:
		err = h.report(c, ev)
	default:
		err = ErrInvalidEvent
	}
	if err != nil {
		log.WithError(err).Debug("event refused")
		h.sendError(c, errType, err)
	}
}

// shutdown ends every room with reason "shutdown" and closes every durable
// session still open.
func (h *Hub) shutdown() {
	h.flushing = true
	for id := range h.rooms {
		h.teardown(id, models.EndReasonShutdown, "")
	}
	ctx, cancel := h.storeContext()
	defer cancel()
	n, err := h.Storage.CloseOpenSessions(ctx, h.now(), models.EndReasonShutdown)
	if err != nil {
		h.Log.WithError(err).Error("failed to close open sessions")
	} else {
		h.Log.Infof("closed %d open sessions", n)
	}
	for _, id := range h.queue.Snapshot() {
		h.queue.Cancel(id)
	}
	for _, c := range h.registry.conns {
		c.Client.Close()
	}
	h.Log.Info("hub stopped")
}
