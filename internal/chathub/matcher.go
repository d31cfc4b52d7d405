package chathub

import (
	"matcha/backend/internal/models"

	"github.com/sirupsen/logrus"
)

// Queue is the FIFO set of connections waiting for a random partner. A
// connection id is in the queue at most once.
type Queue struct {
	order   []string
	waiting map[string]struct{}
}

func NewQueue() *Queue {
	return &Queue{waiting: make(map[string]struct{})}
}

// Enqueue adds id at the tail. It reports false if id was already waiting.
func (q *Queue) Enqueue(id string) bool {
	if _, ok := q.waiting[id]; ok {
		return false
	}
	q.waiting[id] = struct{}{}
	q.order = append(q.order, id)
	return true
}

// Pop removes and returns the oldest waiting id.
func (q *Queue) Pop() (string, bool) {
	if len(q.order) == 0 {
		return "", false
	}
	id := q.order[0]
	q.order[0] = ""
	q.order = q.order[1:]
	delete(q.waiting, id)
	return id, true
}

// Cancel removes id if it is waiting. It is a no-op otherwise.
func (q *Queue) Cancel(id string) bool {
	if _, ok := q.waiting[id]; !ok {
		return false
	}
	delete(q.waiting, id)
	for i, queued := range q.order {
		if queued == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

func (q *Queue) Contains(id string) bool {
	_, ok := q.waiting[id]
	return ok
}

func (q *Queue) Len() int { return len(q.order) }

// Snapshot returns the waiting ids, oldest first.
func (q *Queue) Snapshot() []string {
	return append([]string(nil), q.order...)
}

// findPartner pairs c with the oldest live waiting connection, or queues it.
// A connection that is already in a room leaves it first.
func (h *Hub) findPartner(c *Connection) {
	if roomID, ok := h.roomOf[c.ID]; ok {
		h.teardown(roomID, models.EndReasonSkipped, c.ID)
	}
	if h.queue.Contains(c.ID) {
		h.send(c, models.NewEvent(models.EventSearching, "", nil))
		return
	}

	for {
		candidateID, ok := h.queue.Pop()
		if !ok {
			break
		}
		candidate := h.registry.Get(candidateID)
		if candidate == nil || !candidate.Alive() {
			h.Log.WithField("conn_id", candidateID).Debug("discarding dead waiting connection")
			continue
		}
		h.createRoom(candidate, c)
		return
	}

	h.queue.Enqueue(c.ID)
	h.Log.WithField("conn_id", c.ID).Debug("queued for a partner")
	h.send(c, models.NewEvent(models.EventSearching, "", nil))
}

// createRoom registers a room for a and b, tells both who negotiates first
// and asks the store for the durable session record.
func (h *Hub) createRoom(a, b *Connection) *Room {
	initiator := b
	if h.coin() {
		initiator = a
	}
	room := newRoom(h.newID(), a, b, initiator.ID, h.now())
	h.rooms[room.ID] = room
	h.roomOf[a.ID] = room.ID
	h.roomOf[b.ID] = room.ID

	h.Log.WithFields(logrus.Fields{
		"room_id":   room.ID,
		"initiator": initiator.ID,
	}).Infof("match found: %s and %s", a.ID, b.ID)

	for _, p := range room.Participants {
		h.send(p, models.NewEvent(models.EventMatchFound, room.ID, models.MatchFoundPayload{
			RoomID:      room.ID,
			IsInitiator: p.ID == room.Initiator,
		}))
	}

	h.createSession(room)
	return room
}
