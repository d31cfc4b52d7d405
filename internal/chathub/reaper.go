package chathub

import (
	"context"
	"sort"

	"matcha/backend/internal/models"
)

// reap force-closes every room older than the maximum age.
func (h *Hub) reap() {
	now := h.now()
	var expired []string
	for id, room := range h.rooms {
		if room.Age(now) > h.roomMaxAge {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		h.teardown(id, models.EndReasonCleanup, "")
	}
	if len(expired) > 0 {
		h.Log.Infof("reaper closed %d rooms", len(expired))
	}
}

// RoomStats describes one active room.
type RoomStats struct {
	RoomID     string `json:"room_id"`
	State      string `json:"state"`
	AgeSeconds int    `json:"age_seconds"`
}

// Stats is a snapshot of the hub's registries.
type Stats struct {
	Connections int         `json:"connections"`
	Waiting     int         `json:"waiting"`
	ActiveRooms int         `json:"active_rooms"`
	Rooms       []RoomStats `json:"rooms"`
}

func (h *Hub) stats() Stats {
	now := h.now()
	s := Stats{
		Connections: h.registry.Len(),
		Waiting:     h.queue.Len(),
		ActiveRooms: len(h.rooms),
		Rooms:       make([]RoomStats, 0, len(h.rooms)),
	}
	for _, room := range h.rooms {
		s.Rooms = append(s.Rooms, RoomStats{
			RoomID:     room.ID,
			State:      room.State.String(),
			AgeSeconds: int(room.Age(now).Seconds()),
		})
	}
	sort.Slice(s.Rooms, func(i, j int) bool { return s.Rooms[i].AgeSeconds > s.Rooms[j].AgeSeconds })
	return s
}

// Stats asks the running hub for a snapshot.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.statsCh <- reply:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}
