package models_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"matcha/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUserBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestUserBeforeCreate_GeneratesUUID(t *testing.T) {
	user := &models.User{Username: "lena"}

	assert.Empty(t, user.ID, "User ID should be empty before BeforeCreate")

	err := user.BeforeCreate(nil) // nil *gorm.DB is acceptable for this hook

	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestUserBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	user := &models.User{ID: existingID, Username: "marc"}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, user.ID, "BeforeCreate should preserve existing ID")
}

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user models.User
		want string
	}{
		{"nickname wins", models.User{Nickname: "nico", FirstName: "Nicolas", Username: "user_1"}, "nico"},
		{"first name fallback", models.User{FirstName: "Nicolas", Username: "user_1"}, "Nicolas"},
		{"username fallback", models.User{Username: "user_1"}, "user_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}

func TestUserProfile(t *testing.T) {
	user := models.User{
		ID:        "u1",
		Username:  "user_1",
		Nickname:  "nico",
		PhotoURL:  "/uploads/u1.jpeg",
		Interests: pq.StringArray{"music", "travel"},
	}

	p := user.Profile()

	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "nico", p.DisplayName)
	assert.Equal(t, []string{"music", "travel"}, p.Interests)
}

// TestUserStructTags catches accidental tag removal during refactoring.
func TestUserStructTags(t *testing.T) {
	userType := reflect.TypeOf(models.User{})

	idField, found := userType.FieldByName("ID")
	assert.True(t, found)
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")

	interestsField, found := userType.FieldByName("Interests")
	assert.True(t, found)
	assert.Contains(t, interestsField.Tag.Get("gorm"), "type:text[]", "Interests should use PostgreSQL array type")

	repField, found := userType.FieldByName("Reputation")
	assert.True(t, found)
	assert.Equal(t, "-", repField.Tag.Get("json"), "Reputation must never be serialized to peers")
}

func TestNewFriendship_OrdersPair(t *testing.T) {
	a := models.NewFriendship("b-user", "a-user")
	b := models.NewFriendship("a-user", "b-user")

	assert.Equal(t, a, b)
	assert.Equal(t, "a-user", a.UserID)
	assert.Equal(t, "b-user", a.FriendID)
}

func TestSessionHasParticipant(t *testing.T) {
	u1 := "u1"
	s := models.Session{RoomID: "r", User1ID: &u1}

	assert.True(t, s.HasParticipant("u1"))
	assert.False(t, s.HasParticipant("u2"))
	assert.False(t, s.HasParticipant(""), "empty identity never matches a missing participant")
}

func TestNewEvent_KeepsRawPayloadVerbatim(t *testing.T) {
	raw := json.RawMessage(`{"sdp":"v=0\r\n","type":"offer"}`)

	ev := models.NewEvent(models.EventOffer, "room-1", raw)

	assert.Equal(t, string(raw), string(ev.Payload))
	assert.Equal(t, "room-1", ev.RoomID)
}

func TestNewEvent_MarshalsStructPayload(t *testing.T) {
	ev := models.NewEvent(models.EventMatchFound, "room-1", models.MatchFoundPayload{RoomID: "room-1", IsInitiator: true})

	var got models.MatchFoundPayload
	require.NoError(t, ev.Decode(&got))
	assert.True(t, got.IsInitiator)
	assert.Equal(t, "room-1", got.RoomID)
}

func TestEventDecode_EmptyPayload(t *testing.T) {
	got := models.ReportPayload{Reason: "keep"}

	require.NoError(t, models.Event{Type: models.EventReportUser}.Decode(&got))
	assert.Equal(t, "keep", got.Reason)
}

// BenchmarkUserBeforeCreate measures UUID generation performance.
func BenchmarkUserBeforeCreate(b *testing.B) {
	user := &models.User{Username: "benchmark_user"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user.ID = ""
		_ = user.BeforeCreate(nil)
	}
}
