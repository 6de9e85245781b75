// Package chat keeps the shared room's membership and ordered message log.
//
// There is a single room per process. Messages are immutable once appended
// and the log lives for the session lifetime; membership is derived from
// join/leave/kick events. The room holds no locks; the coordinator
// serializes all access.
package chat

import (
	"strings"
	"time"

	"github.com/livepoll/server/internal/id"
	apperrors "github.com/livepoll/server/internal/platform/errors"
)

// Message is a single chat entry. Immutable once created.
type Message struct {
	ID        string
	User      string
	Text      string
	Timestamp time.Time
	SessionID string
}

// Room is the shared chat room: a member set plus an ordered message log.
type Room struct {
	sessionID string
	order     []string
	members   map[string]struct{}
	messages  []Message
}

// NewRoom returns an empty room.
func NewRoom() *Room {
	return &Room{members: make(map[string]struct{})}
}

// SessionID returns the room label reported back to clients.
func (r *Room) SessionID() string {
	return r.sessionID
}

// SetSessionID records the client-supplied room label. The first non-empty
// value wins; there is only one room per process.
func (r *Room) SetSessionID(sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || r.sessionID != "" {
		return
	}
	r.sessionID = sessionID
}

// Join adds a member. Re-joining is idempotent and reports false.
func (r *Room) Join(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if _, ok := r.members[name]; ok {
		return false
	}
	r.members[name] = struct{}{}
	r.order = append(r.order, name)
	return true
}

// Leave removes a member. Prior messages by the member stay in the log.
func (r *Room) Leave(name string) bool {
	if _, ok := r.members[name]; !ok {
		return false
	}
	delete(r.members, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// IsMember reports whether name is currently joined.
func (r *Room) IsMember(name string) bool {
	_, ok := r.members[name]
	return ok
}

// Members returns the current member names in join order.
func (r *Room) Members() []string {
	return append([]string(nil), r.order...)
}

// Post validates and appends a message, returning the stored record.
func (r *Room) Post(user string, text string, now time.Time, idGenerator func() (string, error)) (Message, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return Message{}, apperrors.New(apperrors.CodeNameRequired, "message author is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, apperrors.New(apperrors.CodeMessageEmpty, "message text is required")
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	messageID, err := idGenerator()
	if err != nil {
		return Message{}, apperrors.Wrap(apperrors.CodeUnknown, "generate message id", err)
	}

	msg := Message{
		ID:        messageID,
		User:      user,
		Text:      text,
		Timestamp: now.UTC(),
		SessionID: r.sessionID,
	}
	r.messages = append(r.messages, msg)
	return msg, nil
}

// History returns the full ordered message log.
func (r *Room) History() []Message {
	return append([]Message(nil), r.messages...)
}
