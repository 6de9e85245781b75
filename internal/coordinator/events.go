package coordinator

import (
	"time"

	"github.com/livepoll/server/internal/chat"
	"github.com/livepoll/server/internal/poll"
)

// Event is one member of the closed set of state-change notifications the
// coordinator pushes to connected clients. The transport dispatches on the
// concrete type, so adding a variant surfaces every switch that needs
// updating.
type Event interface {
	event()
}

// PollState is the client-facing view of the running poll.
type PollState struct {
	ID            string
	Question      string
	Options       []string
	Duration      time.Duration
	TimeRemaining time.Duration
	StartedAt     time.Time
}

// QuestionStarted announces a new poll. Clients must discard prior tallies.
type QuestionStarted struct {
	Poll PollState
}

// LiveResults carries the running tallies after an accepted answer.
type LiveResults struct {
	Results          map[string]int
	AnsweredStudents int
	TotalStudents    int
	TimeRemaining    time.Duration
}

// EndReason says which close trigger won for a poll instance.
type EndReason string

const (
	// EndReasonTeacher marks an explicit end request.
	EndReasonTeacher EndReason = "teacher"
	// EndReasonAllAnswered marks auto-close on full participation.
	EndReasonAllAnswered EndReason = "all_answered"
	// EndReasonTimer marks expiry of the poll duration.
	EndReasonTimer EndReason = "timer"
)

// PollEnded announces the final tallies of a completed poll.
type PollEnded struct {
	Summary poll.Summary
	Reason  EndReason
}

// StudentCount announces the number of connected students.
type StudentCount struct {
	Count int
}

// StudentList announces the current student names in join order.
type StudentList struct {
	Names []string
}

// Kicked tells a single participant they were removed by a teacher.
type Kicked struct {
	Name string
	By   string
}

// ChatMessagePosted fans a new chat message out to the room.
type ChatMessagePosted struct {
	Message chat.Message
}

// ChatParticipants announces the room membership after a change.
type ChatParticipants struct {
	Names []string
}

// ChatUserKicked announces a chat-level removal.
type ChatUserKicked struct {
	UserID string
	Name   string
	By     string
}

func (QuestionStarted) event()   {}
func (LiveResults) event()       {}
func (PollEnded) event()         {}
func (StudentCount) event()      {}
func (StudentList) event()       {}
func (Kicked) event()            {}
func (ChatMessagePosted) event() {}
func (ChatParticipants) event()  {}
func (ChatUserKicked) event()    {}

// Broadcaster delivers events to live connections. Delivery to a connection
// whose transport already closed is a no-op. Implementations must not call
// back into the coordinator.
type Broadcaster interface {
	// Broadcast delivers the event to every live connection.
	Broadcast(event Event)
	// SendTo delivers the event to one connection, if still live.
	SendTo(connID string, event Event)
	// CloseConn force-closes a connection's transport.
	CloseConn(connID string)
}

// StatusReport is the get-status snapshot.
type StatusReport struct {
	Students       int
	PollActive     bool
	PollsCompleted int
	ServerTime     time.Time
	Uptime         time.Duration
}
