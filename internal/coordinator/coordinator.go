// Package coordinator is the authoritative session core.
//
// One coordinator instance owns the participant directory, the poll engine,
// the shared chat room, and poll history. Every mutation runs under a single
// mutex so events are handled as discrete, serialized steps in arrival
// order; timer expiry re-enters through the same lock, which makes the
// close-trigger tie-break well defined. Broadcasts are issued while the lock
// is held, so per-recipient emission order matches event-processing order.
package coordinator

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/livepoll/server/internal/chat"
	"github.com/livepoll/server/internal/directory"
	"github.com/livepoll/server/internal/id"
	apperrors "github.com/livepoll/server/internal/platform/errors"
	"github.com/livepoll/server/internal/poll"
)

// Coordinator serializes all session state transitions.
type Coordinator struct {
	mu          sync.Mutex
	broadcaster Broadcaster

	dir       *directory.Directory
	room      *chat.Room
	current   *poll.Poll
	timer     *time.Timer
	history   []poll.Summary
	conns     map[string]struct{}
	chatNames map[string]string // connID -> chat display name

	startedAt   time.Time
	clock       func() time.Time
	idGenerator func() (string, error)
}

// New creates a coordinator that pushes events through the broadcaster.
func New(broadcaster Broadcaster) *Coordinator {
	c := &Coordinator{
		broadcaster: broadcaster,
		dir:         directory.New(),
		room:        chat.NewRoom(),
		conns:       make(map[string]struct{}),
		chatNames:   make(map[string]string),
		clock:       time.Now,
		idGenerator: id.NewID,
	}
	c.startedAt = c.clock().UTC()
	return c
}

// Connect registers a live transport connection.
func (c *Coordinator) Connect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[connID] = struct{}{}
}

// Disconnect releases everything associated with a connection: its
// participant record, its chat membership, and its name. Other clients see
// a count/list update, not a kick.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.conns, connID)

	removed, hadParticipant := c.dir.RemoveByConn(connID)
	if hadParticipant && removed.Role == directory.RoleStudent {
		c.broadcastStudentsLocked()
	}

	if name, ok := c.chatNames[connID]; ok {
		delete(c.chatNames, connID)
		if c.room.Leave(name) {
			c.broadcaster.Broadcast(ChatParticipants{Names: c.room.Members()})
		}
	}

	// A departed holdout may complete the running poll.
	if hadParticipant {
		c.maybeCompleteLocked()
	}
}

// Join registers a participant for a connection and returns the final
// display name, which may be disambiguated. Re-joins over the same or a
// stale connection are idempotent upserts. A teacher joining without a name
// gets a default one.
func (c *Coordinator) Join(connID string, name string, role directory.Role) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = strings.TrimSpace(name)
	if role == directory.RoleTeacher && name == "" {
		name = "Teacher"
	}

	final, err := c.dir.Join(name, role, connID, c.isLiveLocked, c.clock())
	if err != nil {
		return "", err
	}

	if role == directory.RoleStudent {
		c.broadcastStudentsLocked()
		// Late joiners see the running question immediately.
		if c.current != nil {
			c.broadcaster.SendTo(connID, QuestionStarted{Poll: c.pollStateLocked()})
		}
	}
	return final, nil
}

// StartPoll transitions Idle -> Running. Only teachers may start polls, and
// only one poll can run at a time.
func (c *Coordinator) StartPoll(connID string, question string, options []string, duration time.Duration) (PollState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	requester, ok := c.dir.ByConn(connID)
	if !ok || requester.Role != directory.RoleTeacher {
		return PollState{}, apperrors.New(apperrors.CodeForbidden, "starting a poll requires the teacher role")
	}
	if c.current != nil {
		return PollState{}, apperrors.New(apperrors.CodePollAlreadyActive, "a poll is already running")
	}

	created, err := poll.Create(poll.CreateInput{
		Question: question,
		Options:  options,
		Duration: duration,
	}, c.clock, c.idGenerator)
	if err != nil {
		return PollState{}, err
	}

	c.current = created
	c.dir.ResetAnswered()

	pollID := created.ID
	c.timer = time.AfterFunc(created.Duration, func() {
		c.expirePoll(pollID)
	})

	state := c.pollStateLocked()
	c.broadcaster.Broadcast(QuestionStarted{Poll: state})
	return state, nil
}

// SubmitAnswer counts a vote for the participant bound to the connection
// and fans the live tallies out to everyone. When the last student answers,
// the poll auto-closes.
func (c *Coordinator) SubmitAnswer(connID string, option string) (LiveResults, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	participant, ok := c.dir.ByConn(connID)
	if !ok {
		return LiveResults{}, apperrors.New(apperrors.CodeParticipantNotFound, "join before answering")
	}
	if c.current == nil {
		return LiveResults{}, apperrors.New(apperrors.CodeNoActivePoll, "no poll is running")
	}

	if err := c.current.RecordAnswer(participant.Name, option); err != nil {
		return LiveResults{}, err
	}
	c.dir.MarkAnswered(participant.Name)

	results := c.liveResultsLocked()
	c.broadcaster.Broadcast(results)
	c.maybeCompleteLocked()
	return results, nil
}

// EndPoll transitions Running -> Ended on explicit teacher request.
func (c *Coordinator) EndPoll(connID string) (poll.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	requester, ok := c.dir.ByConn(connID)
	if !ok || requester.Role != directory.RoleTeacher {
		return poll.Summary{}, apperrors.New(apperrors.CodeForbidden, "ending a poll requires the teacher role")
	}
	if c.current == nil {
		return poll.Summary{}, apperrors.New(apperrors.CodeNoActivePoll, "no poll is running")
	}
	return c.endPollLocked(EndReasonTeacher), nil
}

// expirePoll is the timer-injected close trigger. It no-ops when the poll
// instance already ended through another trigger.
func (c *Coordinator) expirePoll(pollID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.ID != pollID {
		return
	}
	c.endPollLocked(EndReasonTimer)
}

// Kick forcibly removes a participant. Teacher-only. The victim gets a kick
// notification before their connection is closed; everyone else sees the
// updated roster.
func (c *Coordinator) Kick(connID string, targetName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	requester, ok := c.dir.ByConn(connID)
	if !ok || requester.Role != directory.RoleTeacher {
		return apperrors.New(apperrors.CodeForbidden, "kicking requires the teacher role")
	}
	target, ok := c.dir.Get(targetName)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound,
			"participant is not connected", map[string]string{"name": targetName})
	}

	victimConn := target.ConnID
	victimRole := target.Role
	c.dir.Remove(targetName)

	// Cascade into chat membership.
	if name, ok := c.chatNames[victimConn]; ok {
		delete(c.chatNames, victimConn)
		if c.room.Leave(name) {
			c.broadcaster.Broadcast(ChatParticipants{Names: c.room.Members()})
		}
	} else if c.room.Leave(targetName) {
		c.broadcaster.Broadcast(ChatParticipants{Names: c.room.Members()})
	}

	if victimRole == directory.RoleStudent {
		c.broadcastStudentsLocked()
	}

	c.broadcaster.SendTo(victimConn, Kicked{Name: targetName, By: requester.Name})
	c.broadcaster.CloseConn(victimConn)

	c.maybeCompleteLocked()
	return nil
}

// CurrentResults returns the live tallies of the running poll.
func (c *Coordinator) CurrentResults() (LiveResults, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return LiveResults{}, apperrors.New(apperrors.CodeNoActivePoll, "no poll is running")
	}
	return c.liveResultsLocked(), nil
}

// StudentNames returns the connected students in join order.
func (c *Coordinator) StudentNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studentNamesLocked()
}

// PastPolls returns the archive of completed polls, oldest first.
func (c *Coordinator) PastPolls() []poll.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]poll.Summary(nil), c.history...)
}

// Status returns an operational snapshot of the session.
func (c *Coordinator) Status() StatusReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock().UTC()
	return StatusReport{
		Students:       c.dir.StudentCount(),
		PollActive:     c.current != nil,
		PollsCompleted: len(c.history),
		ServerTime:     now,
		Uptime:         now.Sub(c.startedAt),
	}
}

// JoinChat adds the user to the shared room and returns the full message
// history plus current membership. Re-joining refreshes without duplicating.
func (c *Coordinator) JoinChat(connID string, sessionID string, user string) ([]chat.Message, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	user = strings.TrimSpace(user)
	c.room.SetSessionID(sessionID)
	joined := c.room.Join(user)
	if !joined && !c.room.IsMember(user) {
		return nil, nil, apperrors.New(apperrors.CodeNameRequired, "chat user name is required")
	}
	c.chatNames[connID] = user

	if joined {
		c.broadcaster.Broadcast(ChatParticipants{Names: c.room.Members()})
	}
	return c.room.History(), c.room.Members(), nil
}

// LeaveChat removes the connection's user from the room.
func (c *Coordinator) LeaveChat(connID string, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := user
	if stored, ok := c.chatNames[connID]; ok {
		name = stored
	}
	delete(c.chatNames, connID)
	if c.room.Leave(name) {
		c.broadcaster.Broadcast(ChatParticipants{Names: c.room.Members()})
	}
}

// PostChat appends a message to the room log and fans it out. The sender
// must have joined the chat room first.
func (c *Coordinator) PostChat(connID string, text string) (chat.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name, ok := c.chatNames[connID]
	if !ok || !c.room.IsMember(name) {
		return chat.Message{}, apperrors.New(apperrors.CodeChatNotJoined, "join the chat room before sending")
	}

	msg, err := c.room.Post(name, text, c.clock(), c.idGenerator)
	if err != nil {
		return chat.Message{}, err
	}
	c.broadcaster.Broadcast(ChatMessagePosted{Message: msg})
	return msg, nil
}

// KickChatUser removes a user from chat membership only. Teacher-only.
// The target's poll participation, and their prior messages, are untouched.
func (c *Coordinator) KickChatUser(connID string, userID string, userName string, kickedBy string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	requester, ok := c.dir.ByConn(connID)
	if !ok || requester.Role != directory.RoleTeacher {
		return apperrors.New(apperrors.CodeForbidden, "kicking a chat user requires the teacher role")
	}
	if !c.room.Leave(userName) {
		return apperrors.WithMetadata(apperrors.CodeNotFound,
			"user is not in the chat room", map[string]string{"name": userName})
	}

	by := kickedBy
	if by == "" {
		by = requester.Name
	}
	for id, name := range c.chatNames {
		if name == userName {
			delete(c.chatNames, id)
		}
	}
	c.broadcaster.Broadcast(ChatUserKicked{UserID: userID, Name: userName, By: by})
	c.broadcaster.Broadcast(ChatParticipants{Names: c.room.Members()})
	return nil
}

// endPollLocked archives the poll, clears current state, cancels the timer,
// and announces the final tallies. The first trigger wins; callers must
// verify a poll is running.
func (c *Coordinator) endPollLocked(reason EndReason) poll.Summary {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	summary := c.current.Finalize(c.clock(), c.dir.StudentCount())
	c.history = append(c.history, summary)
	c.current = nil

	log.Printf("poll ended id=%s reason=%s answered=%d/%d",
		summary.ID, reason, summary.AnsweredStudents, summary.TotalStudents)
	c.broadcaster.Broadcast(PollEnded{Summary: summary, Reason: reason})
	return summary
}

// maybeCompleteLocked auto-closes the running poll once every remaining
// student has answered.
func (c *Coordinator) maybeCompleteLocked() {
	if c.current == nil {
		return
	}
	if c.dir.AllStudentsAnswered() {
		c.endPollLocked(EndReasonAllAnswered)
	}
}

func (c *Coordinator) isLiveLocked(connID string) bool {
	_, ok := c.conns[connID]
	return ok
}

func (c *Coordinator) pollStateLocked() PollState {
	return PollState{
		ID:            c.current.ID,
		Question:      c.current.Question,
		Options:       append([]string(nil), c.current.Options...),
		Duration:      c.current.Duration,
		TimeRemaining: c.current.Remaining(c.clock()),
		StartedAt:     c.current.StartedAt,
	}
}

func (c *Coordinator) liveResultsLocked() LiveResults {
	return LiveResults{
		Results:          c.current.Results(),
		AnsweredStudents: c.current.AnsweredCount(),
		TotalStudents:    c.dir.StudentCount(),
		TimeRemaining:    c.current.Remaining(c.clock()),
	}
}

func (c *Coordinator) studentNamesLocked() []string {
	students := c.dir.Students()
	names := make([]string, 0, len(students))
	for _, s := range students {
		names = append(names, s.Name)
	}
	return names
}

func (c *Coordinator) broadcastStudentsLocked() {
	c.broadcaster.Broadcast(StudentCount{Count: c.dir.StudentCount()})
	c.broadcaster.Broadcast(StudentList{Names: c.studentNamesLocked()})
}
