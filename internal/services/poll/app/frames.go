package server

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/livepoll/server/internal/chat"
	"github.com/livepoll/server/internal/coordinator"
	apperrors "github.com/livepoll/server/internal/platform/errors"
	"github.com/livepoll/server/internal/poll"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string            `json:"code"`
	Category  string            `json:"category"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

type joinPayload struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type joinedPayload struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type startPayload struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
}

type answerPayload struct {
	Option string `json:"option"`
}

type kickPayload struct {
	Name string `json:"name"`
}

type chatJoinPayload struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
}

type chatJoinedPayload struct {
	SessionID    string   `json:"session_id"`
	User         string   `json:"user"`
	Participants []string `json:"participants"`
}

type chatLeavePayload struct {
	SessionID string `json:"session_id,omitempty"`
	User      string `json:"user"`
}

type chatSendPayload struct {
	Message string `json:"message"`
}

type chatKickPayload struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name"`
	KickedBy  string `json:"kicked_by,omitempty"`
}

type ackPayload struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

type pollStatePayload struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	DurationMS    int64    `json:"duration_ms"`
	TimeRemaining int64    `json:"time_remaining"`
	StartedAt     string   `json:"started_at"`
}

type questionEnvelope struct {
	Poll pollStatePayload `json:"poll"`
}

type resultsPayload struct {
	Results          map[string]int `json:"results"`
	AnsweredStudents int            `json:"answered_students"`
	TotalStudents    int            `json:"total_students"`
	TimeRemaining    int64          `json:"time_remaining"`
}

type summaryPayload struct {
	ID               string         `json:"id"`
	Question         string         `json:"question"`
	Options          []string       `json:"options"`
	Results          map[string]int `json:"results"`
	TotalStudents    int            `json:"total_students"`
	AnsweredStudents int            `json:"answered_students"`
	StartedAt        string         `json:"started_at"`
	EndedAt          string         `json:"ended_at"`
}

type endedEnvelope struct {
	Poll   summaryPayload `json:"poll"`
	Reason string         `json:"reason"`
}

type countPayload struct {
	Count int `json:"count"`
}

type studentsPayload struct {
	Students []string `json:"students"`
}

type historyPayload struct {
	Polls []summaryPayload `json:"polls"`
}

type statusPayload struct {
	Students       int    `json:"students"`
	PollActive     bool   `json:"poll_active"`
	PollsCompleted int    `json:"polls_completed"`
	ServerTime     string `json:"server_time"`
	UptimeMS       int64  `json:"uptime_ms"`
}

type kickedPayload struct {
	Name string `json:"name"`
	By   string `json:"by"`
}

type messagePayload struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id,omitempty"`
}

type messageEnvelope struct {
	Message messagePayload `json:"message"`
}

type chatHistoryPayload struct {
	Messages []messagePayload `json:"messages"`
}

type participantsPayload struct {
	Participants []string `json:"participants"`
}

type chatKickedPayload struct {
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name"`
	KickedBy string `json:"kicked_by"`
}

func toPollStatePayload(state coordinator.PollState) pollStatePayload {
	return pollStatePayload{
		ID:            state.ID,
		Question:      state.Question,
		Options:       state.Options,
		DurationMS:    state.Duration.Milliseconds(),
		TimeRemaining: state.TimeRemaining.Milliseconds(),
		StartedAt:     state.StartedAt.Format(time.RFC3339),
	}
}

func toResultsPayload(results coordinator.LiveResults) resultsPayload {
	return resultsPayload{
		Results:          results.Results,
		AnsweredStudents: results.AnsweredStudents,
		TotalStudents:    results.TotalStudents,
		TimeRemaining:    results.TimeRemaining.Milliseconds(),
	}
}

func toSummaryPayload(summary poll.Summary) summaryPayload {
	return summaryPayload{
		ID:               summary.ID,
		Question:         summary.Question,
		Options:          summary.Options,
		Results:          summary.Results,
		TotalStudents:    summary.TotalStudents,
		AnsweredStudents: summary.AnsweredStudents,
		StartedAt:        summary.StartedAt.Format(time.RFC3339),
		EndedAt:          summary.EndedAt.Format(time.RFC3339),
	}
}

func toMessagePayload(msg chat.Message) messagePayload {
	return messagePayload{
		ID:        msg.ID,
		User:      msg.User,
		Text:      msg.Text,
		Timestamp: msg.Timestamp.Format(time.RFC3339),
		SessionID: msg.SessionID,
	}
}

func toMessagePayloads(messages []chat.Message) []messagePayload {
	out := make([]messagePayload, 0, len(messages))
	for _, msg := range messages {
		out = append(out, toMessagePayload(msg))
	}
	return out
}

func toStatusPayload(status coordinator.StatusReport) statusPayload {
	return statusPayload{
		Students:       status.Students,
		PollActive:     status.PollActive,
		PollsCompleted: status.PollsCompleted,
		ServerTime:     status.ServerTime.Format(time.RFC3339),
		UptimeMS:       status.Uptime.Milliseconds(),
	}
}

// eventFrame maps a coordinator event onto its wire frame. The switch is
// exhaustive over the closed event set.
func eventFrame(event coordinator.Event) wsFrame {
	switch e := event.(type) {
	case coordinator.QuestionStarted:
		return wsFrame{Type: "poll.question", Payload: mustJSON(questionEnvelope{Poll: toPollStatePayload(e.Poll)})}
	case coordinator.LiveResults:
		return wsFrame{Type: "poll.results", Payload: mustJSON(toResultsPayload(e))}
	case coordinator.PollEnded:
		return wsFrame{Type: "poll.ended", Payload: mustJSON(endedEnvelope{
			Poll:   toSummaryPayload(e.Summary),
			Reason: string(e.Reason),
		})}
	case coordinator.StudentCount:
		return wsFrame{Type: "poll.count", Payload: mustJSON(countPayload{Count: e.Count})}
	case coordinator.StudentList:
		return wsFrame{Type: "poll.students", Payload: mustJSON(studentsPayload{Students: e.Names})}
	case coordinator.Kicked:
		return wsFrame{Type: "poll.kicked", Payload: mustJSON(kickedPayload{Name: e.Name, By: e.By})}
	case coordinator.ChatMessagePosted:
		return wsFrame{Type: "chat.message", Payload: mustJSON(messageEnvelope{Message: toMessagePayload(e.Message)})}
	case coordinator.ChatParticipants:
		return wsFrame{Type: "chat.participants", Payload: mustJSON(participantsPayload{Participants: e.Names})}
	case coordinator.ChatUserKicked:
		return wsFrame{Type: "chat.user_kicked", Payload: mustJSON(chatKickedPayload{
			UserID:   e.UserID,
			UserName: e.Name,
			KickedBy: e.By,
		})}
	default:
		log.Printf("poll: no frame mapping for event %T", event)
		return wsFrame{Type: "poll.error", Payload: mustJSON(wsErrorEnvelope{Error: wsError{
			Code:     string(apperrors.CodeUnknown),
			Category: string(apperrors.CategoryInternal),
			Message:  "unmapped server event",
		}})}
	}
}

// errorFrameType picks the error frame family for a request frame type.
func errorFrameType(frameType string) string {
	if strings.HasPrefix(frameType, "chat.") {
		return "chat.error"
	}
	return "poll.error"
}

func writeWSError(peer *wsPeer, frameType string, requestID string, err error) error {
	code := apperrors.GetCode(err)
	return peer.writeFrame(wsFrame{
		Type:      errorFrameType(frameType),
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{Error: wsError{
			Code:      string(code),
			Category:  string(code.Category()),
			Message:   err.Error(),
			Retryable: false,
			Details:   apperrors.GetMetadata(err),
		}}),
	})
}

func writeWSErrorMessage(peer *wsPeer, frameType string, requestID string, code apperrors.Code, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      errorFrameType(frameType),
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{Error: wsError{
			Code:      string(code),
			Category:  string(code.Category()),
			Message:   message,
			Retryable: false,
		}}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
