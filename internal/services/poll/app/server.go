// Package server hosts the poll HTTP/WebSocket process.
//
// The transport owns connection IDs, frame decoding, and reply writing; all
// session semantics live in the coordinator. Broadcasts are pushed by the
// coordinator while it holds its state lock, so a client always observes
// them before the direct reply to the request that caused them.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/livepoll/server/internal/coordinator"
	"github.com/livepoll/server/internal/directory"
	"github.com/livepoll/server/internal/id"
	apperrors "github.com/livepoll/server/internal/platform/errors"
	"github.com/livepoll/server/internal/platform/timeouts"
	"go.opentelemetry.io/otel"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxMessageBodyRunes = 2000
	maxNameRunes        = 64
)

// Config defines the inputs for the poll transport boundary.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the poll HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// NewHandler creates poll routes backed by a fresh coordinator. Used by
// tests and embedded setups.
func NewHandler() http.Handler {
	hub := newConnHub()
	return newHandler(hub, coordinator.New(hub))
}

func newHandler(hub *connHub, coord *coordinator.Coordinator) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, hub, coord)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, hub *connHub, coord *coordinator.Coordinator) {
	defer func() {
		_ = conn.Close()
	}()

	connID, err := id.NewID()
	if err != nil {
		log.Printf("poll: assign connection id failed: %v", err)
		return
	}

	peer := newWSPeer(connID, conn)
	hub.add(peer)
	coord.Connect(connID)
	defer func() {
		hub.remove(connID)
		coord.Disconnect(connID)
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSErrorMessage(peer, "", "", apperrors.CodeUnknown, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeRateLimited, "rate limit exceeded")
			return
		}

		handleFrame(ctx, peer, coord, frame)
	}
}

func handleFrame(ctx context.Context, peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	switch frame.Type {
	case "poll.join":
		frameCtx, span := otel.Tracer("poll.ws").Start(ctx, "ws.poll.join")
		handleJoinFrame(frameCtx, peer, coord, frame)
		span.End()
	case "poll.start":
		frameCtx, span := otel.Tracer("poll.ws").Start(ctx, "ws.poll.start")
		handleStartFrame(frameCtx, peer, coord, frame)
		span.End()
	case "poll.answer":
		frameCtx, span := otel.Tracer("poll.ws").Start(ctx, "ws.poll.answer")
		handleAnswerFrame(frameCtx, peer, coord, frame)
		span.End()
	case "poll.end":
		frameCtx, span := otel.Tracer("poll.ws").Start(ctx, "ws.poll.end")
		handleEndFrame(frameCtx, peer, coord, frame)
		span.End()
	case "poll.kick":
		frameCtx, span := otel.Tracer("poll.ws").Start(ctx, "ws.poll.kick")
		handleKickFrame(frameCtx, peer, coord, frame)
		span.End()
	case "poll.results.get":
		handleResultsGetFrame(peer, coord, frame)
	case "poll.students.get":
		handleStudentsGetFrame(peer, coord, frame)
	case "poll.history.get":
		handleHistoryGetFrame(peer, coord, frame)
	case "poll.status.get":
		handleStatusGetFrame(peer, coord, frame)
	case "chat.join":
		handleChatJoinFrame(peer, coord, frame)
	case "chat.leave":
		handleChatLeaveFrame(peer, coord, frame)
	case "chat.send":
		handleChatSendFrame(peer, coord, frame)
	case "chat.kick":
		handleChatKickFrame(peer, coord, frame)
	default:
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "unsupported frame type")
	}
}

func handleJoinFrame(_ context.Context, peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "invalid join payload")
		return
	}
	if utf8.RuneCountInString(payload.Name) > maxNameRunes {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeNameRequired,
			fmt.Sprintf("name must be at most %d characters", maxNameRunes))
		return
	}

	role, err := directory.ParseRole(payload.Role)
	if err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}

	final, err := coord.Join(peer.connID, payload.Name, role)
	if err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}

	log.Printf("poll: joined conn=%s name=%q role=%s", peer.connID, final, role)
	_ = peer.writeFrame(wsFrame{
		Type:      "poll.joined",
		RequestID: frame.RequestID,
		Payload:   mustJSON(joinedPayload{Name: final, Role: role.String()}),
	})
}

func handleStartFrame(_ context.Context, peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	var payload startPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "invalid start payload")
		return
	}

	duration := time.Duration(payload.DurationSeconds) * time.Second
	state, err := coord.StartPoll(peer.connID, payload.Question, payload.Options, duration)
	if err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}

	log.Printf("poll: started id=%s question=%q options=%d duration=%s",
		state.ID, state.Question, len(state.Options), state.Duration)
	_ = peer.writeFrame(wsFrame{
		Type:      "poll.started",
		RequestID: frame.RequestID,
		Payload:   mustJSON(questionEnvelope{Poll: toPollStatePayload(state)}),
	})
}

func handleAnswerFrame(_ context.Context, peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	var payload answerPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "invalid answer payload")
		return
	}

	results, err := coord.SubmitAnswer(peer.connID, payload.Option)
	if err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}

	_ = peer.writeFrame(wsFrame{
		Type:      "poll.answered",
		RequestID: frame.RequestID,
		Payload:   mustJSON(toResultsPayload(results)),
	})
}

func handleEndFrame(_ context.Context, peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	summary, err := coord.EndPoll(peer.connID)
	if err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}

	_ = peer.writeFrame(wsFrame{
		Type:      "poll.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(ackPayload{Status: "ok", ID: summary.ID}),
	})
}

func handleKickFrame(_ context.Context, peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	var payload kickPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "invalid kick payload")
		return
	}

	if err := coord.Kick(peer.connID, strings.TrimSpace(payload.Name)); err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}

	log.Printf("poll: kicked name=%q by conn=%s", payload.Name, peer.connID)
	_ = peer.writeFrame(wsFrame{
		Type:      "poll.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(ackPayload{Status: "ok"}),
	})
}

func handleResultsGetFrame(peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	results, err := coord.CurrentResults()
	if err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}
	_ = peer.writeFrame(wsFrame{
		Type:      "poll.results",
		RequestID: frame.RequestID,
		Payload:   mustJSON(toResultsPayload(results)),
	})
}

func handleStudentsGetFrame(peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	_ = peer.writeFrame(wsFrame{
		Type:      "poll.students",
		RequestID: frame.RequestID,
		Payload:   mustJSON(studentsPayload{Students: coord.StudentNames()}),
	})
}

func handleHistoryGetFrame(peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	past := coord.PastPolls()
	polls := make([]summaryPayload, 0, len(past))
	for _, summary := range past {
		polls = append(polls, toSummaryPayload(summary))
	}
	_ = peer.writeFrame(wsFrame{
		Type:      "poll.history",
		RequestID: frame.RequestID,
		Payload:   mustJSON(historyPayload{Polls: polls}),
	})
}

func handleStatusGetFrame(peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	_ = peer.writeFrame(wsFrame{
		Type:      "server.status",
		RequestID: frame.RequestID,
		Payload:   mustJSON(toStatusPayload(coord.Status())),
	})
}

func handleChatJoinFrame(peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	var payload chatJoinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "invalid chat join payload")
		return
	}
	if utf8.RuneCountInString(payload.User) > maxNameRunes {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeNameRequired,
			fmt.Sprintf("user must be at most %d characters", maxNameRunes))
		return
	}

	history, members, err := coord.JoinChat(peer.connID, payload.SessionID, payload.User)
	if err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}

	_ = peer.writeFrame(wsFrame{
		Type:      "chat.joined",
		RequestID: frame.RequestID,
		Payload: mustJSON(chatJoinedPayload{
			SessionID:    payload.SessionID,
			User:         strings.TrimSpace(payload.User),
			Participants: members,
		}),
	})
	_ = peer.writeFrame(wsFrame{
		Type:    "chat.history",
		Payload: mustJSON(chatHistoryPayload{Messages: toMessagePayloads(history)}),
	})
}

func handleChatLeaveFrame(peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	var payload chatLeavePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "invalid chat leave payload")
		return
	}

	coord.LeaveChat(peer.connID, strings.TrimSpace(payload.User))
	_ = peer.writeFrame(wsFrame{
		Type:      "chat.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(ackPayload{Status: "ok"}),
	})
}

func handleChatSendFrame(peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	var payload chatSendPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "invalid chat send payload")
		return
	}
	if utf8.RuneCountInString(payload.Message) > maxMessageBodyRunes {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeMessageEmpty,
			fmt.Sprintf("message must be at most %d characters", maxMessageBodyRunes))
		return
	}

	msg, err := coord.PostChat(peer.connID, payload.Message)
	if err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}

	_ = peer.writeFrame(wsFrame{
		Type:      "chat.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(ackPayload{Status: "ok", ID: msg.ID}),
	})
}

func handleChatKickFrame(peer *wsPeer, coord *coordinator.Coordinator, frame wsFrame) {
	var payload chatKickPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSErrorMessage(peer, frame.Type, frame.RequestID, apperrors.CodeUnknown, "invalid chat kick payload")
		return
	}

	err := coord.KickChatUser(peer.connID, payload.UserID, strings.TrimSpace(payload.UserName), strings.TrimSpace(payload.KickedBy))
	if err != nil {
		_ = writeWSError(peer, frame.Type, frame.RequestID, err)
		return
	}

	_ = peer.writeFrame(wsFrame{
		Type:      "chat.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(ackPayload{Status: "ok"}),
	})
}

// NewServer builds a configured poll server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
	}, nil
}

// Run creates and serves a poll server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init poll server: %w", err)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve poll: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("poll server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("poll server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
