package chat

import (
	"fmt"
	"testing"
	"time"

	apperrors "github.com/livepoll/server/internal/platform/errors"
)

var testTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func sequenceIDs() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("msg-%d", n), nil
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRoom()
	if !r.Join("Sam") {
		t.Fatal("first join should add the member")
	}
	if r.Join("Sam") {
		t.Fatal("second join should be a no-op")
	}
	if got := r.Members(); len(got) != 1 || got[0] != "Sam" {
		t.Fatalf("members = %v, want [Sam]", got)
	}
}

func TestLeaveKeepsMessages(t *testing.T) {
	r := NewRoom()
	r.Join("Sam")
	idgen := sequenceIDs()
	if _, err := r.Post("Sam", "hello", testTime, idgen); err != nil {
		t.Fatalf("post: %v", err)
	}

	if !r.Leave("Sam") {
		t.Fatal("leave should succeed")
	}
	if r.Leave("Sam") {
		t.Fatal("second leave should report absence")
	}
	if r.IsMember("Sam") {
		t.Fatal("Sam should no longer be a member")
	}

	history := r.History()
	if len(history) != 1 || history[0].User != "Sam" {
		t.Fatalf("history = %v, want Sam's message retained", history)
	}
}

func TestPostValidation(t *testing.T) {
	r := NewRoom()
	if _, err := r.Post("Sam", "   ", testTime, nil); !apperrors.IsCode(err, apperrors.CodeMessageEmpty) {
		t.Fatalf("empty text err = %v, want MESSAGE_EMPTY", err)
	}
	if _, err := r.Post("", "hi", testTime, nil); !apperrors.IsCode(err, apperrors.CodeNameRequired) {
		t.Fatalf("empty author err = %v, want NAME_REQUIRED", err)
	}
	if got := len(r.History()); got != 0 {
		t.Fatalf("rejected posts mutated the log: %d entries", got)
	}
}

func TestHistoryRoundTripOrder(t *testing.T) {
	r := NewRoom()
	r.SetSessionID("session-1")
	r.Join("Sam")
	r.Join("Ana")

	idgen := sequenceIDs()
	texts := []string{"first", "second", "third", "fourth"}
	authors := []string{"Sam", "Ana", "Sam", "Ana"}
	for i, text := range texts {
		msg, err := r.Post(authors[i], text, testTime.Add(time.Duration(i)*time.Second), idgen)
		if err != nil {
			t.Fatalf("post %q: %v", text, err)
		}
		if msg.SessionID != "session-1" {
			t.Fatalf("message session = %q, want session-1", msg.SessionID)
		}
	}

	history := r.History()
	if len(history) != len(texts) {
		t.Fatalf("history size = %d, want %d", len(history), len(texts))
	}
	for i, msg := range history {
		if msg.Text != texts[i] {
			t.Fatalf("history[%d] = %q, want %q", i, msg.Text, texts[i])
		}
	}
}

func TestSetSessionIDFirstValueWins(t *testing.T) {
	r := NewRoom()
	r.SetSessionID("  ")
	if r.SessionID() != "" {
		t.Fatal("blank session id should be ignored")
	}
	r.SetSessionID("session-1")
	r.SetSessionID("session-2")
	if r.SessionID() != "session-1" {
		t.Fatalf("session id = %q, want first value kept", r.SessionID())
	}
}

func TestMembersJoinOrder(t *testing.T) {
	r := NewRoom()
	for _, name := range []string{"Sam", "Ana", "Ben"} {
		r.Join(name)
	}
	r.Leave("Ana")
	r.Join("Cal")

	got := r.Members()
	want := []string{"Sam", "Ben", "Cal"}
	if len(got) != len(want) {
		t.Fatalf("members = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("members[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
