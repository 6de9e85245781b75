package poll

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/livepoll/server/internal/platform/errors"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func staticID(value string) func() (string, error) {
	return func() (string, error) { return value, nil }
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateInput
		code  apperrors.Code
	}{
		{
			name:  "empty question",
			input: CreateInput{Question: "  ", Options: []string{"Red", "Blue"}},
			code:  apperrors.CodePollInvalid,
		},
		{
			name:  "single option",
			input: CreateInput{Question: "Color?", Options: []string{"Red"}},
			code:  apperrors.CodePollInvalid,
		},
		{
			name:  "blank options dropped below minimum",
			input: CreateInput{Question: "Color?", Options: []string{"Red", "  ", ""}},
			code:  apperrors.CodePollInvalid,
		},
		{
			name:  "duplicate options",
			input: CreateInput{Question: "Color?", Options: []string{"Red", "Red"}},
			code:  apperrors.CodePollInvalid,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Create(tc.input, nil, nil)
			if !apperrors.IsCode(err, tc.code) {
				t.Fatalf("err = %v, want code %q", err, tc.code)
			}
		})
	}
}

func TestCreateInitializesZeroCounters(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := Create(CreateInput{
		Question: " Color? ",
		Options:  []string{" Red ", "Blue"},
		Duration: 30 * time.Second,
	}, fixedClock(started), staticID("poll-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if p.ID != "poll-1" {
		t.Fatalf("id = %q, want %q", p.ID, "poll-1")
	}
	if p.Question != "Color?" {
		t.Fatalf("question = %q, want trimmed", p.Question)
	}
	if p.Status != StatusRunning {
		t.Fatalf("status = %v, want running", p.Status)
	}
	results := p.Results()
	if len(results) != 2 || results["Red"] != 0 || results["Blue"] != 0 {
		t.Fatalf("results = %v, want zeroed Red/Blue", results)
	}
	if !p.StartedAt.Equal(started) {
		t.Fatalf("started at = %v, want %v", p.StartedAt, started)
	}
}

func TestCreateDefaultsDuration(t *testing.T) {
	p, err := Create(CreateInput{Question: "Color?", Options: []string{"Red", "Blue"}}, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Duration != DefaultDuration {
		t.Fatalf("duration = %v, want default %v", p.Duration, DefaultDuration)
	}
}

func TestCreateCapsDuration(t *testing.T) {
	p, err := Create(CreateInput{
		Question: "Color?",
		Options:  []string{"Red", "Blue"},
		Duration: time.Hour,
	}, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Duration != MaxDuration {
		t.Fatalf("duration = %v, want cap %v", p.Duration, MaxDuration)
	}
}

func TestRecordAnswer(t *testing.T) {
	p := mustCreate(t)

	if err := p.RecordAnswer("Sam", "Red"); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if !p.HasAnswered("Sam") {
		t.Fatal("Sam should be marked as answered")
	}
	if got := p.Results()["Red"]; got != 1 {
		t.Fatalf("Red votes = %d, want 1", got)
	}

	err := p.RecordAnswer("Sam", "Blue")
	if !apperrors.IsCode(err, apperrors.CodeAlreadyAnswered) {
		t.Fatalf("second answer err = %v, want ALREADY_ANSWERED", err)
	}
	if got := p.Results()["Blue"]; got != 0 {
		t.Fatalf("rejected answer mutated state: Blue votes = %d", got)
	}
}

func TestRecordAnswerUnknownOption(t *testing.T) {
	p := mustCreate(t)
	err := p.RecordAnswer("Sam", "Green")
	if !apperrors.IsCode(err, apperrors.CodeOptionInvalid) {
		t.Fatalf("err = %v, want OPTION_INVALID", err)
	}
	if p.HasAnswered("Sam") {
		t.Fatal("rejected answer should not mark participant as answered")
	}
}

func TestRecordAnswerAfterEnd(t *testing.T) {
	p := mustCreate(t)
	p.Finalize(p.StartedAt.Add(time.Minute), 3)
	err := p.RecordAnswer("Sam", "Red")
	if !apperrors.IsCode(err, apperrors.CodeNoActivePoll) {
		t.Fatalf("err = %v, want NO_ACTIVE_POLL", err)
	}
}

func TestTallySumMatchesAnsweredCount(t *testing.T) {
	p := mustCreate(t)
	names := []string{"A", "B", "C", "D"}
	options := []string{"Red", "Blue", "Red", "Blue"}
	for i, name := range names {
		if err := p.RecordAnswer(name, options[i]); err != nil {
			t.Fatalf("answer %s: %v", name, err)
		}
		sum := 0
		for _, count := range p.Results() {
			if count < 0 {
				t.Fatalf("negative counter after %s", name)
			}
			sum += count
		}
		if sum != p.AnsweredCount() {
			t.Fatalf("tally sum %d != answered count %d", sum, p.AnsweredCount())
		}
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := Create(CreateInput{
		Question: "Color?",
		Options:  []string{"Red", "Blue"},
		Duration: 30 * time.Second,
	}, fixedClock(started), staticID("poll-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if got := p.Remaining(started.Add(10 * time.Second)); got != 20*time.Second {
		t.Fatalf("remaining = %v, want 20s", got)
	}
	if got := p.Remaining(started.Add(time.Hour)); got != 0 {
		t.Fatalf("remaining = %v, want 0", got)
	}
}

func TestFinalizeArchivesTallies(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := Create(CreateInput{
		Question: "Color?",
		Options:  []string{"Red", "Blue"},
		Duration: 30 * time.Second,
	}, fixedClock(started), staticID("poll-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := p.RecordAnswer("Sam", "Red"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	ended := started.Add(30 * time.Second)
	summary := p.Finalize(ended, 1)

	if p.Status != StatusEnded {
		t.Fatalf("status = %v, want ended", p.Status)
	}
	if summary.Results["Red"] != 1 || summary.Results["Blue"] != 0 {
		t.Fatalf("summary results = %v, want Red:1 Blue:0", summary.Results)
	}
	if summary.AnsweredStudents != 1 || summary.TotalStudents != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", summary.AnsweredStudents, summary.TotalStudents)
	}
	if !summary.EndedAt.Equal(ended) {
		t.Fatalf("ended at = %v, want %v", summary.EndedAt, ended)
	}
}

func TestCreateSurfacesIDGeneratorFailure(t *testing.T) {
	boom := errors.New("entropy exhausted")
	_, err := Create(CreateInput{
		Question: "Color?",
		Options:  []string{"Red", "Blue"},
	}, nil, func() (string, error) { return "", boom })
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped id failure", err)
	}
}

func mustCreate(t *testing.T) *Poll {
	t.Helper()
	p, err := Create(CreateInput{
		Question: "Color?",
		Options:  []string{"Red", "Blue"},
		Duration: 30 * time.Second,
	}, nil, nil)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	return p
}
