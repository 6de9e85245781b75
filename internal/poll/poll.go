// Package poll defines the poll entity, its lifecycle, and live tallies.
//
// A poll owns the question, the ordered option labels, per-option vote
// counters, and the set of participant names that have answered. The package
// holds no locks; the coordinator serializes all access.
package poll

import (
	"strings"
	"time"

	"github.com/livepoll/server/internal/id"
	apperrors "github.com/livepoll/server/internal/platform/errors"
)

// Status describes the lifecycle state of a poll instance.
type Status int

const (
	// StatusUnspecified represents an invalid poll status value.
	StatusUnspecified Status = iota
	// StatusRunning indicates the poll is accepting answers.
	StatusRunning
	// StatusEnded indicates the poll has closed.
	StatusEnded
)

// DefaultDuration applies when a start request carries no duration.
const DefaultDuration = 60 * time.Second

// MaxDuration caps how long a single poll may run.
const MaxDuration = 10 * time.Minute

// Poll is a single question put to the connected students.
type Poll struct {
	ID        string
	Question  string
	Options   []string
	Duration  time.Duration
	StartedAt time.Time
	Status    Status

	votes    map[string]int
	answered map[string]struct{}
}

// CreateInput describes the metadata needed to start a poll.
type CreateInput struct {
	Question string
	Options  []string
	Duration time.Duration
}

// Create validates input and returns a running poll with zeroed counters.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (*Poll, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateInput(input)
	if err != nil {
		return nil, err
	}

	pollID, err := idGenerator()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "generate poll id", err)
	}

	votes := make(map[string]int, len(normalized.Options))
	for _, option := range normalized.Options {
		votes[option] = 0
	}

	return &Poll{
		ID:        pollID,
		Question:  normalized.Question,
		Options:   normalized.Options,
		Duration:  normalized.Duration,
		StartedAt: now().UTC(),
		Status:    StatusRunning,
		votes:     votes,
		answered:  make(map[string]struct{}),
	}, nil
}

// NormalizeCreateInput trims and validates poll input metadata.
// Blank options are dropped; at least two distinct options must remain.
func NormalizeCreateInput(input CreateInput) (CreateInput, error) {
	input.Question = strings.TrimSpace(input.Question)
	if input.Question == "" {
		return CreateInput{}, apperrors.New(apperrors.CodePollInvalid, "poll question is required")
	}

	options := make([]string, 0, len(input.Options))
	seen := make(map[string]struct{}, len(input.Options))
	for _, option := range input.Options {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		if _, dup := seen[option]; dup {
			return CreateInput{}, apperrors.WithMetadata(apperrors.CodePollInvalid,
				"poll options must be distinct", map[string]string{"option": option})
		}
		seen[option] = struct{}{}
		options = append(options, option)
	}
	if len(options) < 2 {
		return CreateInput{}, apperrors.New(apperrors.CodePollInvalid, "poll needs at least two options")
	}
	input.Options = options

	if input.Duration <= 0 {
		input.Duration = DefaultDuration
	}
	if input.Duration > MaxDuration {
		input.Duration = MaxDuration
	}
	return input, nil
}

// RecordAnswer counts a vote for option by the named participant.
// The second submission from the same name is rejected regardless of option.
func (p *Poll) RecordAnswer(name string, option string) error {
	if p.Status != StatusRunning {
		return apperrors.New(apperrors.CodeNoActivePoll, "poll is not running")
	}
	if _, done := p.answered[name]; done {
		return apperrors.WithMetadata(apperrors.CodeAlreadyAnswered,
			"participant already answered", map[string]string{"name": name})
	}
	if _, ok := p.votes[option]; !ok {
		return apperrors.WithMetadata(apperrors.CodeOptionInvalid,
			"option is not part of this poll", map[string]string{"option": option})
	}

	p.votes[option]++
	p.answered[name] = struct{}{}
	return nil
}

// HasAnswered reports whether the named participant has answered.
func (p *Poll) HasAnswered(name string) bool {
	_, ok := p.answered[name]
	return ok
}

// AnsweredCount returns the number of distinct participants that answered.
func (p *Poll) AnsweredCount() int {
	return len(p.answered)
}

// Results returns a copy of the per-option vote counters.
// Every configured option is present, at zero or above.
func (p *Poll) Results() map[string]int {
	results := make(map[string]int, len(p.votes))
	for option, count := range p.votes {
		results[option] = count
	}
	return results
}

// Remaining returns how much poll time is left at the given instant.
// It never returns a negative duration.
func (p *Poll) Remaining(now time.Time) time.Duration {
	remaining := p.Duration - now.Sub(p.StartedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Summary is the archived record of a completed poll.
type Summary struct {
	ID               string
	Question         string
	Options          []string
	Results          map[string]int
	TotalStudents    int
	AnsweredStudents int
	StartedAt        time.Time
	EndedAt          time.Time
}

// Finalize closes the poll and returns its archive record.
// Calling Finalize on an ended poll returns the same final tallies.
func (p *Poll) Finalize(endedAt time.Time, totalStudents int) Summary {
	p.Status = StatusEnded
	return Summary{
		ID:               p.ID,
		Question:         p.Question,
		Options:          append([]string(nil), p.Options...),
		Results:          p.Results(),
		TotalStudents:    totalStudents,
		AnsweredStudents: len(p.answered),
		StartedAt:        p.StartedAt,
		EndedAt:          endedAt.UTC(),
	}
}
