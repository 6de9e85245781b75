// Package directory tracks the participants connected to a session.
//
// The directory enforces display-name uniqueness: a join that collides with
// a live participant gets a counter-suffixed name back, while a re-join over
// a stale or identical connection is an idempotent upsert. The directory is
// a plain data structure; the coordinator serializes all access.
package directory

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/livepoll/server/internal/platform/errors"
)

// Role identifies what a participant is allowed to do.
type Role int

const (
	// RoleUnspecified represents an invalid role value.
	RoleUnspecified Role = iota
	// RoleStudent may answer polls and chat.
	RoleStudent
	// RoleTeacher may start/end polls and kick participants.
	RoleTeacher
)

// ParseRole maps a wire role string to a Role.
func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "student":
		return RoleStudent, nil
	case "teacher":
		return RoleTeacher, nil
	default:
		return RoleUnspecified, apperrors.WithMetadata(apperrors.CodeRoleInvalid,
			"role must be student or teacher", map[string]string{"role": value})
	}
}

// String returns the wire representation of the role.
func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleTeacher:
		return "teacher"
	default:
		return "unspecified"
	}
}

// Participant is one connected user with a unique display name.
type Participant struct {
	Name     string
	Role     Role
	ConnID   string
	Answered bool
	JoinedAt time.Time
}

// Directory maps display names to participant records in insertion order.
type Directory struct {
	order  []string
	byName map[string]*Participant
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{byName: make(map[string]*Participant)}
}

// Join registers a participant and returns the final display name.
//
// If the requested name belongs to a record whose connection is the joining
// one, or whose connection is no longer live, the record is refreshed in
// place and keeps its name. Otherwise the name is disambiguated with a
// counter suffix. A connection that already holds a record under a different
// name is treated as renaming; the old record is dropped first.
func (d *Directory) Join(name string, role Role, connID string, live func(connID string) bool, now time.Time) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.New(apperrors.CodeNameRequired, "display name is required")
	}
	if role != RoleStudent && role != RoleTeacher {
		return "", apperrors.New(apperrors.CodeRoleInvalid, "role must be student or teacher")
	}

	if existing, ok := d.byName[name]; ok {
		stale := live != nil && !live(existing.ConnID)
		if existing.ConnID == connID || stale {
			existing.ConnID = connID
			existing.Role = role
			return existing.Name, nil
		}
	}

	if previous, ok := d.ByConn(connID); ok && previous.Name != name {
		d.Remove(previous.Name)
	} else if ok {
		// Same connection re-joining with its current name.
		return previous.Name, nil
	}

	final := name
	for i := 1; ; i++ {
		if _, taken := d.byName[final]; !taken {
			break
		}
		final = fmt.Sprintf("%s (%d)", name, i)
	}

	d.byName[final] = &Participant{
		Name:     final,
		Role:     role,
		ConnID:   connID,
		JoinedAt: now.UTC(),
	}
	d.order = append(d.order, final)
	return final, nil
}

// Get returns the participant registered under name.
func (d *Directory) Get(name string) (*Participant, bool) {
	p, ok := d.byName[name]
	return p, ok
}

// ByConn returns the participant associated with a connection.
func (d *Directory) ByConn(connID string) (*Participant, bool) {
	for _, name := range d.order {
		if p := d.byName[name]; p != nil && p.ConnID == connID {
			return p, true
		}
	}
	return nil, false
}

// Remove deletes the record under name, releasing the name for reuse.
func (d *Directory) Remove(name string) bool {
	if _, ok := d.byName[name]; !ok {
		return false
	}
	delete(d.byName, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveByConn deletes the record associated with a connection, if any.
func (d *Directory) RemoveByConn(connID string) (Participant, bool) {
	p, ok := d.ByConn(connID)
	if !ok {
		return Participant{}, false
	}
	removed := *p
	d.Remove(p.Name)
	return removed, true
}

// List returns a snapshot of all participants in insertion order.
func (d *Directory) List() []Participant {
	out := make([]Participant, 0, len(d.order))
	for _, name := range d.order {
		if p := d.byName[name]; p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// Students returns a snapshot of student participants in insertion order.
func (d *Directory) Students() []Participant {
	out := make([]Participant, 0, len(d.order))
	for _, name := range d.order {
		if p := d.byName[name]; p != nil && p.Role == RoleStudent {
			out = append(out, *p)
		}
	}
	return out
}

// StudentCount returns the number of student participants.
func (d *Directory) StudentCount() int {
	count := 0
	for _, name := range d.order {
		if p := d.byName[name]; p != nil && p.Role == RoleStudent {
			count++
		}
	}
	return count
}

// ResetAnswered clears every participant's answered flag for a new poll.
func (d *Directory) ResetAnswered() {
	for _, p := range d.byName {
		p.Answered = false
	}
}

// MarkAnswered sets the answered flag for the named participant.
func (d *Directory) MarkAnswered(name string) {
	if p, ok := d.byName[name]; ok {
		p.Answered = true
	}
}

// AllStudentsAnswered reports whether every current student has answered.
// An empty classroom never counts as complete.
func (d *Directory) AllStudentsAnswered() bool {
	students := 0
	for _, name := range d.order {
		p := d.byName[name]
		if p == nil || p.Role != RoleStudent {
			continue
		}
		students++
		if !p.Answered {
			return false
		}
	}
	return students > 0
}
