package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestGetCodeFromWrappedError(t *testing.T) {
	base := New(CodeAlreadyAnswered, "participant already answered")
	wrapped := fmt.Errorf("submit answer: %w", base)

	if got := GetCode(wrapped); got != CodeAlreadyAnswered {
		t.Fatalf("code = %q, want %q", got, CodeAlreadyAnswered)
	}
	if !IsCode(wrapped, CodeAlreadyAnswered) {
		t.Fatal("IsCode should match through wrapping")
	}
}

func TestGetCodeUnknownForPlainError(t *testing.T) {
	if got := GetCode(errors.New("boom")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeForbidden, "kick requires teacher role")
	b := New(CodeForbidden, "different message")
	if !errors.Is(a, b) {
		t.Fatal("errors with equal codes should match")
	}
	c := New(CodeNotFound, "no such student")
	if errors.Is(a, c) {
		t.Fatal("errors with different codes should not match")
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("encoder closed")
	err := Wrap(CodeUnknown, "broadcast failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause should be reachable")
	}
}

func TestCategoryMapping(t *testing.T) {
	tests := []struct {
		code Code
		want Category
	}{
		{CodePollInvalid, CategoryInvalidArgument},
		{CodeMessageEmpty, CategoryInvalidArgument},
		{CodePollAlreadyActive, CategoryFailedPrecondition},
		{CodeAlreadyAnswered, CategoryFailedPrecondition},
		{CodeNoActivePoll, CategoryFailedPrecondition},
		{CodeForbidden, CategoryForbidden},
		{CodeParticipantNotFound, CategoryNotFound},
		{CodeUnknown, CategoryInternal},
	}
	for _, tc := range tests {
		if got := tc.code.Category(); got != tc.want {
			t.Fatalf("category(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}
