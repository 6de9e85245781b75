// Package errors provides structured error handling for the poll coordinator.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Join errors
	CodeNameRequired Code = "NAME_REQUIRED"
	CodeRoleInvalid  Code = "ROLE_INVALID"

	// Poll lifecycle errors
	CodePollInvalid       Code = "POLL_INVALID"
	CodePollAlreadyActive Code = "POLL_ALREADY_ACTIVE"
	CodeNoActivePoll      Code = "NO_ACTIVE_POLL"

	// Answer errors
	CodeAlreadyAnswered Code = "ALREADY_ANSWERED"
	CodeOptionInvalid   Code = "OPTION_INVALID"

	// Chat errors
	CodeMessageEmpty  Code = "MESSAGE_EMPTY"
	CodeChatNotJoined Code = "CHAT_NOT_JOINED"

	// Authorization errors
	CodeForbidden Code = "FORBIDDEN"

	// Lookup errors
	CodeParticipantNotFound Code = "PARTICIPANT_NOT_FOUND"
	CodeNotFound            Code = "NOT_FOUND"

	// Transport errors
	CodeRateLimited Code = "RATE_LIMITED"
)

// Category is the coarse wire-level classification of an error code.
type Category string

const (
	// CategoryInvalidArgument marks malformed requests that never mutate state.
	CategoryInvalidArgument Category = "INVALID_ARGUMENT"
	// CategoryFailedPrecondition marks requests the current state disallows.
	CategoryFailedPrecondition Category = "FAILED_PRECONDITION"
	// CategoryForbidden marks policy violations by unauthorized roles.
	CategoryForbidden Category = "FORBIDDEN"
	// CategoryNotFound marks lookups of absent participants or resources.
	CategoryNotFound Category = "NOT_FOUND"
	// CategoryResourceExhausted marks clients exceeding transport limits.
	CategoryResourceExhausted Category = "RESOURCE_EXHAUSTED"
	// CategoryInternal marks unexpected failures.
	CategoryInternal Category = "INTERNAL"
)

// Category maps domain codes to wire categories for client responses.
func (c Code) Category() Category {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeNameRequired,
		CodeRoleInvalid,
		CodePollInvalid,
		CodeOptionInvalid,
		CodeMessageEmpty:
		return CategoryInvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodePollAlreadyActive,
		CodeNoActivePoll,
		CodeAlreadyAnswered:
		return CategoryFailedPrecondition

	// Forbidden - role policy violations
	case CodeForbidden,
		CodeChatNotJoined:
		return CategoryForbidden

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeParticipantNotFound:
		return CategoryNotFound

	// ResourceExhausted - transport limits
	case CodeRateLimited:
		return CategoryResourceExhausted

	default:
		return CategoryInternal
	}
}
