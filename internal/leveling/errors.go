package leveling

import "questbot.io/questbot/pkg/errors"

var (
	// ErrPermission means the bot lacks the platform permission for a mutation.
	ErrPermission = errors.New("missing platform permission")
	// ErrNotFound means a member, role, message or channel no longer exists on the platform.
	ErrNotFound = errors.New("platform object not found")

	ErrNotOptedIn          = errors.New("member has not opted in")
	ErrQuestNotFound       = errors.New("quest not found")
	ErrInvalidAmount       = errors.New("invalid xp amount")
	ErrInvalidRole         = errors.New("role cannot carry xp")
	ErrInvalidQuest        = errors.New("quest needs a title")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	ErrCancelled           = errors.New("cancelled")
)

// transient reports whether err may succeed when retried.
func transient(err error) bool {
	return err != nil && !errors.Is(err, ErrPermission) && !errors.Is(err, ErrNotFound)
}
