package cli

import (
	"errors"

	"github.com/vmatresu/claimd/internal/coordinator"
	"github.com/vmatresu/claimd/internal/store"
)

// Exit codes let scripts distinguish "nothing to do" and lost races from
// real failures.
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitNoWork   = 2
	ExitConflict = 3
	ExitDenied   = 4
)

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, coordinator.ErrNoWork):
		return ExitNoWork
	case store.IsConflict(err):
		return ExitConflict
	case errors.Is(err, coordinator.ErrNotOwner),
		errors.Is(err, coordinator.ErrTerminal),
		errors.Is(err, store.ErrNotFound):
		return ExitDenied
	default:
		return ExitFatal
	}
}
