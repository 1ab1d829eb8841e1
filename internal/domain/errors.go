package domain

import "errors"

// Error taxonomy. Each sentinel maps to one process exit code at the CLI
// boundary; components wrap them with fmt.Errorf("...: %w", ...).
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrConnection        = errors.New("connection error")
	ErrCreation          = errors.New("backup creation error")
	ErrVerification      = errors.New("verification error")
	ErrIncompleteArchive = errors.New("incomplete WAL archive")
	ErrNotFound          = errors.New("not found")
	ErrLocked            = errors.New("operation already in progress")
)

// Exit codes for the backup command contract.
const (
	ExitOK            = 0
	ExitGeneral       = 1
	ExitConfiguration = 2
	ExitConnection    = 3
	ExitCreation      = 4
	ExitVerification  = 5
)

// ExitCodeFor maps an error to its contractual process exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrConnection):
		return ExitConnection
	case errors.Is(err, ErrVerification):
		return ExitVerification
	case errors.Is(err, ErrCreation):
		return ExitCreation
	default:
		return ExitGeneral
	}
}
