package cli

import (
	"errors"
	"fmt"

	"github.com/atinyakov/passe/internal/client/prompt"
	"github.com/atinyakov/passe/internal/models"
)

// Process exit codes. Each failure kind has its own code so scripts can
// tell them apart.
const (
	ExitOK                    = 0
	ExitInternal              = 1
	ExitUsage                 = 2
	ExitAlreadyExists         = 3
	ExitNotFound              = 4
	ExitSiteNotFound          = 5
	ExitDuplicateSite         = 6
	ExitInvalidName           = 7
	ExitInvalidState          = 8
	ExitDerivationUnavailable = 9
	ExitDerivationRejected    = 10
	ExitPersistence           = 11
)

var exitCodes = map[string]int{
	"AlreadyExists":         ExitAlreadyExists,
	"NotFound":              ExitNotFound,
	"SiteNotFound":          ExitSiteNotFound,
	"DuplicateSite":         ExitDuplicateSite,
	"InvalidName":           ExitInvalidName,
	"InvalidState":          ExitInvalidState,
	"DerivationUnavailable": ExitDerivationUnavailable,
	"DerivationRejected":    ExitDerivationRejected,
	"PersistenceFailure":    ExitPersistence,
}

// usageError reports a malformed command line.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ue *usageError
	if errors.As(err, &ue) || errors.Is(err, prompt.ErrInvalidChoice) {
		return ExitUsage
	}
	if code, ok := exitCodes[models.Kind(err)]; ok {
		return code
	}
	return ExitInternal
}
