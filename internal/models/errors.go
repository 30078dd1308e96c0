package models

import "errors"

// Failure kinds returned by the registry, the gateway and the session.
// Callers wrap them with fmt.Errorf("...: %w") and classify with errors.Is.
var (
	ErrAlreadyExists         = errors.New("identity already exists")
	ErrNotFound              = errors.New("identity not found")
	ErrSiteNotFound          = errors.New("site not found")
	ErrDuplicateSite         = errors.New("site already registered")
	ErrInvalidName           = errors.New("name must not be empty")
	ErrInvalidState          = errors.New("operation not allowed in current session state")
	ErrDerivationUnavailable = errors.New("derivation function unavailable")
	ErrDerivationRejected    = errors.New("derivation input rejected")
	ErrPersistence           = errors.New("registry store failure")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrAlreadyExists, "AlreadyExists"},
	{ErrNotFound, "NotFound"},
	{ErrSiteNotFound, "SiteNotFound"},
	{ErrDuplicateSite, "DuplicateSite"},
	{ErrInvalidName, "InvalidName"},
	{ErrInvalidState, "InvalidState"},
	{ErrDerivationUnavailable, "DerivationUnavailable"},
	{ErrDerivationRejected, "DerivationRejected"},
	{ErrPersistence, "PersistenceFailure"},
}

// Kind returns the taxonomy name of err, or "Internal" when err does not
// wrap any known failure kind. Kind(nil) is "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
