package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Load Error Types
// ---------------------------------------------------------------------------

var (
	ErrIO               = errors.New("module file unreadable")
	ErrDecode           = errors.New("malformed module image")
	ErrUnresolvedExport = errors.New("export has no function body")
	ErrOnLoad           = errors.New("on_load hook failed")
	ErrVersionConflict  = errors.New("resident module version changed")
	ErrNotStaged        = errors.New("module was not staged by this registry")
	ErrStopped          = errors.New("machine stopped")
)

// LoadError reports a failed load of one module. Err wraps one of the
// sentinel errors above so callers can classify it with errors.Is.
type LoadError struct {
	Module string // may be empty when the image could not be decoded
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	switch {
	case e.Module != "" && e.Path != "":
		return fmt.Sprintf("load %s (%s): %v", e.Module, e.Path, e.Err)
	case e.Module != "":
		return fmt.Sprintf("load %s: %v", e.Module, e.Err)
	default:
		return fmt.Sprintf("load %s: %v", e.Path, e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

// decodeErrorf builds an ErrDecode-classified error.
func decodeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}
