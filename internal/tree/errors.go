package tree

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrFilesystemIO      = errors.New("filesystem i/o error")
	ErrProtectedRoot     = errors.New("the opened folder root cannot be deleted, moved or renamed")
	ErrLastNoteProtected = errors.New("cannot delete the last note")
	ErrCycleRejected     = errors.New("an item cannot be moved into itself or its descendants")
	ErrInvalidParent     = errors.New("invalid parent")
	ErrInvalidTitle      = errors.New("invalid title")
	ErrInvalidKind       = errors.New("operation not supported for this item kind")
	ErrStalePath         = errors.New("backing path is stale; re-scan the folder")
	ErrInvalidTree       = errors.New("invalid item tree")
	// ErrNoNotes refuses a forest without a single note, such as an opened
	// directory that holds no markdown files.
	ErrNoNotes           = errors.New("the tree must contain at least one note")
)

type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("item not found: %s", e.ID)
}

// FSError reports a failed filesystem call. It matches ErrFilesystemIO.
type FSError struct {
	Op   string
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FSError) Unwrap() error { return e.Err }

func (e *FSError) Is(target error) bool { return target == ErrFilesystemIO }

func fsErr(op, path string, err error) error {
	return &FSError{Op: op, Path: path, Err: err}
}

func permissionDenied(path string) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
}

// RefusalKind names the refusal behind err, or returns "" when err is not
// one of the distinct refusals a caller should explain to the user.
func RefusalKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProtectedRoot):
		return "ProtectedRoot"
	case errors.Is(err, ErrLastNoteProtected):
		return "LastNoteProtected"
	case errors.Is(err, ErrCycleRejected):
		return "CycleRejected"
	case errors.Is(err, ErrPermissionDenied):
		return "PermissionDenied"
	case errors.Is(err, ErrStalePath):
		return "StalePath"
	case errors.Is(err, ErrNoNotes):
		return "NoNotes"
	default:
		return ""
	}
}
