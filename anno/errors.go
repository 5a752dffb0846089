package anno

import (
	"errors"
	"fmt"
)

// Sentinel errors.  The typed errors below match these through errors.Is, so callers can
// test the category without caring about the details.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrDuplicateID     = errors.New("duplicate id")
	ErrFormat          = errors.New("malformed annotation")
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotFoundError reports a referenced layer, tree, bounding box or path that does not exist.
type NotFoundError struct {
	Kind string // e.g. "volume layer", "tree", "path"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError returns a *NotFoundError.
func NewNotFoundError(kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}

// DuplicateNameError reports an insert whose name is already taken.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s named %q already exists", e.Kind, e.Name)
}

func (e *DuplicateNameError) Is(target error) bool {
	return target == ErrDuplicateName
}

// DuplicateIDError reports an insert whose explicit id collides with an existing one.
type DuplicateIDError struct {
	Kind string
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s with id %s already exists", e.Kind, e.ID)
}

func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}

// NewDuplicateIDError returns a *DuplicateIDError for an integer id.
func NewDuplicateIDError(kind string, id int) error {
	return &DuplicateIDError{Kind: kind, ID: fmt.Sprintf("%d", id)}
}

// FormatError reports a structurally malformed archive or descriptor.
type FormatError struct {
	Source string // file or entry name, may be empty
	Msg    string
	Err    error
}

func (e *FormatError) Error() string {
	s := "malformed annotation"
	if e.Source != "" {
		s += " " + e.Source
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// FormatErrorf returns a *FormatError for the given source with a formatted message.
func FormatErrorf(source, format string, args ...interface{}) error {
	return &FormatError{Source: source, Msg: fmt.Sprintf(format, args...)}
}

// WrapFormatError wraps a decoding error as a *FormatError.  A nil err returns nil.
func WrapFormatError(source string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	return &FormatError{Source: source, Err: err}
}

// InvalidArgumentf returns an error matching ErrInvalidArgument.
func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
