package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which pipeline stage produced the error
type Phase string

const (
	PhaseLoad      Phase = "load"      // artifact loading and validation
	PhaseParse     Phase = "parse"     // interface descriptor parsing
	PhaseContext   Phase = "context"   // execution context construction
	PhaseHost      Phase = "host"      // capability binding construction
	PhaseLink      Phase = "link"      // import resolution and instantiation
	PhaseCall      Phase = "call"      // export invocation
	PhaseResource  Phase = "resource"  // resource table access
	PhaseBootstrap Phase = "bootstrap" // phase handoff
)

// Kind categorizes the error
type Kind string

const (
	// load
	KindMalformed   Kind = "malformed"
	KindUnsupported Kind = "unsupported_feature"
	KindIO          Kind = "io"

	// link
	KindUnsatisfiedImport Kind = "unsatisfied_import"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindDuplicateBinding  Kind = "duplicate_binding"

	// call
	KindTypeMismatch Kind = "type_mismatch"
	KindTrapped      Kind = "trapped"
	KindGuestError   Kind = "guest_error"

	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindStaleHandle  Kind = "stale_handle"
	KindClosed       Kind = "closed"
)

// Error is the structured error type returned by every stage.
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Name    string
	GoType  string
	WitType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Name != "" {
		b.WriteString(" ")
		b.WriteString(e.Name)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.WitType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.WitType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", WIT type ")
			b.WriteString(e.WitType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("WIT type ")
			b.WriteString(e.WitType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WitType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target with an empty
// Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrMalformed         = &Error{Phase: PhaseLoad, Kind: KindMalformed}
	ErrUnsupported       = &Error{Phase: PhaseLoad, Kind: KindUnsupported}
	ErrIO                = &Error{Phase: PhaseLoad, Kind: KindIO}
	ErrUnsatisfiedImport = &Error{Phase: PhaseLink, Kind: KindUnsatisfiedImport}
	ErrSignatureMismatch = &Error{Phase: PhaseLink, Kind: KindSignatureMismatch}
	ErrDuplicateBinding  = &Error{Phase: PhaseLink, Kind: KindDuplicateBinding}
	ErrTypeMismatch      = &Error{Phase: PhaseCall, Kind: KindTypeMismatch}
	ErrTrapped           = &Error{Phase: PhaseCall, Kind: KindTrapped}
	ErrGuestError        = &Error{Phase: PhaseCall, Kind: KindGuestError}
	ErrStaleHandle       = &Error{Phase: PhaseResource, Kind: KindStaleHandle}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Name sets the offending import, export or binding name
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Path sets the argument or field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Load errors

// Malformed reports bytes that are not a valid module or component.
func Malformed(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMalformed,
		Detail: detail,
		Cause:  cause,
	}
}

// Unsupported reports an artifact needing a feature the engine has not enabled.
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// IO reports an unreadable artifact source.
func IO(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindIO,
		Name:   path,
		Detail: "read artifact",
		Cause:  cause,
	}
}

// Link errors

// UnsatisfiedImport names the first import that no binding resolves.
func UnsatisfiedImport(name string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindUnsatisfiedImport,
		Name:   name,
		Detail: "no binding registered",
	}
}

// SignatureMismatch reports a binding whose signature differs from the declared import.
func SignatureMismatch(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindSignatureMismatch,
		Name:   name,
		Detail: fmt.Sprintf("declared %s, bound %s", want, got),
	}
}

// DuplicateBinding reports a second registration of the same interface.
func DuplicateBinding(name string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindDuplicateBinding,
		Name:   name,
		Detail: "interface already registered",
	}
}

// Call errors

// TypeMismatch creates an argument type mismatch error
func TypeMismatch(path []string, goType, witType string) *Error {
	return &Error{
		Phase:   PhaseCall,
		Kind:    KindTypeMismatch,
		Path:    path,
		GoType:  goType,
		WitType: witType,
	}
}

// ArgCount reports a call with the wrong number of arguments.
func ArgCount(name string, want, got int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTypeMismatch,
		Name:   name,
		Detail: fmt.Sprintf("expected %d argument(s), got %d", want, got),
	}
}

// Trapped converts a sandbox fault into a value.
func Trapped(name, reason string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrapped,
		Name:   name,
		Detail: reason,
		Cause:  cause,
	}
}

// GuestError carries the err payload of a guest result<T, E>.
func GuestError(name string, value any) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindGuestError,
		Name:   name,
		Detail: fmt.Sprintf("guest returned error %v", value),
		Value:  value,
	}
}

// Misc

// StaleHandle rejects an unknown or already-dropped resource handle.
func StaleHandle(handle uint32) *Error {
	return &Error{
		Phase:  PhaseResource,
		Kind:   KindStaleHandle,
		Detail: fmt.Sprintf("handle %#x is not live", handle),
		Value:  handle,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: what + " not found",
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed reports use of a released object.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// ParseFailed creates a descriptor parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindMalformed,
		Detail: "parse " + what,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
