// Package proxyerr defines the structured error taxonomy shared across
// trevorproxy's subsystems: the cyclic generator, the SSH tunnel pool (which
// also wraps the packet-filter dispatcher's errors) and the SOCKS5 server
// report failures as a *proxyerr.Error, so that cmd/trevorproxy can map the
// Kind to an exit code and an "[ERROR] <kind>: <message>" line.
package proxyerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a trevorproxy error by origin and intended handling.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindDependency
	KindPrivilege
	KindSSHProxy
	KindSocksProtocol
	KindResolution
	KindUpstream
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindDependency:
		return "DependencyError"
	case KindPrivilege:
		return "PrivilegeError"
	case KindSSHProxy:
		return "SSHProxyError"
	case KindSocksProtocol:
		return "SocksProtocolError"
	case KindResolution:
		return "ResolutionError"
	case KindUpstream:
		return "UpstreamError"
	case KindInternal:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Error is a trevorproxy error annotated with a Kind and optional attributes.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the given Kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new formatted Error of the given Kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a Kind and message. Returns nil if err is nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// Attr attaches a key/value attribute to err, wrapping it as KindInternal
// first if it isn't already a *Error.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindInternal, Message: err.Error(), Underlying: err}
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// KindOf returns the Kind of err, or KindUnknown if err isn't a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
