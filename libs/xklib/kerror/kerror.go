package kerror

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

type ErrorCode string

const (
	EC_UNKNOWN           ErrorCode = "UNKNOWN"
	EC_INVALID_PARAMETER ErrorCode = "INVALID_PARAMETER"
	EC_INTERNAL_ERROR    ErrorCode = "INTERNAL_ERROR"
	EC_TIMEOUT           ErrorCode = "TIMEOUT"
	EC_NETWORK_ERR       ErrorCode = "NETWORK_ERR"
	EC_NOT_FOUND         ErrorCode = "NOT_FOUND"
	EC_RESOURCE_LIMIT    ErrorCode = "RESOURCE_LIMIT"
)

func (code ErrorCode) String() string {
	return string(code)
}

type Keypair struct {
	K string
	V interface{}
}

// Kerror is a typed error. Type is the stable name callers switch on,
// Details keep insertion order so the rendering is stable.
type Kerror struct {
	Type      string
	Msg       string
	Details   []Keypair
	Stack     string // optional, only the innermost kerror usually carries one
	CausedBy  error
	ErrorCode ErrorCode
}

func Create(errType string, msg string) *Kerror {
	return &Kerror{
		Stack:     GetCallStack(1),
		Type:      errType,
		Msg:       msg,
		ErrorCode: EC_UNKNOWN,
	}
}

// Wrap attaches a cause. Stack traces are expensive, ask for one only at the boundary where the cause is not already a Kerror.
func Wrap(err error, errType, msg string, needStack bool) *Kerror {
	ke := &Kerror{
		Type:      errType,
		Msg:       msg,
		CausedBy:  err,
		ErrorCode: EC_UNKNOWN,
	}
	if needStack {
		var inner *Kerror
		if !errors.As(err, &inner) {
			ke.Stack = GetCallStack(1)
		}
	}
	return ke
}

func (ke *Kerror) Error() string {
	return ke.ShortString()
}

func (ke *Kerror) String() string {
	return ke.FullString()
}

func (ke *Kerror) With(key string, val interface{}) *Kerror {
	ke.Details = append(ke.Details, Keypair{K: key, V: val})
	return ke
}

func (ke *Kerror) WithErrorCode(code ErrorCode) *Kerror {
	ke.ErrorCode = code
	return ke
}

func (ke *Kerror) WithoutStack() *Kerror {
	ke.Stack = ""
	return ke
}

// Unwrap lets errors.Is/errors.As walk the cause chain.
func (ke *Kerror) Unwrap() error {
	return ke.CausedBy
}

func (ke *Kerror) GetType() string {
	return ke.Type
}

// GetDetail returns the first detail value stored under key.
func (ke *Kerror) GetDetail(key string) (interface{}, bool) {
	for _, item := range ke.Details {
		if item.K == key {
			return item.V, true
		}
	}
	return nil, false
}

func (ke *Kerror) ShortString() string {
	var b strings.Builder
	ke.render(&b, false, false)
	return b.String()
}

func (ke *Kerror) FullString() string {
	var b strings.Builder
	ke.render(&b, true, true)
	return b.String()
}

func (ke *Kerror) CausedByString() string {
	var b strings.Builder
	ke.renderCause(&b, false)
	return b.String()
}

func (ke *Kerror) render(b *strings.Builder, withStack, withCause bool) {
	fmt.Fprintf(b, "%s: %s", ke.Type, ke.Msg)
	for _, item := range ke.Details {
		fmt.Fprintf(b, ", %s=%v", item.K, formatVal(item.V))
	}
	if withStack && ke.Stack != "" {
		fmt.Fprintf(b, ", stack=%s", ke.Stack)
	}
	if withCause && ke.CausedBy != nil {
		b.WriteString(";\n Caused by: ")
		ke.renderCause(b, withStack)
		b.WriteString("\n")
	}
}

func (ke *Kerror) renderCause(b *strings.Builder, withStack bool) {
	if ke.CausedBy == nil {
		return
	}
	if cause, ok := ke.CausedBy.(*Kerror); ok {
		cause.render(b, withStack, true)
		return
	}
	b.WriteString(ke.CausedBy.Error())
}

func formatVal(val interface{}) interface{} {
	if bytes, ok := val.([]byte); ok {
		return hex.EncodeToString(bytes)
	}
	return val
}

// GetCallStack returns the current goroutine stack minus the debug.Stack frames and removeTop callers.
func GetCallStack(removeTop int) string {
	stack := string(debug.Stack())
	split := strings.SplitAfterN(stack, "\n", 6+2*removeTop)
	return split[len(split)-1]
}

// AsKerror finds the outermost Kerror in the chain.
func AsKerror(err error) (*Kerror, bool) {
	var ke *Kerror
	if errors.As(err, &ke) {
		return ke, true
	}
	return nil, false
}

// IsType reports whether err, or anything it wraps, is a Kerror of errType.
func IsType(err error, errType string) bool {
	for err != nil {
		if ke, ok := err.(*Kerror); ok && ke.Type == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// TypeOf returns the type of the outermost Kerror, or "" for plain errors.
func TypeOf(err error) string {
	if ke, ok := AsKerror(err); ok {
		return ke.Type
	}
	return ""
}
