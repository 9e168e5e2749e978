package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Kind classifies a failure. The set is closed: every error maps to exactly one Kind.
type Kind int

const (
	PermanentOther   Kind = iota // unrecognised failures, never retried
	TransientNetwork             // resets, partial reads, timeouts
	TransientServer              // HTTP 5xx
	PermanentClient              // HTTP 4xx
)

func (k Kind) String() string {
	switch k {
	case TransientNetwork:
		return "transient_network"
	case TransientServer:
		return "transient_server"
	case PermanentClient:
		return "permanent_client"
	default:
		return "permanent_other"
	}
}

// Transient reports whether faults of this kind are retried.
func (k Kind) Transient() bool {
	return k == TransientNetwork || k == TransientServer
}

// Fault is a classified error raised by a transport operation.
type Fault struct {
	Kind       Kind
	Op         string
	StatusCode int // zero when no HTTP response was received
	Err        error
}

func (f *Fault) Error() string {
	switch {
	case f.StatusCode != 0 && f.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", f.Op, f.StatusCode, f.Err)
	case f.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", f.Op, f.StatusCode)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Op, f.Err)
	default:
		return f.Op + ": " + f.Kind.String()
	}
}

func (f *Fault) Unwrap() error { return f.Err }

// FromStatus classifies an HTTP error status: 5xx is transient, anything else permanent.
func FromStatus(op string, code int, err error) *Fault {
	kind := PermanentClient
	if code >= 500 {
		kind = TransientServer
	}
	return &Fault{Kind: kind, Op: op, StatusCode: code, Err: err}
}

// Network wraps a transport error. Context cancellation stays permanent.
func Network(op string, err error) *Fault {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Fault{Kind: PermanentOther, Op: op, Err: err}
	}
	return &Fault{Kind: TransientNetwork, Op: op, Err: err}
}

// Permanent wraps err as a fault that is never retried.
func Permanent(op string, err error) *Fault {
	return &Fault{Kind: PermanentOther, Op: op, Err: err}
}

// KindOf classifies err. The first [Fault] in the chain decides; bare connection resets, unexpected
// EOFs and network timeouts are transient; everything else is [PermanentOther].
func KindOf(err error) Kind {
	if err == nil {
		return PermanentOther
	}

	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return PermanentOther
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return TransientNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransientNetwork
	}

	return PermanentOther
}

// IsTransient is shorthand for KindOf(err).Transient().
func IsTransient(err error) bool {
	return KindOf(err).Transient()
}
