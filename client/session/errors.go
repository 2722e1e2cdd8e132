package session

import (
	"errors"
	"fmt"
	"net"

	"lanchat/protocol"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// ConnectionError reports a transport failure while establishing a session:
// the server could not be reached or did not answer in time.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *ConnectionError) Timeout() bool {
	return IsTimeout(e.Err)
}

// ProtocolError reports a handshake reply of the wrong kind.
type ProtocolError struct {
	Expected protocol.Kind
	Got      protocol.Kind
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: expected %s, got %s", e.Expected, e.Got)
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
