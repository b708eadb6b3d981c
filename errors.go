package socketio

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyAddr     = errors.New("socketio: empty address")
	ErrReservedEvent = errors.New("socketio: reserved event name")
	ErrAckTimeout    = errors.New("socketio: operation has timed out")
)

const errProtocolMismatch = "It seems you are trying to reach a Socket.IO server in v2.x with a v3.x client, which is not possible"

// ConnectError is delivered with the connect_error event when the server
// refuses the namespace or speaks an incompatible protocol revision.
type ConnectError struct {
	Message string
	Data    interface{}
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("socketio: connect error: %s", e.Message)
}

func newConnectError(payload interface{}) *ConnectError {
	switch v := payload.(type) {
	case string:
		return &ConnectError{Message: v}
	case map[string]interface{}:
		msg, _ := v["message"].(string)
		return &ConnectError{Message: msg, Data: v["data"]}
	}
	return &ConnectError{Message: fmt.Sprint(payload), Data: payload}
}
