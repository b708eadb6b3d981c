package socketio

import "time"

// Ack is a completion callback passed as the last argument of Emit.
type Ack interface {
	Call(args ...interface{})
}

// AckFunc is a plain acknowledgement callback. Inbound events that request
// an acknowledgement carry an AckFunc as their last argument.
type AckFunc func(args ...interface{})

func (f AckFunc) Call(args ...interface{}) {
	f(args...)
}

// AckWithTimeout fires exactly one of OnAck or OnTimeout. When the timeout
// expires before the packet was transmitted, the packet is never sent.
type AckWithTimeout struct {
	Timeout   time.Duration
	OnAck     func(args ...interface{})
	OnTimeout func(err error)
}

func (a *AckWithTimeout) Call(args ...interface{}) {
	if a.OnAck != nil {
		a.OnAck(args...)
	}
}

func (a *AckWithTimeout) deadline() time.Duration {
	return a.Timeout
}

func (a *AckWithTimeout) timedOut() {
	if a.OnTimeout != nil {
		a.OnTimeout(ErrAckTimeout)
	}
}

// timeoutAck is implemented by acknowledgements that declare a deadline.
type timeoutAck interface {
	Ack
	deadline() time.Duration
	timedOut()
}

type ackEntry struct {
	ack   Ack
	timer *time.Timer
}

func (e *ackEntry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
}
