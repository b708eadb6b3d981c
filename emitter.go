package socketio

import "sync/atomic"

// Listener receives the arguments of an event.
type Listener func(args ...interface{})

// Handle identifies a registered listener and is used to remove it.
type Handle uint64

var handleSeq atomic.Uint64

func nextHandle() Handle {
	return Handle(handleSeq.Add(1))
}

type listener struct {
	handle Handle
	fn     Listener
	once   bool
}

// listenerList keeps listeners in registration order.
type listenerList []listener

func (l *listenerList) add(h Handle, fn Listener, once bool) {
	*l = append(*l, listener{handle: h, fn: fn, once: once})
}

func (l *listenerList) remove(h Handle) bool {
	for i, ln := range *l {
		if ln.handle == h {
			*l = append((*l)[:i:i], (*l)[i+1:]...)
			return true
		}
	}
	return false
}

func (l *listenerList) clear() {
	*l = nil
}

// call invokes a snapshot of the list so listeners may add or remove
// listeners while being called.
func (l *listenerList) call(args ...interface{}) {
	if len(*l) == 0 {
		return
	}
	snapshot := make([]listener, len(*l))
	copy(snapshot, *l)
	for _, ln := range snapshot {
		if ln.once {
			l.remove(ln.handle)
		}
	}
	for _, ln := range snapshot {
		ln.fn(args...)
	}
}

// emitter is a per-event listener registry. It is not safe for concurrent
// use; callers confine it to their Loop.
type emitter struct {
	listeners map[string]*listenerList
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[string]*listenerList)}
}

func (e *emitter) on(event string, h Handle, fn Listener, once bool) {
	l, ok := e.listeners[event]
	if !ok {
		l = &listenerList{}
		e.listeners[event] = l
	}
	l.add(h, fn, once)
}

func (e *emitter) off(h Handle) bool {
	for event, l := range e.listeners {
		if l.remove(h) {
			if len(*l) == 0 {
				delete(e.listeners, event)
			}
			return true
		}
	}
	return false
}

func (e *emitter) offAll() {
	e.listeners = make(map[string]*listenerList)
}

func (e *emitter) emit(event string, args ...interface{}) {
	if l, ok := e.listeners[event]; ok {
		l.call(args...)
	}
}

func (e *emitter) listenerCount() int {
	n := 0
	for _, l := range e.listeners {
		n += len(*l)
	}
	return n
}
