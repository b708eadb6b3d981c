package socketio

import "sync"

// Loop runs submitted tasks one at a time, in submission order. All socket
// and manager state is touched only from tasks on a single Loop.
//
// A worker goroutine exists only while tasks are pending, so an idle Loop
// holds no resources.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

func NewLoop() *Loop {
	return &Loop{}
}

// Exec queues fn and returns immediately.
func (l *Loop) Exec(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	start := !l.running
	l.running = true
	l.mu.Unlock()

	if start {
		go l.drain()
	}
}

// Sync blocks until every task queued before the call has run. It must not
// be called from a task.
func (l *Loop) Sync() {
	done := make(chan struct{})
	l.Exec(func() { close(done) })
	<-done
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		fn()
	}
}
