// Package host is the headless stand-in for the 3D application's main
// thread. A Runtime owns one goroutine on which timers, posted functions and
// load/exit handlers run one at a time; all scene access happens there.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codefionn/promethean-bridge/internal/logger"
)

// Stop is returned by a TimerFunc to unregister itself
const Stop time.Duration = -1

// TimerFunc runs on the host goroutine and returns the delay until its next
// call, or Stop.
type TimerFunc func() time.Duration

var (
	// ErrRuntimeStopped is returned when posting to a runtime that has exited
	ErrRuntimeStopped = errors.New("host runtime stopped")
	// ErrMailboxFull is returned when the posted-function mailbox is full
	ErrMailboxFull = errors.New("host mailbox is full")
)

type timer struct {
	name string
	fn   TimerFunc
	due  time.Time
}

// Runtime is a cooperative single-goroutine scheduler
type Runtime struct {
	mu           sync.Mutex
	timers       map[string]*timer
	loadHandlers []func()
	exitHandlers []func()
	mailbox      chan func()
	wake         chan struct{}
	stopped      bool
	done         chan struct{}
	log          *logger.Logger
}

// NewRuntime creates a runtime whose mailbox holds mailboxSize posted functions
func NewRuntime(mailboxSize int) *Runtime {
	if mailboxSize < 1 {
		mailboxSize = 1
	}
	return &Runtime{
		timers:  make(map[string]*timer),
		mailbox: make(chan func(), mailboxSize),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		log:     logger.Component("host"),
	}
}

// RegisterTimer schedules fn to run after first. Names are unique.
func (r *Runtime) RegisterTimer(name string, fn TimerFunc, first time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrRuntimeStopped
	}
	if _, exists := r.timers[name]; exists {
		return fmt.Errorf("timer %s already registered", name)
	}
	if first < 0 {
		first = 0
	}
	r.timers[name] = &timer{name: name, fn: fn, due: time.Now().Add(first)}
	r.notify()
	return nil
}

// Unregister removes a timer, reporting whether it was registered
func (r *Runtime) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.timers[name]
	delete(r.timers, name)
	return ok
}

// IsRegistered reports whether a timer with name is scheduled
func (r *Runtime) IsRegistered(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[name]
	return ok
}

// OnLoad adds a handler run by FireLoad (scene file loaded)
func (r *Runtime) OnLoad(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadHandlers = append(r.loadHandlers, fn)
}

// FireLoad runs the load handlers on the host goroutine
func (r *Runtime) FireLoad() error {
	r.mu.Lock()
	handlers := append([]func(){}, r.loadHandlers...)
	r.mu.Unlock()

	return r.Post(func() {
		for _, fn := range handlers {
			r.safely("load handler", fn)
		}
	})
}

// AtExit adds a handler run when Run returns, newest first
func (r *Runtime) AtExit(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exitHandlers = append(r.exitHandlers, fn)
}

// Post queues fn to run on the host goroutine without waiting
func (r *Runtime) Post(fn func()) error {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return ErrRuntimeStopped
	}

	select {
	case r.mailbox <- fn:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Call runs fn on the host goroutine and waits for it to finish
func (r *Runtime) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := r.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrRuntimeStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed after Run has returned and exit handlers have run
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// Run executes timers and posted functions until ctx is cancelled, then runs
// the exit handlers. It must be called once.
func (r *Runtime) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.exit()

	wait := time.NewTimer(time.Hour)
	defer wait.Stop()

	for {
		next := r.fireDue(time.Now())

		if !wait.Stop() {
			select {
			case <-wait.C:
			default:
			}
		}
		wait.Reset(next)

		select {
		case <-ctx.Done():
			return nil
		case fn := <-r.mailbox:
			r.safely("posted function", fn)
		case <-r.wake:
		case <-wait.C:
		}
	}
}

// fireDue runs every timer whose due time has passed and returns the delay
// until the next one.
func (r *Runtime) fireDue(now time.Time) time.Duration {
	r.mu.Lock()
	due := make([]*timer, 0, len(r.timers))
	for _, t := range r.timers {
		if !t.due.After(now) {
			due = append(due, t)
		}
	}
	r.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].name < due[j].name
		}
		return due[i].due.Before(due[j].due)
	})

	for _, t := range due {
		// an earlier timer may have unregistered this one
		r.mu.Lock()
		current, ok := r.timers[t.name]
		r.mu.Unlock()
		if !ok || current != t {
			continue
		}

		delay := r.runTimer(t)

		r.mu.Lock()
		if current, ok := r.timers[t.name]; ok && current == t {
			if delay < 0 {
				delete(r.timers, t.name)
			} else {
				t.due = time.Now().Add(delay)
			}
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := time.Hour
	now = time.Now()
	for _, t := range r.timers {
		if d := t.due.Sub(now); d < next {
			next = d
		}
	}
	if next < 0 {
		next = 0
	}
	return next
}

func (r *Runtime) runTimer(t *timer) (delay time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Timer %s panicked, unregistering: %v", t.name, rec)
			delay = Stop
		}
	}()
	return t.fn()
}

func (r *Runtime) safely(what string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Host %s panicked: %v", what, rec)
		}
	}()
	fn()
}

func (r *Runtime) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runtime) exit() {
	r.mu.Lock()
	r.stopped = true
	handlers := r.exitHandlers
	r.exitHandlers = nil
	r.timers = make(map[string]*timer)
	r.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		r.safely("exit handler", handlers[i])
	}
}
