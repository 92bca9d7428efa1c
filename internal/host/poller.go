package host

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/promethean-bridge/internal/channel"
	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/dispatch"
	"github.com/codefionn/promethean-bridge/internal/logger"
)

// State is the poller state
type State int

const (
	// StateIdle means no queue pair is attached
	StateIdle State = iota
	// StatePolling means each tick drains at most one request
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// Router executes one raw request payload
type Router interface {
	Route(raw []byte) (string, error)
}

// Poller moves requests from the inbound queue through the router and puts
// the responses on the outbound queue. It is driven by Tick on the host
// goroutine.
type Poller struct {
	router Router

	mu       sync.Mutex
	state    State
	inbound  channel.Receiver
	outbound channel.Sender

	log *logger.Logger
}

// NewPoller creates an idle poller
func NewPoller(router Router) *Poller {
	return &Poller{
		router: router,
		log:    logger.Component("poller"),
	}
}

// Start attaches a queue pair and switches to polling
func (p *Poller) Start(inbound channel.Receiver, outbound channel.Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inbound = inbound
	p.outbound = outbound
	p.state = StatePolling
	p.log.Debug("Poller started")
}

// Stop detaches the queues and switches to idle
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.state == StateIdle {
		return
	}
	p.inbound = nil
	p.outbound = nil
	p.state = StateIdle
	p.log.Debug("Poller stopped")
}

// State returns the current state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Tick handles at most one queued request. It returns false once the poller
// is idle, telling the scheduler to drop its timer.
func (p *Poller) Tick() bool {
	p.mu.Lock()
	if p.state != StatePolling {
		p.mu.Unlock()
		return false
	}
	inbound, outbound := p.inbound, p.outbound
	p.mu.Unlock()

	payload, ok, err := inbound.TryGet()
	if err != nil {
		if errors.Is(err, channel.ErrQueueClosed) {
			p.log.Info("Inbound queue closed, stopping poller")
		} else {
			p.log.Error("Failed to read inbound queue: %v", err)
		}
		p.detach(inbound)
		return false
	}
	if !ok {
		return true
	}

	response := p.handle(payload)
	if err := outbound.Put([]byte(response)); err != nil {
		p.log.Error("Failed to queue response: %v", err)
		if errors.Is(err, channel.ErrQueueClosed) {
			p.detach(inbound)
			return false
		}
	}
	return true
}

// TimerFunc adapts Tick to a host timer repeating every interval
func (p *Poller) TimerFunc(interval time.Duration) TimerFunc {
	return func() time.Duration {
		if !p.Tick() {
			return Stop
		}
		return interval
	}
}

// detach goes idle unless a newer queue pair was attached meanwhile
func (p *Poller) detach(inbound channel.Receiver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inbound == inbound {
		p.stopLocked()
	}
}

// handle routes one payload; every failure becomes an ERROR response
func (p *Poller) handle(payload []byte) (response string) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("Command panicked: %v", rec)
			response = consts.ResponseError
		}
	}()

	response, err := p.router.Route(payload)
	if err == nil {
		return response
	}

	if errors.Is(err, dispatch.ErrUnknownCommand) {
		p.log.Warn("%v", err)
		return fmt.Sprintf("%s %v", consts.ResponseError, err)
	}
	p.log.Error("Command failed: %v", err)
	return consts.ResponseError
}
