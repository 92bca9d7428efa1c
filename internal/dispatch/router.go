package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/logger"
)

var (
	// ErrUnknownCommand is returned when no handler is registered for a command
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformedPayload is returned for payloads that are not valid UTF-8
	ErrMalformedPayload = errors.New("malformed payload")
)

// Checkpointer records an undo checkpoint labelled for traceability
type Checkpointer interface {
	Checkpoint(label string) error
}

// Request is one parsed command line
type Request struct {
	Command string
	Params  string
}

// ParsePayload splits a payload into its non-empty command lines
func ParsePayload(raw []byte) ([]Request, error) {
	if !utf8.Valid(raw) {
		return nil, ErrMalformedPayload
	}

	var requests []Request
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		command, params, _ := strings.Cut(line, " ")
		if command == "" {
			continue
		}
		requests = append(requests, Request{Command: command, Params: params})
	}
	return requests, nil
}

// Router executes request payloads against a command table
type Router struct {
	table       *Table
	checkpoints Checkpointer
	log         *logger.Logger
}

// NewRouter creates a router; checkpoints may be nil when no undo support exists
func NewRouter(table *Table, checkpoints Checkpointer) *Router {
	return &Router{
		table:       table,
		checkpoints: checkpoints,
		log:         logger.Component("router"),
	}
}

// Route executes the first command of the payload and returns its response.
// Further command lines in the same payload are dropped: the protocol answers
// every payload with exactly one response.
func (r *Router) Route(raw []byte) (string, error) {
	requests, err := ParsePayload(raw)
	if err != nil {
		return "", err
	}
	if len(requests) == 0 {
		return consts.ResponseNone, nil
	}
	if len(requests) > 1 {
		r.log.Warn("Payload carried %d commands, only %s is executed", len(requests), requests[0].Command)
	}

	return r.Execute(requests[0])
}

// Execute runs a single parsed request
func (r *Router) Execute(req Request) (string, error) {
	cmd, ok := r.table.Lookup(req.Command)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, req.Command)
	}

	r.log.Info("%s %s", req.Command, truncate(req.Params, 256))

	if cmd.Checkpoint && r.checkpoints != nil {
		if err := r.checkpoints.Checkpoint(consts.CheckpointLabelPrefix + cmd.Name); err != nil {
			return "", fmt.Errorf("failed to push undo checkpoint for %s: %w", cmd.Name, err)
		}
	}

	response, err := cmd.Handler(req.Params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd.Name, err)
	}
	if response == "" {
		return consts.ResponseNone, nil
	}
	return response, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
