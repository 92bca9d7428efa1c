// Package dispatch maps command names to handlers and routes raw request
// payloads to them.
package dispatch

import (
	"fmt"
	"sort"
)

// Handler executes one command. It receives the raw parameter string and
// returns the response payload; an empty string means "no value".
type Handler func(params string) (string, error)

// Command binds a unique name to its handler
type Command struct {
	Name    string
	Handler Handler
	// Checkpoint requests an undo checkpoint before the handler runs
	Checkpoint bool
}

// Table is the immutable command registry. It is built once and only read
// afterwards, so it can be shared freely.
type Table struct {
	commands map[string]Command
}

// NewTable builds a table, rejecting empty names, nil handlers and duplicates
func NewTable(commands ...Command) (*Table, error) {
	t := &Table{commands: make(map[string]Command, len(commands))}
	for _, cmd := range commands {
		if cmd.Name == "" {
			return nil, fmt.Errorf("command with empty name")
		}
		if cmd.Handler == nil {
			return nil, fmt.Errorf("command %s has no handler", cmd.Name)
		}
		if _, exists := t.commands[cmd.Name]; exists {
			return nil, fmt.Errorf("duplicate command %s", cmd.Name)
		}
		t.commands[cmd.Name] = cmd
	}
	return t, nil
}

// Lookup returns the command registered under name
func (t *Table) Lookup(name string) (Command, bool) {
	cmd, ok := t.commands[name]
	return cmd, ok
}

// Names returns all command names, sorted
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.commands))
	for name := range t.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckpointNames returns the sorted names of commands that request an undo checkpoint
func (t *Table) CheckpointNames() []string {
	var names []string
	for name, cmd := range t.commands {
		if cmd.Checkpoint {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered commands
func (t *Table) Len() int {
	return len(t.commands)
}
