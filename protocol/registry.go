package protocol

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry is a concurrency-safe command table for one instrument family.
// Drivers populate it once at construction; Device reads it on every
// Execute, possibly from many goroutines.
type Registry struct {
	commands *xsync.MapOf[string, *Command]
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: xsync.NewMapOf[string, *Command]()}
}

// Register adds a command to the registry, rejecting malformed definitions
// and duplicate names.
func (r *Registry) Register(cmd *Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	if _, loaded := r.commands.LoadOrStore(cmd.Name, cmd); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, cmd.Name)
	}

	return nil
}

// MustRegister registers the commands and panics on error. Intended for
// the static command tables of device drivers.
func (r *Registry) MustRegister(cmds ...*Command) {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	return r.commands.Load(name)
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.commands.Size())
	r.commands.Range(func(name string, _ *Command) bool {
		names = append(names, name)

		return true
	})
	sort.Strings(names)

	return names
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return r.commands.Size()
}
