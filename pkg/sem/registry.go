package sem

import (
	"fmt"
	"sync"
	"time"
)

// Output receives decoded values for one sensor.
type Output interface {
	Name() string
	Publish(value float64)
}

type Binding struct {
	Command string
	Output  Output
	layout  Layout
}

type Reading struct {
	Command string
	Output  string
	Value   float64
	Time    time.Time
}

// ValueRegistry owns the sensor bindings of one meter and the last reading
// applied to each of them.
type ValueRegistry struct {
	bindings []Binding
	latest   map[string]Reading
	mutex    sync.RWMutex
	now      func() time.Time
}

func NewValueRegistry() *ValueRegistry {
	return &ValueRegistry{
		latest: make(map[string]Reading),
		now:    time.Now,
	}
}

func (r *ValueRegistry) Add(output Output, command string) error {
	if output == nil {
		return fmt.Errorf("%w: nil output for %q", ErrUnsupportedCommand, command)
	}
	if command == "" {
		return fmt.Errorf("%w: empty command for %s", ErrUnsupportedCommand, output.Name())
	}
	layout, ok := LookupLayout(command)
	if !ok {
		return fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedCommand, command, SupportedCommands())
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, b := range r.bindings {
		if b.Command == command {
			return fmt.Errorf("%w: %q already bound to %s", ErrDuplicateCommand, command, b.Output.Name())
		}
	}
	r.bindings = append(r.bindings, Binding{Command: command, Output: output, layout: layout})
	return nil
}

// Bindings returns the bindings in configuration order.
func (r *ValueRegistry) Bindings() []Binding {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]Binding(nil), r.bindings...)
}

func (r *ValueRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.bindings)
}

// Apply decodes a reply body for command and publishes it to the bound output.
// Nothing is published when decoding fails.
func (r *ValueRegistry) Apply(command string, body string) (*Reading, error) {
	r.mutex.RLock()
	var binding *Binding
	for i := range r.bindings {
		if r.bindings[i].Command == command {
			binding = &r.bindings[i]
			break
		}
	}
	r.mutex.RUnlock()
	if binding == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	value, err := binding.layout.Parse(body)
	if err != nil {
		return nil, err
	}
	binding.Output.Publish(value)

	reading := Reading{
		Command: command,
		Output:  binding.Output.Name(),
		Value:   value,
		Time:    r.now(),
	}
	r.mutex.Lock()
	r.latest[command] = reading
	r.mutex.Unlock()
	return &reading, nil
}

// Latest returns the last applied reading of every binding that has one, in
// configuration order.
func (r *ValueRegistry) Latest() []Reading {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	readings := make([]Reading, 0, len(r.latest))
	for _, b := range r.bindings {
		if reading, ok := r.latest[b.Command]; ok {
			readings = append(readings, reading)
		}
	}
	return readings
}
