// Package state holds the immutable property bags attached to subjects.
//
// A State is a persistent list of slots. Every With returns a new State that
// shares nothing mutable with its source, so a State can be handed to any
// goroutine without copying.
package state

import (
	"fmt"

	"github.com/drblury/signalflow/internal/runtime/name"
)

// Slot is one named value.
type Slot struct {
	Name  *name.Name
	Value any
}

func (s Slot) String() string {
	return fmt.Sprintf("%s=%v", s.Name, s.Value)
}

// State is an ordered, immutable sequence of slots. The zero value is empty.
type State struct {
	slots []Slot
}

// Empty returns the empty State.
func Empty() State { return State{} }

// New builds a State from alternating name/value pairs. Names may be *name.Name
// or a dot-separated string; malformed pairs are skipped.
func New(pairs ...any) State {
	var s State
	for i := 0; i+1 < len(pairs); i += 2 {
		n := toName(pairs[i])
		if n == nil {
			continue
		}
		s = s.With(n, pairs[i+1])
	}
	return s
}

func toName(v any) *name.Name {
	switch k := v.(type) {
	case *name.Name:
		return k
	case string:
		n, err := name.Parse(k)
		if err != nil {
			return nil
		}
		return n
	default:
		return nil
	}
}

func (s State) cloneWithExtra(extra int) []Slot {
	cloned := make([]Slot, len(s.slots), len(s.slots)+extra)
	copy(cloned, s.slots)
	return cloned
}

// With returns a State with slot (n, value) appended. Earlier slots with the
// same name are kept until Compact.
func (s State) With(n *name.Name, value any) State {
	if n == nil {
		return s
	}
	return State{slots: append(s.cloneWithExtra(1), Slot{Name: n, Value: value})}
}

// WithAll appends every slot of other.
func (s State) WithAll(other State) State {
	if len(other.slots) == 0 {
		return s
	}
	return State{slots: append(s.cloneWithExtra(len(other.slots)), other.slots...)}
}

// Len is the number of slots, duplicates included.
func (s State) Len() int { return len(s.slots) }

// Slots returns a copy of the slots in insertion order.
func (s State) Slots() []Slot {
	return s.cloneWithExtra(0)
}

// Value returns the most recent value stored under n.
func (s State) Value(n *name.Name) (any, bool) {
	for i := len(s.slots) - 1; i >= 0; i-- {
		if s.slots[i].Name == n {
			return s.slots[i].Value, true
		}
	}
	return nil, false
}

// Values returns every value stored under n, oldest first.
func (s State) Values(n *name.Name) []any {
	var out []any
	for _, slot := range s.slots {
		if slot.Name == n {
			out = append(out, slot.Value)
		}
	}
	return out
}

// Lookup returns the most recent value under n when it has type T.
func Lookup[T any](s State, n *name.Name) (T, bool) {
	var zero T
	v, ok := s.Value(n)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Compact keeps only the latest slot for each name, preserving the order in
// which those latest slots were written.
func (s State) Compact() State {
	if len(s.slots) < 2 {
		return s
	}
	seen := make(map[*name.Name]struct{}, len(s.slots))
	kept := make([]Slot, 0, len(s.slots))
	for i := len(s.slots) - 1; i >= 0; i-- {
		slot := s.slots[i]
		if _, dup := seen[slot.Name]; dup {
			continue
		}
		seen[slot.Name] = struct{}{}
		kept = append(kept, slot)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return State{slots: kept}
}
