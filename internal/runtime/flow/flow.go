// Package flow provides stream operators that sit in front of a pipe.
//
// An Operator wraps the next stage of a chain. State (the previous value for
// Diff, the counter for Limit) is created when a chain is built, so one
// Operator value can be reused across chains. Chains built with Pipe run on
// the circuit worker and need no locking.
package flow

import (
	"cmp"
	"math/rand/v2"

	runtimepkg "github.com/drblury/signalflow/internal/runtime"
	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

// Operator transforms the stage that follows it.
type Operator[E any] func(next func(E)) func(E)

// Chain applies ops in order in front of sink: the first op sees each value
// first.
func Chain[E any](sink func(E), ops ...Operator[E]) func(E) {
	out := sink
	for i := len(ops) - 1; i >= 0; i-- {
		out = ops[i](out)
	}
	return out
}

// Pipe returns a pipe on c whose emissions pass through ops before reaching
// target.
func Pipe[E any](c *runtimepkg.Circuit, n *name.Name, target *runtimepkg.Pipe[E], ops ...Operator[E]) (*runtimepkg.Pipe[E], error) {
	if target == nil {
		return nil, errspkg.ErrPipeRequired
	}
	return runtimepkg.NewPipe[E](c, n, Chain(target.Emit, ops...))
}

// Diff passes a value only when it differs from the previous one. The first
// value always passes.
func Diff[E comparable]() Operator[E] {
	return func(next func(E)) func(E) {
		var (
			prev E
			seen bool
		)
		return func(v E) {
			if seen && v == prev {
				return
			}
			prev, seen = v, true
			next(v)
		}
	}
}

// DiffFrom is Diff with an initial previous value, so a first value equal to
// initial is suppressed.
func DiffFrom[E comparable](initial E) Operator[E] {
	return func(next func(E)) func(E) {
		prev := initial
		return func(v E) {
			if v == prev {
				return
			}
			prev = v
			next(v)
		}
	}
}

// Guard passes values for which pred returns true.
func Guard[E any](pred func(E) bool) Operator[E] {
	return func(next func(E)) func(E) {
		return func(v E) {
			if pred(v) {
				next(v)
			}
		}
	}
}

// GuardPrevious passes v when pred(previous, v) holds. Previous starts at
// initial and advances only when a value passes.
func GuardPrevious[E any](initial E, pred func(prev, v E) bool) Operator[E] {
	return func(next func(E)) func(E) {
		prev := initial
		return func(v E) {
			if pred(prev, v) {
				prev = v
				next(v)
			}
		}
	}
}

// Limit passes at most n values.
func Limit[E any](n int64) Operator[E] {
	return func(next func(E)) func(E) {
		var passed int64
		return func(v E) {
			if passed >= n {
				return
			}
			passed++
			next(v)
		}
	}
}

// Skip drops the first n values.
func Skip[E any](n int64) Operator[E] {
	return func(next func(E)) func(E) {
		var skipped int64
		return func(v E) {
			if skipped < n {
				skipped++
				return
			}
			next(v)
		}
	}
}

// Peek calls fn with every value before passing it on.
func Peek[E any](fn func(E)) Operator[E] {
	return func(next func(E)) func(E) {
		return func(v E) {
			fn(v)
			next(v)
		}
	}
}

// Reduce replaces each value with the running accumulation op(acc, v).
func Reduce[E any](initial E, op func(acc, v E) E) Operator[E] {
	return func(next func(E)) func(E) {
		acc := initial
		return func(v E) {
			acc = op(acc, v)
			next(acc)
		}
	}
}

// Replace maps each value through fn.
func Replace[E any](fn func(E) E) Operator[E] {
	return func(next func(E)) func(E) {
		return func(v E) { next(fn(v)) }
	}
}

// Sample passes every n-th value (the n-th, 2n-th, ...). n below 1 passes
// everything.
func Sample[E any](n int) Operator[E] {
	return func(next func(E)) func(E) {
		if n <= 1 {
			return next
		}
		count := 0
		return func(v E) {
			count++
			if count == n {
				count = 0
				next(v)
			}
		}
	}
}

// SampleProbability passes each value with probability p.
func SampleProbability[E any](p float64) Operator[E] {
	return func(next func(E)) func(E) {
		switch {
		case p >= 1:
			return next
		case p <= 0:
			return func(E) {}
		}
		return func(v E) {
			if rand.Float64() < p {
				next(v)
			}
		}
	}
}

// Sieve collects the conditions of a Sift. A value passes when it meets all
// of them.
type Sieve[E any] struct {
	cmp   func(a, b E) int
	conds []func() func(E) bool
}

func (s *Sieve[E]) add(cond func(E) bool) *Sieve[E] {
	s.conds = append(s.conds, func() func(E) bool { return cond })
	return s
}

// Above passes values greater than lower.
func (s *Sieve[E]) Above(lower E) *Sieve[E] {
	return s.add(func(v E) bool { return s.cmp(v, lower) > 0 })
}

// Below passes values less than upper.
func (s *Sieve[E]) Below(upper E) *Sieve[E] {
	return s.add(func(v E) bool { return s.cmp(v, upper) < 0 })
}

// Min passes values of at least lower.
func (s *Sieve[E]) Min(lower E) *Sieve[E] {
	return s.add(func(v E) bool { return s.cmp(v, lower) >= 0 })
}

// Max passes values of at most upper.
func (s *Sieve[E]) Max(upper E) *Sieve[E] {
	return s.add(func(v E) bool { return s.cmp(v, upper) <= 0 })
}

// Range passes values between lower and upper inclusive.
func (s *Sieve[E]) Range(lower, upper E) *Sieve[E] {
	return s.add(func(v E) bool { return s.cmp(v, lower) >= 0 && s.cmp(v, upper) <= 0 })
}

// High passes a value only when it exceeds every value seen before it.
func (s *Sieve[E]) High() *Sieve[E] {
	return s.extreme(1)
}

// Low passes a value only when it is below every value seen before it.
func (s *Sieve[E]) Low() *Sieve[E] {
	return s.extreme(-1)
}

// extreme tracks the running maximum (sign 1) or minimum (sign -1). The
// extremum belongs to the chain, not the Sieve.
func (s *Sieve[E]) extreme(sign int) *Sieve[E] {
	s.conds = append(s.conds, func() func(E) bool {
		var (
			best E
			seen bool
		)
		return func(v E) bool {
			if seen && s.cmp(v, best)*sign <= 0 {
				return false
			}
			best, seen = v, true
			return true
		}
	})
	return s
}

// Sift passes values meeting every condition configure adds to the Sieve,
// ordered by compare.
func Sift[E any](compare func(a, b E) int, configure func(*Sieve[E])) Operator[E] {
	sieve := &Sieve[E]{cmp: compare}
	if configure != nil {
		configure(sieve)
	}
	return func(next func(E)) func(E) {
		conds := make([]func(E) bool, len(sieve.conds))
		for i, build := range sieve.conds {
			conds[i] = build()
		}
		return func(v E) {
			for _, ok := range conds {
				if !ok(v) {
					return
				}
			}
			next(v)
		}
	}
}

// SiftOrdered is Sift using the natural order of E.
func SiftOrdered[E cmp.Ordered](configure func(*Sieve[E])) Operator[E] {
	return Sift(cmp.Compare[E], configure)
}
