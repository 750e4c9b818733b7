package counter

import (
	"fmt"
	"strings"

	"github.com/sasha-s/go-deadlock"
)

// Kind tells whether a value is an instantaneous reading or an ever increasing counter.
type Kind int

const (
	// Current values are reported as they are.
	Current Kind = iota

	// Cumulative values are reported as difference to the previous run.
	Cumulative
)

func (k Kind) String() string {
	if k == Cumulative {
		return "cumulative"
	}

	return "current"
}

// ParseKind converts "current" or "cumulative" into a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "current", "":
		return Current, nil
	case "cumulative":
		return Cumulative, nil
	}

	return Current, fmt.Errorf("unknown counter kind: %s", name)
}

// Set computes deltas for cumulative counters against the values of the previous run.
// Usage: NewSet (loads previous values), Value for every metric, Commit (saves).
type Set struct {
	lock     deadlock.Mutex
	store    Store
	previous map[string]float64
	next     map[string]float64
}

// NewSet loads the previous values from store.
func NewSet(store Store) (*Set, error) {
	previous, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load counters: %w", err)
	}

	return &Set{
		store:    store,
		previous: previous,
		next:     make(map[string]float64, len(previous)),
	}, nil
}

// Value returns the value to report for the given metric.
// Cumulative counters return the difference to the previous run, first runs
// diff against zero. A counter smaller than before has been reset and
// reports its raw value.
func (cs *Set) Value(name string, kind Kind, raw float64) float64 {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	if kind != Cumulative {
		return raw
	}

	cs.next[name] = raw
	prev := cs.previous[name]
	if raw < prev {
		return raw
	}

	return raw - prev
}

// Previous returns the value stored by the previous run.
func (cs *Set) Previous(name string) (float64, bool) {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	val, ok := cs.previous[name]

	return val, ok
}

// Commit saves all cumulative counters seen so far. Counters not seen in this
// run are kept with their previous value.
func (cs *Set) Commit() error {
	cs.lock.Lock()
	values := make(map[string]float64, len(cs.previous)+len(cs.next))
	for k, v := range cs.previous {
		values[k] = v
	}
	for k, v := range cs.next {
		values[k] = v
	}
	cs.lock.Unlock()

	if err := cs.store.Save(values); err != nil {
		return fmt.Errorf("save counters: %w", err)
	}

	return nil
}
