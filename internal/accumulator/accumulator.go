// Package accumulator implements the triple-access step-result container the
// Loop Engine builds over the course of a single workflow (spec.md §3
// Accumulator, §9 "best implemented as an indexed ordered mapping with a thin
// attribute-style view over it").
package accumulator

import "fmt"

// Result is a single step's outcome: the value dispatch produced plus the
// navigation signal it returned, if any. The Loop Engine stores one Result
// per executed key.
type Result struct {
	Key    string
	Value  interface{}
	Signal string
}

// Accumulator is an ordered, append-only mapping from step key to *Result,
// additionally indexable by insertion position. Appending is O(1); a key is
// never rebound once appended — a second Append for the same key is a
// programmer error, since the Loop Engine only ever executes a block's
// distinct ExecutableKeys once per pass.
type Accumulator struct {
	order []string
	byKey map[string]*Result
}

// New returns an empty Accumulator, ready for a fresh workflow run.
func New() *Accumulator {
	return &Accumulator{byKey: make(map[string]*Result)}
}

// Append records a step result under key. Panics on a rebind attempt — the
// Loop Engine is the only caller and never re-executes a key within a single
// workflow, so a rebind indicates a caller bug, not user input.
func (a *Accumulator) Append(key string, value interface{}, signal string) *Result {
	if _, exists := a.byKey[key]; exists {
		panic(fmt.Sprintf("accumulator: key %q already bound", key))
	}
	r := &Result{Key: key, Value: value, Signal: signal}
	a.byKey[key] = r
	a.order = append(a.order, key)
	return r
}

// ByIndex returns the result at insertion position i, or nil if out of range.
func (a *Accumulator) ByIndex(i int) *Result {
	if i < 0 || i >= len(a.order) {
		return nil
	}
	return a.byKey[a.order[i]]
}

// ByKey returns the result stored under key, or nil if absent.
func (a *Accumulator) ByKey(key string) *Result {
	return a.byKey[key]
}

// Attr is the attribute-style access mode: same lookup as ByKey, named to
// mirror the original framework's `acc.SomeKey` dot access. It returns the
// identical *Result pointer ByKey and ByIndex would for the same entry.
func (a *Accumulator) Attr(key string) *Result {
	return a.ByKey(key)
}

// Len returns the number of accumulated results.
func (a *Accumulator) Len() int { return len(a.order) }

// Keys returns the accumulated keys in insertion order.
func (a *Accumulator) Keys() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Values returns the accumulated results in insertion order.
func (a *Accumulator) Values() []*Result {
	out := make([]*Result, len(a.order))
	for i, k := range a.order {
		out[i] = a.byKey[k]
	}
	return out
}

// Last returns the most recently appended result, or nil if empty — the Loop
// Engine consults this to decide the next navigation action after a step.
func (a *Accumulator) Last() *Result {
	if len(a.order) == 0 {
		return nil
	}
	return a.byKey[a.order[len(a.order)-1]]
}
