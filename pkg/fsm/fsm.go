// Package fsm describes the legal status transitions of an entity.
package fsm

import (
	"fmt"
	"slices"

	"reviewcamp/pkg/errutil"
)

type Machine[S ~string] struct {
	name     string
	edges    map[S][]S
	terminal map[S]bool
}

// New builds a machine from its edge list. States with no outgoing edge are
// terminal.
func New[S ~string](name string, edges map[S][]S) Machine[S] {
	m := Machine[S]{name: name, edges: edges, terminal: map[S]bool{}}
	for _, targets := range edges {
		for _, t := range targets {
			if len(edges[t]) == 0 {
				m.terminal[t] = true
			}
		}
	}
	return m
}

func (m Machine[S]) Can(from, to S) bool {
	return slices.Contains(m.edges[from], to)
}

// Sources returns every state with a direct edge into to.
func (m Machine[S]) Sources(to S) []S {
	var out []S
	for from, targets := range m.edges {
		if slices.Contains(targets, to) {
			out = append(out, from)
		}
	}
	slices.Sort(out)
	return out
}

func (m Machine[S]) IsTerminal(s S) bool {
	return m.terminal[s]
}

// Check returns an InvalidTransition error when from -> to is not an edge.
func (m Machine[S]) Check(from, to S) error {
	if m.Can(from, to) {
		return nil
	}
	return errutil.InvalidTransition(
		fmt.Sprintf("%s cannot move from %s to %s", m.name, from, to),
		errutil.WithDetails(errutil.Detail{Field: "status", Message: string(from)}),
	)
}
