// Package workflow defines per-document status machines: legal statuses, legal
// transitions, who may trigger them and which fields may change in each status.
package workflow

import (
	"fmt"
	"slices"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Status is a document lifecycle status.
type Status string

// Action is an explicit, named status transition.
type Action string

// Field names a document field subject to the mutation allow-list.
type Field string

const (
	FieldItems        Field = "items"
	FieldSupplier     Field = "supplier"
	FieldCounterparty Field = "counterparty"
	FieldNumber       Field = "number"
	FieldNotes        Field = "supplier_notes"
	FieldDispatchDate Field = "dispatch_date"
)

// Actor restricts who may trigger a transition.
type Actor int

const (
	// ActorCompany admits any company principal.
	ActorCompany Actor = iota + 1
	// ActorNamedSupplier admits only the supplier named on the document.
	ActorNamedSupplier
)

// Rule describes one action.
type Rule struct {
	From   []Status
	To     Status
	Actor  Actor
	Fields []Field
}

// Observer receives transition outcomes.
type Observer interface {
	ObserveTransition(doc shared.DocumentType, action Action, outcome string)
}

// Transition outcomes reported to an Observer.
const (
	OutcomeApplied   = "applied"
	OutcomeForbidden = "forbidden"
	OutcomeRejected  = "rejected"
)

// Machine is the transition table for one document type. It is immutable after
// construction and safe for concurrent use.
type Machine struct {
	doc      shared.DocumentType
	initial  Status
	statuses []Status
	rules    map[Action]Rule
	editable map[Status][]Field
	observer Observer
}

// Type returns the document type governed by the machine.
func (m *Machine) Type() shared.DocumentType {
	return m.doc
}

// Initial returns the status every document is created in.
func (m *Machine) Initial() Status {
	return m.initial
}

// Statuses lists the legal statuses.
func (m *Machine) Statuses() []Status {
	return slices.Clone(m.statuses)
}

// WithObserver returns a copy of m that reports transitions to o.
func (m *Machine) WithObserver(o Observer) *Machine {
	clone := *m
	clone.observer = o
	return &clone
}

// ParseStatus validates raw status input against the enum.
func (m *Machine) ParseStatus(raw string) (Status, error) {
	status := Status(shared.Normalize(raw))
	if !slices.Contains(m.statuses, status) {
		return "", shared.Invalidf("%s status %q is not one of %v", m.doc, raw, m.statuses)
	}
	return status, nil
}

// IsTerminal reports whether no action leaves status.
func (m *Machine) IsTerminal(status Status) bool {
	for _, rule := range m.rules {
		if slices.Contains(rule.From, status) {
			return false
		}
	}
	return true
}

// ActionInto returns the action whose target is status. Callers that accept a target
// status instead of an action name resolve it here before calling Transition.
func (m *Machine) ActionInto(target Status) (Action, error) {
	for action, rule := range m.rules {
		if rule.To == target {
			return action, nil
		}
	}
	return "", fmt.Errorf("%w: no %s action leads to %s", shared.ErrInvalidTransition, m.doc, target)
}

// Transition applies action to a document in status current on behalf of actor.
func (m *Machine) Transition(current Status, action Action, actor shared.Principal, parties shared.Parties) (Status, error) {
	rule, ok := m.rules[action]
	if !ok {
		return "", shared.Invalidf("%s has no action %q", m.doc, action)
	}
	if !rule.admits(actor, parties) {
		m.observe(action, OutcomeForbidden)
		return "", fmt.Errorf("%w: %s may not %s this %s", shared.ErrForbidden, actor.Role, action, m.doc)
	}
	if !slices.Contains(rule.From, current) {
		m.observe(action, OutcomeRejected)
		return "", fmt.Errorf("%w: %s cannot move from %s to %s", shared.ErrInvalidTransition, m.doc, current, rule.To)
	}
	m.observe(action, OutcomeApplied)
	return rule.To, nil
}

// CheckActionFields verifies fields may be set together with action.
func (m *Machine) CheckActionFields(action Action, fields ...Field) error {
	rule, ok := m.rules[action]
	if !ok {
		return shared.Invalidf("%s has no action %q", m.doc, action)
	}
	for _, f := range fields {
		if !slices.Contains(rule.Fields, f) {
			return shared.Invalidf("%s cannot be set when applying %s to a %s", f, action, m.doc)
		}
	}
	return nil
}

// CheckMutation verifies that fields may be edited while the document is in status.
func (m *Machine) CheckMutation(status Status, fields ...Field) error {
	allowed := m.editable[status]
	for _, f := range fields {
		if !slices.Contains(allowed, f) {
			return fmt.Errorf("%w: %s is immutable on a %s %s", shared.ErrInvalidTransition, f, status, m.doc)
		}
	}
	return nil
}

func (r Rule) admits(actor shared.Principal, parties shared.Parties) bool {
	switch r.Actor {
	case ActorCompany:
		return actor.Role == shared.RoleCompany
	case ActorNamedSupplier:
		return actor.Is(shared.RoleSupplier, parties.Supplier)
	default:
		return false
	}
}

func (m *Machine) observe(action Action, outcome string) {
	if m.observer != nil {
		m.observer.ObserveTransition(m.doc, action, outcome)
	}
}
