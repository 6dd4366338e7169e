// Package nn provides the minimal module-graph substrate that the q8
// quantizer operates on: modules with named tensor attributes, child
// traversal, and pre/post invocation hooks.
package nn

import (
	"errors"
	"fmt"

	"github.com/samcharles93/quantmod/pkg/tensor"
)

// ErrNoAttribute is returned when a named tensor slot is absent.
var ErrNoAttribute = errors.New("nn: no such attribute")

// ForwardFunc is a module body. It receives the module itself so it can read
// attributes that may have been rewritten (for example re-materialized from a
// quantized form) since construction.
type ForwardFunc func(m *Module, x []float32) ([]float32, error)

// Hook runs synchronously around a module invocation. Pre-hooks run before
// the forward body, post-hooks after it.
type Hook func(m *Module) error

// Module is a node in a module graph. Attributes live in an explicit
// side-table of named tensor slots rather than struct fields, so they can be
// added and removed at runtime. Module identity is pointer identity.
//
// Module is not safe for concurrent invocation.
type Module struct {
	name     string
	attrs    map[string]*tensor.Tensor
	children []*Module
	pre      []Hook
	post     []Hook
	forward  ForwardFunc
}

// New constructs a module with the given debug name and forward body.
// A nil forward makes Invoke an identity pass over its input.
func New(name string, forward ForwardFunc) *Module {
	return &Module{
		name:    name,
		attrs:   make(map[string]*tensor.Tensor),
		forward: forward,
	}
}

// Name returns the module's debug name.
func (m *Module) Name() string { return m.name }

// SetAttr installs or replaces a named tensor slot.
func (m *Module) SetAttr(name string, t *tensor.Tensor) {
	m.attrs[name] = t
}

// Attr returns the named tensor slot, or ErrNoAttribute wrapped with the name.
func (m *Module) Attr(name string) (*tensor.Tensor, error) {
	t, ok := m.attrs[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNoAttribute)
	}
	return t, nil
}

// HasAttr reports whether the named slot is present.
func (m *Module) HasAttr(name string) bool {
	_, ok := m.attrs[name]
	return ok
}

// DelAttr removes the named slot. It returns ErrNoAttribute if absent.
func (m *Module) DelAttr(name string) error {
	if _, ok := m.attrs[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrNoAttribute)
	}
	delete(m.attrs, name)
	return nil
}

// AttrNames returns the names of all attribute slots in unspecified order.
func (m *Module) AttrNames() []string {
	names := make([]string, 0, len(m.attrs))
	for name := range m.attrs {
		names = append(names, name)
	}
	return names
}

// AddChild appends child modules. The same module may be added under several
// parents; traversal visits it once.
func (m *Module) AddChild(children ...*Module) {
	m.children = append(m.children, children...)
}

// Children returns the module's direct children.
func (m *Module) Children() []*Module { return m.children }

// Modules returns the module and every distinct descendant, depth-first.
// A module reachable via multiple paths appears exactly once.
func (m *Module) Modules() []*Module {
	seen := make(map[*Module]struct{})
	var out []*Module
	var walk func(*Module)
	walk = func(cur *Module) {
		if _, ok := seen[cur]; ok {
			return
		}
		seen[cur] = struct{}{}
		out = append(out, cur)
		for _, c := range cur.children {
			walk(c)
		}
	}
	walk(m)
	return out
}

// RegisterPreHook adds a hook that runs before every invocation body.
func (m *Module) RegisterPreHook(h Hook) {
	m.pre = append(m.pre, h)
}

// RegisterPostHook adds a hook that runs after every invocation body,
// including when the body returns an error or panics.
func (m *Module) RegisterPostHook(h Hook) {
	m.post = append(m.post, h)
}

// Invoke runs the pre-hooks, the forward body, then the post-hooks.
// A pre-hook failure aborts the invocation before the body and before any
// post-hook. Once all pre-hooks have run, post-hooks run via defer so
// teardown happens even on a failed or panicking body; their errors are
// joined onto the body's.
func (m *Module) Invoke(x []float32) (out []float32, err error) {
	for _, h := range m.pre {
		if herr := h(m); herr != nil {
			return nil, fmt.Errorf("nn: pre-hook: %w", herr)
		}
	}
	defer func() {
		for _, h := range m.post {
			if herr := h(m); herr != nil {
				err = errors.Join(err, fmt.Errorf("nn: post-hook: %w", herr))
			}
		}
	}()
	if m.forward == nil {
		return x, nil
	}
	out, err = m.forward(m, x)
	return out, err
}
