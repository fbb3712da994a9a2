// Package rules applies mask-matched attribute, compression and access
// control rules to object-tree nodes, mirroring the original fsbuild
// config's applyRules/match logic.
package rules

import (
	"encoding/json"

	"github.com/gobwas/glob"
	"golang.org/x/xerrors"

	"fsbuild/internal/fwfs"
)

// Node is the subset of *fwfs.Container a Rule needs to match and act
// against.
type Node interface {
	Path() string
	NodeName() string
	SetAttr(bit int, state bool)
	AppendCompression(ct fwfs.CompressionType)
	AppendReadACE(role fwfs.Role)
	AppendWriteACE(role fwfs.Role)
}

// Rule is one entry of the config's "rules" array: a mask (or list of
// masks) plus the fields to apply to every node it matches.
type Rule struct {
	Mask     Masks   `json:"mask"`
	ReadOnly *bool   `json:"readonly,omitempty"`
	Compress *string `json:"compress,omitempty"`
	Read     *string `json:"read,omitempty"`
	Write    *string `json:"write,omitempty"`

	compiled []glob.Glob
}

// Masks unmarshals either a single mask string or a JSON array of mask
// strings into the same slice, matching the config schema's
// `mask: string|[string]` union.
type Masks []string

func (m *Masks) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*m = Masks{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return xerrors.Errorf("mask must be a string or an array of strings: %w", err)
	}
	*m = list
	return nil
}

// compile prepares a Rule's masks for matching. Must be called once
// (the package-level Compile does this for every rule) before Apply is used.
func (r *Rule) compile() error {
	r.compiled = make([]glob.Glob, len(r.Mask))
	for i, mask := range r.Mask {
		g, err := glob.Compile(mask)
		if err != nil {
			return xerrors.Errorf("mask %q: %w", mask, err)
		}
		r.compiled[i] = g
	}
	return nil
}

// matches reports whether any of the rule's masks matches n, following
// the original's match(): a mask matches the node's full path outright,
// or (if the mask has no leading '/') the node's bare name, or equals
// the literal root sentinel "/" when n is the volume root.
func (r *Rule) matches(n Node) bool {
	path := n.Path()
	for i, mask := range r.Mask {
		g := r.compiled[i]
		if g.Match(path) {
			return true
		}
		if len(mask) > 0 && mask[0] != '/' && g.Match(n.NodeName()) {
			return true
		}
		if mask == "/" && path == "" {
			return true
		}
	}
	return false
}

// apply applies the rule's fields, in the fixed order readonly, compress,
// read, write, matching the original's field application order.
func (r *Rule) apply(n Node) error {
	if r.ReadOnly != nil {
		n.SetAttr(fwfs.AttrReadOnly, *r.ReadOnly)
	}
	if r.Compress != nil {
		ct, ok := fwfs.ParseCompressionType(*r.Compress)
		if !ok {
			return xerrors.Errorf("%s: unknown compression type %q", n.Path(), *r.Compress)
		}
		n.AppendCompression(ct)
	}
	if r.Read != nil {
		role, ok := fwfs.ParseRole(*r.Read)
		if !ok {
			return xerrors.Errorf("%s: unknown role %q in read rule", n.Path(), *r.Read)
		}
		n.AppendReadACE(role)
	}
	if r.Write != nil {
		role, ok := fwfs.ParseRole(*r.Write)
		if !ok {
			return xerrors.Errorf("%s: unknown role %q in write rule", n.Path(), *r.Write)
		}
		n.AppendWriteACE(role)
	}
	return nil
}

// Engine holds a compiled, ordered rule list and applies every matching
// rule to a node in declaration order, so a later rule's fields override
// an earlier one's (via the object tree's own append-rule semantics).
type Engine struct {
	rules []Rule
}

// Compile validates and compiles every mask in rules, returning an
// Engine ready for repeated Apply calls.
func Compile(rules []Rule) (*Engine, error) {
	for i := range rules {
		if err := rules[i].compile(); err != nil {
			return nil, xerrors.Errorf("rule %d: %w", i, err)
		}
	}
	return &Engine{rules: rules}, nil
}

// Apply runs every matching rule against n, in declaration order.
func (e *Engine) Apply(n Node) error {
	for i := range e.rules {
		if !e.rules[i].matches(n) {
			continue
		}
		if err := e.rules[i].apply(n); err != nil {
			return err
		}
	}
	return nil
}
