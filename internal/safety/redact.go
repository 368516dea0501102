// Package safety holds the checks applied around every request: action
// validation, redaction of sensitive content, and rate limiting.
package safety

import (
	"context"

	"github.com/mj1618/ax-mcp/internal/model"
)

// DefaultSensitiveRoles are always redacted.
var DefaultSensitiveRoles = []model.Role{model.RolePasswordField}

// Redactor blanks the name and value of nodes with sensitive roles.
type Redactor struct {
	roles map[model.Role]bool
}

// NewRedactor redacts DefaultSensitiveRoles plus extra.
func NewRedactor(extra ...model.Role) *Redactor {
	r := &Redactor{roles: make(map[model.Role]bool)}
	for _, role := range DefaultSensitiveRoles {
		r.roles[role] = true
	}
	for _, role := range extra {
		r.roles[role] = true
	}
	return r
}

// Sensitive reports whether nodes with role are redacted.
func (r *Redactor) Sensitive(role model.Role) bool { return r.roles[role] }

// Node returns n with sensitive content removed.
func (r *Redactor) Node(n model.Node) model.Node {
	if r.roles[n.Role] {
		n.Name = ""
		n.Value = ""
	}
	return n
}

// Nodes redacts every node in place and returns the slice.
func (r *Redactor) Nodes(nodes []model.Node) []model.Node {
	for i := range nodes {
		nodes[i] = r.Node(nodes[i])
	}
	return nodes
}

// Source is the read side of the tree.
type Source interface {
	Root(ctx context.Context) (model.Node, error)
	Children(ctx context.Context, id model.NodeID) ([]model.Node, error)
	Node(ctx context.Context, id model.NodeID) (model.Node, error)
}

// Wrap returns a Source whose nodes are already redacted, so nothing
// downstream (traversal, name search, responses) ever sees the raw text.
func (r *Redactor) Wrap(src Source) Source {
	return &redactingSource{src: src, r: r}
}

type redactingSource struct {
	src Source
	r   *Redactor
}

func (s *redactingSource) Root(ctx context.Context) (model.Node, error) {
	n, err := s.src.Root(ctx)
	return s.r.Node(n), err
}

func (s *redactingSource) Children(ctx context.Context, id model.NodeID) ([]model.Node, error) {
	nodes, err := s.src.Children(ctx, id)
	return s.r.Nodes(nodes), err
}

func (s *redactingSource) Node(ctx context.Context, id model.NodeID) (model.Node, error) {
	n, err := s.src.Node(ctx, id)
	return s.r.Node(n), err
}
