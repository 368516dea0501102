// Package traverse walks the accessibility tree breadth-first in pages.
package traverse

import (
	"context"
	"strings"

	"github.com/mj1618/ax-mcp/internal/model"
)

const (
	// DefaultMaxNodes is the page size when the client does not ask for one.
	DefaultMaxNodes = 500
	// MaxNodesCeiling caps any requested page size.
	MaxNodesCeiling = 5000
	// FindVisitLimit bounds how many nodes find_by_name inspects.
	FindVisitLimit = 1000
)

// Unbounded as a remaining depth means "no depth limit".
const Unbounded = -1

// Source is where nodes come from. Every call is a bridged native read.
type Source interface {
	Root(ctx context.Context) (model.Node, error)
	Children(ctx context.Context, id model.NodeID) ([]model.Node, error)
	Node(ctx context.Context, id model.NodeID) (model.Node, error)
}

// Query is one query_tree request.
type Query struct {
	MaxDepth *int
	MaxNodes int
	Token    string
}

// Page is one query_tree response.
type Page struct {
	Nodes []model.Node `json:"nodes"                        yaml:"nodes"`
	Token string       `json:"continuation_token,omitempty" yaml:"continuation_token,omitempty"`
}

// Limits resolves a query's depth and node budgets, rejecting invalid values.
func Limits(q Query) (maxDepth, maxNodes int, err error) {
	maxDepth = Unbounded
	if q.MaxDepth != nil {
		if *q.MaxDepth < 0 {
			return 0, 0, model.InvalidAction("max_depth must not be negative")
		}
		maxDepth = *q.MaxDepth
	}
	switch {
	case q.MaxNodes < 0:
		return 0, 0, model.InvalidAction("max_nodes must not be negative")
	case q.MaxNodes == 0:
		maxNodes = DefaultMaxNodes
	case q.MaxNodes > MaxNodesCeiling:
		maxNodes = MaxNodesCeiling
	default:
		maxNodes = q.MaxNodes
	}
	return maxDepth, maxNodes, nil
}

// QueryTree returns the next page of a breadth-first traversal. Without a
// token it starts at the root; with one it resumes the frontier the token
// describes, skipping ids that went stale and ids already emitted.
func QueryTree(ctx context.Context, src Source, q Query) (Page, error) {
	maxDepth, maxNodes, err := Limits(q)
	if err != nil {
		return Page{}, err
	}

	var (
		pending    []frontierEntry
		emitted    = make(map[model.NodeID]bool)
		prefetched = make(map[model.NodeID]model.Node)
	)
	if q.Token != "" {
		c, err := DecodeToken(q.Token)
		if err != nil {
			return Page{}, err
		}
		pending = c.Pending
		for _, id := range c.Emitted {
			emitted[model.NodeID(id)] = true
		}
	} else {
		root, err := src.Root(ctx)
		if err != nil {
			return Page{}, err
		}
		prefetched[root.ID] = root
		pending = []frontierEntry{{ID: string(root.ID), Remaining: maxDepth}}
	}

	page := Page{Nodes: []model.Node{}}
	for len(pending) > 0 && len(page.Nodes) < maxNodes {
		if err := ctx.Err(); err != nil {
			return Page{}, model.Wrap(model.CategoryTimeout, "request cancelled", err)
		}
		item := pending[0]
		pending = pending[1:]
		id := model.NodeID(item.ID)
		if emitted[id] {
			continue
		}

		node, ok := prefetched[id]
		if !ok {
			node, err = src.Node(ctx, id)
			if isStale(err) {
				continue
			}
			if err != nil {
				return Page{}, err
			}
		}
		page.Nodes = append(page.Nodes, node)
		emitted[id] = true

		if item.Remaining == 0 || len(node.Children) == 0 {
			continue
		}
		kids, err := src.Children(ctx, id)
		if isStale(err) {
			continue
		}
		if err != nil {
			return Page{}, err
		}
		next := item.Remaining - 1
		if item.Remaining == Unbounded {
			next = Unbounded
		}
		for _, k := range kids {
			if emitted[k.ID] {
				continue
			}
			prefetched[k.ID] = k
			pending = append(pending, frontierEntry{ID: string(k.ID), Remaining: next})
		}
	}

	pending = unemitted(pending, emitted)
	if len(pending) > 0 {
		token, err := EncodeToken(Continuation{Pending: pending, Emitted: emittedIDs(emitted)})
		if err != nil {
			return Page{}, model.Internal("encoding continuation token", err)
		}
		page.Token = token
	}
	return page, nil
}

// FindByName returns every node whose name contains name, ignoring case. It
// inspects at most FindVisitLimit nodes.
func FindByName(ctx context.Context, src Source, name string) ([]model.Node, error) {
	if strings.TrimSpace(name) == "" {
		return nil, model.InvalidAction("name is required")
	}
	needle := strings.ToLower(name)

	root, err := src.Root(ctx)
	if err != nil {
		return nil, err
	}
	matches := []model.Node{}
	visited := map[model.NodeID]bool{}
	queue := []model.Node{root}
	for len(queue) > 0 && len(visited) < FindVisitLimit {
		if err := ctx.Err(); err != nil {
			return nil, model.Wrap(model.CategoryTimeout, "request cancelled", err)
		}
		node := queue[0]
		queue = queue[1:]
		if visited[node.ID] {
			continue
		}
		visited[node.ID] = true

		if node.Name != "" && strings.Contains(strings.ToLower(node.Name), needle) {
			matches = append(matches, node)
		}
		if len(node.Children) == 0 {
			continue
		}
		kids, err := src.Children(ctx, node.ID)
		if isStale(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		queue = append(queue, kids...)
	}
	return matches, nil
}

func isStale(err error) bool {
	return err != nil && model.CategoryOf(err) == model.CategoryNotFound
}

func unemitted(pending []frontierEntry, emitted map[model.NodeID]bool) []frontierEntry {
	out := pending[:0:0]
	for _, p := range pending {
		if !emitted[model.NodeID(p.ID)] {
			out = append(out, p)
		}
	}
	return out
}
