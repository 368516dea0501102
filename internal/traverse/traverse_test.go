package traverse

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj1618/ax-mcp/internal/model"
)

// staticSource serves a fixed tree described as parent -> children ids.
type staticSource struct {
	names    map[model.NodeID]string
	children map[model.NodeID][]model.NodeID
	removed  map[model.NodeID]bool
	reads    int
}

func newStaticSource() *staticSource {
	return &staticSource{
		names:    map[model.NodeID]string{"root": "Root"},
		children: map[model.NodeID][]model.NodeID{},
		removed:  map[model.NodeID]bool{},
	}
}

func (s *staticSource) add(parent, id model.NodeID, name string) {
	s.names[id] = name
	s.children[parent] = append(s.children[parent], id)
}

func (s *staticSource) node(id model.NodeID) (model.Node, error) {
	s.reads++
	if _, ok := s.names[id]; !ok || s.removed[id] {
		return model.Node{}, model.NotFound(id)
	}
	return model.Node{ID: id, Role: model.RoleGroup, Name: s.names[id], Children: s.children[id]}, nil
}

func (s *staticSource) Root(context.Context) (model.Node, error) { return s.node("root") }

func (s *staticSource) Node(_ context.Context, id model.NodeID) (model.Node, error) {
	return s.node(id)
}

func (s *staticSource) Children(_ context.Context, id model.NodeID) ([]model.Node, error) {
	if s.removed[id] {
		return nil, model.NotFound(id)
	}
	var out []model.Node
	for _, c := range s.children[id] {
		if n, err := s.node(c); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// wideTree builds root -> 5 groups -> 7 leaves each (41 nodes).
func wideTree() *staticSource {
	s := newStaticSource()
	for g := 0; g < 5; g++ {
		gid := model.NodeID(fmt.Sprintf("g%d", g))
		s.add("root", gid, fmt.Sprintf("Group %d", g))
		for l := 0; l < 7; l++ {
			s.add(gid, model.NodeID(fmt.Sprintf("g%d-l%d", g, l)), fmt.Sprintf("Leaf %d.%d", g, l))
		}
	}
	return s
}

func ids(nodes []model.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = string(n.ID)
	}
	return out
}

func intp(v int) *int { return &v }

func TestQueryTree_Unbounded(t *testing.T) {
	page, err := QueryTree(context.Background(), wideTree(), Query{})
	require.NoError(t, err)
	assert.Len(t, page.Nodes, 41)
	assert.Empty(t, page.Token)
	assert.Equal(t, "root", string(page.Nodes[0].ID))
	assert.Equal(t, []string{"g0", "g1", "g2", "g3", "g4"}, ids(page.Nodes[1:6]), "breadth-first order")
}

func TestQueryTree_MaxDepth(t *testing.T) {
	tests := []struct {
		depth int
		want  int
	}{
		{0, 1},
		{1, 6},
		{2, 41},
		{10, 41},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("depth=%d", tt.depth), func(t *testing.T) {
			page, err := QueryTree(context.Background(), wideTree(), Query{MaxDepth: intp(tt.depth)})
			require.NoError(t, err)
			assert.Len(t, page.Nodes, tt.want)
			assert.Empty(t, page.Token)
		})
	}
}

func TestQueryTree_PagesConcatenateToFullTraversal(t *testing.T) {
	for _, pageSize := range []int{1, 2, 3, 7, 40, 41} {
		t.Run(fmt.Sprintf("size=%d", pageSize), func(t *testing.T) {
			src := wideTree()
			full, err := QueryTree(context.Background(), src, Query{})
			require.NoError(t, err)

			var all []string
			q := Query{MaxNodes: pageSize}
			for pages := 0; ; pages++ {
				require.Less(t, pages, 100, "pagination did not terminate")
				page, err := QueryTree(context.Background(), src, q)
				require.NoError(t, err)
				assert.LessOrEqual(t, len(page.Nodes), pageSize)
				all = append(all, ids(page.Nodes)...)
				if page.Token == "" {
					break
				}
				q = Query{MaxNodes: pageSize, Token: page.Token}
			}
			assert.Equal(t, ids(full.Nodes), all, "same nodes, same order, no duplicates")
		})
	}
}

func TestQueryTree_TokenCarriesDepthBudget(t *testing.T) {
	src := wideTree()
	page, err := QueryTree(context.Background(), src, Query{MaxDepth: intp(1), MaxNodes: 2})
	require.NoError(t, err)
	require.NotEmpty(t, page.Token)

	var all []string
	all = append(all, ids(page.Nodes)...)
	for page.Token != "" {
		// A later page without max_depth still honours the original budget.
		page, err = QueryTree(context.Background(), src, Query{MaxNodes: 2, Token: page.Token})
		require.NoError(t, err)
		all = append(all, ids(page.Nodes)...)
	}
	assert.Equal(t, []string{"root", "g0", "g1", "g2", "g3", "g4"}, all)
}

func TestQueryTree_StaleFrontierSkipped(t *testing.T) {
	src := wideTree()
	page, err := QueryTree(context.Background(), src, Query{MaxNodes: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"root", "g0"}, ids(page.Nodes))

	src.removed["g1"] = true
	rest, err := QueryTree(context.Background(), src, Query{MaxNodes: 5000, Token: page.Token})
	require.NoError(t, err)
	for _, id := range ids(rest.Nodes) {
		assert.NotEqual(t, "g1", id)
	}
	assert.Contains(t, ids(rest.Nodes), "g2")
}

func TestQueryTree_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		q    Query
	}{
		{"negative depth", Query{MaxDepth: intp(-1)}},
		{"negative nodes", Query{MaxNodes: -5}},
		{"garbage token", Query{Token: "!!!not-base64!!!"}},
		{"not cbor", Query{Token: "aGVsbG8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := QueryTree(context.Background(), wideTree(), tt.q)
			assert.Equal(t, model.CategoryInvalidAction, model.CategoryOf(err))
		})
	}
}

func TestLimits_ClampsToCeiling(t *testing.T) {
	_, n, err := Limits(Query{MaxNodes: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, MaxNodesCeiling, n)

	d, n, err := Limits(Query{})
	require.NoError(t, err)
	assert.Equal(t, Unbounded, d)
	assert.Equal(t, DefaultMaxNodes, n)
}

func TestToken_Deterministic(t *testing.T) {
	c := Continuation{
		Pending: []frontierEntry{{ID: "a", Remaining: 2}, {ID: "b", Remaining: Unbounded}},
		Emitted: []string{"root", "x"},
	}
	t1, err := EncodeToken(c)
	require.NoError(t, err)
	t2, err := EncodeToken(c)
	require.NoError(t, err)
	assert.Equal(t, t1, t2)

	back, err := DecodeToken(t1)
	require.NoError(t, err)
	assert.Equal(t, c.Pending, back.Pending)
	assert.Equal(t, c.Emitted, back.Emitted)
}

func TestFindByName(t *testing.T) {
	src := wideTree()
	got, err := FindByName(context.Background(), src, "LEAF 3.")
	require.NoError(t, err)
	names := make([]string, len(got))
	for i, n := range got {
		names[i] = n.Name
	}
	sort.Strings(names)
	assert.Len(t, names, 7)
	assert.Equal(t, "Leaf 3.0", names[0])
}

func TestFindByName_EmptyName(t *testing.T) {
	_, err := FindByName(context.Background(), wideTree(), "  ")
	assert.Equal(t, model.CategoryInvalidAction, model.CategoryOf(err))
}

func TestFindByName_VisitCap(t *testing.T) {
	src := newStaticSource()
	for i := 0; i < 3*FindVisitLimit; i++ {
		src.add("root", model.NodeID(fmt.Sprintf("n%d", i)), "match")
	}
	got, err := FindByName(context.Background(), src, "match")
	require.NoError(t, err)
	assert.Len(t, got, FindVisitLimit-1, "root counts towards the visit limit")
}

func TestFindByName_Cycle(t *testing.T) {
	src := newStaticSource()
	src.add("root", "a", "Alpha")
	src.add("a", "root", "Root")
	got, err := FindByName(context.Background(), src, "alpha")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
