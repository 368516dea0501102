package safety

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj1618/ax-mcp/internal/model"
)

type fakeActor struct {
	nodes     map[model.NodeID]model.Node
	performed []model.Action
}

func (f *fakeActor) Root(ctx context.Context) (model.Node, error) { return f.Node(ctx, "root") }

func (f *fakeActor) Children(ctx context.Context, id model.NodeID) ([]model.Node, error) {
	n, err := f.Node(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []model.Node
	for _, c := range n.Children {
		out = append(out, f.nodes[c])
	}
	return out, nil
}

func (f *fakeActor) Node(_ context.Context, id model.NodeID) (model.Node, error) {
	n, ok := f.nodes[id]
	if !ok {
		return model.Node{}, model.NotFound(id)
	}
	return n, nil
}

func (f *fakeActor) PerformAction(_ context.Context, _ model.NodeID, a model.Action) error {
	f.performed = append(f.performed, a)
	return nil
}

func newFakeActor() *fakeActor {
	return &fakeActor{nodes: map[model.NodeID]model.Node{
		"root": {ID: "root", Role: model.RoleWindow, Name: "Login", Children: []model.NodeID{"btn", "pw"}},
		"btn":  {ID: "btn", Role: model.RoleButton, Name: "OK", Actions: []model.Action{model.Focus(), model.Press()}},
		"pw":   {ID: "pw", Role: model.RolePasswordField, Name: "Password", Value: "hunter2", Actions: []model.Action{model.Focus(), model.SetValue("")}},
	}}
}

func TestPerform_RejectsUnsupportedAction(t *testing.T) {
	a := newFakeActor()
	err := Perform(context.Background(), a, "btn", model.Increment())
	assert.Equal(t, model.CategoryInvalidAction, model.CategoryOf(err))
	assert.Contains(t, err.Error(), "focus, press")
	assert.Empty(t, a.performed, "rejected action must not reach the provider")
}

func TestPerform_Allowed(t *testing.T) {
	a := newFakeActor()
	require.NoError(t, Perform(context.Background(), a, "pw", model.SetValue("secret")))
	assert.Equal(t, []model.Action{model.SetValue("secret")}, a.performed)
}

func TestPerform_StaleNode(t *testing.T) {
	a := newFakeActor()
	err := Perform(context.Background(), a, "gone", model.Press())
	assert.Equal(t, model.CategoryNotFound, model.CategoryOf(err))
}

func TestPerform_MalformedAction(t *testing.T) {
	a := newFakeActor()
	err := Perform(context.Background(), a, "btn", model.Action{Type: "explode"})
	assert.Equal(t, model.CategoryInvalidAction, model.CategoryOf(err))
}

func TestRedactor_Wrap(t *testing.T) {
	src := NewRedactor().Wrap(newFakeActor())
	kids, err := src.Children(context.Background(), "root")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "OK", kids[0].Name)
	assert.Empty(t, kids[1].Name)
	assert.Empty(t, kids[1].Value)
	assert.NotEmpty(t, kids[1].Actions, "only text is redacted")

	n, err := src.Node(context.Background(), "pw")
	require.NoError(t, err)
	assert.Empty(t, n.Value)
}

func TestRedactor_ExtraRoles(t *testing.T) {
	r := NewRedactor(model.RoleTextField)
	assert.True(t, r.Sensitive(model.RolePasswordField))
	assert.True(t, r.Sensitive(model.RoleTextField))
	assert.False(t, r.Sensitive(model.RoleButton))
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLimiter_ThrottlesLimitPlusOne(t *testing.T) {
	clk := &clock{t: time.Unix(1700000000, 0)}
	l := NewLimiter(LimiterOptions{Limit: 100, Now: clk.now})

	for i := 0; i < 100; i++ {
		d := l.Allow(fmt.Sprintf("get_node:%d", i))
		require.True(t, d.Allowed, "request %d", i+1)
		clk.t = clk.t.Add(time.Millisecond)
	}
	d := l.Allow("query_tree:{}")
	assert.False(t, d.Allowed, "101st request within the window")
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	clk.t = clk.t.Add(time.Second)
	assert.True(t, l.Allow("query_tree:{}").Allowed, "window slid past the burst")
}

func TestLimiter_SlidingNotFixed(t *testing.T) {
	clk := &clock{t: time.Unix(1700000000, 0)}
	l := NewLimiter(LimiterOptions{Limit: 2, Window: time.Second, Now: clk.now})

	assert.True(t, l.Allow("a").Allowed)
	clk.t = clk.t.Add(900 * time.Millisecond)
	assert.True(t, l.Allow("b").Allowed)
	clk.t = clk.t.Add(200 * time.Millisecond)
	// The first request left the window; the second has not.
	assert.True(t, l.Allow("c").Allowed)
	assert.False(t, l.Allow("d").Allowed)
}

func TestLimiter_RepeatHintsGrow(t *testing.T) {
	clk := &clock{t: time.Unix(1700000000, 0)}
	l := NewLimiter(LimiterOptions{Limit: 1000, Now: clk.now})

	want := []time.Duration{0, 50, 100, 200, 400, 800, 1600, 3200, 5000, 5000}
	for i, w := range want {
		d := l.Allow("get_node:n-1")
		require.True(t, d.Allowed)
		assert.Equal(t, w*time.Millisecond, d.RetryAfter, "repeat %d", i)
		clk.t = clk.t.Add(100 * time.Millisecond)
	}

	assert.Zero(t, l.Allow("get_node:n-2").RetryAfter, "a different request has no hint")

	clk.t = clk.t.Add(3 * time.Second)
	assert.Zero(t, l.Allow("get_node:n-1").RetryAfter, "streak resets after the repeat window")
}
