package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj1618/ax-mcp/internal/bridge"
	"github.com/mj1618/ax-mcp/internal/metrics"
	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/platform"
	"github.com/mj1618/ax-mcp/internal/platform/mock"
	"github.com/mj1618/ax-mcp/internal/protocol"
	"github.com/mj1618/ax-mcp/internal/safety"
)

// fixture is the three-level tree root -> [ButtonA, SliderB], with a label
// under ButtonA so depth limits are observable.
type fixture struct {
	backend  *mock.Backend
	button   *mock.Element
	slider   *mock.Element
	password *mock.Element
	metrics  *metrics.Metrics
	d        *Dispatcher
}

func newFixture(t *testing.T, limiter *safety.Limiter) *fixture {
	t.Helper()
	button := mock.Button("ButtonA")
	slider := mock.Slider("SliderB", 5, 0, 10, 1)
	password := mock.PasswordField("Secret", "hunter2")
	backend := mock.New(mock.App("root", button, slider, password))
	backend.Append(button, mock.Text("Label"))

	b, err := bridge.New(bridge.Options{Timeout: time.Second})
	require.NoError(t, err)
	m := metrics.New()
	p := bridge.Wrap(b, mock.NewProvider(backend, platform.Options{BootstrapTimeout: time.Second}), time.Second)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Close(ctx)
		_ = b.Close(ctx)
	})

	if limiter == nil {
		limiter = safety.NewLimiter(safety.LimiterOptions{Limit: 10_000})
	}
	d := NewDispatcher(Options{Provider: p, Limiter: limiter, MaxNodes: 500, Metrics: m})
	return &fixture{backend: backend, button: button, slider: slider, password: password, metrics: m, d: d}
}

func (f *fixture) call(t *testing.T, method string, params any) protocol.Response {
	t.Helper()
	return f.callVersion(t, protocol.Version, method, params)
}

func (f *fixture) callVersion(t *testing.T, version, method string, params any) protocol.Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		require.NoError(t, err)
	}
	return f.d.Dispatch(context.Background(), protocol.Request{ProtocolVersion: version, Method: method, Params: raw})
}

func (f *fixture) tree(t *testing.T) []model.Node {
	t.Helper()
	resp := f.call(t, protocol.MethodQueryTree, nil)
	require.Equal(t, protocol.StatusSuccess, resp.Status, "%+v", resp.Error)
	return resp.Result.(protocol.QueryTreeResult).Nodes
}

func (f *fixture) idOf(t *testing.T, name string) model.NodeID {
	t.Helper()
	for _, n := range f.tree(t) {
		if n.Name == name {
			return n.ID
		}
	}
	t.Fatalf("no node named %q", name)
	return ""
}

func requireCategory(t *testing.T, resp protocol.Response, want model.Category) {
	t.Helper()
	require.Equal(t, protocol.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, want, resp.Error.Category, resp.Error.Message)
}

func TestScenario_QueryTreeDepthOne(t *testing.T) {
	f := newFixture(t, nil)
	depth := 1
	resp := f.call(t, protocol.MethodQueryTree, protocol.QueryTreeParams{MaxDepth: &depth})
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	result := resp.Result.(protocol.QueryTreeResult)
	names := make([]string, len(result.Nodes))
	for i, n := range result.Nodes {
		names[i] = n.Name
	}
	assert.Equal(t, []string{"root", "ButtonA", "SliderB", ""}, names, "password name is redacted")
	assert.NotContains(t, names, "Label")
	assert.Empty(t, result.ContinuationToken)
}

func TestScenario_GetMissingNode(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.call(t, protocol.MethodGetNode, protocol.GetNodeParams{NodeID: "missing"})
	requireCategory(t, resp, model.CategoryNotFound)
}

func TestScenario_IncrementSlider(t *testing.T) {
	f := newFixture(t, nil)
	id := f.idOf(t, "SliderB")

	resp := f.call(t, protocol.MethodPerformAction, protocol.PerformActionParams{NodeID: id, Action: model.Increment()})
	require.Equal(t, protocol.StatusSuccess, resp.Status, "%+v", resp.Error)
	assert.Equal(t, protocol.ActionResult{Success: true}, resp.Result)

	resp = f.call(t, protocol.MethodGetNode, protocol.GetNodeParams{NodeID: id})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, "6", resp.Result.(protocol.NodeResult).Node.Value)
}

func TestScenario_UnsupportedActionNeverReachesProvider(t *testing.T) {
	f := newFixture(t, nil)
	id := f.idOf(t, "ButtonA")

	resp := f.call(t, protocol.MethodPerformAction, protocol.PerformActionParams{NodeID: id, Action: model.Increment()})
	requireCategory(t, resp, model.CategoryInvalidAction)
	assert.Zero(t, f.backend.Calls(mock.CallPerform))
}

func TestScenario_UnknownMajorVersion(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.callVersion(t, "9.0", protocol.MethodQueryTree, nil)
	requireCategory(t, resp, model.CategoryVersionMismatch)
	assert.Zero(t, f.backend.Calls(mock.CallRoot), "provider must not be touched")
	assert.Zero(t, f.backend.Calls(mock.CallAttributes))
}

func TestDispatch_MinorVersionAccepted(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.callVersion(t, "1.4", protocol.MethodGetNode, protocol.GetNodeParams{NodeID: f.idOf(t, "ButtonA")})
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, protocol.Version, resp.ProtocolVersion)
}

func TestDispatch_UnknownMethod(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.call(t, "delete_everything", nil)
	requireCategory(t, resp, model.CategoryInvalidAction)
	assert.Equal(t, "unknown method", resp.Error.Message)
}

func TestDispatch_Initialize(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.call(t, protocol.MethodInitialize, nil)
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	info := resp.Result.(protocol.InitializeResult)
	assert.Equal(t, "mock", info.Backend)
	assert.Equal(t, ServerName, info.Server.Name)
	assert.Contains(t, info.Methods, protocol.MethodFindByName)
}

func TestDispatch_LiveIDsResolve(t *testing.T) {
	f := newFixture(t, nil)
	for _, n := range f.tree(t) {
		resp := f.call(t, protocol.MethodGetNode, protocol.GetNodeParams{NodeID: n.ID})
		require.Equal(t, protocol.StatusSuccess, resp.Status, "node %s", n.ID)
		got := resp.Result.(protocol.NodeResult).Node
		assert.Equal(t, n.Role, got.Role)
		assert.Equal(t, n.Name, got.Name)
	}
}

func TestDispatch_RemovedNodeIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	id := f.idOf(t, "SliderB")
	f.backend.Remove(f.slider)

	resp := f.call(t, protocol.MethodGetNode, protocol.GetNodeParams{NodeID: id})
	requireCategory(t, resp, model.CategoryNotFound)
}

func TestDispatch_PasswordRedactedEverywhere(t *testing.T) {
	f := newFixture(t, nil)
	var id model.NodeID
	for _, n := range f.tree(t) {
		if n.Role == model.RolePasswordField {
			id = n.ID
			assert.Empty(t, n.Name)
			assert.Empty(t, n.Value)
		}
	}
	require.NotEmpty(t, id)

	resp := f.call(t, protocol.MethodGetNode, protocol.GetNodeParams{NodeID: id})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Empty(t, resp.Result.(protocol.NodeResult).Node.Value)

	resp = f.call(t, protocol.MethodFindByName, protocol.FindByNameParams{Name: "secret"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Empty(t, resp.Result.(protocol.NodesResult).Nodes, "redacted names are not searchable")
}

func TestDispatch_FindByName(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.call(t, protocol.MethodFindByName, protocol.FindByNameParams{Name: "slider"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	nodes := resp.Result.(protocol.NodesResult).Nodes
	require.Len(t, nodes, 1)
	assert.Equal(t, "SliderB", nodes[0].Name)

	resp = f.call(t, protocol.MethodFindByName, protocol.FindByNameParams{})
	requireCategory(t, resp, model.CategoryInvalidAction)
}

func TestDispatch_Pagination(t *testing.T) {
	f := newFixture(t, nil)
	full := f.tree(t)

	var paged []model.NodeID
	params := protocol.QueryTreeParams{MaxNodes: 2}
	for i := 0; ; i++ {
		require.Less(t, i, 10)
		resp := f.call(t, protocol.MethodQueryTree, params)
		require.Equal(t, protocol.StatusSuccess, resp.Status)
		result := resp.Result.(protocol.QueryTreeResult)
		for _, n := range result.Nodes {
			paged = append(paged, n.ID)
		}
		if result.ContinuationToken == "" {
			break
		}
		params.ContinuationToken = result.ContinuationToken
	}
	want := make([]model.NodeID, len(full))
	for i, n := range full {
		want[i] = n.ID
	}
	assert.Equal(t, want, paged)
}

func TestDispatch_SetValueNotRetriedOnTransient(t *testing.T) {
	f := newFixture(t, nil)
	id := f.idOf(t, "SliderB")
	f.backend.Inject(mock.CallPerform, model.Transient("bus busy", nil))

	resp := f.call(t, protocol.MethodPerformAction, protocol.PerformActionParams{NodeID: id, Action: model.SetValue("3")})
	requireCategory(t, resp, model.CategoryTransient)
	assert.Equal(t, 1, f.backend.Calls(mock.CallPerform), "mutating actions are never retried")
	assert.Equal(t, "5", f.slider.Value)
}

func TestDispatch_FocusRetriedOnceOnTransient(t *testing.T) {
	f := newFixture(t, nil)
	id := f.idOf(t, "SliderB")
	f.backend.Inject(mock.CallPerform, model.Transient("bus busy", nil))

	resp := f.call(t, protocol.MethodPerformAction, protocol.PerformActionParams{NodeID: id, Action: model.Focus()})
	require.Equal(t, protocol.StatusSuccess, resp.Status, "%+v", resp.Error)
	assert.Equal(t, 2, f.backend.Calls(mock.CallPerform))
}

func TestDispatch_ReadRetriedOnlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	id := f.idOf(t, "ButtonA")
	before := f.backend.Calls(mock.CallAttributes)
	f.backend.Inject(mock.CallAttributes,
		model.Transient("bus busy", nil),
		model.Transient("bus busy", nil),
	)

	resp := f.call(t, protocol.MethodGetNode, protocol.GetNodeParams{NodeID: id})
	requireCategory(t, resp, model.CategoryTransient)
	assert.Equal(t, before+2, f.backend.Calls(mock.CallAttributes))
}

func TestDispatch_Throttled(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := safety.NewLimiter(safety.LimiterOptions{Limit: 3, Window: time.Second, Now: func() time.Time { return now }})
	f := newFixture(t, limiter)

	methods := []string{protocol.MethodInitialize, protocol.MethodQueryTree, protocol.MethodFindByName}
	for i, m := range methods {
		params := any(nil)
		if m == protocol.MethodFindByName {
			params = protocol.FindByNameParams{Name: "a"}
		}
		resp := f.call(t, m, params)
		require.Equal(t, protocol.StatusSuccess, resp.Status, "request %d", i)
	}
	resp := f.call(t, protocol.MethodGetNode, protocol.GetNodeParams{NodeID: "whatever"})
	requireCategory(t, resp, model.CategoryThrottled)
	assert.Positive(t, resp.RetryAfterMs)

	now = now.Add(1100 * time.Millisecond)
	resp = f.call(t, protocol.MethodInitialize, nil)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
}

func TestDispatch_RepeatedRequestGetsBackoffHint(t *testing.T) {
	f := newFixture(t, nil)
	first := f.call(t, protocol.MethodInitialize, nil)
	assert.Zero(t, first.RetryAfterMs)
	second := f.call(t, protocol.MethodInitialize, nil)
	assert.Equal(t, protocol.StatusSuccess, second.Status)
	assert.Equal(t, int64(50), second.RetryAfterMs)
	third := f.call(t, protocol.MethodInitialize, nil)
	assert.Equal(t, int64(100), third.RetryAfterMs)
}

func TestHandle_MalformedJSON(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.d.Handle(context.Background(), []byte(`{"protocol_version":`))
	requireCategory(t, resp, model.CategoryInvalidAction)
}

func TestHandle_EchoesID(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.d.Handle(context.Background(), []byte(`{"protocol_version":"1.0","id":"req-7","method":"initialize"}`))
	assert.Equal(t, `"req-7"`, string(resp.ID))
}

func TestFingerprint_IgnoresWhitespace(t *testing.T) {
	a := fingerprint(protocol.Request{Method: "get_node", Params: json.RawMessage(`{"node_id": "n-1"}`)})
	b := fingerprint(protocol.Request{Method: "get_node", Params: json.RawMessage(`{"node_id":"n-1"}`)})
	c := fingerprint(protocol.Request{Method: "get_node", Params: json.RawMessage(`{"node_id":"n-2"}`)})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
