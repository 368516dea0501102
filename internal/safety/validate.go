package safety

import (
	"context"
	"fmt"

	"github.com/mj1618/ax-mcp/internal/model"
)

// Actor performs actions.
type Actor interface {
	Node(ctx context.Context, id model.NodeID) (model.Node, error)
	PerformAction(ctx context.Context, id model.NodeID, action model.Action) error
}

// Validate checks action against the node's currently advertised actions.
// It returns the node so callers can log what they acted on.
func Validate(ctx context.Context, a Actor, id model.NodeID, action model.Action) (model.Node, error) {
	if err := action.Validate(); err != nil {
		return model.Node{}, model.InvalidAction(err.Error())
	}
	node, err := a.Node(ctx, id)
	if err != nil {
		return model.Node{}, err
	}
	if !node.Supports(action) {
		return node, model.InvalidAction(fmt.Sprintf("node %s (%s) does not support %s; supported: %s",
			id, node.Role, action.Type, kinds(node.Actions)))
	}
	return node, nil
}

// Perform validates and then performs action. A rejected action never
// reaches the provider.
func Perform(ctx context.Context, a Actor, id model.NodeID, action model.Action) error {
	if _, err := Validate(ctx, a, id, action); err != nil {
		return err
	}
	return a.PerformAction(ctx, id, action)
}

func kinds(actions []model.Action) string {
	if len(actions) == 0 {
		return "none"
	}
	s := ""
	for i, a := range actions {
		if i > 0 {
			s += ", "
		}
		if a.Type == model.ActionCustom {
			s += "custom(" + a.Name + ")"
		} else {
			s += string(a.Type)
		}
	}
	return s
}
