package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionKind is the tag of an Action variant.
type ActionKind string

const (
	ActionFocus       ActionKind = "focus"
	ActionPress       ActionKind = "press"
	ActionIncrement   ActionKind = "increment"
	ActionDecrement   ActionKind = "decrement"
	ActionSetValue    ActionKind = "set_value"
	ActionScroll      ActionKind = "scroll"
	ActionContextMenu ActionKind = "context_menu"
	ActionCustom      ActionKind = "custom"
)

// ActionKinds lists every supported kind in wire order.
var ActionKinds = []ActionKind{
	ActionFocus, ActionPress, ActionIncrement, ActionDecrement,
	ActionSetValue, ActionScroll, ActionContextMenu, ActionCustom,
}

// ParseActionKind converts a wire tag to an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ActionKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown action type: %q", s)
}

// Action is a tagged variant. Only the fields belonging to Type are used:
// Value for set_value, X/Y for scroll, Name for custom.
type Action struct {
	Type  ActionKind `json:"type"            yaml:"type"            mapstructure:"type"`
	Value string     `json:"value,omitempty" yaml:"value,omitempty" mapstructure:"value"`
	X     float64    `json:"x,omitempty"     yaml:"x,omitempty"     mapstructure:"x"`
	Y     float64    `json:"y,omitempty"     yaml:"y,omitempty"     mapstructure:"y"`
	Name  string     `json:"name,omitempty"  yaml:"name,omitempty"  mapstructure:"name"`
}

func Focus() Action { return Action{Type: ActionFocus} }
func Press() Action { return Action{Type: ActionPress} }
func Increment() Action { return Action{Type: ActionIncrement} }
func Decrement() Action { return Action{Type: ActionDecrement} }
func SetValue(text string) Action { return Action{Type: ActionSetValue, Value: text} }
func Scroll(dx, dy float64) Action { return Action{Type: ActionScroll, X: dx, Y: dy} }
func ContextMenu() Action { return Action{Type: ActionContextMenu} }
func Custom(name string) Action { return Action{Type: ActionCustom, Name: name} }

// Matches reports whether a (an advertised capability) covers the requested
// action b. Payloads are ignored except for custom actions, which match by name.
func (a Action) Matches(b Action) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type == ActionCustom {
		return a.Name == b.Name
	}
	return true
}

// Mutating reports whether the action changes application state. Mutating
// actions are never retried automatically.
func (a Action) Mutating() bool {
	switch a.Type {
	case ActionFocus, ActionScroll, ActionContextMenu:
		return false
	default:
		return true
	}
}

// Capability strips the payload, leaving the form a node advertises.
func (a Action) Capability() Action {
	if a.Type == ActionCustom {
		return Action{Type: ActionCustom, Name: a.Name}
	}
	return Action{Type: a.Type}
}

// Validate checks that the variant is well formed.
func (a Action) Validate() error {
	if _, err := ParseActionKind(string(a.Type)); err != nil {
		return err
	}
	if a.Type == ActionCustom && a.Name == "" {
		return fmt.Errorf("custom action requires a name")
	}
	return nil
}

func (a Action) String() string {
	switch a.Type {
	case ActionSetValue:
		return fmt.Sprintf("set_value(%d chars)", len(a.Value))
	case ActionScroll:
		return fmt.Sprintf("scroll(%g,%g)", a.X, a.Y)
	case ActionCustom:
		return "custom(" + a.Name + ")"
	default:
		return string(a.Type)
	}
}

// UnmarshalJSON normalises the type tag and rejects unknown variants.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	kind, err := ParseActionKind(string(p.Type))
	if err != nil {
		return err
	}
	p.Type = kind
	*a = Action(p)
	return a.Validate()
}

// Capabilities builds an advertised action set, dropping duplicates.
func Capabilities(actions ...Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		c := a.Capability()
		dup := false
		for _, have := range out {
			if have.Matches(c) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}
