package model

// NodeID is an opaque identifier for one accessibility element. It stays the
// same across queries for as long as the element is resolvable.
type NodeID string

func (id NodeID) String() string { return string(id) }

// Unit tags the coordinate space of a Rect.
type Unit string

const (
	UnitPixel Unit = "px"  // physical screen pixels
	UnitDIP   Unit = "dip" // device-independent points
)

// Rect is a screen rectangle with a top-left origin.
type Rect struct {
	X      float64 `json:"x"      yaml:"x"`
	Y      float64 `json:"y"      yaml:"y"`
	Width  float64 `json:"width"  yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Unit   Unit    `json:"unit"   yaml:"unit"`
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Node is a snapshot of one accessibility element. Nodes are values: they are
// rebuilt from live platform state on every query and never cached. Children
// are weak references resolved through the identity cache on demand.
type Node struct {
	ID          NodeID   `json:"id"                    yaml:"id"`
	Role        Role     `json:"role"                  yaml:"role"`
	Name        string   `json:"name,omitempty"        yaml:"name,omitempty"`
	Value       string   `json:"value,omitempty"       yaml:"value,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Bounds      *Rect    `json:"bounds,omitempty"      yaml:"bounds,omitempty"`
	Actions     []Action `json:"actions"               yaml:"actions"`
	Children    []NodeID `json:"children"              yaml:"children"`
}

// Supports reports whether the node advertises the given action.
func (n Node) Supports(a Action) bool {
	for _, have := range n.Actions {
		if have.Matches(a) {
			return true
		}
	}
	return false
}

// Attributes is what a backend reports about a native element, before the
// element and its children have been assigned NodeIDs.
type Attributes struct {
	Role        Role
	Name        string
	Value       string
	Description string
	Bounds      *Rect
	Actions     []Action
}
