package table

import (
	"fmt"
)

// Op is the kind of structural change carried by a Mutation.
type Op uint8

const (
	// OpAdd adds a new component to a container.
	OpAdd Op = iota + 1
	// OpRemove removes a component and its subtree.
	OpRemove
	// OpMove moves a component to a container and location.
	OpMove
	// OpReorient changes the orientation of a component.
	OpReorient
	// OpResurface flips a component.
	OpResurface
	// OpRelayout changes the layout of a container.
	OpRelayout
)

// String ...
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpMove:
		return "move"
	case OpReorient:
		return "reorient"
	case OpResurface:
		return "resurface"
	case OpRelayout:
		return "relayout"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Mutation is the serializable description of one structural change,
// addressed by component ids.
type Mutation struct {
	Op          Op          `codec:"op"`
	ComponentID string      `codec:"id"`
	ParentID    string      `codec:"parent,omitempty"`
	Kind        string      `codec:"kind,omitempty"`
	Location    Point       `codec:"loc"`
	Orientation Orientation `codec:"orientation"`
	Surface     Surface     `codec:"surface"`
	Layout      Layout      `codec:"layout"`
}

// AddComponent ...
func AddComponent(parentID, id, kind string, loc Point) Mutation {
	return Mutation{Op: OpAdd, ComponentID: id, ParentID: parentID, Kind: kind, Location: loc}
}

// RemoveComponent ...
func RemoveComponent(id string) Mutation {
	return Mutation{Op: OpRemove, ComponentID: id}
}

// MoveComponent ...
func MoveComponent(id, parentID string, loc Point) Mutation {
	return Mutation{Op: OpMove, ComponentID: id, ParentID: parentID, Location: loc}
}

// Reorient ...
func Reorient(id string, o Orientation) Mutation {
	return Mutation{Op: OpReorient, ComponentID: id, Orientation: o}
}

// Resurface ...
func Resurface(id string, s Surface) Mutation {
	return Mutation{Op: OpResurface, ComponentID: id, Surface: s}
}

// Relayout ...
func Relayout(id string, l Layout) Mutation {
	return Mutation{Op: OpRelayout, ComponentID: id, Layout: l}
}

// Validate checks that the fields required by the op are set. It does not
// look at any table.
func (m Mutation) Validate() error {
	if m.ComponentID == "" {
		return fmt.Errorf("%s mutation without component id", m.Op)
	}

	switch m.Op {
	case OpAdd:
		if m.ParentID == "" {
			return fmt.Errorf("add mutation without parent id")
		}
		if m.Kind == "" {
			return fmt.Errorf("add mutation without kind")
		}
	case OpMove:
		if m.ParentID == "" {
			return fmt.Errorf("move mutation without parent id")
		}
	case OpRemove, OpReorient:
	case OpResurface:
		if m.Surface != Front && m.Surface != Back {
			return fmt.Errorf("invalid surface %d", m.Surface)
		}
	case OpRelayout:
		if !m.Layout.valid() {
			return fmt.Errorf("invalid layout %d", m.Layout)
		}
	default:
		return fmt.Errorf("unknown mutation op %d", m.Op)
	}

	return nil
}

// String ...
func (m Mutation) String() string {
	switch m.Op {
	case OpAdd:
		return fmt.Sprintf("add %s(%s) to %s at %v", m.ComponentID, m.Kind, m.ParentID, m.Location)
	case OpMove:
		return fmt.Sprintf("move %s to %s at %v", m.ComponentID, m.ParentID, m.Location)
	case OpReorient:
		return fmt.Sprintf("reorient %s %s", m.ComponentID, m.Orientation)
	case OpResurface:
		return fmt.Sprintf("resurface %s %s", m.ComponentID, m.Surface)
	case OpRelayout:
		return fmt.Sprintf("relayout %s %s", m.ComponentID, m.Layout)
	default:
		return fmt.Sprintf("%s %s", m.Op, m.ComponentID)
	}
}
