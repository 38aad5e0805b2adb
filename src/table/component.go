package table

import (
	"fmt"
)

// Point is a location relative to the parent container.
type Point struct {
	X int `codec:"x"`
	Y int `codec:"y"`
}

// Component is a node of the table tree. Containers hold an ordered list of
// children; other components are leaves. A component belongs to at most one
// container, and is attached to a table when its topmost ancestor is the root
// of that table.
type Component struct {
	id          string
	kind        string
	strategy    Strategy
	orientation Orientation
	surface     Surface
	location    Point
	layout      Layout

	parent   *Component
	children []*Component

	// only set on the root container of a table
	table *Table
}

// NewComponent creates a detached component of the given kind.
func NewComponent(registry *Registry, id string, kind string) (*Component, error) {
	if id == "" {
		return nil, fmt.Errorf("empty component id")
	}

	strategy, err := registry.Lookup(kind)
	if err != nil {
		return nil, err
	}

	return newComponent(id, kind, strategy), nil
}

func newComponent(id string, kind string, strategy Strategy) *Component {
	return &Component{
		id:          id,
		kind:        kind,
		strategy:    strategy,
		orientation: strategy.DefaultOrientation,
		surface:     Front,
		layout:      strategy.DefaultLayout,
	}
}

// ID ...
func (c *Component) ID() string {
	return c.id
}

// Kind ...
func (c *Component) Kind() string {
	return c.kind
}

// IsContainer ...
func (c *Component) IsContainer() bool {
	return c.strategy.Container
}

// Orientation ...
func (c *Component) Orientation() Orientation {
	return c.orientation
}

// Surface ...
func (c *Component) Surface() Surface {
	return c.surface
}

// Location ...
func (c *Component) Location() Point {
	return c.location
}

// Layout ...
func (c *Component) Layout() Layout {
	return c.layout
}

// Parent returns the container holding c, or nil.
func (c *Component) Parent() *Component {
	return c.parent
}

// Children returns a copy of the list of children.
func (c *Component) Children() []*Component {
	res := make([]*Component, len(c.children))
	copy(res, c.children)
	return res
}

// Table returns the table c is attached to, or nil when c is detached.
func (c *Component) Table() *Table {
	root := c
	for root.parent != nil {
		root = root.parent
	}
	return root.table
}

// touch records one structural mutation if c is attached to a table.
func (c *Component) touch() {
	if t := c.Table(); t != nil {
		t.vc.increment()
	}
}

// AddChild appends a detached component to the container c. If c is attached
// to a table, the whole subtree of child becomes attached, which counts as a
// single mutation.
func (c *Component) AddChild(child *Component) error {
	if err := c.checkAdoptable(child); err != nil {
		return err
	}

	if t := c.Table(); t != nil {
		if err := t.index(child); err != nil {
			return err
		}
	}

	child.parent = c
	c.children = append(c.children, child)
	c.touch()

	return nil
}

// RemoveChild detaches child from the container c.
func (c *Component) RemoveChild(child *Component) error {
	if child == nil || child.parent != c {
		return fmt.Errorf("%s is not a child of %s", idOf(child), c.id)
	}

	c.touch()

	if t := c.Table(); t != nil {
		t.unindex(child)
	}
	c.detach(child)

	return nil
}

// MoveTo moves c into the container parent, at location loc. Moving within
// the current parent only changes the location. A move counts as a single
// mutation.
func (c *Component) MoveTo(parent *Component, loc Point) error {
	if parent == nil {
		return fmt.Errorf("cannot move %s to a nil container", c.id)
	}

	if parent == c.parent {
		c.location = loc
		c.touch()
		return nil
	}

	if !parent.IsContainer() {
		return fmt.Errorf("%s is not a container", parent.id)
	}
	if c.table != nil {
		return fmt.Errorf("%s is the root of a table", c.id)
	}
	if parent == c || parent.isDescendantOf(c) {
		return fmt.Errorf("cannot move %s into its own subtree", c.id)
	}

	from, to := c.Table(), parent.Table()
	if from != nil && to != nil && from != to {
		return fmt.Errorf("cannot move %s between tables", c.id)
	}
	if from == nil && to != nil {
		if err := to.index(c); err != nil {
			return err
		}
	}

	// count the mutation against whichever table c belongs to before or
	// after the move
	if from != nil {
		from.vc.increment()
	} else if to != nil {
		to.vc.increment()
	}

	if from != nil && to == nil {
		from.unindex(c)
	}
	if c.parent != nil {
		c.parent.detach(c)
	}
	c.parent = parent
	c.location = loc
	parent.children = append(parent.children, c)

	return nil
}

// SetOrientation rotates c. The orientation must be supported by the
// component's strategy.
func (c *Component) SetOrientation(o Orientation) error {
	if !c.strategy.Supports(o) {
		return fmt.Errorf("%s (%s) does not support orientation %s", c.id, c.kind, o)
	}
	c.orientation = o
	c.touch()
	return nil
}

// SetSurface flips c.
func (c *Component) SetSurface(s Surface) error {
	if s != Front && s != Back {
		return fmt.Errorf("invalid surface %d", s)
	}
	c.surface = s
	c.touch()
	return nil
}

// SetLayout changes the layout of the container c.
func (c *Component) SetLayout(l Layout) error {
	if !c.IsContainer() {
		return fmt.Errorf("%s is not a container", c.id)
	}
	if !l.valid() {
		return fmt.Errorf("invalid layout %d", l)
	}
	c.layout = l
	c.touch()
	return nil
}

func (c *Component) checkAdoptable(child *Component) error {
	if !c.IsContainer() {
		return fmt.Errorf("%s is not a container", c.id)
	}
	if child == nil {
		return fmt.Errorf("nil component")
	}
	if child.parent != nil {
		return fmt.Errorf("%s already belongs to %s", child.id, child.parent.id)
	}
	if child.table != nil {
		return fmt.Errorf("%s is the root of a table", child.id)
	}
	if c == child || c.isDescendantOf(child) {
		return fmt.Errorf("cannot add %s to its own subtree", child.id)
	}
	return nil
}

func (c *Component) isDescendantOf(ancestor *Component) bool {
	for p := c.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func (c *Component) detach(child *Component) {
	for i, ch := range c.children {
		if ch == child {
			c.children = append(c.children[:i], c.children[i+1:]...)
			break
		}
	}
	child.parent = nil
}

// walk visits c and its subtree depth-first.
func (c *Component) walk(fn func(*Component)) {
	fn(c)
	for _, ch := range c.children {
		ch.walk(fn)
	}
}

func idOf(c *Component) string {
	if c == nil {
		return "<nil>"
	}
	return c.id
}
