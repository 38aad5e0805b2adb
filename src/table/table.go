package table

import (
	"fmt"
)

// RootID is the component id of the root container of every table.
const RootID = "table"

// Model is what the network layer needs from a shared table.
type Model interface {
	RevisionSource
	Apply(m Mutation) error
	Snapshot() *Snapshot
	Restore(s *Snapshot) error
}

// Table is a tree of components rooted at a container, plus the version
// control counting its structural mutations. A Table is not safe for
// concurrent mutation; callers serialize Apply, Restore and direct component
// mutations themselves. RevisionNumber may be read concurrently.
type Table struct {
	registry *Registry
	vc       VersionControl
	root     *Component
	byID     map[string]*Component
}

// New returns an empty table at revision 0.
func New(registry *Registry) *Table {
	t := &Table{
		registry: registry,
	}
	t.reset(t.newRoot())
	return t
}

func (t *Table) newRoot() *Component {
	strategy, err := t.registry.Lookup(RootKind)
	if err != nil || !strategy.Container {
		strategy = ContainerStrategy(Free)()
	}
	root := newComponent(RootID, RootKind, strategy)
	root.table = t
	return root
}

func (t *Table) reset(root *Component) {
	t.root = root
	t.byID = make(map[string]*Component)
	root.walk(func(c *Component) {
		t.byID[c.id] = c
	})
}

// Registry returns the strategy registry of the table.
func (t *Table) Registry() *Registry {
	return t.registry
}

// Root returns the root container.
func (t *Table) Root() *Component {
	return t.root
}

// RevisionNumber implements RevisionSource.
func (t *Table) RevisionNumber() int64 {
	return t.vc.RevisionNumber()
}

// VersionControl ...
func (t *Table) VersionControl() *VersionControl {
	return &t.vc
}

// Component finds an attached component by id.
func (t *Table) Component(id string) (*Component, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// Len returns the number of attached components, root included.
func (t *Table) Len() int {
	return len(t.byID)
}

// index registers the subtree of c, failing without side effects if any id
// is already used on the table.
func (t *Table) index(c *Component) error {
	var dup string
	seen := make(map[string]bool)
	c.walk(func(x *Component) {
		if _, ok := t.byID[x.id]; ok || seen[x.id] {
			if dup == "" {
				dup = x.id
			}
		}
		seen[x.id] = true
	})
	if dup != "" {
		return fmt.Errorf("component id %q already used on the table", dup)
	}

	c.walk(func(x *Component) {
		t.byID[x.id] = x
	})
	return nil
}

func (t *Table) unindex(c *Component) {
	c.walk(func(x *Component) {
		delete(t.byID, x.id)
	})
}

// Apply performs the structural change described by m. On success the
// revision has been incremented exactly once; on failure the table is
// unchanged.
func (t *Table) Apply(m Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	switch m.Op {
	case OpAdd:
		parent, err := t.lookup(m.ParentID)
		if err != nil {
			return err
		}
		c, err := NewComponent(t.registry, m.ComponentID, m.Kind)
		if err != nil {
			return err
		}
		c.location = m.Location
		return parent.AddChild(c)
	case OpRemove:
		c, err := t.lookupChild(m.ComponentID)
		if err != nil {
			return err
		}
		return c.parent.RemoveChild(c)
	case OpMove:
		c, err := t.lookupChild(m.ComponentID)
		if err != nil {
			return err
		}
		parent, err := t.lookup(m.ParentID)
		if err != nil {
			return err
		}
		return c.MoveTo(parent, m.Location)
	case OpReorient:
		c, err := t.lookup(m.ComponentID)
		if err != nil {
			return err
		}
		return c.SetOrientation(m.Orientation)
	case OpResurface:
		c, err := t.lookup(m.ComponentID)
		if err != nil {
			return err
		}
		return c.SetSurface(m.Surface)
	case OpRelayout:
		c, err := t.lookup(m.ComponentID)
		if err != nil {
			return err
		}
		return c.SetLayout(m.Layout)
	default:
		return fmt.Errorf("unknown mutation op %d", m.Op)
	}
}

func (t *Table) lookup(id string) (*Component, error) {
	c, ok := t.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown component %q", id)
	}
	return c, nil
}

func (t *Table) lookupChild(id string) (*Component, error) {
	c, err := t.lookup(id)
	if err != nil {
		return nil, err
	}
	if c == t.root {
		return nil, fmt.Errorf("the root container cannot be removed or moved")
	}
	return c, nil
}

// Snapshot captures the whole tree and the current revision.
func (t *Table) Snapshot() *Snapshot {
	return &Snapshot{
		Revision: t.vc.RevisionNumber(),
		Root:     snapshotOf(t.root),
	}
}

// Restore replaces the tree with the one captured in s and adopts its
// revision. Restoring is not a mutation: the revision is set, not
// incremented.
func (t *Table) Restore(s *Snapshot) error {
	if s == nil {
		return fmt.Errorf("nil snapshot")
	}
	if s.Revision < 0 {
		return fmt.Errorf("negative snapshot revision %d", s.Revision)
	}
	if s.Root.ID != RootID {
		return fmt.Errorf("snapshot root should be %q, not %q", RootID, s.Root.ID)
	}

	root := t.newRoot()
	seen := map[string]bool{RootID: true}
	if err := t.restoreChildren(root, s.Root, seen); err != nil {
		return err
	}
	root.layout = s.Root.Layout

	t.reset(root)
	t.vc.reset(s.Revision)

	return nil
}

func (t *Table) restoreChildren(parent *Component, cs ComponentSnapshot, seen map[string]bool) error {
	for _, chs := range cs.Children {
		if seen[chs.ID] {
			return fmt.Errorf("duplicate component id %q in snapshot", chs.ID)
		}
		seen[chs.ID] = true

		c, err := NewComponent(t.registry, chs.ID, chs.Kind)
		if err != nil {
			return err
		}
		if len(chs.Children) > 0 && !c.IsContainer() {
			return fmt.Errorf("%s (%s) is not a container", c.id, c.kind)
		}
		c.orientation = chs.Orientation
		c.surface = chs.Surface
		c.location = chs.Location
		c.layout = chs.Layout
		c.parent = parent
		parent.children = append(parent.children, c)

		if err := t.restoreChildren(c, chs, seen); err != nil {
			return err
		}
	}
	return nil
}
