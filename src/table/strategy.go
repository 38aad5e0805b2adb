package table

import (
	"fmt"
	"sort"
	"sync"
)

// Orientation is the rotation of a component, in quarter turns.
type Orientation uint8

const (
	// North is upright.
	North Orientation = iota
	// East is rotated a quarter turn clockwise.
	East
	// South is upside down.
	South
	// West is rotated a quarter turn counter-clockwise.
	West
)

// String ...
func (o Orientation) String() string {
	switch o {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return fmt.Sprintf("orientation(%d)", uint8(o))
	}
}

// Surface is the side of a component facing up.
type Surface uint8

const (
	// Front ...
	Front Surface = iota
	// Back ...
	Back
)

// String ...
func (s Surface) String() string {
	switch s {
	case Front:
		return "front"
	case Back:
		return "back"
	default:
		return fmt.Sprintf("surface(%d)", uint8(s))
	}
}

// Layout is the arrangement a container applies to its children.
type Layout uint8

const (
	// Free lets children keep their own location.
	Free Layout = iota
	// Stack piles children on top of each other.
	Stack
	// Row lines children up horizontally.
	Row
	// Grid arranges children in rows and columns.
	Grid
)

// String ...
func (l Layout) String() string {
	switch l {
	case Free:
		return "free"
	case Stack:
		return "stack"
	case Row:
		return "row"
	case Grid:
		return "grid"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

func (l Layout) valid() bool {
	return l <= Grid
}

// Strategy is the set of capabilities of a component kind.
type Strategy struct {
	Container             bool
	DefaultOrientation    Orientation
	SupportedOrientations []Orientation
	DefaultLayout         Layout
}

// Supports reports whether the strategy allows orientation o.
func (s Strategy) Supports(o Orientation) bool {
	for _, so := range s.SupportedOrientations {
		if so == o {
			return true
		}
	}
	return false
}

// StrategyFactory builds the Strategy of a component kind.
type StrategyFactory func() Strategy

// RootKind is the kind of the root container of every table.
const RootKind = "table"

// Registry maps component kinds to strategy factories. Registries are plain
// values handed to New; there is no process-wide registry.
type Registry struct {
	sync.RWMutex
	factories map[string]StrategyFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]StrategyFactory),
	}
}

// Register adds a kind. Registering the same kind twice is an error.
func (r *Registry) Register(kind string, factory StrategyFactory) error {
	if kind == "" {
		return fmt.Errorf("empty component kind")
	}
	if factory == nil {
		return fmt.Errorf("nil strategy factory for kind %q", kind)
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("component kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Lookup resolves the strategy of a kind.
func (r *Registry) Lookup(kind string) (Strategy, error) {
	r.RLock()
	factory, ok := r.factories[kind]
	r.RUnlock()

	if !ok {
		return Strategy{}, fmt.Errorf("unknown component kind %q, registered kinds are %v", kind, r.Kinds())
	}
	return factory(), nil
}

// Kinds returns the registered kinds in lexical order.
func (r *Registry) Kinds() []string {
	r.RLock()
	defer r.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// AllOrientations ...
func AllOrientations() []Orientation {
	return []Orientation{North, East, South, West}
}

// ContainerStrategy returns a container factory with the given default layout.
func ContainerStrategy(layout Layout) StrategyFactory {
	return func() Strategy {
		return Strategy{
			Container:             true,
			DefaultOrientation:    North,
			SupportedOrientations: AllOrientations(),
			DefaultLayout:         layout,
		}
	}
}

// PieceStrategy returns a leaf factory supporting the given orientations; the
// first one is the default.
func PieceStrategy(orientations ...Orientation) StrategyFactory {
	if len(orientations) == 0 {
		orientations = []Orientation{North}
	}
	return func() Strategy {
		supported := make([]Orientation, len(orientations))
		copy(supported, orientations)
		return Strategy{
			DefaultOrientation:    supported[0],
			SupportedOrientations: supported,
		}
	}
}

// NewStandardRegistry returns a Registry with the kinds of a classic card and
// board game table.
func NewStandardRegistry() *Registry {
	r := NewRegistry()
	r.Register(RootKind, ContainerStrategy(Free))
	r.Register("board", ContainerStrategy(Free))
	r.Register("deck", ContainerStrategy(Stack))
	r.Register("hand", ContainerStrategy(Row))
	r.Register("card", PieceStrategy(North, South))
	r.Register("token", PieceStrategy(AllOrientations()...))
	r.Register("die", PieceStrategy(North))
	return r
}
