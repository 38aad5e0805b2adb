package table

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) *Table {
	tb := New(NewStandardRegistry())
	require.Equal(t, int64(0), tb.RevisionNumber())
	require.Equal(t, 1, tb.Len())
	return tb
}

func TestApplyIncrementsOnce(t *testing.T) {
	tb := newTestTable(t)

	muts := []Mutation{
		AddComponent(RootID, "deck", "deck", Point{X: 1, Y: 1}),
		AddComponent("deck", "ace", "card", Point{}),
		AddComponent(RootID, "hand", "hand", Point{X: 5}),
		MoveComponent("ace", "hand", Point{X: 2}),
		Reorient("ace", South),
		Resurface("ace", Back),
		Relayout("hand", Grid),
		RemoveComponent("deck"),
	}

	for i, m := range muts {
		require.NoError(t, tb.Apply(m), m.String())
		require.Equal(t, int64(i+1), tb.RevisionNumber(), m.String())
	}

	ace, ok := tb.Component("ace")
	require.True(t, ok)
	require.Equal(t, "hand", ace.Parent().ID())
	require.Equal(t, South, ace.Orientation())
	require.Equal(t, Back, ace.Surface())
	require.Equal(t, Point{X: 2}, ace.Location())

	_, ok = tb.Component("deck")
	require.False(t, ok)
	require.Equal(t, 3, tb.Len())
}

func TestApplyFailureLeavesTableUnchanged(t *testing.T) {
	tb := newTestTable(t)
	require.NoError(t, tb.Apply(AddComponent(RootID, "ace", "card", Point{})))

	bad := []Mutation{
		AddComponent(RootID, "ace", "card", Point{}),
		AddComponent("ace", "king", "card", Point{}),
		AddComponent(RootID, "x", "unknown-kind", Point{}),
		AddComponent("nowhere", "y", "card", Point{}),
		RemoveComponent(RootID),
		MoveComponent(RootID, "ace", Point{}),
		Reorient("ace", East),
		Relayout("ace", Grid),
		{Op: OpAdd},
		{Op: 42, ComponentID: "ace"},
	}

	for _, m := range bad {
		require.Error(t, tb.Apply(m), m.String())
		require.Equal(t, int64(1), tb.RevisionNumber(), m.String())
	}
	require.Equal(t, 2, tb.Len())
}

func TestDetachedMutationsDoNotCount(t *testing.T) {
	tb := newTestTable(t)
	reg := tb.Registry()

	deck, err := NewComponent(reg, "deck", "deck")
	require.NoError(t, err)
	for _, id := range []string{"c1", "c2", "c3"} {
		c, err := NewComponent(reg, id, "card")
		require.NoError(t, err)
		require.NoError(t, deck.AddChild(c))
		require.NoError(t, c.SetSurface(Back))
	}
	require.NoError(t, deck.SetLayout(Row))
	require.Equal(t, int64(0), tb.RevisionNumber())

	// attaching a whole subtree is one mutation
	require.NoError(t, tb.Root().AddChild(deck))
	require.Equal(t, int64(1), tb.RevisionNumber())
	require.Equal(t, 5, tb.Len())

	c2, ok := tb.Component("c2")
	require.True(t, ok)
	require.Equal(t, tb, c2.Table())

	require.NoError(t, deck.RemoveChild(c2))
	require.Equal(t, int64(2), tb.RevisionNumber())
	require.Nil(t, c2.Table())

	require.NoError(t, c2.SetSurface(Front))
	require.Equal(t, int64(2), tb.RevisionNumber())
}

func TestMoveRules(t *testing.T) {
	tb := newTestTable(t)
	require.NoError(t, tb.Apply(AddComponent(RootID, "board", "board", Point{})))
	require.NoError(t, tb.Apply(AddComponent("board", "deck", "deck", Point{})))
	require.NoError(t, tb.Apply(AddComponent("deck", "card", "card", Point{})))
	rev := tb.RevisionNumber()

	board, _ := tb.Component("board")
	deck, _ := tb.Component("deck")
	card, _ := tb.Component("card")

	require.Error(t, board.MoveTo(deck, Point{}))
	require.Error(t, board.MoveTo(board, Point{}))
	require.Error(t, deck.MoveTo(card, Point{}))
	require.Error(t, tb.Root().MoveTo(board, Point{}))

	other := New(tb.Registry())
	require.Error(t, card.MoveTo(other.Root(), Point{}))
	require.Equal(t, rev, tb.RevisionNumber())
	require.Equal(t, int64(0), other.RevisionNumber())

	require.NoError(t, card.MoveTo(board, Point{X: 3, Y: 4}))
	require.Equal(t, rev+1, tb.RevisionNumber())
	require.Len(t, deck.Children(), 0)
	require.Len(t, board.Children(), 2)

	// within the same container only the location changes
	require.NoError(t, card.MoveTo(board, Point{X: 7}))
	require.Equal(t, rev+2, tb.RevisionNumber())
	require.Len(t, board.Children(), 2)
}

func TestSnapshotRestore(t *testing.T) {
	tb := newTestTable(t)
	require.NoError(t, tb.Apply(AddComponent(RootID, "deck", "deck", Point{X: 1})))
	require.NoError(t, tb.Apply(AddComponent("deck", "ace", "card", Point{})))
	require.NoError(t, tb.Apply(Resurface("ace", Back)))
	require.NoError(t, tb.Apply(AddComponent(RootID, "die", "die", Point{X: 9, Y: 9})))

	snap := tb.Snapshot()
	require.Equal(t, int64(4), snap.Revision)
	require.Equal(t, 4, snap.Count())

	data, err := snap.Marshal()
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, decoded.Unmarshal(data))

	h1, err := snap.Hash()
	require.NoError(t, err)
	h2, err := decoded.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	replica := New(NewStandardRegistry())
	require.NoError(t, replica.Apply(AddComponent(RootID, "junk", "token", Point{})))
	require.NoError(t, replica.Restore(&decoded))

	require.Equal(t, int64(4), replica.RevisionNumber())
	require.Equal(t, 4, replica.Len())
	_, ok := replica.Component("junk")
	require.False(t, ok)

	ace, ok := replica.Component("ace")
	require.True(t, ok)
	require.Equal(t, Back, ace.Surface())
	require.Equal(t, "deck", ace.Parent().ID())

	h3, err := replica.Snapshot().Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h3)

	// both replicas keep counting from the same revision
	m := MoveComponent("ace", RootID, Point{X: 2})
	require.NoError(t, tb.Apply(m))
	require.NoError(t, replica.Apply(m))
	require.Equal(t, tb.RevisionNumber(), replica.RevisionNumber())
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	tb := newTestTable(t)
	require.NoError(t, tb.Apply(AddComponent(RootID, "ace", "card", Point{})))

	dup := &Snapshot{
		Revision: 3,
		Root: ComponentSnapshot{
			ID:   RootID,
			Kind: RootKind,
			Children: []ComponentSnapshot{
				{ID: "a", Kind: "card"},
				{ID: "a", Kind: "card"},
			},
		},
	}
	notContainer := &Snapshot{
		Revision: 3,
		Root: ComponentSnapshot{
			ID:   RootID,
			Kind: RootKind,
			Children: []ComponentSnapshot{
				{ID: "a", Kind: "card", Children: []ComponentSnapshot{{ID: "b", Kind: "card"}}},
			},
		},
	}

	for _, s := range []*Snapshot{nil, dup, notContainer, {Revision: -1}, {Root: ComponentSnapshot{ID: "x"}}} {
		require.Error(t, tb.Restore(s))
	}
	require.Equal(t, int64(1), tb.RevisionNumber())
	_, ok := tb.Component("ace")
	require.True(t, ok)
}

func TestRegistry(t *testing.T) {
	r := NewStandardRegistry()
	require.Error(t, r.Register("card", PieceStrategy()))

	s, err := r.Lookup("card")
	require.NoError(t, err)
	require.False(t, s.Container)
	require.True(t, s.Supports(South))
	require.False(t, s.Supports(East))

	_, err = r.Lookup("spaceship")
	require.Error(t, err)
	require.Contains(t, err.Error(), "card")

	require.Contains(t, r.Kinds(), "deck")
}
