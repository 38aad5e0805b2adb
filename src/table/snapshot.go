package table

import (
	"bytes"

	"github.com/mosaicnetworks/tablenet/src/crypto"
	"github.com/ugorji/go/codec"
)

// ComponentSnapshot is the serializable state of one component and its
// subtree.
type ComponentSnapshot struct {
	ID          string              `codec:"id"`
	Kind        string              `codec:"kind"`
	Orientation Orientation         `codec:"orientation"`
	Surface     Surface             `codec:"surface"`
	Location    Point               `codec:"loc"`
	Layout      Layout              `codec:"layout"`
	Children    []ComponentSnapshot `codec:"children,omitempty"`
}

// Snapshot is the serializable state of a whole table.
type Snapshot struct {
	Revision int64             `codec:"revision"`
	Root     ComponentSnapshot `codec:"root"`
}

func snapshotOf(c *Component) ComponentSnapshot {
	cs := ComponentSnapshot{
		ID:          c.id,
		Kind:        c.kind,
		Orientation: c.orientation,
		Surface:     c.surface,
		Location:    c.location,
		Layout:      c.layout,
	}
	for _, ch := range c.children {
		cs.Children = append(cs.Children, snapshotOf(ch))
	}
	return cs
}

// Marshal - json encoding of Snapshot
func (s *Snapshot) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (s *Snapshot) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(s)
}

// Hash returns the SHA256 of the canonical encoding. Two replicas with the
// same tree and revision have the same hash.
func (s *Snapshot) Hash() ([]byte, error) {
	data, err := s.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(data), nil
}

// Count returns the number of components in the snapshot, root included.
func (s *Snapshot) Count() int {
	var count func(cs ComponentSnapshot) int
	count = func(cs ComponentSnapshot) int {
		n := 1
		for _, ch := range cs.Children {
			n += count(ch)
		}
		return n
	}
	return count(s.Root)
}
