package table

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// Entry is one mutation as ordered by the host: the revision the table
// reached after applying it, and the player it came from.
type Entry struct {
	Revision int64    `codec:"revision"`
	Origin   string   `codec:"origin"`
	Mutation Mutation `codec:"mutation"`
}

// Marshal - json encoding of Entry
func (e *Entry) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(e); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (e *Entry) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(e)
}

// Journal records the mutations broadcast by a host so that clients which
// missed some of them can catch up without a full snapshot.
type Journal interface {
	// Append records e. Revisions must be contiguous.
	Append(e Entry) error
	// Since returns the entries with a revision greater than revision, in
	// order. It fails with a TooLate StoreErr when some are no longer held.
	Since(revision int64) ([]Entry, error)
	// LastRevision returns the revision of the newest entry, or -1.
	LastRevision() int64
	// Close releases the resources of the journal.
	Close() error
}
