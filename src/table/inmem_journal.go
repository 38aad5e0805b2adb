package table

import (
	"sync"

	cm "github.com/mosaicnetworks/tablenet/src/common"
)

// InmemJournal keeps the most recent entries in memory.
type InmemJournal struct {
	sync.Mutex
	entries *cm.RollingIndex
}

// NewInmemJournal keeps at least size entries.
func NewInmemJournal(size int) *InmemJournal {
	if size < 1 {
		size = 1
	}
	return &InmemJournal{
		entries: cm.NewRollingIndex("Journal", size),
	}
}

// Append implements Journal.
func (j *InmemJournal) Append(e Entry) error {
	j.Lock()
	defer j.Unlock()
	return j.entries.Set(e, e.Revision)
}

// Since implements Journal.
func (j *InmemJournal) Since(revision int64) ([]Entry, error) {
	j.Lock()
	defer j.Unlock()

	items, err := j.entries.Get(revision)
	if err != nil {
		return nil, err
	}

	res := make([]Entry, len(items))
	for i, it := range items {
		res[i] = it.(Entry)
	}
	return res, nil
}

// LastRevision implements Journal.
func (j *InmemJournal) LastRevision() int64 {
	j.Lock()
	defer j.Unlock()
	return j.entries.LastIndex()
}

// Close implements Journal.
func (j *InmemJournal) Close() error {
	j.Lock()
	defer j.Unlock()
	j.entries.Reset()
	return nil
}
