package table

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/tablenet/src/common"
)

const (
	entryPrefix = "entry"
	// entries removed per transaction when purging a previous session
	purgeBatch = 1000
)

// BadgerJournal keeps recent entries in an InmemJournal and every entry of
// the session in a badger database, so that clients far behind can still be
// replayed without a snapshot.
type BadgerJournal struct {
	inmem *InmemJournal
	db    *badger.DB
	path  string
}

// NewBadgerJournal opens (or creates) the database at path. Entries left by a
// previous session are purged: revisions restart with every hosted table.
func NewBadgerJournal(cacheSize int, path string) (*BadgerJournal, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	j := &BadgerJournal{
		inmem: NewInmemJournal(cacheSize),
		db:    handle,
		path:  path,
	}

	if err := j.purge(); err != nil {
		handle.Close()
		return nil, err
	}

	return j, nil
}

// Append implements Journal.
func (j *BadgerJournal) Append(e Entry) error {
	if err := j.inmem.Append(e); err != nil {
		return err
	}
	return j.dbSetEntry(e)
}

// Since implements Journal.
func (j *BadgerJournal) Since(revision int64) ([]Entry, error) {
	res, err := j.inmem.Since(revision)
	if err == nil {
		return res, nil
	}
	if !cm.IsStore(err, cm.TooLate) {
		return nil, err
	}
	return j.dbGetEntriesSince(revision)
}

// LastRevision implements Journal.
func (j *BadgerJournal) LastRevision() int64 {
	return j.inmem.LastRevision()
}

// Close implements Journal.
func (j *BadgerJournal) Close() error {
	if err := j.inmem.Close(); err != nil {
		return err
	}
	return j.db.Close()
}

// StorePath returns the directory of the database.
func (j *BadgerJournal) StorePath() string {
	return j.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func entryKey(revision int64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", entryPrefix, revision))
}

func (j *BadgerJournal) dbSetEntry(e Entry) error {
	val, err := e.Marshal()
	if err != nil {
		return err
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e.Revision), val)
	})
}

func (j *BadgerJournal) dbGetEntriesSince(revision int64) ([]Entry, error) {
	res := []Entry{}
	prefix := []byte(entryPrefix + "_")
	expected := revision + 1

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(entryKey(expected)); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			var e Entry
			if err := e.Unmarshal(val); err != nil {
				return err
			}
			if e.Revision != expected {
				return cm.NewStoreErr("Journal", cm.SkippedIndex, strconv.FormatInt(expected, 10))
			}
			res = append(res, e)
			expected++
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	if len(res) == 0 && revision < j.LastRevision() {
		return nil, cm.NewStoreErr("Journal", cm.TooLate, strconv.FormatInt(revision, 10))
	}

	return res, nil
}

func (j *BadgerJournal) purge() error {
	prefix := []byte(entryPrefix + "_")

	for {
		keys := [][]byte{}
		err := j.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix) && len(keys) < purgeBatch; it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			return err
		}

		if len(keys) == 0 {
			return nil
		}

		err = j.db.Update(func(txn *badger.Txn) error {
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
}
