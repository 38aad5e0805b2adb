package table

import "sync/atomic"

// RevisionSource exposes the current revision of a shared table.
type RevisionSource interface {
	RevisionNumber() int64
}

// VersionControl counts the structural mutations applied to a table. Only the
// table increments it; readers may call RevisionNumber from any goroutine.
type VersionControl struct {
	revision int64
}

// RevisionNumber implements RevisionSource.
func (vc *VersionControl) RevisionNumber() int64 {
	return atomic.LoadInt64(&vc.revision)
}

func (vc *VersionControl) increment() int64 {
	return atomic.AddInt64(&vc.revision, 1)
}

func (vc *VersionControl) reset(revision int64) {
	atomic.StoreInt64(&vc.revision, revision)
}
