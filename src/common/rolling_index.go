package common

import "strconv"

// RollingIndex keeps the most recent items of an indexed sequence. Indexes
// are contiguous; once more than 2*size items are held, the oldest size items
// are dropped.
type RollingIndex struct {
	name      string
	size      int
	lastIndex int64
	items     []interface{}
}

// NewRollingIndex ...
func NewRollingIndex(name string, size int) *RollingIndex {
	return &RollingIndex{
		name:      name,
		size:      size,
		items:     make([]interface{}, 0, 2*size),
		lastIndex: -1,
	}
}

// LastIndex returns the index of the newest item, or -1 if empty.
func (r *RollingIndex) LastIndex() int64 {
	return r.lastIndex
}

// Get returns every item with an index greater than skipIndex. It fails with
// TooLate if some of those items were already rolled out.
func (r *RollingIndex) Get(skipIndex int64) ([]interface{}, error) {
	res := make([]interface{}, 0)

	if skipIndex >= r.lastIndex {
		return res, nil
	}

	cachedItems := int64(len(r.items))
	//assume there are no gaps between indexes
	oldestCachedIndex := r.lastIndex - cachedItems + 1
	if skipIndex+1 < oldestCachedIndex {
		return res, NewStoreErr(r.name, TooLate, strconv.FormatInt(skipIndex, 10))
	}

	//index of 'skipped' in RollingIndex
	start := skipIndex - oldestCachedIndex + 1

	res = append(res, r.items[start:]...)
	return res, nil
}

// Set appends an item at index lastIndex+1, or replaces a cached one. The
// first item may carry any index.
func (r *RollingIndex) Set(item interface{}, index int64) error {
	//only allow to setting items with index <= lastIndex + 1 so we may assume
	//there are no gaps between items
	if len(r.items) > 0 && index > r.lastIndex+1 {
		return NewStoreErr(r.name, SkippedIndex, strconv.FormatInt(index, 10))
	}

	//adding a new item
	if len(r.items) == 0 || (index == r.lastIndex+1) {
		if len(r.items) >= 2*r.size {
			r.Roll()
		}
		r.items = append(r.items, item)
		r.lastIndex = index
		return nil
	}

	//replace an existing item. Make sure index is also greater or equal than
	//the oldest cached item's index
	cachedItems := int64(len(r.items))
	oldestCachedIndex := r.lastIndex - cachedItems + 1

	if index < oldestCachedIndex {
		return NewStoreErr(r.name, TooLate, strconv.FormatInt(index, 10))
	}

	//replacing existing item
	position := index - oldestCachedIndex //position of 'index' in RollingIndex
	r.items[position] = item

	return nil
}

// Roll drops the oldest size items.
func (r *RollingIndex) Roll() {
	newList := make([]interface{}, 0, 2*r.size)
	newList = append(newList, r.items[r.size:]...)
	r.items = newList
}

// Reset drops every item.
func (r *RollingIndex) Reset() {
	r.items = make([]interface{}, 0, 2*r.size)
	r.lastIndex = -1
}
