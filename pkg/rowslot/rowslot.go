// Package rowslot manages the reusable integer row identifiers every table variant is built on.
//
// An Allocator hands out row ids in O(1): freed ids are recycled in FIFO order before a new id is
// minted. An id is never handed out to two logical rows at the same time and freed ids are never
// reported by Live.
package rowslot

import (
	"errors"
	"fmt"
)

// ErrNotAllocated is returned when freeing an id that is not currently in use.
var ErrNotAllocated = errors.New("row slot not allocated")

// Allocator hands out row ids.
type Allocator struct {
	created  int    // slots ever created
	live     []bool // live[id] is true iff id is allocated
	freed    []int  // FIFO queue of freed ids
	head     int    // index of the queue head in freed
	rowCount int
}

// New creates an empty allocator.
func New() *Allocator {
	return &Allocator{}
}

// Allocate returns a recycled id if one exists, otherwise the next new id.
func (a *Allocator) Allocate() int {
	var id int
	if a.head < len(a.freed) {
		id = a.freed[a.head]
		a.head++
		// compact the queue once the consumed prefix dominates
		if a.head > 32 && a.head*2 > len(a.freed) {
			a.freed = append(a.freed[:0], a.freed[a.head:]...)
			a.head = 0
		}
	} else {
		id = a.created
		a.created++
		a.live = append(a.live, false)
	}
	a.live[id] = true
	a.rowCount++
	return id
}

// Free releases id for reuse.
func (a *Allocator) Free(id int) error {
	if !a.IsLive(id) {
		return fmt.Errorf("cannot free row %d: %w", id, ErrNotAllocated)
	}
	a.live[id] = false
	a.freed = append(a.freed, id)
	a.rowCount--
	return nil
}

// IsLive reports whether id is currently allocated.
func (a *Allocator) IsLive(id int) bool {
	return id >= 0 && id < a.created && a.live[id]
}

// RowCount is the number of slots ever created minus the slots currently freed.
func (a *Allocator) RowCount() int { return a.rowCount }

// Capacity is the number of slots ever created.
func (a *Allocator) Capacity() int { return a.created }

// Live returns the allocated ids in ascending order.
func (a *Allocator) Live() []int {
	ret := make([]int, 0, a.rowCount)
	for id := 0; id < a.created; id++ {
		if a.live[id] {
			ret = append(ret, id)
		}
	}
	return ret
}

// Reset frees every id and forgets all slots.
func (a *Allocator) Reset() {
	a.created = 0
	a.live = a.live[:0]
	a.freed = a.freed[:0]
	a.head = 0
	a.rowCount = 0
}
