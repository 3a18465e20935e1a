// Package store implements the flat object cell array, its
// (index,sub-index) lookup map, and the SDO sweep engine that drives
// cell state machines against the wire protocol. It is the Go
// realization of the source's StorageUnit array plus sdo_thread_main.
package store

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wuji-robotics/handdrv"
)

// key packs (index, sub_index) into the 24-bit lookup key described by
// the index map invariant.
func key(index uint16, subIndex uint8) uint32 {
	return uint32(index)<<8 | uint32(subIndex)
}

// Store owns the cell array, the immutable index map, and (once
// StartSweep is called) the SDO sweep engine.
type Store struct {
	cells []Cell
	index map[uint32]*Cell

	raw    [rawSlotCount]rawSlot
	log    *logrus.Entry
	sweep  *sweepEngine
}

// New allocates one Cell per descriptor and builds the immutable index
// map. Descriptors' StorageID values must be dense 0..len(descriptors)-1
// and are used directly as the cell's position in the backing array.
func New(descriptors []Descriptor, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Store{
		cells: make([]Cell, len(descriptors)),
		index: make(map[uint32]*Cell, len(descriptors)),
		log:   log,
	}
	for _, d := range descriptors {
		c := &s.cells[d.StorageID]
		c.Descriptor = d
		c.deadline.Store(neverDeadline)
		s.index[key(d.Index, d.SubIndex)] = c
	}
	for i := range s.raw {
		s.raw[i].cond = sync.NewCond(&s.raw[i].mu)
	}
	return s
}

// Get returns the cell's last-known host-domain value without waiting
// for any operation to complete.
func (s *Store) Get(storageID int) handdrv.Buffer8 {
	return s.cells[storageID].hostValue()
}

// Version returns the cell's monotonic version counter; 0 means the
// cell has never completed a read.
func (s *Store) Version(storageID int) uint32 {
	return s.cells[storageID].version.Load()
}

func deadlineFor(timeout time.Duration) int64 {
	if timeout <= 0 || timeout > time.Duration(neverDeadline) {
		return neverDeadline
	}
	d := time.Now().Add(timeout).UnixNano()
	if d < 0 {
		return neverDeadline
	}
	return d
}

// beginOp installs mode/callback on a NONE cell and releases it into
// WAITING. It returns false (and does nothing) if the cell was not in
// NONE — the caller asked for an operation while one was already
// outstanding.
func (s *Store) beginOp(storageID int, mode Mode, timeout time.Duration, cb handdrv.CompletionFunc, ctx handdrv.Buffer8) bool {
	c := &s.cells[storageID]
	curMode, _ := c.loadOp()
	if curMode != ModeNone {
		return false
	}
	c.callback = cb
	c.callbackCtx = ctx
	c.deadline.Store(deadlineFor(timeout))
	c.storeOp(mode, StateWaiting) // release: publishes callback/deadline above
	return true
}

// ReadAsyncUnchecked issues a read and drops it silently if one is
// already pending.
func (s *Store) ReadAsyncUnchecked(storageID int, timeout time.Duration) {
	s.beginOp(storageID, ModeRead, timeout, nil, handdrv.Buffer8{})
}

// ReadAsync issues a read, invoking cb on the sweep thread when it
// completes or times out. Returns false if a read or write was already
// pending on this cell.
func (s *Store) ReadAsync(storageID int, timeout time.Duration, cb handdrv.CompletionFunc, ctx handdrv.Buffer8) bool {
	return s.beginOp(storageID, ModeRead, timeout, cb, ctx)
}

// WriteAsyncUnchecked issues a write and drops it silently if one is
// already pending.
func (s *Store) WriteAsyncUnchecked(storageID int, data handdrv.Buffer8, timeout time.Duration) {
	s.cells[storageID].setHostValue(data)
	s.beginOp(storageID, ModeWrite, timeout, nil, handdrv.Buffer8{})
}

// WriteAsync issues a write, invoking cb on the sweep thread once the
// read-back confirms the value or the deadline expires. Returns false
// if an operation was already pending on this cell.
func (s *Store) WriteAsync(storageID int, data handdrv.Buffer8, timeout time.Duration, cb handdrv.CompletionFunc, ctx handdrv.Buffer8) bool {
	s.cells[storageID].setHostValue(data)
	return s.beginOp(storageID, ModeWrite, timeout, cb, ctx)
}

// latch is the synchronous-call waiter: a counter and condition
// variable the sweep thread's completion callback decrements, mirroring
// the source's owned-latch blocking model for synchronous public calls.
type latch struct {
	mu      sync.Mutex
	cond    *sync.Cond
	done    bool
	success bool
}

func newLatch() *latch {
	l := &latch{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *latch) complete(success bool) {
	l.mu.Lock()
	l.done = true
	l.success = success
	l.mu.Unlock()
	l.cond.Broadcast()
}

func (l *latch) wait() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for !l.done {
		l.cond.Wait()
	}
	return l.success
}

// Read blocks the calling thread until storageID's pending read
// completes or its deadline expires.
func (s *Store) Read(storageID int, timeout time.Duration) (handdrv.Buffer8, error) {
	l := newLatch()
	realCb := func(_ handdrv.Buffer8, success bool) { l.complete(success) }
	if !s.ReadAsync(storageID, timeout, realCb, handdrv.Buffer8{}) {
		return handdrv.Buffer8{}, handdrv.ErrReadPending
	}
	if !l.wait() {
		return handdrv.Buffer8{}, &handdrv.TimeoutError{StorageID: storageID}
	}
	return s.Get(storageID), nil
}

// Write blocks the calling thread until storageID's pending write is
// confirmed or its deadline expires.
func (s *Store) Write(storageID int, data handdrv.Buffer8, timeout time.Duration) error {
	l := newLatch()
	realCb := func(_ handdrv.Buffer8, success bool) { l.complete(success) }
	if !s.WriteAsync(storageID, data, timeout, realCb, handdrv.Buffer8{}) {
		return handdrv.ErrReadPending
	}
	if !l.wait() {
		return &handdrv.TimeoutError{StorageID: storageID}
	}
	return nil
}
