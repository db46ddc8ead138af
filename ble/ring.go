package ble

// SendRing and ResponseRing are fixed-capacity, single-producer/
// single-consumer FIFOs with no locking, built on flat scratch arrays
// rather than slices or container types.

// SendCapacity is the number of queued HID/consumer/mouse reports the
// firmware will hold before the producer must drop the newest item.
const SendCapacity = 40

// SendRing is the bounded outbound report queue.
type SendRing struct {
	items [SendCapacity]QueueItem
	head  int
	count int
}

// Enqueue appends item at the tail. It reports false without
// mutating the ring if the ring is already full.
func (r *SendRing) Enqueue(item QueueItem) bool {
	if r.count == SendCapacity {
		return false
	}
	idx := (r.head + r.count) % SendCapacity
	r.items[idx] = item
	r.count++
	return true
}

// Peek returns the head item without removing it.
func (r *SendRing) Peek() (QueueItem, bool) {
	if r.count == 0 {
		return nil, false
	}
	return r.items[r.head], true
}

// Pop removes and returns the head item.
func (r *SendRing) Pop() (QueueItem, bool) {
	item, ok := r.Peek()
	if !ok {
		return nil, false
	}
	r.items[r.head] = nil
	r.head = (r.head + 1) % SendCapacity
	r.count--
	return item, true
}

// Len reports the number of queued items.
func (r *SendRing) Len() int { return r.count }

// Full reports whether the ring has no room for another Enqueue.
func (r *SendRing) Full() bool { return r.count == SendCapacity }

// ResponseCapacity bounds the number of AT commands that may be
// in flight awaiting a coprocessor reply at once.
const ResponseCapacity = 2

// ResponseRing tracks dispatch timestamps (16-bit wrapping
// milliseconds) of commands whose reply has not yet been drained.
type ResponseRing struct {
	items [ResponseCapacity]uint16
	head  int
	count int
}

// Push records a newly dispatched command's timestamp.
func (r *ResponseRing) Push(ts uint16) bool {
	if r.count == ResponseCapacity {
		return false
	}
	idx := (r.head + r.count) % ResponseCapacity
	r.items[idx] = ts
	r.count++
	return true
}

// Peek returns the oldest outstanding dispatch timestamp.
func (r *ResponseRing) Peek() (uint16, bool) {
	if r.count == 0 {
		return 0, false
	}
	return r.items[r.head], true
}

// Pop removes and returns the oldest outstanding dispatch timestamp.
func (r *ResponseRing) Pop() (uint16, bool) {
	ts, ok := r.Peek()
	if !ok {
		return 0, false
	}
	r.head = (r.head + 1) % ResponseCapacity
	r.count--
	return ts, true
}

// Len reports the number of outstanding dispatches.
func (r *ResponseRing) Len() int { return r.count }

// Full reports whether another dispatch must wait for a drain first.
func (r *ResponseRing) Full() bool { return r.count == ResponseCapacity }
