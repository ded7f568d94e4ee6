// Package harness contains the concurrent execution engine: the worker slot
// pool bounding parallelism, the dispatcher that runs each test in an
// isolated child process, per-iteration result aggregation, and the
// orchestrator tying them together.
package harness

// SlotPool hands out lane ids to scheduling goroutines. Lane ids derive the
// unique namespace suffixes, so a slot is leased to at most one test at a
// time; Acquire blocks until a lane is free.
type SlotPool struct {
	slots chan int
}

func NewSlotPool(size int) *SlotPool {
	p := &SlotPool{slots: make(chan int, size)}
	for i := 0; i < size; i++ {
		p.slots <- i
	}
	return p
}

func (p *SlotPool) Acquire() int {
	return <-p.slots
}

func (p *SlotPool) Release(id int) {
	p.slots <- id
}

func (p *SlotPool) Size() int {
	return cap(p.slots)
}
