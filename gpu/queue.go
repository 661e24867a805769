package gpu

import (
	"context"
	"fmt"
	"sync"
)

// queueDepth bounds how many submissions may be outstanding before Submit
// applies backpressure.
const queueDepth = 64

type submission struct {
	label string
	cmds  []command
	done  chan struct{}
}

// Queue executes submitted command buffers in submission order on a single
// goroutine. Submission is fire-and-forget: Submit returns once the work is
// queued, not when it has run.
type Queue struct {
	dev  *Device
	work chan *submission

	mu     sync.Mutex
	last   chan struct{} // done channel of the most recent submission
	closed bool
	exited chan struct{}
}

func newQueue(d *Device) *Queue {
	q := &Queue{
		dev:    d,
		work:   make(chan *submission, queueDepth),
		exited: make(chan struct{}),
	}
	idle := make(chan struct{})
	close(idle)
	q.last = idle

	go q.run()
	return q
}

// Submit queues command buffers for execution. A command buffer can be
// submitted once.
func (q *Queue) Submit(cbs ...*CommandBuffer) error {
	if err := q.dev.Err(); err != nil {
		return err
	}
	for _, cb := range cbs {
		if cb == nil {
			return fmt.Errorf("gpu: submit: nil command buffer")
		}
		if cb.submitted {
			return fmt.Errorf("gpu: command buffer %q submitted twice", cb.label)
		}
		for _, c := range cb.cmds {
			for _, b := range c.buffers() {
				if b.mapped.Load() {
					return fmt.Errorf("gpu: submit %q: %s uses %q: %w", cb.label, c.name(), b.label, ErrBufferMapped)
				}
			}
		}
	}

	for _, cb := range cbs {
		cb.submitted = true
		if err := q.enqueue(&submission{label: cb.label, cmds: cb.cmds}); err != nil {
			return err
		}
	}
	return nil
}

// WriteBuffer queues a write of words at byteOffset. The write is ordered
// with respect to command buffers submitted before and after it.
func (q *Queue) WriteBuffer(buf *Buffer, byteOffset uint64, words []uint32) error {
	if err := q.dev.Err(); err != nil {
		return err
	}
	if !buf.usage.Has(UsageCopyDst) {
		return fmt.Errorf("gpu: write %q: lacks CopyDst usage", buf.label)
	}
	if byteOffset%WordSize != 0 || byteOffset+uint64(len(words))*WordSize > buf.Size() {
		return fmt.Errorf("gpu: write %q: %d words at offset %d out of range", buf.label, len(words), byteOffset)
	}
	if buf.mapped.Load() {
		return fmt.Errorf("gpu: write %q: %w", buf.label, ErrBufferMapped)
	}

	cmd := &writeCmd{buf: buf, off: byteOffset / WordSize, words: append([]uint32(nil), words...)}
	return q.enqueue(&submission{label: cmd.name(), cmds: []command{cmd}})
}

func (q *Queue) enqueue(s *submission) error {
	s.done = make(chan struct{})

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("gpu: submit %q: device closed", s.label)
	}
	q.last = s.done
	q.work <- s
	q.mu.Unlock()
	return nil
}

// WaitIdle blocks until everything submitted so far has executed, or ctx is
// done. It reports device loss.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	last := q.last
	q.mu.Unlock()

	select {
	case <-last:
	case <-ctx.Done():
		return ctx.Err()
	}
	return q.dev.Err()
}

func (q *Queue) run() {
	defer close(q.exited)
	for s := range q.work {
		q.execute(s)
		close(s.done)
	}
}

// execute runs one submission. After a fault the device is lost and the
// remaining commands, and every later submission, are skipped.
func (q *Queue) execute(s *submission) {
	for _, c := range s.cmds {
		if q.dev.Err() != nil {
			return
		}
		if err := runCommand(q.dev, c); err != nil {
			q.dev.markLost(fmt.Errorf("%s: %s: %w", s.label, c.name(), err))
			return
		}
	}
}

func runCommand(d *Device, c command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fault: %v", r)
		}
	}()
	c.run(d)
	return nil
}

func (q *Queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.work)
	q.mu.Unlock()
	<-q.exited
}
