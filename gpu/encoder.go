package gpu

import (
	"errors"
	"fmt"
	"time"
)

// command is one recorded operation of a command buffer.
type command interface {
	name() string
	buffers() []*Buffer
	run(d *Device)
}

type dispatchCmd struct {
	kernel *Kernel
	push   []uint32
}

func (c *dispatchCmd) name() string       { return "dispatch " + c.kernel.label }
func (c *dispatchCmd) buffers() []*Buffer { return c.kernel.buffers() }
func (c *dispatchCmd) run(d *Device) {
	start := time.Now()
	c.kernel.dispatch(d.pool, c.push)
	d.recordTiming(c.kernel.label, time.Since(start))
}

type copyCmd struct {
	src, dst       *Buffer
	srcOff, dstOff uint64 // words
	n              uint64 // words
}

func (c *copyCmd) name() string       { return fmt.Sprintf("copy %q -> %q", c.src.label, c.dst.label) }
func (c *copyCmd) buffers() []*Buffer { return []*Buffer{c.src, c.dst} }
func (c *copyCmd) run(*Device) {
	copy(c.dst.data[c.dstOff:c.dstOff+c.n], c.src.data[c.srcOff:c.srcOff+c.n])
}

type clearCmd struct {
	buf *Buffer
}

func (c *clearCmd) name() string       { return fmt.Sprintf("clear %q", c.buf.label) }
func (c *clearCmd) buffers() []*Buffer { return []*Buffer{c.buf} }
func (c *clearCmd) run(*Device)        { clear(c.buf.data) }

type writeCmd struct {
	buf   *Buffer
	off   uint64 // words
	words []uint32
}

func (c *writeCmd) name() string       { return fmt.Sprintf("write %q", c.buf.label) }
func (c *writeCmd) buffers() []*Buffer { return []*Buffer{c.buf} }
func (c *writeCmd) run(*Device)        { copy(c.buf.data[c.off:], c.words) }

// Encoder records a command stream. Recording never blocks and performs no
// work; validation errors are collected and returned by Finish.
type Encoder struct {
	label    string
	cmds     []command
	err      error
	finished bool
}

// CommandBuffer is a finished, submittable command stream.
type CommandBuffer struct {
	label     string
	cmds      []command
	submitted bool
}

// NewEncoder starts a new command stream.
func (d *Device) NewEncoder(label string) *Encoder {
	return &Encoder{label: label}
}

func (e *Encoder) record(c command) {
	if e.finished {
		e.fail(fmt.Errorf("gpu: encoder %q: record after Finish", e.label))
		return
	}
	e.cmds = append(e.cmds, c)
}

func (e *Encoder) fail(err error) {
	e.err = errors.Join(e.err, err)
}

// Len returns the number of recorded commands.
func (e *Encoder) Len() int { return len(e.cmds) }

// CopyBufferToBuffer copies size bytes between buffers. Offsets and size must
// be word aligned and in range.
func (e *Encoder) CopyBufferToBuffer(src *Buffer, srcOffset uint64, dst *Buffer, dstOffset uint64, size uint64) {
	switch {
	case !src.usage.Has(UsageCopySrc):
		e.fail(fmt.Errorf("gpu: copy source %q lacks CopySrc usage", src.label))
	case !dst.usage.Has(UsageCopyDst):
		e.fail(fmt.Errorf("gpu: copy destination %q lacks CopyDst usage", dst.label))
	case srcOffset%WordSize != 0 || dstOffset%WordSize != 0 || size%WordSize != 0:
		e.fail(fmt.Errorf("gpu: copy %q -> %q: unaligned offsets or size", src.label, dst.label))
	case srcOffset+size > src.Size() || dstOffset+size > dst.Size():
		e.fail(fmt.Errorf("gpu: copy %q -> %q: %d bytes out of range", src.label, dst.label, size))
	case src == dst:
		e.fail(fmt.Errorf("gpu: copy %q onto itself", src.label))
	default:
		e.record(&copyCmd{
			src: src, dst: dst,
			srcOff: srcOffset / WordSize, dstOff: dstOffset / WordSize,
			n: size / WordSize,
		})
	}
}

// ClearBuffer zeroes a buffer.
func (e *Encoder) ClearBuffer(buf *Buffer) {
	if !buf.usage.Has(UsageCopyDst) {
		e.fail(fmt.Errorf("gpu: clear %q: lacks CopyDst usage", buf.label))
		return
	}
	e.record(&clearCmd{buf: buf})
}

// Finish closes the encoder and returns the command buffer, or the
// validation errors collected while recording.
func (e *Encoder) Finish() (*CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("gpu: encoder %q finished twice", e.label)
	}
	e.finished = true
	if e.err != nil {
		return nil, fmt.Errorf("encoder %q: %w", e.label, e.err)
	}
	return &CommandBuffer{label: e.label, cmds: e.cmds}, nil
}
