package simulated

import (
	"fmt"

	"github.com/gogpu/frameloop"
)

// CommandBuffer records copies for the execution goroutine.
type CommandBuffer struct {
	epoch  uint64
	label  string
	copies []bufferCopy
	err    error
}

// Epoch returns the frame the command buffer was recorded for.
func (cb *CommandBuffer) Epoch() uint64 {
	return cb.epoch
}

// Label returns the command buffer's debug label.
func (cb *CommandBuffer) Label() string {
	return cb.label
}

// CopyBuffer records a copy of the smaller of the two ranges. Both buffers
// must be simulated Buffers and the ranges must lie within them.
func (cb *CommandBuffer) CopyBuffer(src, dst frameloop.BufferInfo) {
	if cb.err != nil {
		return
	}
	s, ok := src.Buffer.(*Buffer)
	if !ok {
		cb.err = fmt.Errorf("copy source %T is not a simulated buffer", src.Buffer)
		return
	}
	d, ok := dst.Buffer.(*Buffer)
	if !ok {
		cb.err = fmt.Errorf("copy destination %T is not a simulated buffer", dst.Buffer)
		return
	}

	size := min(src.Range, dst.Range)
	if src.Offset+size > s.Size() || dst.Offset+size > d.Size() {
		cb.err = fmt.Errorf("copy of %d bytes out of range", size)
		return
	}
	cb.copies = append(cb.copies, bufferCopy{
		src: s, dst: d,
		srcOff: src.Offset, dstOff: dst.Offset,
		size: size,
	})
}

// Copies returns the number of recorded copies.
func (cb *CommandBuffer) Copies() int {
	return len(cb.copies)
}
