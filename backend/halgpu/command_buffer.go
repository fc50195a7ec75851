//go:build !nogpu

package halgpu

import (
	"fmt"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/wgpu/hal"
)

// commandBuffer records into a hal command encoder.
type commandBuffer struct {
	encoder hal.CommandEncoder
	epoch   uint64
	label   string

	// err is the first recording error, reported by Submit.
	err error
}

func (cb *commandBuffer) Epoch() uint64 {
	return cb.epoch
}

// CopyBuffer records a buffer to buffer copy. Both buffers must have been
// created by this package.
func (cb *commandBuffer) CopyBuffer(src, dst frameloop.BufferInfo) {
	if cb.err != nil {
		return
	}
	s, ok := src.Buffer.(*Buffer)
	if !ok {
		cb.err = fmt.Errorf("copy source %T is not a halgpu buffer", src.Buffer)
		return
	}
	d, ok := dst.Buffer.(*Buffer)
	if !ok {
		cb.err = fmt.Errorf("copy destination %T is not a halgpu buffer", dst.Buffer)
		return
	}

	size := min(src.Range, dst.Range)
	if size == 0 {
		return
	}
	cb.encoder.CopyBufferToBuffer(s.buf, d.buf, []hal.BufferCopy{{
		SrcOffset: src.Offset,
		DstOffset: dst.Offset,
		Size:      size,
	}})
}

// Discard abandons the encoder of a frame that will not be submitted.
func (cb *commandBuffer) Discard() {
	cb.encoder.DiscardEncoding()
}

func discardAll(cbs []*commandBuffer) {
	for _, cb := range cbs {
		cb.Discard()
	}
}
