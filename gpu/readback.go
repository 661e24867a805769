package gpu

import (
	"context"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Stage records a copy of src into a fresh MapRead staging buffer on enc.
func (d *Device) Stage(enc *Encoder, src *Buffer) (*Buffer, error) {
	staging, err := d.CreateBuffer(BufferDescriptor{
		Label: src.label + " staging",
		Size:  src.Size(),
		Usage: UsageCopyDst | UsageMapRead,
	})
	if err != nil {
		return nil, fmt.Errorf("creating staging buffer: %w", err)
	}
	if src.Size() > 0 {
		enc.CopyBufferToBuffer(src, 0, staging, 0, src.Size())
	}
	return staging, nil
}

// ReadStaged maps a staging buffer and returns a copy of its words.
func (d *Device) ReadStaged(ctx context.Context, staging *Buffer) ([]uint32, error) {
	var out []uint32
	err := staging.WithMapped(ctx, d.queue, func(words []uint32) error {
		out = append(make([]uint32, 0, len(words)), words...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadUint32 copies src back to the host. It submits its own command buffer
// and waits for it and everything submitted before it.
func ReadUint32(ctx context.Context, d *Device, src *Buffer) ([]uint32, error) {
	enc := d.NewEncoder("read " + src.label)
	staging, err := d.Stage(enc, src)
	if err != nil {
		return nil, err
	}
	cb, err := enc.Finish()
	if err != nil {
		return nil, err
	}
	if err := d.queue.Submit(cb); err != nil {
		return nil, fmt.Errorf("reading %q: %w", src.label, err)
	}
	return d.ReadStaged(ctx, staging)
}

// ReadFloat32 is ReadUint32 reinterpreting words as floats.
func ReadFloat32(ctx context.Context, d *Device, src *Buffer) ([]float32, error) {
	words, err := ReadUint32(ctx, d, src)
	if err != nil {
		return nil, err
	}
	return WordsToFloat32(words), nil
}

// ReadVec4 is ReadUint32 reinterpreting words as vec4s.
func ReadVec4(ctx context.Context, d *Device, src *Buffer) ([]mgl32.Vec4, error) {
	words, err := ReadUint32(ctx, d, src)
	if err != nil {
		return nil, err
	}
	return WordsToVec4(words), nil
}

// Float32ToWords encodes floats as buffer words.
func Float32ToWords(fs []float32) []uint32 {
	out := make([]uint32, len(fs))
	for i, f := range fs {
		out[i] = math.Float32bits(f)
	}
	return out
}

// WordsToFloat32 decodes buffer words as floats.
func WordsToFloat32(words []uint32) []float32 {
	out := make([]float32, len(words))
	for i, w := range words {
		out[i] = math.Float32frombits(w)
	}
	return out
}

// Vec4ToWords encodes vec4s as buffer words.
func Vec4ToWords(vs []mgl32.Vec4) []uint32 {
	out := make([]uint32, 0, len(vs)*4)
	for _, v := range vs {
		out = append(out,
			math.Float32bits(v[0]), math.Float32bits(v[1]),
			math.Float32bits(v[2]), math.Float32bits(v[3]))
	}
	return out
}

// WordsToVec4 decodes buffer words as vec4s. Trailing words that do not form
// a whole vec4 are dropped.
func WordsToVec4(words []uint32) []mgl32.Vec4 {
	out := make([]mgl32.Vec4, len(words)/4)
	for i := range out {
		w := words[i*4:]
		out[i] = mgl32.Vec4{
			math.Float32frombits(w[0]), math.Float32frombits(w[1]),
			math.Float32frombits(w[2]), math.Float32frombits(w[3]),
		}
	}
	return out
}
