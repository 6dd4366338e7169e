package tensor

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Shape describes tensor dimensions, outermost first.
type Shape []int

// Numel returns the total element count.
func (s Shape) Numel() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Tensor is a dense array of a given shape, dtype and device.
//
// F32 tensors keep their payload in Data for fast access. F16 and BF16
// tensors keep the raw little-endian bytes and decode on read, which matches
// how half-precision weights arrive from model files. I8 tensors hold
// quantized codes.
//
// Tensor does not perform any memory safety beyond the checks performed by
// Go's slice types; out-of-range indices will panic.
type Tensor struct {
	shape Shape
	dtype DType
	dev   Device

	f32 []float32
	raw []byte
	i8  []int8
}

var (
	errNegativeDim      = errors.New("tensor: negative dimension")
	errUnsupportedDType = errors.New("tensor: unsupported dtype for raw payload")
	errRawSizeMismatch  = errors.New("tensor: raw payload length mismatch")
)

func checkShape(shape []int) Shape {
	for _, d := range shape {
		if d < 0 {
			panic(errNegativeDim)
		}
	}
	return Shape(shape).Clone()
}

// NewF32 allocates a zero-initialised float32 tensor.
func NewF32(shape ...int) *Tensor {
	s := checkShape(shape)
	return &Tensor{shape: s, dtype: F32, dev: CPU, f32: make([]float32, s.Numel())}
}

// NewI8 allocates a zero-initialised int8 tensor.
func NewI8(shape ...int) *Tensor {
	s := checkShape(shape)
	return &Tensor{shape: s, dtype: I8, dev: CPU, i8: make([]int8, s.Numel())}
}

// FromSlice wraps existing float32 data. The data length must match the shape.
func FromSlice(data []float32, shape ...int) *Tensor {
	s := checkShape(shape)
	if s.Numel() != len(data) {
		panic("tensor: data length mismatch")
	}
	return &Tensor{shape: s, dtype: F32, dev: CPU, f32: data}
}

// FromInt8 wraps existing int8 data. The data length must match the shape.
func FromInt8(data []int8, shape ...int) *Tensor {
	s := checkShape(shape)
	if s.Numel() != len(data) {
		panic("tensor: data length mismatch")
	}
	return &Tensor{shape: s, dtype: I8, dev: CPU, i8: data}
}

// FromRaw wraps raw little-endian bytes in the provided half-precision dtype.
func FromRaw(dtype DType, raw []byte, shape ...int) (*Tensor, error) {
	if dtype != F16 && dtype != BF16 {
		return nil, errUnsupportedDType
	}
	s := checkShape(shape)
	if len(raw) != s.Numel()*dtype.ElemSize() {
		return nil, errRawSizeMismatch
	}
	return &Tensor{shape: s, dtype: dtype, dev: CPU, raw: raw}, nil
}

// Shape returns the tensor's dimensions. Callers must not mutate it.
func (t *Tensor) Shape() Shape { return t.shape }

func (t *Tensor) DType() DType { return t.dtype }

func (t *Tensor) Device() Device { return t.dev }

func (t *Tensor) Numel() int { return t.shape.Numel() }

// SizeBytes returns the payload size implied by numel and dtype width.
func (t *Tensor) SizeBytes() int { return t.Numel() * t.dtype.ElemSize() }

// SizeMB returns the payload size in (decimal) megabytes.
func (t *Tensor) SizeMB() float64 { return float64(t.SizeBytes()) / 1e6 }

// Int8s returns the backing int8 payload. Panics for non-I8 tensors.
func (t *Tensor) Int8s() []int8 {
	if t.dtype != I8 {
		panic("tensor: Int8s on " + t.dtype.String() + " tensor")
	}
	return t.i8
}

// Float32s returns the tensor's values as float32. For F32 tensors this is
// the backing slice; for F16/BF16 it decodes into a fresh slice.
func (t *Tensor) Float32s() []float32 {
	switch t.dtype {
	case F32:
		return t.f32
	case F16:
		out := make([]float32, t.Numel())
		for i := range out {
			out[i] = fp16ToF32(u16le(t.raw, i*2))
		}
		return out
	case BF16:
		out := make([]float32, t.Numel())
		for i := range out {
			out[i] = bf16ToF32(u16le(t.raw, i*2))
		}
		return out
	default:
		panic("tensor: Float32s on " + t.dtype.String() + " tensor")
	}
}

// FillRand fills an F32 tensor with reproducible pseudo-random values. A
// small range around zero is used to avoid overflow in accumulations; the
// same seed always produces the same tensor.
func FillRand(t *Tensor, seed int64) {
	if t.dtype != F32 {
		panic("tensor: FillRand only supports f32 tensors")
	}
	rng := rand.New(rand.NewSource(seed))
	for i := range t.f32 {
		t.f32[i] = (rng.Float32() - 0.5) * 0.02 // roughly in (-0.01,0.01)
	}
}
