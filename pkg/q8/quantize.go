// Package q8 provides transparent in-place int8 block quantization for
// module graphs. Large weights are stored as (codes, scale, mean) triples and
// re-materialized around each invocation of the orchestration root.
package q8

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/quantmod/pkg/tensor"
)

const (
	// DefaultBlockSize is the per-row block length for quantization.
	DefaultBlockSize = 256

	// DefaultMinSizeMB is the weight size threshold below which weights are
	// left in plain form.
	DefaultMinSizeMB = 1.0
)

const (
	qmax = 127
	qmin = -128
)

var errBlockSize = errors.New("q8: block size must be positive")

// Quantize converts a weight tensor to an int8 code tensor of shape
// [blocks, blockSize] plus per-row scale and mean tensors of shape
// [blocks, 1]. The flattened weight is padded with zeros to a whole number of
// blocks before the per-row min/max pass.
//
// Each row maps the signed 8-bit range [-128, 127] affinely onto [min, max]:
// scale = (max-min)/255, mean = max - 127*scale. A constant row would make
// scale zero, so it falls back to scale = 0, mean = 0 with all codes zero.
//
// Scale and mean are stored in the weight's own dtype, so half-precision
// weights keep half-precision quantization state.
func Quantize(w *tensor.Tensor, blockSize int) (codes, scale, mean *tensor.Tensor, err error) {
	if blockSize <= 0 {
		return nil, nil, nil, errBlockSize
	}
	vals := w.Float32s()
	blocks := (len(vals) + blockSize - 1) / blockSize

	padded := vals
	if len(vals) != blocks*blockSize {
		padded = make([]float32, blocks*blockSize)
		copy(padded, vals)
	}

	q := make([]int8, blocks*blockSize)
	scales := make([]float32, blocks)
	means := make([]float32, blocks)

	for b := 0; b < blocks; b++ {
		row := padded[b*blockSize : (b+1)*blockSize]
		mn, mx := row[0], row[0]
		for _, v := range row[1:] {
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
		}
		// We want qmax*scale + mean = mx and qmin*scale + mean = mn,
		// so scale*(qmax-qmin) = mx-mn.
		s := (mx - mn) / float32(qmax-qmin)
		if s == 0 {
			// Constant row: leave scale, mean and all codes at zero.
			continue
		}
		m := mx - s*float32(qmax)
		scales[b] = s
		means[b] = m
		out := q[b*blockSize : (b+1)*blockSize]
		for i, v := range row {
			c := (v - m) / s
			if c < qmin {
				c = qmin
			} else if c > qmax {
				c = qmax
			}
			out[i] = int8(math.Round(float64(c)))
		}
	}

	codes = tensor.FromInt8(q, blocks, blockSize)
	scale, err = floatsAs(scales, w.DType(), blocks, 1)
	if err != nil {
		return nil, nil, nil, err
	}
	mean, err = floatsAs(means, w.DType(), blocks, 1)
	if err != nil {
		return nil, nil, nil, err
	}
	return codes, scale, mean, nil
}

// Dequantize reconstructs a weight from its quantized triple: each code maps
// to code*scale + mean with scale and mean broadcast per row, truncated to
// shape's element count and reshaped. It is a pure function: identical inputs
// always produce identical output.
//
// The result carries the triple's float dtype (taken from mean).
func Dequantize(codes, scale, mean *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	q := codes.Int8s()
	scales := scale.Float32s()
	means := mean.Float32s()

	blocks := len(scales)
	if blocks == 0 {
		if n := shape.Numel(); n != 0 {
			return nil, fmt.Errorf("q8: target shape %v needs %d elements, codes hold none", shape, n)
		}
		return floatsAs(nil, mean.DType(), shape...)
	}
	if len(q)%blocks != 0 {
		return nil, fmt.Errorf("q8: codes length %d not divisible into %d blocks", len(q), blocks)
	}
	if len(means) != blocks {
		return nil, fmt.Errorf("q8: scale has %d rows, mean has %d", blocks, len(means))
	}
	n := shape.Numel()
	if n > len(q) {
		return nil, fmt.Errorf("q8: target shape %v needs %d elements, codes hold %d", shape, n, len(q))
	}
	blockSize := len(q) / blocks

	out := make([]float32, n)
	for i := range out {
		b := i / blockSize
		out[i] = float32(q[i])*scales[b] + means[b]
	}
	return floatsAs(out, mean.DType(), shape...)
}

// floatsAs wraps float32 values in a tensor of the requested float dtype.
func floatsAs(vals []float32, dt tensor.DType, shape ...int) (*tensor.Tensor, error) {
	switch dt {
	case tensor.F32:
		return tensor.FromSlice(vals, shape...), nil
	case tensor.F16:
		return tensor.FromRaw(tensor.F16, tensor.EncodeF16(vals), shape...)
	case tensor.BF16:
		return tensor.FromRaw(tensor.BF16, tensor.EncodeBF16(vals), shape...)
	default:
		return nil, fmt.Errorf("q8: unsupported weight dtype %s", dt)
	}
}
