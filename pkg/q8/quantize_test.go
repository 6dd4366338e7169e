package q8

import (
	"math"
	"testing"

	"github.com/samcharles93/quantmod/pkg/tensor"
)

func TestRoundTripWithinHalfStep(t *testing.T) {
	for _, tc := range []struct {
		name      string
		shape     []int
		blockSize int
	}{
		{"even blocks", []int{4, 128}, 128},
		{"padded tail", []int{3, 100}, 128},
		{"single block", []int{16}, 256},
		{"default block", []int{64, 64}, DefaultBlockSize},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := tensor.NewF32(tc.shape...)
			tensor.FillRand(w, 42)

			codes, scale, mean, err := Quantize(w, tc.blockSize)
			if err != nil {
				t.Fatalf("Quantize: %v", err)
			}
			got, err := Dequantize(codes, scale, mean, w.Shape())
			if err != nil {
				t.Fatalf("Dequantize: %v", err)
			}
			if !got.Shape().Equal(w.Shape()) {
				t.Fatalf("shape: got %v, want %v", got.Shape(), w.Shape())
			}

			orig := w.Float32s()
			recon := got.Float32s()
			scales := scale.Float32s()
			for i := range orig {
				s := scales[i/tc.blockSize]
				diff := math.Abs(float64(recon[i] - orig[i]))
				// Half a quantization step, plus float32 slack.
				if diff > float64(s)/2+1e-6 {
					t.Fatalf("element %d: |%f - %f| = %g exceeds scale/2 = %g",
						i, recon[i], orig[i], diff, float64(s)/2)
				}
			}
		})
	}
}

func TestQuantizeShapes(t *testing.T) {
	w := tensor.NewF32(1024, 1024)
	tensor.FillRand(w, 7)

	codes, scale, mean, err := Quantize(w, 256)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if want := (tensor.Shape{4096, 256}); !codes.Shape().Equal(want) {
		t.Fatalf("codes shape: got %v, want %v", codes.Shape(), want)
	}
	if want := (tensor.Shape{4096, 1}); !scale.Shape().Equal(want) {
		t.Fatalf("scale shape: got %v, want %v", scale.Shape(), want)
	}
	if want := (tensor.Shape{4096, 1}); !mean.Shape().Equal(want) {
		t.Fatalf("mean shape: got %v, want %v", mean.Shape(), want)
	}
	if codes.DType() != tensor.I8 {
		t.Fatalf("codes dtype: got %s, want i8", codes.DType())
	}
}

func TestQuantizePadsTail(t *testing.T) {
	// 300 elements with block size 256 -> 2 blocks, 512 codes.
	w := tensor.NewF32(300)
	tensor.FillRand(w, 3)

	codes, _, _, err := Quantize(w, 256)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if got := codes.Numel(); got != 512 {
		t.Fatalf("codes numel: got %d, want 512", got)
	}
}

func TestConstantRowFallback(t *testing.T) {
	w := tensor.NewF32(2, 8)
	vals := w.Float32s()
	for i := 0; i < 8; i++ {
		vals[i] = 3.5 // constant first row
	}
	for i := 8; i < 16; i++ {
		vals[i] = float32(i)
	}

	codes, scale, mean, err := Quantize(w, 8)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if s := scale.Float32s()[0]; s != 0 {
		t.Fatalf("constant row scale: got %f, want 0", s)
	}
	if m := mean.Float32s()[0]; m != 0 {
		t.Fatalf("constant row mean: got %f, want 0", m)
	}
	for i, c := range codes.Int8s()[:8] {
		if c != 0 {
			t.Fatalf("constant row code %d: got %d, want 0", i, c)
		}
	}

	got, err := Dequantize(codes, scale, mean, w.Shape())
	if err != nil {
		t.Fatalf("Dequantize: %v", err)
	}
	for i, v := range got.Float32s()[:8] {
		if v != 0 {
			t.Fatalf("constant row reconstructs to %f at %d, want 0", v, i)
		}
	}
}

func TestDequantizeIsPure(t *testing.T) {
	w := tensor.NewF32(32, 32)
	tensor.FillRand(w, 9)
	codes, scale, mean, err := Quantize(w, 64)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}

	a, err := Dequantize(codes, scale, mean, w.Shape())
	if err != nil {
		t.Fatalf("Dequantize: %v", err)
	}
	b, err := Dequantize(codes, scale, mean, w.Shape())
	if err != nil {
		t.Fatalf("Dequantize: %v", err)
	}
	av, bv := a.Float32s(), b.Float32s()
	for i := range av {
		if av[i] != bv[i] {
			t.Fatalf("repeated dequantize differs at %d: %f vs %f", i, av[i], bv[i])
		}
	}
}

func TestHalfPrecisionTripleKeepsDType(t *testing.T) {
	src := tensor.NewF32(4, 64)
	tensor.FillRand(src, 21)
	raw := tensor.EncodeBF16(src.Float32s())
	w, err := tensor.FromRaw(tensor.BF16, raw, 4, 64)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}

	_, scale, mean, err := Quantize(w, 64)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if mean.DType() != tensor.BF16 {
		t.Fatalf("mean dtype: got %s, want bf16", mean.DType())
	}
	if scale.DType() != tensor.BF16 {
		t.Fatalf("scale dtype: got %s, want bf16", scale.DType())
	}
}

func TestQuantizeRejectsBadBlockSize(t *testing.T) {
	w := tensor.NewF32(8)
	for _, bs := range []int{0, -1} {
		if _, _, _, err := Quantize(w, bs); err == nil {
			t.Fatalf("block size %d: expected error", bs)
		}
	}
}
