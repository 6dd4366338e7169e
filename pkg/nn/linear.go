package nn

import (
	"fmt"

	"github.com/samcharles93/quantmod/pkg/tensor"
)

// Weight is the conventional attribute name for a layer's main weight.
const Weight = "weight"

// Bias is the conventional attribute name for a layer's bias vector.
const Bias = "bias"

// Linear builds a dense layer computing y = W*x + b with W of shape
// [out, in]. The forward body re-reads the weight slot on every call so a
// weight that has been flushed and re-materialized is picked up.
func Linear(name string, in, out int) *Module {
	m := New(name, func(m *Module, x []float32) ([]float32, error) {
		w, err := m.Attr(Weight)
		if err != nil {
			return nil, err
		}
		if len(x) != in {
			return nil, fmt.Errorf("nn: %s: input length %d, want %d", m.Name(), len(x), in)
		}
		wd := w.Float32s()
		y := make([]float32, out)
		for o := 0; o < out; o++ {
			y[o] = tensor.Dot(wd[o*in:(o+1)*in], x)
		}
		if b, berr := m.Attr(Bias); berr == nil {
			tensor.Add(y, b.Float32s())
		}
		return y, nil
	})
	m.SetAttr(Weight, tensor.NewF32(out, in))
	m.SetAttr(Bias, tensor.NewF32(out))
	return m
}

// Embedding builds a lookup table of shape [vocab, dim]. The forward body
// treats x[0] as a token id and returns the corresponding row.
func Embedding(name string, vocab, dim int) *Module {
	m := New(name, func(m *Module, x []float32) ([]float32, error) {
		w, err := m.Attr(Weight)
		if err != nil {
			return nil, err
		}
		if len(x) != 1 {
			return nil, fmt.Errorf("nn: %s: want a single token id, got %d inputs", m.Name(), len(x))
		}
		tok := int(x[0])
		if tok < 0 || tok >= vocab {
			return nil, fmt.Errorf("nn: %s: token id out of range: %d", m.Name(), tok)
		}
		wd := w.Float32s()
		row := make([]float32, dim)
		copy(row, wd[tok*dim:(tok+1)*dim])
		return row, nil
	})
	m.SetAttr(Weight, tensor.NewF32(vocab, dim))
	return m
}

// Sequential builds a module that invokes its children in order, feeding each
// child's output to the next.
func Sequential(name string, children ...*Module) *Module {
	m := New(name, func(m *Module, x []float32) ([]float32, error) {
		var err error
		for _, c := range m.Children() {
			x, err = c.Invoke(x)
			if err != nil {
				return nil, fmt.Errorf("nn: %s: %w", c.Name(), err)
			}
		}
		return x, nil
	})
	m.AddChild(children...)
	return m
}
