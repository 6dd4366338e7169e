package q8

import (
	"errors"
	"fmt"
	"weak"

	"github.com/samcharles93/quantmod/pkg/nn"
	"github.com/samcharles93/quantmod/pkg/tensor"
)

// ErrModuleGone is returned when a handle's owning module has been destroyed.
var ErrModuleGone = errors.New("q8: module is gone but the handle is still here")

// Attribute suffixes under which the quantized triple is stored on a module.
const (
	suffixCodes = "_q8"
	suffixScale = "_scale"
	suffixMean  = "_mean"
)

// Param identifies one quantized weight on one module. It holds a weak,
// non-owning reference to the module, the weight's attribute name and its
// original shape, so shape queries work while the plain weight is flushed.
type Param struct {
	mod   weak.Pointer[nn.Module]
	name  string
	shape tensor.Shape
}

func newParam(m *nn.Module, name string, shape tensor.Shape) *Param {
	return &Param{
		mod:   weak.Make(m),
		name:  name,
		shape: shape.Clone(),
	}
}

// Module resolves the owning module. It never returns a stale module: once
// the module has been collected the handle reports ErrModuleGone.
func (p *Param) Module() (*nn.Module, error) {
	m := p.mod.Value()
	if m == nil {
		return nil, fmt.Errorf("%q: %w", p.name, ErrModuleGone)
	}
	return m, nil
}

// Name returns the weight's attribute name.
func (p *Param) Name() string { return p.name }

// Shape returns the weight's original shape, valid in any lifecycle state.
func (p *Param) Shape() tensor.Shape { return p.shape }

// Codes returns the stored int8 code tensor.
func (p *Param) Codes() (*tensor.Tensor, error) { return p.attr(suffixCodes) }

// Scale returns the stored per-row scale tensor.
func (p *Param) Scale() (*tensor.Tensor, error) { return p.attr(suffixScale) }

// Mean returns the stored per-row mean tensor.
func (p *Param) Mean() (*tensor.Tensor, error) { return p.attr(suffixMean) }

func (p *Param) attr(suffix string) (*tensor.Tensor, error) {
	m, err := p.Module()
	if err != nil {
		return nil, err
	}
	return m.Attr(p.name + suffix)
}

// DType reports the weight's dtype, taken from the stored mean tensor so it
// is answerable while the plain weight is flushed.
func (p *Param) DType() (tensor.DType, error) {
	mean, err := p.Mean()
	if err != nil {
		return tensor.DTypeUnknown, err
	}
	return mean.DType(), nil
}

// Device reports the weight's device, taken from the stored mean tensor.
func (p *Param) Device() (tensor.Device, error) {
	mean, err := p.Mean()
	if err != nil {
		return "", err
	}
	return mean.Device(), nil
}

// Quantize reads the live weight, computes its quantized triple and stores it
// as three new attributes on the module. The plain weight stays in place;
// callers pair this with Flush.
func (p *Param) Quantize(blockSize int) error {
	m, err := p.Module()
	if err != nil {
		return err
	}
	w, err := m.Attr(p.name)
	if err != nil {
		return err
	}
	codes, scale, mean, err := Quantize(w, blockSize)
	if err != nil {
		return fmt.Errorf("%q: %w", p.name, err)
	}
	m.SetAttr(p.name+suffixCodes, codes)
	m.SetAttr(p.name+suffixScale, scale)
	m.SetAttr(p.name+suffixMean, mean)
	return nil
}

// Value reconstructs the full-precision weight from the stored triple without
// touching the module's plain attribute.
func (p *Param) Value() (*tensor.Tensor, error) {
	codes, err := p.Codes()
	if err != nil {
		return nil, err
	}
	scale, err := p.Scale()
	if err != nil {
		return nil, err
	}
	mean, err := p.Mean()
	if err != nil {
		return nil, err
	}
	return Dequantize(codes, scale, mean, p.shape)
}

// Unquantize materializes the plain weight attribute from the stored triple.
// It is idempotent: when the plain attribute is already present it leaves it
// untouched.
func (p *Param) Unquantize() error {
	m, err := p.Module()
	if err != nil {
		return err
	}
	if m.HasAttr(p.name) {
		return nil
	}
	w, err := p.Value()
	if err != nil {
		return err
	}
	m.SetAttr(p.name, w)
	return nil
}

// Flush removes the plain weight attribute. It fails with the module's
// missing-attribute error when the weight is not currently materialized;
// callers must pair it with a prior Unquantize.
func (p *Param) Flush() error {
	m, err := p.Module()
	if err != nil {
		return err
	}
	return m.DelAttr(p.name)
}
