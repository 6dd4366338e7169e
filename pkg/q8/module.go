package q8

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/samcharles93/quantmod/internal/logger"
	"github.com/samcharles93/quantmod/pkg/nn"
	"github.com/samcharles93/quantmod/pkg/tensor"
)

// Options configures QuantizeModule. The zero value selects the defaults.
type Options struct {
	// MinSizeMB is the weight size threshold in megabytes; smaller weights
	// stay in plain form permanently. Zero selects DefaultMinSizeMB, a
	// negative value disables the filter.
	MinSizeMB float64

	// BlockSize is the per-row block length. Zero selects DefaultBlockSize.
	BlockSize int

	// Log, when set, receives per-pass diagnostics.
	Log logger.Logger
}

func (o *Options) fill() {
	if o.MinSizeMB == 0 {
		o.MinSizeMB = DefaultMinSizeMB
	}
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
}

// QuantizeModule walks the module tree rooted at root, replaces every
// eligible weight with its quantized triple and installs a hook pair on the
// root: a pre-invocation hook materializing every collected weight and a
// post-invocation hook flushing them again. It mutates root in place and
// returns it for chaining.
//
// The call is idempotent: a root that has already been orchestrated is
// returned untouched. Submodules shared with a previously quantized tree are
// not re-quantized; their existing handles are reused, so already-lossy data
// is never quantized a second time.
func QuantizeModule(root *nn.Module, opts Options) (*nn.Module, error) {
	opts.fill()
	if opts.BlockSize < 0 {
		return nil, errBlockSize
	}
	if reg.isOrchestrated(root) {
		return root, nil
	}

	runID := uuid.NewString()
	var params []*Param

	// Modules() visits each distinct submodule once even when it is
	// reachable via several parents.
	for _, child := range root.Modules() {
		if existing, ok := reg.lookupParams(child); ok {
			// Someone else already quantized this module.
			for _, name := range sortedKeys(existing) {
				params = append(params, existing[name])
			}
			continue
		}

		childParams := make(map[string]*Param)
		for _, name := range ownWeightNames(child) {
			w, err := child.Attr(name)
			if err != nil {
				return nil, err
			}
			if w.DType() == tensor.I8 || w.SizeMB() < opts.MinSizeMB {
				continue
			}

			p := newParam(child, name, w.Shape())
			if err := p.Quantize(opts.BlockSize); err != nil {
				return nil, fmt.Errorf("q8: quantize %s.%s: %w", child.Name(), name, err)
			}
			if err := p.Flush(); err != nil {
				return nil, fmt.Errorf("q8: flush %s.%s: %w", child.Name(), name, err)
			}
			params = append(params, p)
			childParams[name] = p
			if opts.Log != nil {
				opts.Log.Debug("quantized weight",
					"run", runID, "module", child.Name(), "name", name,
					"shape", w.Shape().String(), "block_size", opts.BlockSize)
			}
		}
		reg.recordParams(child, childParams)
	}

	root.RegisterPreHook(func(*nn.Module) error {
		for _, p := range params {
			if err := p.Unquantize(); err != nil {
				return err
			}
		}
		return nil
	})
	root.RegisterPostHook(func(*nn.Module) error {
		for _, p := range params {
			if err := p.Flush(); err != nil {
				return err
			}
		}
		return nil
	})
	reg.markOrchestrated(root)

	if opts.Log != nil {
		opts.Log.Info("module quantized",
			"run", runID, "root", root.Name(), "weights", len(params),
			"min_size_mb", opts.MinSizeMB, "block_size", opts.BlockSize)
	}
	return root, nil
}

// ResolveSizeDTypeDevice answers shape, dtype and device for a named weight
// whether it is currently materialized or flushed to its quantized triple.
// When the name is known in neither form, the module's missing-attribute
// error propagates.
func ResolveSizeDTypeDevice(m *nn.Module, name string) (tensor.Shape, tensor.DType, tensor.Device, error) {
	t, err := m.Attr(name)
	if err == nil {
		return t.Shape(), t.DType(), t.Device(), nil
	}
	if params, ok := reg.lookupParams(m); ok {
		if p, ok := params[name]; ok {
			dt, derr := p.DType()
			if derr != nil {
				return nil, tensor.DTypeUnknown, "", derr
			}
			dev, derr := p.Device()
			if derr != nil {
				return nil, tensor.DTypeUnknown, "", derr
			}
			return p.Shape(), dt, dev, nil
		}
	}
	return nil, tensor.DTypeUnknown, "", err
}

// ownWeightNames lists a module's own plain weight attributes in a stable
// order, excluding quantized-triple slots left by earlier passes.
func ownWeightNames(m *nn.Module) []string {
	names := m.AttrNames()
	out := names[:0]
	for _, name := range names {
		if strings.HasSuffix(name, suffixCodes) ||
			strings.HasSuffix(name, suffixScale) ||
			strings.HasSuffix(name, suffixMean) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]*Param) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
