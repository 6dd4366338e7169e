package q8

import (
	"runtime"
	"sort"
	"sync"
	"weak"

	"github.com/samcharles93/quantmod/pkg/nn"
)

// registries holds the process-wide module state, keyed by weak pointers so
// entries never extend a module's lifetime. Cleanup callbacks registered with
// runtime.AddCleanup prune entries when a module is collected; they run on
// the runtime's goroutine, hence the mutex.
type registries struct {
	mu sync.Mutex

	// params maps a module to the handles of its quantized weights.
	params map[weak.Pointer[nn.Module]]map[string]*Param

	// orchestrated is the set of modules that already carry the
	// unquantize/flush hook pair.
	orchestrated map[weak.Pointer[nn.Module]]struct{}
}

var reg = &registries{
	params:       make(map[weak.Pointer[nn.Module]]map[string]*Param),
	orchestrated: make(map[weak.Pointer[nn.Module]]struct{}),
}

func (r *registries) lookupParams(m *nn.Module) (map[string]*Param, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	params, ok := r.params[weak.Make(m)]
	return params, ok
}

func (r *registries) recordParams(m *nn.Module, params map[string]*Param) {
	wp := weak.Make(m)
	r.mu.Lock()
	_, known := r.params[wp]
	r.params[wp] = params
	r.mu.Unlock()
	if !known {
		runtime.AddCleanup(m, r.dropParams, wp)
	}
}

func (r *registries) dropParams(wp weak.Pointer[nn.Module]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.params, wp)
}

func (r *registries) isOrchestrated(m *nn.Module) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.orchestrated[weak.Make(m)]
	return ok
}

func (r *registries) markOrchestrated(m *nn.Module) {
	wp := weak.Make(m)
	r.mu.Lock()
	_, known := r.orchestrated[wp]
	r.orchestrated[wp] = struct{}{}
	r.mu.Unlock()
	if !known {
		runtime.AddCleanup(m, r.dropOrchestrated, wp)
	}
}

func (r *registries) dropOrchestrated(wp weak.Pointer[nn.Module]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orchestrated, wp)
}

// ParamStat describes one quantized weight for introspection.
type ParamStat struct {
	Name          string `json:"name"`
	Shape         string `json:"shape"`
	DType         string `json:"dtype"`
	Device        string `json:"device"`
	OriginalBytes int    `json:"original_bytes"`
	CodeBytes     int    `json:"code_bytes"`
	Materialized  bool   `json:"materialized"`
}

// ModuleStat describes one registered module for introspection.
type ModuleStat struct {
	Module string      `json:"module"`
	Params []ParamStat `json:"params"`
}

// Stats snapshots the registry for introspection. Modules that have been
// collected since registration are skipped.
func Stats() []ModuleStat {
	reg.mu.Lock()
	entries := make([]map[string]*Param, 0, len(reg.params))
	for _, params := range reg.params {
		entries = append(entries, params)
	}
	reg.mu.Unlock()

	var out []ModuleStat
	for _, params := range entries {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)

		var stat ModuleStat
		for _, name := range names {
			p := params[name]
			m, err := p.Module()
			if err != nil {
				continue
			}
			stat.Module = m.Name()
			ps := ParamStat{
				Name:         name,
				Shape:        p.Shape().String(),
				Materialized: m.HasAttr(name),
			}
			if dt, err := p.DType(); err == nil {
				ps.DType = dt.String()
				ps.OriginalBytes = p.Shape().Numel() * dt.ElemSize()
			}
			if dev, err := p.Device(); err == nil {
				ps.Device = string(dev)
			}
			if codes, err := p.Codes(); err == nil {
				ps.CodeBytes = codes.SizeBytes()
			}
			stat.Params = append(stat.Params, ps)
		}
		if len(stat.Params) > 0 {
			out = append(out, stat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out
}
