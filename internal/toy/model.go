// Package toy builds a minimal language-model-shaped module graph used for
// testing and for the CLI demo. It is deliberately simplistic: each
// invocation takes a single token id and produces vocab logits.
package toy

import (
	"github.com/samcharles93/quantmod/pkg/nn"
	"github.com/samcharles93/quantmod/pkg/tensor"
)

// New constructs a toy LM as a module tree:
//
//	root -> emb -> ff -> ff -> out
//
// The ff block appears twice in the child list on purpose, so the same
// submodule is reachable via two paths. Weights are filled with reproducible
// pseudo-random values derived from seed.
func New(vocab, hidden int, seed int64) *nn.Module {
	emb := nn.Embedding("emb", vocab, hidden)
	ff := nn.Linear("ff", hidden, hidden)
	out := nn.Linear("out", hidden, vocab)

	fillWeights(emb, seed+11)
	fillWeights(ff, seed+17)
	fillWeights(out, seed+23)

	return nn.Sequential("tinylm", emb, ff, ff, out)
}

func fillWeights(m *nn.Module, seed int64) {
	w, err := m.Attr(nn.Weight)
	if err != nil {
		panic(err)
	}
	tensor.FillRand(w, seed)
}
