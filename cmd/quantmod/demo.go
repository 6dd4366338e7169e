package main

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantmod/internal/toy"
	"github.com/samcharles93/quantmod/pkg/nn"
	"github.com/samcharles93/quantmod/pkg/q8"
	"github.com/samcharles93/quantmod/pkg/tensor"
)

func demoCmd() *cli.Command {
	var token int64

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, commonQuantFlags()...)
	flags = append(flags, commonLogFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "token",
			Aliases:     []string{"t"},
			Usage:       "token id fed to the demo model",
			Value:       7,
			Destination: &token,
		},
	)

	return &cli.Command{
		Name:  "demo",
		Usage: "Quantize a toy model and invoke it once",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, LoadConfig())
			log := setupLogger()

			model := toy.New(int(vocab), int(hidden), seed)
			plainBytes := treeBytes(model)

			// Kernel-level error report on the embedding weight before the
			// plain form is flushed.
			emb := model.Children()[0]
			maxErr, err := roundTripError(emb, int(blockSize))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: round-trip check: %v", err), 1)
			}

			start := time.Now()
			if _, err := q8.QuantizeModule(model, q8.Options{
				MinSizeMB: minSizeMB,
				BlockSize: int(blockSize),
				Log:       log,
			}); err != nil {
				return cli.Exit(fmt.Sprintf("error: quantize module: %v", err), 1)
			}
			quantDuration := time.Since(start)

			fmt.Println("=== quantmod demo ===")
			fmt.Printf("Model:      tinylm vocab=%d hidden=%d seed=%d\n", vocab, hidden, seed)
			fmt.Printf("Blocks:     %d elements, min size %.2f MB\n", blockSize, minSizeMB)
			fmt.Printf("Quantize:   %s\n", quantDuration.Round(time.Microsecond))
			fmt.Printf("Max error:  %.3g (embedding round trip)\n", maxErr)
			fmt.Println()

			fmt.Printf("%-10s %-8s %-14s %-6s %12s %12s\n",
				"Module", "Param", "Shape", "DType", "Plain", "Codes")
			var origSum, codeSum int
			for _, ms := range q8.Stats() {
				for _, ps := range ms.Params {
					fmt.Printf("%-10s %-8s %-14s %-6s %12d %12d\n",
						ms.Module, ps.Name, ps.Shape, ps.DType,
						ps.OriginalBytes, ps.CodeBytes)
					origSum += ps.OriginalBytes
					codeSum += ps.CodeBytes
				}
			}
			if origSum > 0 {
				fmt.Printf("\nQuantized %.2f MB down to %.2f MB of codes (%.1f%%); tree was %.2f MB\n",
					float64(origSum)/1e6, float64(codeSum)/1e6,
					100*float64(codeSum)/float64(origSum), float64(plainBytes)/1e6)
			}

			logits, err := model.Invoke([]float32{float32(token)})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: invoke: %v", err), 1)
			}
			tensor.Softmax(logits)
			top := 0
			for i, v := range logits {
				if v > logits[top] {
					top = i
				}
			}
			fmt.Printf("\nInvoked token %d: top token %d (p=%.4f)\n", token, top, logits[top])

			// The weight is answerable even while flushed.
			shape, dt, dev, err := q8.ResolveSizeDTypeDevice(emb, nn.Weight)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve: %v", err), 1)
			}
			fmt.Printf("Flushed weight emb.weight: shape=%s dtype=%s device=%s\n", shape, dt, dev)

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}

func treeBytes(root *nn.Module) int {
	var sum int
	for _, m := range root.Modules() {
		for _, name := range m.AttrNames() {
			if t, err := m.Attr(name); err == nil {
				sum += t.SizeBytes()
			}
		}
	}
	return sum
}

// roundTripError quantizes a copy of the module's weight and reports the
// largest per-element reconstruction error.
func roundTripError(m *nn.Module, blockSize int) (float64, error) {
	w, err := m.Attr(nn.Weight)
	if err != nil {
		return 0, err
	}
	codes, scale, mean, err := q8.Quantize(w, blockSize)
	if err != nil {
		return 0, err
	}
	recon, err := q8.Dequantize(codes, scale, mean, w.Shape())
	if err != nil {
		return 0, err
	}
	orig := w.Float32s()
	var maxErr float64
	for i, v := range recon.Float32s() {
		if d := math.Abs(float64(v - orig[i])); d > maxErr {
			maxErr = d
		}
	}
	return maxErr, nil
}
