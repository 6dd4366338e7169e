package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantmod/pkg/q8"
	"github.com/samcharles93/quantmod/pkg/tensor"
)

func benchCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		rows       int64
		cols       int64
	)

	flags := append([]cli.Flag{}, commonQuantFlags()...)
	flags = append(flags, commonLogFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       5,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "rows",
			Usage:       "benchmark weight rows",
			Value:       1024,
			Destination: &rows,
		},
		&cli.Int64Flag{
			Name:        "cols",
			Usage:       "benchmark weight cols",
			Value:       1024,
			Destination: &cols,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark the quantize/dequantize kernels",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, LoadConfig())

			w := tensor.NewF32(int(rows), int(cols))
			tensor.FillRand(w, 42)
			mb := w.SizeMB()

			fmt.Println("=== quantmod bench ===")
			fmt.Printf("Weight:     %s f32 (%.2f MB)\n", w.Shape(), mb)
			fmt.Printf("Block size: %d\n", blockSize)
			fmt.Printf("CPUs:       %d (GOMAXPROCS %d)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
			fmt.Printf("Warmup:     %d runs\n", warmupRuns)
			fmt.Printf("Runs:       %d\n", benchRuns)
			fmt.Println()

			for range int(warmupRuns) {
				if _, _, _, err := q8.Quantize(w, int(blockSize)); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup quantize: %v", err), 1)
				}
			}

			codes, scale, mean, err := q8.Quantize(w, int(blockSize))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: quantize: %v", err), 1)
			}

			fmt.Printf("%-6s %14s %14s\n", "Run", "Quantize", "Dequantize")
			fmt.Printf("%-6s %14s %14s\n", "---", "MB/s", "MB/s")

			var sumQ, sumD float64
			for i := range int(benchRuns) {
				start := time.Now()
				if _, _, _, err := q8.Quantize(w, int(blockSize)); err != nil {
					return cli.Exit(fmt.Sprintf("error: quantize run %d: %v", i+1, err), 1)
				}
				qtps := mb / time.Since(start).Seconds()

				start = time.Now()
				if _, err := q8.Dequantize(codes, scale, mean, w.Shape()); err != nil {
					return cli.Exit(fmt.Sprintf("error: dequantize run %d: %v", i+1, err), 1)
				}
				dtps := mb / time.Since(start).Seconds()

				fmt.Printf("%-6d %14.1f %14.1f\n", i+1, qtps, dtps)
				sumQ += qtps
				sumD += dtps
			}
			n := float64(benchRuns)
			fmt.Printf("\n%-6s %14.1f %14.1f\n", "Avg", sumQ/n, sumD/n)

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}
