package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantmod/internal/toy"
	"github.com/samcharles93/quantmod/pkg/q8"
)

func inspectCmd() *cli.Command {
	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, commonQuantFlags()...)
	flags = append(flags, commonLogFlags()...)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Quantize a toy model and dump the registry as JSON",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, LoadConfig())
			log := setupLogger()

			model := toy.New(int(vocab), int(hidden), seed)
			if _, err := q8.QuantizeModule(model, q8.Options{
				MinSizeMB: minSizeMB,
				BlockSize: int(blockSize),
				Log:       log,
			}); err != nil {
				return cli.Exit(fmt.Sprintf("error: quantize module: %v", err), 1)
			}

			out, err := json.MarshalIndent(q8.Stats(), "", "  ")
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode registry: %v", err), 1)
			}
			_, _ = os.Stdout.Write(append(out, '\n'))
			return nil
		},
	}
}
