package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantmod/internal/logger"
)

var (
	vocab     int64
	hidden    int64
	seed      int64
	minSizeMB float64
	blockSize int64
	logLevel  string
	logFormat string
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "vocab",
			Usage:       "demo model vocabulary size",
			Value:       4096,
			Destination: &vocab,
		},
		&cli.Int64Flag{
			Name:        "hidden",
			Usage:       "demo model hidden size",
			Value:       256,
			Destination: &hidden,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "weight initialisation seed",
			Value:       42,
			Destination: &seed,
		},
	}
}

func commonQuantFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "min-size-mb",
			Usage:       "weights below this size stay in plain form",
			Value:       1.0,
			Destination: &minSizeMB,
		},
		&cli.Int64Flag{
			Name:        "block-size",
			Aliases:     []string{"b"},
			Usage:       "quantization block length",
			Value:       256,
			Destination: &blockSize,
		},
	}
}

func commonLogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, text, json)",
			Value:       "auto",
			Destination: &logFormat,
		},
	}
}

// setupLogger builds the CLI logger from the log flags. The auto format
// picks pretty output when stderr is a terminal.
func setupLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	default:
		if stderrIsTerminal() {
			return logger.Pretty(os.Stderr, level)
		}
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
}
