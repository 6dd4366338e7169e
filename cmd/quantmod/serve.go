package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantmod/internal/api"
	"github.com/samcharles93/quantmod/internal/toy"
	"github.com/samcharles93/quantmod/pkg/q8"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		demoQPS     float64
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, commonQuantFlags()...)
	flags = append(flags, commonLogFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.Float64Flag{
			Name:        "demo-qps",
			Usage:       "rate limit for the demo invoke endpoint",
			Value:       5,
			Destination: &demoQPS,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve registry introspection over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, LoadConfig(), &addr)
			log := setupLogger()

			model := toy.New(int(vocab), int(hidden), seed)
			if _, err := q8.QuantizeModule(model, q8.Options{
				MinSizeMB: minSizeMB,
				BlockSize: int(blockSize),
				Log:       log,
			}); err != nil {
				return cli.Exit(fmt.Sprintf("error: quantize module: %v", err), 1)
			}

			server := api.NewServer(log, model, int(vocab), demoQPS)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
