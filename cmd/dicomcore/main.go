package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/caio-sobreiro/dicomcore/ae"
	"github.com/caio-sobreiro/dicomcore/association"
	"github.com/caio-sobreiro/dicomcore/dimse"
	"github.com/caio-sobreiro/dicomcore/metrics"
	"github.com/caio-sobreiro/dicomcore/services"
)

var (
	version = "0.1.0-dev"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	app := &cli.App{
		Name:    "dicomcore",
		Usage:   "Reference Application Entity over the DICOM Upper Layer core",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			echoCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("dicomcore: fatal", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start an SCP Application Entity",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "listen", Value: ":11112", Usage: "TCP address to listen on"},
			&cli.StringFlag{Name: "ae-title", Value: "DICOMCORE_SCP", Usage: "This AE's title"},
			&cli.BoolFlag{Name: "metrics", Usage: "expose Prometheus metrics on :9090/metrics"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadServerConfig(c)
			if err != nil {
				return err
			}
			opts := []ae.Option{}
			var reg *metrics.Registry
			if c.Bool("metrics") {
				reg = metrics.New()
				opts = append(opts, ae.WithMetrics(reg))
				go serveMetricsHTTP(reg)
			}
			entity := ae.New(cfg.AETitle, cfg.Contexts, opts...)
			slog.Info("dicomcore: starting SCP", "ae_title", entity.AETitle, "listen", cfg.Listen)

			store := services.NewInMemoryDataStore()
			registry := services.NewRegistry()
			registry.RegisterHandler(dimse.CEchoRQ, services.NewEchoService())
			registry.RegisterHandler(dimse.CStoreRQ, services.NewStoreService(store))
			registry.RegisterHandler(dimse.CFindRQ, services.NewFindService(store))

			return entity.StartServer(c.Context, cfg.Listen, func(ctx context.Context, a *association.Association) {
				ae.RegisterHandler(a, registry)
				for ev := range a.Events() {
					slog.Debug("dicomcore: association event", "kind", ev.Kind.String())
				}
			})
		},
	}
}

func echoCommand() *cli.Command {
	return &cli.Command{
		Name:  "echo",
		Usage: "Send a C-ECHO verification to a remote SCP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Required: true, Usage: "host:port of the remote SCP"},
			&cli.StringFlag{Name: "called-aet", Required: true},
			&cli.StringFlag{Name: "calling-aet", Value: "DICOMCORE_SCU"},
		},
		Action: func(c *cli.Context) error {
			entity := ae.New(c.String("calling-aet"), []ae.PresentationContext{
				{AbstractSyntax: verificationSOPClass, TransferSyntaxes: []string{implicitVRLittleEndian}},
			})
			a, err := entity.Associate(c.Context, c.String("addr"), c.String("called-aet"))
			if err != nil {
				return fmt.Errorf("associate: %w", err)
			}
			defer a.Abort(true)

			respCh, err := a.Provider().Request(c.Context, 1, dimse.Command{
				CommandField:        dimse.CEchoRQ,
				AffectedSOPClassUID: verificationSOPClass,
				CommandDataSetType:  dimse.NoDataSet,
			}, nil)
			if err != nil {
				return err
			}
			ex := <-respCh
			fmt.Printf("C-ECHO status: 0x%04x\n", ex.Command.Status)
			return a.Release(c.Context)
		},
	}
}

const (
	verificationSOPClass   = "1.2.840.10008.1.1"
	implicitVRLittleEndian = "1.2.840.10008.1.2"
)
