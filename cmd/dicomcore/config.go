package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/caio-sobreiro/dicomcore/ae"
	"github.com/caio-sobreiro/dicomcore/metrics"
)

// serverConfig is the YAML-loadable shape for `dicomcore serve`,
// grounded on the pack's config-file-plus-flag-override convention
// (flatmapit-crgodicom/internal/config).
type serverConfig struct {
	AETitle  string               `yaml:"ae_title"`
	Listen   string               `yaml:"listen"`
	Contexts []contextConfig      `yaml:"presentation_contexts"`
}

type contextConfig struct {
	AbstractSyntax   string   `yaml:"abstract_syntax"`
	TransferSyntaxes []string `yaml:"transfer_syntaxes"`
}

// resolvedConfig is the flag-and-YAML-merged configuration ready to
// hand to ae.New.
type resolvedConfig struct {
	AETitle  string
	Listen   string
	Contexts []ae.PresentationContext
}

func loadServerConfig(c *cli.Context) (resolved resolvedConfig, err error) {
	cfg := serverConfig{
		AETitle: c.String("ae-title"),
		Listen:  c.String("listen"),
	}
	if path := c.String("config"); path != "" {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return resolved, fmt.Errorf("dicomcore: read config: %w", readErr)
		}
		if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
			return resolved, fmt.Errorf("dicomcore: parse config: %w", unmarshalErr)
		}
	}
	if len(cfg.Contexts) == 0 {
		cfg.Contexts = []contextConfig{
			{AbstractSyntax: verificationSOPClass, TransferSyntaxes: []string{implicitVRLittleEndian}},
		}
	}

	resolved.AETitle = cfg.AETitle
	resolved.Listen = cfg.Listen
	resolved.Contexts = make([]ae.PresentationContext, len(cfg.Contexts))
	for i, pc := range cfg.Contexts {
		resolved.Contexts[i] = ae.PresentationContext{
			AbstractSyntax:   pc.AbstractSyntax,
			TransferSyntaxes: pc.TransferSyntaxes,
		}
	}
	return resolved, nil
}

func serveMetricsHTTP(reg *metrics.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	_ = http.ListenAndServe(":9090", mux)
}
