package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/findings-relay/findings-relay/internal/config"
	"github.com/findings-relay/findings-relay/internal/connectors/codedx"
	"github.com/findings-relay/findings-relay/internal/connectors/polaris"
	"github.com/findings-relay/findings-relay/internal/connectors/registry"
	"github.com/findings-relay/findings-relay/internal/metrics"
	"github.com/findings-relay/findings-relay/internal/secrets"
	"github.com/findings-relay/findings-relay/internal/sync"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	polarisApplicationID string
	codeDxProjectID      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Report findings from Polaris, then from Code Dx.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFindings(cmd, runOptions{kinds: []string{polaris.Kind, codedx.Kind}})
	},
}

var polarisCmd = &cobra.Command{
	Use:   "polaris",
	Short: "Report findings from one Polaris application.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFindings(cmd, runOptions{
			kinds: []string{polaris.Kind},
			override: func(cfg *config.Config) {
				if v := strings.TrimSpace(polarisApplicationID); v != "" {
					cfg.PolarisApplicationID = v
				}
			},
		})
	},
}

var codedxCmd = &cobra.Command{
	Use:   "codedx",
	Short: "Report findings from the child projects of one Code Dx project.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFindings(cmd, runOptions{
			kinds: []string{codedx.Kind},
			override: func(cfg *config.Config) {
				if v := strings.TrimSpace(codeDxProjectID); v != "" {
					cfg.CodeDxProjectID = v
				}
			},
		})
	},
}

func init() {
	polarisCmd.Flags().StringVar(&polarisApplicationID, "application-id", "", "Polaris application id (overrides "+config.EnvPolarisApplicationID+")")
	codedxCmd.Flags().StringVar(&codeDxProjectID, "project-id", "", "Code Dx parent project id (overrides "+config.EnvCodeDxProjectID+")")
}

type runOptions struct {
	kinds    []string
	override func(*config.Config)
}

func runFindings(cmd *cobra.Command, opts runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return configError(err)
	}
	if opts.override != nil {
		opts.override(&cfg)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err = secrets.NewResolver(cfg.Vault).ResolveConfig(ctx, cfg)
	if err != nil {
		return configError(err)
	}
	cfg, err = promptMissingTokens(cmd, cfg, opts.kinds)
	if err != nil {
		return configError(err)
	}

	reg, err := buildConnectorRegistry()
	if err != nil {
		return err
	}
	definitions, err := selectDefinitions(reg, cfg, opts.kinds)
	if err != nil {
		return configError(err)
	}

	slog.Info("configuration loaded", cfg.Redacted()...)

	orchestrator := sync.NewOrchestrator(slog.Default())
	orchestrator.SetReporter(&sync.LogReporter{})
	buildOpts := registry.BuildOptions{HTTP: &http.Client{Timeout: cfg.HTTPTimeout}}
	for _, def := range definitions {
		integration, err := def.NewIntegration(cfg, buildOpts)
		if err != nil {
			return configError(fmt.Errorf("%s: %w", def.DisplayName(), err))
		}
		if err := orchestrator.AddIntegration(integration); err != nil {
			return err
		}
	}

	runErr := runWithMetrics(ctx, cfg.MetricsAddr, orchestrator.RunOnce)
	if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		slog.Warn("metrics textfile write failed", "path", cfg.MetricsTextfile, "err", err)
	}

	if runErr == nil {
		return nil
	}
	if errors.Is(runErr, context.Canceled) {
		return &exitError{code: exitCodeCanceled, err: runErr, silent: true}
	}
	return &exitError{code: exitCodeFailure, err: runErr}
}

// selectDefinitions validates every requested vendor and reports all problems together.
func selectDefinitions(reg *registry.ConnectorRegistry, cfg config.Config, kinds []string) ([]registry.ConnectorDefinition, error) {
	var (
		out    []registry.ConnectorDefinition
		result *multierror.Error
	)
	for _, kind := range kinds {
		def, ok := reg.Get(kind)
		if !ok {
			result = multierror.Append(result, fmt.Errorf("connector %q is not registered", kind))
			continue
		}
		if err := def.ValidateConfig(cfg); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", def.DisplayName(), err))
			continue
		}
		out = append(out, def)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// runWithMetrics serves /metrics for as long as run is in flight. A listener failure is logged
// and never stops run.
func runWithMetrics(ctx context.Context, addr string, run func(context.Context) error) error {
	if !metrics.Enabled(addr) {
		return run(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	g.Go(func() error {
		if err := metrics.Serve(serveCtx, addr); err != nil {
			slog.Warn("metrics server stopped; continuing without /metrics", "addr", addr, "err", err)
		}
		return nil
	})
	g.Go(func() error {
		defer stopServing()
		return run(gctx)
	})
	return g.Wait()
}
