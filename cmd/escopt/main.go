// escopt ranks energy service company (ESCO) electricity offers for a ZIP code
//
// Usage:
//
//	escopt rank --zip 10001 --usage 600 [--prefer-green] [--format json]
//	escopt offers --zip 10001
//	escopt utility --zip 10001
//	escopt snapshot --zip 10001 --store clickhouse
//	escopt serve --port 8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"esco-optimizer/api"
	"esco-optimizer/decision/policy"
	"esco-optimizer/decision/scoring"
	"esco-optimizer/internal/config"
	"esco-optimizer/internal/report"
	"esco-optimizer/internal/service"
	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/platform"
	"esco-optimizer/pkg/units"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes
const (
	exitError      = 1
	exitDenied     = 2
	exitNoEligible = 3
)

func main() {
	app := &cli.App{
		Name:     "escopt",
		Usage:    "Rank ESCO electricity offers by estimated monthly cost and preferences",
		Version:  fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Metadata: map[string]interface{}{},

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"ESCOPT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Write logs as JSON instead of console output",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Offer source (ptc, file, s3, clickhouse, postgres)",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Offer file or directory for --source file",
			},
			&cli.StringFlag{
				Name:  "postgres-dsn",
				Usage: "PostgreSQL DSN for --source postgres",
			},
			&cli.StringFlag{
				Name:  "clickhouse-host",
				Usage: "ClickHouse host",
			},
			&cli.IntFlag{
				Name:  "clickhouse-port",
				Usage: "ClickHouse native port",
			},
			&cli.BoolFlag{
				Name:  "cache",
				Usage: "Cache offer listings",
			},
			&cli.StringFlag{
				Name:  "policy-dir",
				Usage: "Directory of rego review policies",
			},
			&cli.Float64Flag{
				Name:  "max-monthly-cost",
				Usage: "Deny recommendations whose monthly cost exceeds this amount",
			},
		},

		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			platform.InitLogger(cfg.Log.Level, cfg.Log.Console)
			c.App.Metadata["config"] = cfg
			return nil
		},

		Commands: []*cli.Command{
			rankCommand(),
			offersCommand(),
			utilityCommand(),
			snapshotCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			os.Exit(exit.ExitCode())
		}
		os.Exit(exitError)
	}
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-json") {
		cfg.Log.Console = !c.Bool("log-json")
	}
	if c.IsSet("source") {
		cfg.Source.Kind = c.String("source")
	}
	if c.IsSet("file") {
		cfg.Source.File.Path = c.String("file")
		if !c.IsSet("source") {
			cfg.Source.Kind = config.SourceFile
		}
	}
	if c.IsSet("postgres-dsn") {
		cfg.Source.Postgres.DSN = c.String("postgres-dsn")
	}
	if c.IsSet("clickhouse-host") {
		cfg.Source.ClickHouse.Host = c.String("clickhouse-host")
	}
	if c.IsSet("clickhouse-port") {
		cfg.Source.ClickHouse.Port = c.Int("clickhouse-port")
	}
	if c.IsSet("cache") {
		cfg.Cache.Enabled = c.Bool("cache")
	}
	if c.IsSet("policy-dir") {
		cfg.Policy.Dir = c.String("policy-dir")
	}
	if c.IsSet("max-monthly-cost") {
		cfg.Policy.MaxMonthlyCost = c.Float64("max-monthly-cost")
	}

	return cfg, cfg.Validate()
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func buildOptimizer(c *cli.Context) (*service.Optimizer, service.Closer, error) {
	opt, closer, err := service.New(c.Context, configFrom(c))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize offer source: %w", err)
	}
	return opt, closer, nil
}

func zipFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "zip",
		Aliases:  []string{"z"},
		Usage:    "Five digit ZIP code",
		Required: true,
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "table",
		Usage:   "Output format (table, json, markdown)",
	}
}

// =============================================================================
// RANK COMMAND
// =============================================================================

func rankCommand() *cli.Command {
	return &cli.Command{
		Name:  "rank",
		Usage: "Recommend the best offers for a ZIP code and monthly usage",
		Flags: []cli.Flag{
			zipFlag(),
			&cli.StringFlag{
				Name:     "usage",
				Aliases:  []string{"u"},
				Usage:    "Monthly electricity usage",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "usage-unit",
				Value: "kWh",
				Usage: "Usage unit (kWh, MWh)",
			},
			&cli.BoolFlag{Name: "prefer-fixed", Usage: "Favor fixed-rate plans"},
			&cli.BoolFlag{Name: "prefer-green", Usage: "Favor plans with renewable content"},
			&cli.BoolFlag{Name: "avoid-cancellation-fees", Usage: "Penalize cancellation fees"},
			&cli.BoolFlag{Name: "avoid-value-added", Usage: "Penalize value-added bundles"},
			&cli.StringFlag{
				Name:  "utility",
				Usage: "Utility name to use instead of the detected one",
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "Number of offers to list (default from config)",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Also list every eligible offer",
			},
			&cli.BoolFlag{
				Name:  "skip-policy",
				Usage: "Skip recommendation review",
			},
			formatFlag(),
		},
		Action: runRank,
	}
}

func runRank(c *cli.Context) error {
	format, err := report.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(c.String("usage")))
	if err != nil {
		return fmt.Errorf("invalid usage %q: %w", c.String("usage"), err)
	}
	unit, err := units.ParseUnit(c.String("usage-unit"))
	if err != nil {
		return err
	}

	opt, closer, err := buildOptimizer(c)
	if err != nil {
		return err
	}
	defer closer()

	if c.Bool("skip-policy") {
		opt.WithReview(nil)
	}

	result, err := opt.Optimize(c.Context, service.Request{
		ZipCode:  c.String("zip"),
		UsageKWh: units.ToKWh(amount, unit),
		Preferences: scoring.Preferences{
			PreferFixed:           c.Bool("prefer-fixed"),
			PreferGreen:           c.Bool("prefer-green"),
			AvoidCancellationFees: c.Bool("avoid-cancellation-fees"),
			AvoidValueAdded:       c.Bool("avoid-value-added"),
		},
		UtilityOverride: c.String("utility"),
		TopK:            c.Int("top"),
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNoEligibleOffers) || errors.Is(err, apperrors.ErrNoOffers) {
			return cli.Exit(err.Error(), exitNoEligible)
		}
		return err
	}

	if err := report.Render(os.Stdout, result, format, report.Options{ShowAll: c.Bool("all")}); err != nil {
		return err
	}

	if result.Review != nil && result.Review.Decision == policy.DecisionDeny {
		return cli.Exit("recommendation denied by policy", exitDenied)
	}
	return nil
}

// =============================================================================
// OFFERS / UTILITY COMMANDS
// =============================================================================

func offersCommand() *cli.Command {
	return &cli.Command{
		Name:  "offers",
		Usage: "List eligible offers for a ZIP code without ranking",
		Flags: []cli.Flag{zipFlag(), formatFlag()},
		Action: func(c *cli.Context) error {
			format, err := report.ParseFormat(c.String("format"))
			if err != nil {
				return err
			}
			opt, closer, err := buildOptimizer(c)
			if err != nil {
				return err
			}
			defer closer()

			offers, fetched, err := opt.Eligible(c.Context, c.String("zip"))
			if err != nil {
				return err
			}
			log.Debug().Int("fetched", fetched).Int("eligible", len(offers)).Msg("Offers filtered")
			return report.RenderOffers(os.Stdout, offers, format)
		},
	}
}

func utilityCommand() *cli.Command {
	return &cli.Command{
		Name:  "utility",
		Usage: "Show the detected utility and default supply rate for a ZIP code",
		Flags: []cli.Flag{
			zipFlag(),
			&cli.StringFlag{Name: "override", Usage: "Utility name to look up instead"},
			formatFlag(),
		},
		Action: func(c *cli.Context) error {
			format, err := report.ParseFormat(c.String("format"))
			if err != nil {
				return err
			}
			opt, closer, err := buildOptimizer(c)
			if err != nil {
				return err
			}
			defer closer()

			territory, err := opt.Territory(c.Context, c.String("zip"), c.String("override"))
			if err != nil {
				return err
			}
			return report.RenderTerritory(os.Stdout, territory, format)
		},
	}
}

// =============================================================================
// SNAPSHOT COMMAND
// =============================================================================

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Fetch the full offer listing for ZIP codes and store it for replay",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "zip",
				Aliases:  []string{"z"},
				Usage:    "ZIP code (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "store",
				Value: config.SourceClickHouse,
				Usage: "Snapshot store (clickhouse, postgres)",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Value: true,
				Usage: "Create the snapshot table if needed",
			},
		},
		Action: runSnapshot,
	}
}

func runSnapshot(c *cli.Context) error {
	cfg := configFrom(c)
	if cfg.Source.Kind == c.String("store") {
		return fmt.Errorf("snapshot source and store are both %s", cfg.Source.Kind)
	}

	src, closeSource, err := service.NewSource(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize offer source: %w", err)
	}
	defer closeSource()

	store, err := service.NewSnapshotStore(cfg, c.String("store"))
	if err != nil {
		return err
	}
	defer store.Close()

	if c.Bool("migrate") {
		if err := store.Migrate(c.Context); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", store.Name(), err)
		}
	}

	results := make([]*service.SnapshotResult, 0, len(c.StringSlice("zip")))
	for _, zip := range c.StringSlice("zip") {
		res, err := service.Snapshot(c.Context, src, store, zip)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", zip, err)
		}
		results = append(results, res)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the recommendation API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Server port (default from config)",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Require this X-API-Key on /api/v1",
				EnvVars: []string{"ESCOPT_API_KEY"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("api-key") {
		cfg.Server.APIKey = c.String("api-key")
	}

	opt, closer, err := service.New(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize offer source: %w", err)
	}
	defer closer()

	server := api.NewServer(opt, &api.Config{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxRequestSize:  1 << 20,
		CORSOrigins:     cfg.Server.CORSOrigins,
		APIKey:          cfg.Server.APIKey,
	}, version)

	return server.StartWithGracefulShutdown()
}
