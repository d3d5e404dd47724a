package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/cigraph/internal/config"
	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/logging"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/output"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile   string
	verbose   bool
	formatArg string
	tenantID  string
	repoID    string

	logger   *logrus.Logger
	closeLog func() error
	cfg      *config.Config
	format   output.Format
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err, verbose)
		stop()
		os.Exit(exitCode(err))
	}
}

// Exit codes
const (
	exitFailure = 1
	exitInput   = 2 // malformed or invalid input
	exitConfig  = 3
)

func exitCode(err error) int {
	switch {
	case errors.IsValidation(err):
		return exitInput
	case errors.GetType(err) == errors.ErrorTypeConfig:
		return exitConfig
	}
	return exitFailure
}

// reportError prints err; with detail set, critical errors also print their
// context and stack trace
func reportError(w io.Writer, err error, detail bool) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if !detail || !errors.IsFatal(err) {
		return
	}
	if e, ok := errors.As(err); ok {
		fmt.Fprint(w, e.DetailedString())
	}
}

var rootCmd = &cobra.Command{
	Use:   "cig",
	Short: "Code intelligence graph: ingest indexer output and query it",
	Long: `cig stores the symbols, edges and dependency facts emitted by a code indexer
in a tenant-isolated graph store and answers impact questions over it:
blast radius, neighborhoods, execution flows and dependency mismatches.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		logCfg := logging.Config{
			Level:      cfg.Log.Level,
			OutputFile: cfg.Log.File,
			MaxSize:    int64(cfg.Log.MaxSizeMB) * 1024 * 1024,
			MaxBackups: cfg.Log.MaxBackups,
			JSONFormat: cfg.Log.JSON,
		}
		if verbose {
			logCfg.Level = "debug"
		}
		logger, closeLog, err = logging.New(logCfg)
		if err != nil {
			return err
		}

		format, err = output.ParseFormat(formatArg)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if closeLog != nil {
			return closeLog()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .cigraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&formatArg, "format", "o", "text", "output format: json, yaml or text")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant id")
	rootCmd.PersistentFlags().StringVar(&repoID, "repo", "", "repository id")

	rootCmd.SetVersionTemplate(`cig {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(blastRadiusCmd)
	rootCmd.AddCommand(neighborhoodCmd)
	rootCmd.AddCommand(traceFlowCmd)
	rootCmd.AddCommand(materializeFlowCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(exportCmd)
}

// scope builds the tenant/repo scope from the global flags
func scope() (models.Scope, error) {
	s := models.Scope{TenantID: tenantID, RepoID: repoID}
	if !s.Valid() {
		return s, errors.InvalidArgument("--tenant and --repo are required")
	}
	return s, nil
}

// render writes a command result to the command output in the selected format
func render(v interface{}) error {
	return output.Render(rootCmd.OutOrStdout(), format, v)
}
