package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pacetech/docflow/internal/config"
	"github.com/pacetech/docflow/internal/docflow/auth"
	"github.com/pacetech/docflow/internal/docflow/daemon"
	"github.com/pacetech/docflow/internal/docflow/db"
	"github.com/pacetech/docflow/internal/docflow/formtype"
	"github.com/pacetech/docflow/internal/docflow/remote"
	"github.com/pacetech/docflow/internal/docflow/render"
	docsync "github.com/pacetech/docflow/internal/docflow/sync"
	"github.com/pacetech/docflow/internal/logging"
	"github.com/pacetech/docflow/internal/ui"
)

var (
	v          = config.New()
	cfg        *config.Config
	configFile string
	logCloser  = func() {}
	log        zerolog.Logger

	osExit = os.Exit
)

var rootCmd = &cobra.Command{
	Use:   "docflow",
	Short: "Offline form store and sync for field inspections",
	Long: `DocFlow keeps inspection forms (FLRA, manlift) in a local SQLite store
and reconciles them with the document service when a connection is available.

Forms are saved locally first and marked pending. A sync pass submits every
pending form, one at a time, and marks each synced or error. Failed forms are
retried on the next pass.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(os.Stdout)

		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded

		l, closer, err := logging.New(cfg.LoggingOptions())
		if err != nil {
			return err
		}
		log = l
		logCloser = closer

		if used := config.ConfigFileUsed(v); used != "" {
			log.Debug().Str("file", used).Msg("loaded config")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logCloser()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "forms", Title: "Form Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default <data-dir>/docflow.yaml)")
	flags.String("data-dir", config.DefaultDataDir(), "data directory")
	flags.String("db", "", "database path (default <data-dir>/docflow.db)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-file", "", "log file (default stderr)")
	flags.String("endpoint", "", "sync endpoint base URL")

	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("db_path", flags.Lookup("db"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.file", flags.Lookup("log-file"))
	_ = v.BindPFlag("api.endpoint", flags.Lookup("endpoint"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.ErrorStyle.Render("Error:"), err)
		exit(1)
	}
}

// exit flushes and closes the log before terminating. PersistentPostRun does
// not run on these paths.
func exit(code int) {
	logCloser()
	logCloser = func() {}
	osExit(code)
}

// bindFlag binds a command flag to a config key.
func bindFlag(cmd *cobra.Command, key, flag string) {
	_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

// openStore opens the configured store. An unavailable store ends the session.
func openStore(ctx context.Context) *db.DB {
	store, err := db.Initialize(ctx, cfg.DBPath)
	if err != nil {
		if errors.Is(err, db.ErrStorageUnavailable) {
			fmt.Fprintf(os.Stderr, "%s local storage is unavailable at %s\n", ui.ErrorStyle.Render("Error:"), cfg.DBPath)
			fmt.Fprintf(os.Stderr, "  %v\n", err)
			log.Error().Err(err).Str("path", cfg.DBPath).Msg("storage unavailable")
			exit(2)
			return nil
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.ErrorStyle.Render("Error:"), err)
		log.Error().Err(err).Msg("failed to open store")
		exit(1)
		return nil
	}
	return store
}

// loadFormTypes returns the built-in form types merged with the configured file.
func loadFormTypes() (*formtype.Registry, error) {
	if cfg.FormTypes.File == "" {
		return formtype.Builtin(), nil
	}
	reg, err := formtype.Load(cfg.FormTypes.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load form types: %w", err)
	}
	return reg, nil
}

// syncStack is everything a sync pass needs.
type syncStack struct {
	client    *remote.Client
	monitor   *daemon.Monitor
	engine    *docsync.Engine
	formTypes *formtype.Registry
}

// newSyncStack wires the engine to the configured endpoint and token provider.
func newSyncStack(store *db.DB, indicator docsync.Indicator) (*syncStack, error) {
	if err := cfg.RequireEndpoint(); err != nil {
		return nil, err
	}

	tokens, err := auth.New(cfg.AuthProviderConfig())
	if err != nil {
		return nil, err
	}

	formTypes, err := loadFormTypes()
	if err != nil {
		return nil, err
	}

	client := remote.NewClient(cfg.API.Endpoint, &http.Client{Timeout: cfg.API.Timeout})
	monitor := daemon.NewMonitor(client)
	syncLog := logging.Component("sync")

	engine := docsync.New(store, docsync.Options{
		Submitter:    client,
		Tokens:       tokens,
		Renderer:     render.Bundle{Paths: cfg.DocPaths()},
		FormTypes:    formTypes,
		Connectivity: monitor,
		Indicator:    indicator,
		Library:      cfg.Docs.Library,
		SitePath:     cfg.Docs.SitePath,
		RetryErrored: cfg.Sync.RetryErrored,
		MaxAttempts:  cfg.Sync.MaxAttempts,
		Logger:       &syncLog,
	})

	return &syncStack{client: client, monitor: monitor, engine: engine, formTypes: formTypes}, nil
}
