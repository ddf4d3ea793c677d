package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/database"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/mailbox"
	"github.com/username/reportsync/src/reconcile"
	"github.com/username/reportsync/src/services"
	"github.com/username/reportsync/src/store/notion"
	"github.com/username/reportsync/src/store/postgres"
)

// setupError is a failure that aborts the run before any report is
// processed. It keeps the stack where it was raised for the exit diagnostic.
type setupError struct {
	err   error
	stack []byte
}

func (e *setupError) Error() string { return e.err.Error() }
func (e *setupError) Unwrap() error { return e.err }

func asSetupError(err error) error {
	return &setupError{err: err, stack: debug.Stack()}
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error occurred: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error occurred: %v\n", err)
		var se *setupError
		if errors.As(err, &se) {
			os.Stderr.Write(se.stack)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reportsync",
		Short: "Reconcile emailed order reports into the record store",
		Long: "Finds the latest link-delivered and attachment-delivered report emails, " +
			"parses their CSV data, upserts every order into the record store, archives the " +
			"processed emails and alerts when a report is missing.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context())
		},
	}
	cmd.AddCommand(newParseCmd())
	return cmd
}

// runSync performs one reconciliation run. Only setup failures are returned;
// missing reports end the run normally.
func runSync(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return asSetupError(fmt.Errorf("invalid configuration: %w", err))
	}
	logger.InitLogger(cfg.LogLevel, cfg.QuietMode)

	mb, err := mailbox.New(ctx, cfg.Mailbox, cfg.HTTPTimeout)
	if err != nil {
		return asSetupError(err)
	}
	defer mb.Close()

	store, opts, closeStore, err := openRecordStore(ctx, cfg)
	if err != nil {
		return asSetupError(err)
	}
	defer closeStore()

	var sender services.MessageSender
	if cfg.Alert.Provider == "mailbox" {
		sender = mb
	}

	syncService := services.NewReportSyncService(
		mb,
		services.NewDownloadService(cfg.HTTPTimeout),
		reconcile.NewEngine(store, opts),
		services.NewEmailService(cfg.Alert, sender),
		services.SyncOptions{
			LinkSource:         cfg.LinkSource,
			AttachmentSource:   cfg.AttachmentSource,
			AlertRecipient:     cfg.Alert.Recipient,
			ArchiveProcessed:   cfg.ArchiveProcessed,
			StorageDomainToken: cfg.StorageDomainToken,
		},
	)
	syncService.Run(ctx)
	return nil
}

// openRecordStore connects the configured store provider and returns the
// engine options that fit it.
func openRecordStore(ctx context.Context, cfg *config.AppConfig) (reconcile.RecordStore, reconcile.Options, func(), error) {
	opts := reconcile.Options{StrictOrderIDs: cfg.Store.StrictOrderIDs}
	noop := func() {}

	switch cfg.Store.Provider {
	case "notion":
		opts.IsClientError = notion.IsClientError
		return notion.NewClient(cfg.Store, cfg.HTTPTimeout), opts, noop, nil

	case "sqlite":
		logger.L.Info("Initializing database...", "path", cfg.Store.DatabasePath)
		db, err := database.InitDB(cfg.Store.DatabasePath)
		if err != nil {
			return nil, opts, noop, err
		}
		store, err := database.NewSQLiteStore(ctx, db, cfg.Store.Table, cfg.Store.Fields)
		if err != nil {
			db.Close()
			return nil, opts, noop, err
		}
		return store, opts, func() { db.Close() }, nil

	case "postgres":
		ctx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
		defer cancel()
		pool, err := postgres.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, opts, noop, err
		}
		store, err := postgres.NewStore(ctx, pool, cfg.Store.Table, cfg.Store.Fields)
		if err != nil {
			pool.Close()
			return nil, opts, noop, err
		}
		return store, opts, pool.Close, nil

	default:
		return nil, opts, noop, fmt.Errorf("unknown store provider %q", cfg.Store.Provider)
	}
}
