// Command afd is the File Distributor long-running process: it
// attaches (creating on first run) the Host Status Table, Directory
// Status Table, and every Message Bus fifo named in spec.md §6.1, then
// drives the scheduler/worker-pool loop described in §4.4 until
// terminated. SIGHUP reinstalls the host-config file the way AMG's own
// reload path does (spec.md §4.1 "reconciled against the authoritative
// host-config file on every AMG reload"); SIGINT/SIGTERM drain active
// workers up to the configured deadline before exiting (§4.4 "graceful
// shutdown").
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holger24/AFD-sub006/internal/afdlog"
	"github.com/holger24/AFD-sub006/internal/afdpaths"
	"github.com/holger24/AFD-sub006/internal/daemon"
	"github.com/holger24/AFD-sub006/internal/hostconfig"
)

var opt = struct {
	baseDir           string
	hstRows           int
	dstRows           int
	create            bool
	retryBase         time.Duration
	retryMax          time.Duration
	maxConsecutiveErr int
	shutdownDeadline  time.Duration
	transferTimeout   time.Duration
	pollInterval      time.Duration
	defaultPort       int
	debug             bool
}{}

var commandDefinition = &cobra.Command{
	Use:   "afd",
	Short: "Run the AFD File Distributor, Host/Directory Status Tables, and Message Bus",
	Long: `afd attaches the shared Host Status Table and Directory Status Table under
--base-dir (creating them with --create on first run), opens every
Message Bus fifo spec.md §6.1 names, installs --host-config into the
table if given, and runs the scheduler/worker-pool loop until
interrupted.`,
	RunE: runAFD,
}

func main() {
	commandDefinition.Flags().StringVar(&opt.baseDir, "base-dir", "/var/afd", "root directory for shared tables, fifos, and the outgoing spool")
	commandDefinition.Flags().IntVar(&opt.hstRows, "hst-rows", 64, "number of Host Status Table rows")
	commandDefinition.Flags().IntVar(&opt.dstRows, "dst-rows", 32, "number of Directory Status Table rows")
	commandDefinition.Flags().BoolVar(&opt.create, "create", false, "create tables and fifos if they do not already exist")
	commandDefinition.Flags().DurationVar(&opt.retryBase, "retry-base", time.Second, "base retry backoff interval")
	commandDefinition.Flags().DurationVar(&opt.retryMax, "retry-max", 2*time.Minute, "maximum retry backoff interval")
	commandDefinition.Flags().IntVar(&opt.maxConsecutiveErr, "max-consecutive-errors", 5, "consecutive worker failures before AUTO_PAUSE_QUEUE")
	commandDefinition.Flags().DurationVar(&opt.shutdownDeadline, "shutdown-deadline", 30*time.Second, "grace period for active workers to drain on shutdown")
	commandDefinition.Flags().DurationVar(&opt.transferTimeout, "transfer-timeout", 10*time.Minute, "per-session protocol operation timeout")
	commandDefinition.Flags().DurationVar(&opt.pollInterval, "poll-interval", 100*time.Millisecond, "scheduler tick / fifo poll interval")
	commandDefinition.Flags().IntVar(&opt.defaultPort, "default-port", 21, "default port used to dial every host (host-config carries no per-host port)")
	commandDefinition.Flags().BoolVar(&opt.debug, "debug", false, "log at debug level")
	commandDefinition.Flags().String("host-config", "", "host-config file (§6.7) to install at startup")

	if err := commandDefinition.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAFD(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := afdlog.New(level)
	log := afdlog.Component(logger, "afd")

	hostConfigPath, _ := cmd.Flags().GetString("host-config")
	layout := afdpaths.New(opt.baseDir)

	d, err := daemon.New(daemon.Config{
		Layout:            layout,
		HSTRows:           opt.hstRows,
		DSTRows:           opt.dstRows,
		Create:            opt.create,
		RetryBase:         opt.retryBase,
		RetryMax:          opt.retryMax,
		MaxConsecutiveErr: opt.maxConsecutiveErr,
		ShutdownDeadline:  opt.shutdownDeadline,
		TransferTimeout:   opt.transferTimeout,
		PollInterval:      opt.pollInterval,
		DefaultPort:       opt.defaultPort,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("afd: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}()

	store, err := hostconfig.OpenStore(layout.SnapshotDB())
	if err != nil {
		return fmt.Errorf("afd: open snapshot store: %w", err)
	}
	defer store.Close()

	if hostConfigPath != "" {
		if err := installHostConfig(hostConfigPath, d, store, log); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if hostConfigPath == "" {
					log.Warn("SIGHUP received but no --host-config was given at startup")
					continue
				}
				log.Info("SIGHUP: rereading host-config", "path", hostConfigPath)
				if err := installHostConfig(hostConfigPath, d, store, log); err != nil {
					log.Warn("host-config reread failed", "error", err)
				}
			}
		}
	}()

	log.Info("afd starting", "base_dir", opt.baseDir)
	err = d.Run(ctx)
	// Stop dispatching and keep reaping until no worker is left or the
	// shutdown deadline has passed.
	d.Sched.Stop()
	deadline := time.Now().Add(opt.shutdownDeadline)
	for d.Sched.ActiveWorkerCount() > 0 && time.Now().Before(deadline) {
		for row := 0; row < d.HST.RowCount(); row++ {
			_ = d.Sched.ReapHost(row)
		}
		time.Sleep(opt.pollInterval)
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("afd: %w", err)
	}
	log.Info("afd stopped")
	return nil
}

func installHostConfig(path string, d *daemon.Daemon, store *hostconfig.SnapshotStore, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("afd: open host-config %s: %w", path, err)
	}
	defer f.Close()
	hosts, err := hostconfig.Install(f, d.HST, store)
	if err != nil {
		return fmt.Errorf("afd: install host-config: %w", err)
	}
	log.Info("host-config installed", "hosts", len(hosts))
	return nil
}
