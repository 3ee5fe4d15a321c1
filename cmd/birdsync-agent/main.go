// birdsync-agent - publish a BIRD routing table to Redis
//
// Usage:
//
//	birdsync-agent [--config path] [--host id] [--interval 30s] [--ttl 60s]
//	birdsync-agent --once            Run a single cycle and print a summary
//	birdsync-agent --dry-run --once  Parse and reconcile into memory only
//
// Every cycle runs "birdc show route", parses the dump, and rewrites the
// host's route:<host>:<destination> keys in one transaction. Keys carry a TTL
// longer than the poll interval, so a stopped agent's routes age out.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/birdsync/birdsync/pkg/birdc"
	"github.com/birdsync/birdsync/pkg/cli"
	"github.com/birdsync/birdsync/pkg/metrics"
	"github.com/birdsync/birdsync/pkg/poller"
	"github.com/birdsync/birdsync/pkg/reconcile"
	"github.com/birdsync/birdsync/pkg/settings"
	"github.com/birdsync/birdsync/pkg/store"
	"github.com/birdsync/birdsync/pkg/util"
	"github.com/birdsync/birdsync/pkg/version"
)

var (
	configPath string
	hostID     string
	redisAddr  string
	interval   time.Duration
	ttl        time.Duration
	once       bool
	dryRun     bool
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		util.Fatalf("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:           "birdsync-agent",
	Short:         "Publish the BIRD routing table to Redis",
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, closeStore, err := openStore(ctx, s)
		if err != nil {
			return err
		}
		defer closeStore()

		runner, closeRunner, err := newRunner(s)
		if err != nil {
			return err
		}
		defer closeRunner()

		client := birdc.NewClient(runner,
			birdc.WithBinary(s.Bird.Birdc),
			birdc.WithSocket(s.Bird.Socket),
			birdc.WithTable(s.Bird.Table),
			birdc.WithTimeout(s.Bird.Timeout),
		)
		rec := reconcile.New(st, reconcile.WithTTL(s.RouteTTL))

		if once {
			p := poller.New(client, rec, s.HostID)
			res, err := p.RunOnce(ctx)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		p := poller.New(client, rec, s.HostID,
			poller.WithInterval(s.PollInterval),
			poller.WithMetrics(metrics.New(reg)),
		)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return p.Run(ctx) })
		if s.MetricsAddr != "" {
			g.Go(func() error { return serveMetrics(ctx, s.MetricsAddr, reg) })
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file (default $BIRDSYNC_CONFIG or /etc/birdsync/birdsync.yaml)")
	rootCmd.Flags().StringVar(&hostID, "host", "", "Host identifier used in store keys")
	rootCmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address (host:port)")
	rootCmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 0, "Route TTL; must exceed the poll interval")
	rootCmd.Flags().BoolVar(&once, "once", false, "Run one cycle and exit")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Reconcile into an in-memory store instead of Redis")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("birdsync-agent %s\n", version.Info())
	},
}

// loadSettings merges the configuration file with command-line overrides.
func loadSettings(cmd *cobra.Command) (*settings.Settings, error) {
	var s *settings.Settings
	var err error
	if configPath == "" {
		s, err = settings.Load()
	} else {
		s, err = settings.LoadFrom(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	if hostID != "" {
		s.HostID = hostID
	}
	if redisAddr != "" {
		s.Redis.Addr = redisAddr
	}
	if cmd.Flags().Changed("interval") {
		s.PollInterval = interval
	}
	if cmd.Flags().Changed("ttl") {
		s.RouteTTL = ttl
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	util.SetLogFormat(s.Log.Format)
	level := s.Log.Level
	if verbose {
		level = "debug"
	}
	if err := util.SetLogLevel(level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return s, nil
}

// openStore connects to Redis, failing fast when it is unreachable.
func openStore(ctx context.Context, s *settings.Settings) (store.Store, func(), error) {
	if dryRun {
		util.Logger.Warn("dry run: routes are kept in memory only")
		return store.NewMemory(), func() {}, nil
	}
	r := store.NewRedis(store.Options{
		Addr:     s.Redis.Addr,
		Password: s.Redis.Password,
		DB:       s.Redis.DB,
		Timeout:  s.Redis.Timeout,
	})
	if err := r.Connect(ctx); err != nil {
		r.Close()
		return nil, nil, err
	}
	return r, func() { r.Close() }, nil
}

func newRunner(s *settings.Settings) (birdc.Runner, func(), error) {
	if !s.Remote() {
		return birdc.ExecRunner{}, func() {}, nil
	}
	r, err := birdc.DialSSH(s.SSHConfig())
	if err != nil {
		return nil, nil, err
	}
	return r, func() { r.Close() }, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			util.Errorf("metrics server shutdown: %v", err)
		}
	}()

	util.Infof("serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func printResult(res *reconcile.Result) {
	fmt.Printf("%s %s: %d written, %d stale, %d replaced\n",
		cli.Green("reconciled"), res.Host, len(res.Written), len(res.Stale), len(res.Replaced))
	if res.Anomalies != nil {
		for _, err := range res.Anomalies.Errors {
			fmt.Println("  " + cli.Yellow("anomaly: ") + err.Error())
		}
	}
}
