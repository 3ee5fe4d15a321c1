// birdsync - inspect and edit the routes birdsync publishes
//
// Usage:
//
//	birdsync add <destination> <next-hop>   Declare a static route and reload BIRD
//	birdsync delete <destination>           Remove a static route and reload BIRD
//	birdsync show                           List this host's routes in the store
//	birdsync parse [file]                   Parse a "show route" dump offline
//	birdsync audit [--failed] [-n N]        Show recent route edits
//	birdsync config [--save]                Print or save the effective configuration
//	birdsync interactive                    Menu-driven route editing
//
// add and delete edit the "protocol static" block of the local bird.conf.
// The store record is written first and the file second; BIRD is reloaded
// last. A failed reload leaves the new file in place.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/birdsync/birdsync/pkg/birdc"
	"github.com/birdsync/birdsync/pkg/birdconf"
	"github.com/birdsync/birdsync/pkg/cli"
	"github.com/birdsync/birdsync/pkg/editor"
	"github.com/birdsync/birdsync/pkg/settings"
	"github.com/birdsync/birdsync/pkg/store"
	"github.com/birdsync/birdsync/pkg/util"
	"github.com/birdsync/birdsync/pkg/version"
)

var (
	configPath string
	hostID     string
	redisAddr  string
	confPath   string
	verbose    bool

	cfg *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.Red("error: ")+err.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "birdsync",
	Short:             "Inspect and edit BIRD routes published to Redis",
	Version:           version.Short(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		// quiet by default, verbose on -v
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		var err error
		if configPath == "" {
			cfg, err = settings.Load()
		} else {
			cfg, err = settings.LoadFrom(configPath)
		}
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		if hostID != "" {
			cfg.HostID = hostID
		}
		if redisAddr != "" {
			cfg.Redis.Addr = redisAddr
		}
		if confPath != "" {
			cfg.Bird.ConfigPath = confPath
		}
		util.SetLogFormat(cfg.Log.Format)
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&hostID, "host", "", "Host identifier used in store keys")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address (host:port)")
	rootCmd.PersistentFlags().StringVar(&confPath, "bird-conf", "", "Path to bird.conf")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "routes", Title: "Route Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)
	for _, cmd := range []*cobra.Command{addCmd, deleteCmd, showCmd, parseCmd, interactiveCmd} {
		cmd.GroupID = "routes"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{auditCmd, configCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("birdsync dev build (use 'make build' for version info)")
		} else {
			fmt.Printf("birdsync %s\n", version.Info())
		}
	},
}

// openStore connects to the configured Redis.
func openStore(ctx context.Context) (*store.Redis, error) {
	r := store.NewRedis(store.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Redis.Timeout,
	})
	if err := r.Connect(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// withEditor runs fn with an Editor over the local bird.conf and the store
// it writes to.
func withEditor(ctx context.Context, fn func(*editor.Editor, store.Store) error) error {
	if cfg.Remote() {
		return fmt.Errorf("route editing needs local access to %s; unset ssh.host", cfg.Bird.ConfigPath)
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	client := birdc.NewClient(birdc.ExecRunner{},
		birdc.WithBinary(cfg.Bird.Birdc),
		birdc.WithSocket(cfg.Bird.Socket),
		birdc.WithTimeout(cfg.Bird.Timeout),
	)
	conf := birdconf.NewFile(cfg.Bird.ConfigPath, client)
	ed := editor.New(st, conf, cfg.HostID,
		editor.WithTTL(cfg.RouteTTL),
		editor.WithMarker(cfg.Bird.StaticMarker),
	)
	return fn(ed, st)
}
