package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/birdsync/birdsync/pkg/audit"
	"github.com/birdsync/birdsync/pkg/cli"
	"github.com/birdsync/birdsync/pkg/editor"
	"github.com/birdsync/birdsync/pkg/route"
	"github.com/birdsync/birdsync/pkg/store"
	"github.com/birdsync/birdsync/pkg/util"
)

const phaseWidth = 24

var addCmd = &cobra.Command{
	Use:   "add <destination> <next-hop>",
	Short: "Declare a static route",
	Long: `Declare a static route on this host.

The route is written to the store, added to the static protocol block of
bird.conf, and BIRD is told to reconfigure.

Examples:
  birdsync add 198.51.100.0/24 192.0.2.1
  birdsync add 2001:db8:100::/48 2001:db8::1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withEditor(ctx, func(ed *editor.Editor, _ store.Store) error {
			event := audit.NewEvent(cfg.HostID, audit.OpRouteAdd, args[0]).WithNextHop(args[1])
			out, err := ed.Add(ctx, args[0], args[1])
			printOutcome(out, false)
			record(event, out, err)
			return explain(err)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <destination>",
	Aliases: []string{"del", "rm"},
	Short:   "Remove a static route",
	Long: `Remove a static route from the store and from bird.conf, then
reconfigure BIRD.

Example:
  birdsync delete 198.51.100.0/24`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withEditor(ctx, func(ed *editor.Editor, _ store.Store) error {
			event := audit.NewEvent(cfg.HostID, audit.OpRouteDelete, args[0])
			out, err := ed.Delete(ctx, args[0])
			printOutcome(out, true)
			record(event, out, err)
			return explain(err)
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List this host's routes in the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := storedRoutes(ctx, st, cfg.HostID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("No routes stored for %s\n", cfg.HostID)
			return nil
		}
		fmt.Printf("%s (%d routes)\n\n", cli.Bold(cfg.HostID), len(records))
		printRecords(records)
		return nil
	},
}

// storedRoutes reads every route hash of hostID, sorted by destination.
// Keys holding other types are skipped.
func storedRoutes(ctx context.Context, st store.Store, hostID string) ([]route.Record, error) {
	keys, err := st.Keys(ctx, route.HostPrefix(hostID))
	if err != nil {
		return nil, err
	}
	var records []route.Record
	for _, key := range keys {
		typ, err := st.Type(ctx, key)
		if err != nil {
			return nil, err
		}
		if typ != store.TypeHash {
			util.WithField("key", key).Debugf("skipping %s value", typ)
			continue
		}
		fields, err := st.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if fields == nil {
			continue
		}
		records = append(records, route.FromFields(fields))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Destination < records[j].Destination
	})
	return records, nil
}

func printRecords(records []route.Record) {
	t := cli.NewTable("DESTINATION", "TYPE", "PROTOCOL", "STATUS", "METRIC", "NEXT HOP", "INTERFACE")
	for _, r := range records {
		t.Row(r.Destination, dash(r.Type), dash(r.Protocol), cli.Status(string(r.Status)),
			optString(r.Metric), optString(r.NextHop), optString(r.Interface))
	}
	t.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func optString[T comparable](o route.Opt[T]) string {
	v, ok := o.Get()
	if !ok {
		return "-"
	}
	return fmt.Sprint(v)
}

// printOutcome reports each phase that ran.
func printOutcome(out *editor.Outcome, deleting bool) {
	if out == nil {
		return
	}
	if deleting {
		if out.StoreRemoved {
			fmt.Println(cli.Phase("store record removed", true, phaseWidth))
		}
	} else if out.StoreWritten {
		fmt.Println(cli.Phase("store record written", true, phaseWidth))
	}
	if out.ConfigUpdated {
		fmt.Println(cli.Phase("bird.conf updated", true, phaseWidth))
		fmt.Println(cli.Phase("bird reconfigured", out.Reloaded, phaseWidth))
	}
	if out.Anomalies != nil {
		for _, err := range out.Anomalies.Errors {
			fmt.Println(cli.Yellow("warning: ") + err.Error())
		}
	}
}

// explain adds operator guidance to editor errors.
func explain(err error) error {
	var rerr *util.ReloadError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &rerr) && rerr.ConfigReplaced:
		return fmt.Errorf("%w\nbird.conf holds the change but BIRD is still running the old configuration; fix the file and run 'birdc configure'", err)
	case errors.Is(err, util.ErrConfigBlockNotFound):
		return fmt.Errorf("%w\nnothing was changed; check bird.static_marker (currently %q)", err, cfg.Bird.StaticMarker)
	case errors.Is(err, util.ErrRouteNotInConfig):
		return fmt.Errorf("%w\nthe store record was removed; bird.conf was left unchanged", err)
	}
	return err
}

// record appends the edit to the audit log. Audit failures only warn.
func record(event *audit.Event, out *editor.Outcome, err error) {
	if out != nil {
		event.WithPhases(out.StoreWritten || out.StoreRemoved, out.ConfigUpdated, out.Reloaded)
	}
	event.Finish(err)

	l, lerr := audit.NewFileLogger(cfg.AuditLog, audit.Rotation{MaxSize: 10 * 1024 * 1024, MaxBackups: 10})
	if lerr != nil {
		util.Warnf("Could not open audit log: %v", lerr)
		return
	}
	defer l.Close()
	if lerr := l.Log(event); lerr != nil {
		util.Warnf("Could not write audit log: %v", lerr)
	}
}
