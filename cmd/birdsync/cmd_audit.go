package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/birdsync/birdsync/pkg/audit"
	"github.com/birdsync/birdsync/pkg/cli"
)

var (
	auditLimit  int
	auditFailed bool
	auditSince  time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent route edits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := audit.NewFileLogger(cfg.AuditLog, audit.Rotation{})
		if err != nil {
			return err
		}
		defer l.Close()

		filter := audit.Filter{Host: cfg.HostID, FailedOnly: auditFailed, Limit: auditLimit}
		if auditSince > 0 {
			filter.Since = time.Now().Add(-auditSince)
		}
		events, err := l.Query(filter)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No audit events")
			return nil
		}

		t := cli.NewTable("TIME", "USER", "OPERATION", "DESTINATION", "PHASES", "RESULT")
		for _, e := range events {
			result := cli.Green("ok")
			if !e.Success {
				result = cli.Red(e.Error)
			}
			t.Row(e.Timestamp.Format("2006-01-02 15:04:05"), e.User, e.Operation, e.Destination, phases(e), result)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Maximum events to show")
	auditCmd.Flags().BoolVar(&auditFailed, "failed", false, "Show failed edits only")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only events newer than this")
}

// phases abbreviates completed phases as s (store), c (config), r (reload).
func phases(e *audit.Event) string {
	b := []byte("---")
	if e.Store {
		b[0] = 's'
	}
	if e.Config {
		b[1] = 'c'
	}
	if e.Reloaded {
		b[2] = 'r'
	}
	return string(b)
}
