package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/birdsync/birdsync/pkg/route"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a routing table dump without touching the store",
	Long: `Parse the output of "birdc show route" and print the records the
agent would publish. Reads stdin when no file is given.

Example:
  birdc show route | birdsync parse`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 1 && args[0] != "-" {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}

		records := route.Parse(cfg.HostID, string(data))
		if len(records) == 0 {
			fmt.Println("No routes found")
			return nil
		}
		printRecords(records)
		return nil
	},
}
