package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/birdsync/birdsync/pkg/audit"
	"github.com/birdsync/birdsync/pkg/cli"
	"github.com/birdsync/birdsync/pkg/editor"
	"github.com/birdsync/birdsync/pkg/store"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Enter interactive mode",
	Long: `Enter a menu to add, delete, and list static routes on this host.

Each change is applied immediately, exactly as the add and delete commands
apply it.`,
	Aliases: []string{"i"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withEditor(ctx, func(ed *editor.Editor, st store.Store) error {
			runInteractiveMode(ctx, bufio.NewReader(cmd.InOrStdin()), ed, st)
			return nil
		})
	},
}

func runInteractiveMode(ctx context.Context, reader *bufio.Reader, ed *editor.Editor, st store.Store) {
	for {
		fmt.Println()
		fmt.Println(cli.Bold("=== birdsync Interactive Mode ==="))
		fmt.Printf("Host: %s\n", cfg.HostID)
		fmt.Println()
		fmt.Println("Main Menu:")
		fmt.Println("  1. Add static route")
		fmt.Println("  2. Delete static route")
		fmt.Println("  3. Show stored routes")
		fmt.Println("  q. Quit")
		fmt.Println()
		fmt.Print("Select option: ")

		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if err == io.EOF && input == "" {
			fmt.Println()
			return
		}

		switch input {
		case "1":
			dest := prompt(reader, "Destination (CIDR): ")
			nextHop := prompt(reader, "Next hop: ")
			event := audit.NewEvent(cfg.HostID, audit.OpRouteAdd, dest).WithNextHop(nextHop)
			out, err := ed.Add(ctx, dest, nextHop)
			printOutcome(out, false)
			record(event, out, err)
			if err := explain(err); err != nil {
				fmt.Println(cli.Red("Error: ") + err.Error())
			}
		case "2":
			dest := prompt(reader, "Destination (CIDR): ")
			event := audit.NewEvent(cfg.HostID, audit.OpRouteDelete, dest)
			out, err := ed.Delete(ctx, dest)
			printOutcome(out, true)
			record(event, out, err)
			if err := explain(err); err != nil {
				fmt.Println(cli.Red("Error: ") + err.Error())
			}
		case "3":
			records, err := storedRoutes(ctx, st, cfg.HostID)
			if err != nil {
				fmt.Println(cli.Red("Error: ") + err.Error())
				continue
			}
			if len(records) == 0 {
				fmt.Println("No routes stored")
				continue
			}
			printRecords(records)
		case "q", "Q", "quit", "exit":
			fmt.Println("Goodbye!")
			return
		default:
			fmt.Println(cli.Red("Invalid option"))
		}
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	s, _ := reader.ReadString('\n')
	return strings.TrimSpace(s)
}
