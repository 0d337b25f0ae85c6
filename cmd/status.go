package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/procwarden/internal/status"
)

// CreateStatusCmd creates the status command, which prints the persisted
// status files written by a running daemon.
func CreateStatusCmd() *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "status [name...]",
		Short: "Print persisted status documents",
		Long: `Reads the JSON status files a running daemon maintains in the state ` +
			`directory. With no arguments prints health and performance; pass names ` +
			`(health, performance, recovery) to select documents.`,
		Run: func(_ *cobra.Command, args []string) {
			names := args
			if len(names) == 0 {
				names = []string{"health", "performance"}
			}

			store := status.NewStore(stateDir)
			missing := 0
			for _, name := range names {
				var doc json.RawMessage
				if err := store.Read(name, &doc); err != nil {
					if os.IsNotExist(err) {
						fmt.Fprintf(os.Stderr, "%s: no status recorded\n", name)
					} else {
						fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
					}
					missing++
					continue
				}
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, doc, "", "  "); err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
					missing++
					continue
				}
				fmt.Printf("%s:\n%s\n", name, pretty.String())
			}
			if missing == len(names) {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", status.DefaultDir, "Directory holding the daemon's status files")

	return cmd
}
