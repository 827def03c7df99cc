package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/airmirror/internal/window"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List visible windows",
	Long: `List all visible windows known to the display server.

Useful for finding the title substring to configure for a source when
the receiver names its windows differently than expected.`,
	Example: `  # List windows in table format (default)
  airmirror list

  # List windows in JSON format
  airmirror list --format json

  # List only windows whose title contains a substring
  airmirror list --match Reflector`,
	RunE: runList,
}

var (
	listFormat string
	listMatch  string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().StringVarP(&listMatch, "match", "m", "", "only show windows whose title contains this substring")
}

func runList(cmd *cobra.Command, args []string) error {
	backend, err := window.NewX11Backend()
	if err != nil {
		return fmt.Errorf("failed to connect to X11: %w", err)
	}
	defer backend.Close()

	windows, err := backend.ListWindows()
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}

	if listMatch != "" {
		needle := strings.ToLower(listMatch)
		filtered := windows[:0]
		for _, win := range windows {
			if strings.Contains(strings.ToLower(win.Title), needle) {
				filtered = append(filtered, win)
			}
		}
		windows = filtered
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	case "table":
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tCLASS\tGEOMETRY")
		for _, win := range windows {
			fmt.Fprintf(tw, "0x%x\t%s\t%s\t%dx%d+%d+%d\n",
				win.ID, win.Title, win.Class,
				win.Geometry.Width, win.Geometry.Height,
				win.Geometry.Left, win.Geometry.Top)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format: %s", listFormat)
	}
}
