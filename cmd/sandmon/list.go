package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"sandmon/internal/app"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	listNames   []string
	listUsers   []string
	listPIDs    []int
	listSearch  string
	listJSON    bool
	listTimeout int
)

func init() {
	rootCmd.AddCommand(cmdList)

	cmdList.Flags().StringSliceVar(&listNames, "name", nil, "Only sandboxes with this --name (repeatable)")
	cmdList.Flags().StringSliceVar(&listUsers, "user", nil, "Only sandboxes owned by this user name or uid (repeatable)")
	cmdList.Flags().IntSliceVar(&listPIDs, "pid", nil, "Only sandboxes rooted at this pid (repeatable)")
	cmdList.Flags().StringVar(&listSearch, "search", "", "Substring to match in the sandbox command line")
	cmdList.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of a table")
	cmdList.Flags().IntVarP(&listTimeout, "timeout", "t", 2, "Timeout in seconds for contacting the daemon")
}

var cmdList = &cobra.Command{
	Use:   "list",
	Short: "List running sandboxes and their usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		sbs, err := controller().List(cmd.Context(), app.ListParams{
			Filters: app.ListFilters{
				Names:      listNames,
				Users:      listUsers,
				PIDs:       listPIDs,
				TextSearch: listSearch,
			},
			Timeout: time.Duration(listTimeout) * time.Second,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if listJSON {
			return writeJSON(out, sbs)
		}
		if len(sbs) == 0 {
			fmt.Fprintln(out, "No sandboxes running")
			return nil
		}
		fmt.Fprintln(out, sandboxTable(sbs))
		return nil
	},
}

func sandboxTable(sbs []app.Sandbox) string {
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style { return cell }).
		Headers("PID", "NAME", "USER", "PROCS", "CPU%", "RSS", "RX/s", "TX/s", "COMMAND")
	for _, sb := range sbs {
		t.Row(
			strconv.Itoa(sb.PID),
			dash(sb.Name),
			dash(sb.User),
			strconv.Itoa(sb.Members),
			fmt.Sprintf("%.1f", sb.CPUPercent),
			humanize.IBytes(sb.Resident),
			humanize.Bytes(uint64(sb.RxRate)),
			humanize.Bytes(uint64(sb.TxRate)),
			sb.Cmd,
		)
	}
	return t.String()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
