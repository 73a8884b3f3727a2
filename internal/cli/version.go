package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hlsup/internal/version"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Compare and sort dotted version strings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "compare A B",
		Short: "Print -1, 0 or 1 as A sorts before, with or after B",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Compare(args[0], args[1]))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sort VERSION...",
		Short: "Sort versions ascending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sorted := append([]string(nil), args...)
			version.Sort(sorted)
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), sorted)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(sorted, "\n"))
			return nil
		},
	})
	return cmd
}
