package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wren-mail/wren/internal/filter"
	"github.com/wren-mail/wren/internal/store"
)

var filterCmd = &cobra.Command{
	Use:   "filter [FOLDER]",
	Short: "Run the configured filter chain over a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}

		folder := store.FolderCur
		if len(args) == 1 {
			folder = args[0]
		}
		raw, ok := s.cfg.Filters[folder]
		if !ok || len(raw) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No filters configured for %s.\n", folder)
			return nil
		}
		specs := make([]filter.Spec, 0, len(raw))
		for _, argv := range raw {
			specs = append(specs, filter.Spec(argv))
		}

		items, err := s.store.Items(folder)
		if err != nil {
			return err
		}
		paths := make([]string, 0, len(items))
		for _, item := range items {
			paths = append(paths, item.Path)
		}

		reports := filter.NewRunner(s.logger).Run(cmd.Context(), paths, specs)
		halted := 0
		for _, report := range reports {
			if !report.Halted {
				continue
			}
			halted++
			last := report.Outcomes[len(report.Outcomes)-1]
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v halted the chain\n", report.Path, last.Command)
			if len(last.Output) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s", last.Output)
			}
			if last.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", last.Err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d messages, %d halted.\n", len(reports), halted)
		return nil
	},
}
