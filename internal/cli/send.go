package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wren-mail/wren/internal/store"
)

var sendCmd = &cobra.Command{
	Use:   "send FILE",
	Short: "Send a specific draft or outbox file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		d, err := s.engine.Load(args[0])
		if err != nil {
			return err
		}
		if err := s.engine.Send(cmd.Context(), d); err != nil {
			return fmt.Errorf("send failed (draft kept at %s): %w", d.Path, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Sent.")
		return nil
	},
}

var sendAllCmd = &cobra.Command{
	Use:   "send-all",
	Short: "Send every message queued in the outbox",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}

		items, err := s.store.Items(store.FolderOutbox)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to send.")
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Going to send...")
		for _, item := range items {
			fmt.Fprintln(cmd.OutOrStdout(), item.Path)
		}
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			choice, perr := prompt(cmd, "Really send all? [Y/n]: ")
			declined := choice != "" && !strings.EqualFold(choice, "y") && !strings.EqualFold(choice, "yes")
			if perr != nil || declined {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted!")
				return nil
			}
		}

		results, err := s.engine.SendOutbox(cmd.Context())
		if err != nil {
			return err
		}
		failed := 0
		for _, result := range results {
			if result.Err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", result.Path, result.Err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %d of %d.\n", len(results)-failed, len(results))
		return nil
	},
}

func init() {
	sendAllCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
}
