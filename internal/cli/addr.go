package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wren-mail/wren/internal/addressbook"
)

var addrCmd = &cobra.Command{
	Use:   "addr [PARTIAL]",
	Short: "List or complete addresses from the address book",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		book := addressbook.New(s.cfg)
		entries := book.All()
		if len(args) == 1 {
			entries = book.Complete(args[0])
		}
		for _, entry := range entries {
			fmt.Fprintln(cmd.OutOrStdout(), entry)
		}
		return nil
	},
}
