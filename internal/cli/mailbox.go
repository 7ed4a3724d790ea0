package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/spf13/cobra"

	"github.com/wren-mail/wren/internal/store"
)

// displayHeaders is the reduced header set shown by read.
var displayHeaders = []string{"From", "To", "Cc", "Reply-To", "List-Id", "Date", "Subject"}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for new mail",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		count, err := s.engine.CheckNew()
		if err != nil {
			return err
		}
		plural := "s"
		if count == 1 {
			plural = ""
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d new message%s.\n", count, plural)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages: date, sender and subject",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		items, err := s.store.Items(store.FolderCur)
		if err != nil {
			return err
		}
		for i, item := range items {
			h, err := item.Header()
			var sender, subject string
			if err == nil {
				subject, _ = h.Subject()
				if list, err := h.AddressList("From"); err == nil && len(list) > 0 {
					sender = list[0].String()
				} else {
					sender = h.Get("Sender")
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s - %s - %s\n",
				i+1, item.Date().Format("2006-01-02 15:04"), sender, subject)
		}
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read NUMBER",
	Short: "Read a single message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		item, err := s.mailItem(args[0])
		if err != nil {
			return err
		}

		allHeaders, _ := cmd.Flags().GetBool("all-headers")
		part, _ := cmd.Flags().GetInt("part")
		if part == 0 {
			part = s.cfg.DefaultPart
		}
		return printMessage(cmd.OutOrStdout(), item, allHeaders, part)
	},
}

var rawCmd = &cobra.Command{
	Use:   "raw NUMBER",
	Short: "Print a message in its original raw form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		item, err := s.mailItem(args[0])
		if err != nil {
			return err
		}
		raw, err := item.Raw()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(raw)
		return err
	},
}

var saveCmd = &cobra.Command{
	Use:   "save NUMBER",
	Short: "Move a message into a named folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		item, err := s.mailItem(args[0])
		if err != nil {
			return err
		}
		folder, _ := cmd.Flags().GetString("folder")
		if err := s.engine.SaveTo(item, folder); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved message to %s.\n", folder)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm NUMBER",
	Short: "Move a message to the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		item, err := s.mailItem(args[0])
		if err != nil {
			return err
		}
		if err := s.engine.Remove(item); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Moved message to trash.")
		return nil
	},
}

func init() {
	readCmd.Flags().Bool("all-headers", false, "Show all headers instead of a reduced set")
	readCmd.Flags().IntP("part", "p", 0, "Part of a multipart message to read")
	saveCmd.Flags().String("folder", "saved-messages", "Folder to file the message into")
}

func printMessage(w io.Writer, item *store.Item, allHeaders bool, part int) error {
	h, err := item.Header()
	if err != nil {
		return err
	}

	if allHeaders {
		fields := h.Fields()
		for fields.Next() {
			fmt.Fprintf(w, "%s: %s\n", fields.Key(), fields.Value())
		}
	} else {
		for _, key := range displayHeaders {
			if value := h.Get(key); value != "" {
				fmt.Fprintf(w, "%s: %s\n", key, value)
			}
		}
	}
	fmt.Fprintln(w)

	entity, err := item.Entity()
	if err != nil {
		return err
	}

	if entity.MultipartReader() == nil {
		_, err := io.Copy(w, entity.Body)
		return err
	}

	var bodies [][]byte
	walkErr := entity.Walk(func(_ []int, e *message.Entity, err error) error {
		if err != nil {
			return nil
		}
		contentType, _, _ := e.Header.ContentType()
		if strings.HasPrefix(contentType, "multipart/") {
			return nil
		}
		body, err := io.ReadAll(e.Body)
		if err != nil {
			return nil
		}
		fmt.Fprintf(w, "\t%d. %s\n", len(bodies)+1, contentType)
		bodies = append(bodies, body)
		return nil
	})
	if walkErr != nil && len(bodies) == 0 {
		return walkErr
	}

	if len(bodies) == 0 {
		return nil
	}
	if part < 1 || part > len(bodies) {
		part = 1
	}
	fmt.Fprintln(w)
	_, err = w.Write(bodies[part-1])
	return err
}
