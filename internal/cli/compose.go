package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wren-mail/wren/internal/compose"
	"github.com/wren-mail/wren/internal/lifecycle"
	"github.com/wren-mail/wren/internal/store"
)

var newCmd = &cobra.Command{
	Use:   "new [TEMPLATE-NUMBER]",
	Short: "Compose a new email, optionally from a template",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}

		templates, err := compose.ListTemplates(s.store.Path(store.FolderTemplates))
		if err != nil {
			return err
		}

		var d *lifecycle.Draft
		if len(templates) == 0 {
			d, err = s.engine.Compose(compose.OpNew, nil, compose.DeriveOptions{})
		} else {
			template, pickErr := pickTemplate(cmd, templates, args)
			if pickErr != nil {
				return pickErr
			}
			d, err = s.engine.ComposeFromTemplate(template.Content)
		}
		if err != nil {
			return err
		}
		return composeLoop(cmd, s, d)
	},
}

var replyCmd = &cobra.Command{
	Use:   "reply MESSAGE",
	Short: "Reply to the reply-to or sender of an email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetBool("keep-attachments")
		return composeFromOriginal(cmd, args[0], compose.OpReply, compose.DeriveOptions{KeepAttachments: keep})
	},
}

var replyAllCmd = &cobra.Command{
	Use:   "reply-all MESSAGE",
	Short: "Reply to all recipients of an email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return composeFromOriginal(cmd, args[0], compose.OpReplyAll, compose.DeriveOptions{})
	},
}

var forwardCmd = &cobra.Command{
	Use:   "forward MESSAGE",
	Short: "Forward an email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return composeFromOriginal(cmd, args[0], compose.OpForward, compose.DeriveOptions{})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [DRAFT]",
	Short: "Resume a saved draft",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		d, err := s.engine.Resume(path)
		if errors.Is(err, lifecycle.ErrNoDrafts) {
			fmt.Fprintln(cmd.OutOrStdout(), "No drafts to resume.")
			return nil
		}
		if errors.Is(err, compose.ErrAmbiguousDraft) {
			d, err = disambiguate(cmd, s)
		}
		if err != nil {
			return err
		}
		return composeLoop(cmd, s, d)
	},
}

func init() {
	replyCmd.Flags().Bool("keep-attachments", false, "Keep attachments when replying")
}

func composeFromOriginal(cmd *cobra.Command, arg string, op compose.Operation, opts compose.DeriveOptions) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	item, err := s.mailItem(arg)
	if err != nil {
		return err
	}
	raw, err := item.Raw()
	if err != nil {
		return err
	}
	orig, err := compose.ParseOriginal(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	d, err := s.engine.Compose(op, orig, opts)
	if err != nil {
		return err
	}
	return composeLoop(cmd, s, d)
}

// composeLoop is the interactive half of composition: save a scratch
// file, hand it to the editor, then act on the user's choice. The
// engine does all the state work.
func composeLoop(cmd *cobra.Command, s *session, d *lifecycle.Draft) error {
	if err := s.engine.Save(d); err != nil {
		return err
	}

	for {
		if err := runEditor(s.cfg.Editor, d.Path); err != nil {
			return err
		}
		reloaded, err := compose.LoadDraft(d.Path)
		if err != nil {
			return err
		}
		d.Draft = reloaded

		choice, err := prompt(cmd, "[s]end now, [q]ueue, sa[v]e draft, [d]iscard? ", "s", "q", "v", "d")
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Input closed; draft kept at %s\n", d.Path)
			return nil
		}
		switch choice {
		case "s":
			if err := s.engine.Send(cmd.Context(), d); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Send failed: %v\nDraft kept at %s\n", err, d.Path)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sent.")
			return nil
		case "q":
			if err := s.engine.Queue(d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Email queued as %s\n", d.Path)
			return nil
		case "v":
			if err := s.engine.Save(d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Draft saved as %s\n", d.Path)
			return nil
		case "d":
			confirm, err := prompt(cmd, "Really delete draft? Cannot be undone! [y/N]: ")
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Input closed; draft kept at %s\n", d.Path)
				return nil
			}
			if strings.EqualFold(confirm, "y") || strings.EqualFold(confirm, "yes") {
				return s.engine.Discard(d)
			}
		}
	}
}

func pickTemplate(cmd *cobra.Command, templates []compose.Template, args []string) (compose.Template, error) {
	if len(args) == 1 {
		n, err := parsePositive(args[0])
		if err != nil || n > len(templates) {
			return compose.Template{}, fmt.Errorf("invalid template number %q", args[0])
		}
		return templates[n-1], nil
	}
	for i, t := range templates {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, t.Name)
	}
	for {
		choice, err := prompt(cmd, fmt.Sprintf("Which template? [1-%d]: ", len(templates)))
		if err != nil {
			return compose.Template{}, fmt.Errorf("no template chosen: %w", err)
		}
		if n, err := parsePositive(choice); err == nil && n <= len(templates) {
			return templates[n-1], nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Invalid choice %q\n", choice)
	}
}

func disambiguate(cmd *cobra.Command, s *session) (*lifecycle.Draft, error) {
	candidates, err := s.engine.ListResumable()
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Multiple drafts found:")
	for i, path := range candidates {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, path)
	}
	for {
		choice, err := prompt(cmd, fmt.Sprintf("Resume which draft? [1-%d]: ", len(candidates)))
		if err != nil {
			return nil, fmt.Errorf("no draft chosen: %w", err)
		}
		if n, err := parsePositive(choice); err == nil && n <= len(candidates) {
			return s.engine.Resume(candidates[n-1])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Invalid choice %q\n", choice)
	}
}

// prompt reads one trimmed line; with allowed answers given, it re-asks
// until one matches. A closed input reports an error so callers can
// stop prompting instead of looping.
func prompt(cmd *cobra.Command, question string, allowed ...string) (string, error) {
	reader := bufio.NewReader(cmd.InOrStdin())
	for {
		fmt.Fprint(cmd.OutOrStdout(), question)
		line, err := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if len(allowed) == 0 {
			if answer == "" && err != nil {
				return "", err
			}
			return answer, nil
		}
		for _, a := range allowed {
			if answer == a {
				return answer, nil
			}
		}
		if err != nil {
			return "", err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%q not a valid input.\n", answer)
	}
}

func runEditor(editor, path string) error {
	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
