// Package cli wires the cobra commands to the lifecycle engine. All
// interactive prompting lives here; the engine itself never touches a
// terminal.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wren-mail/wren/internal/config"
	"github.com/wren-mail/wren/internal/lifecycle"
	"github.com/wren-mail/wren/internal/store"
	"github.com/wren-mail/wren/internal/transport"
)

const configEnvVar = "WREN_CONFIG"
const defaultEnvFile = ".env"

var rootCmd = &cobra.Command{
	Use:   "wren",
	Short: "wren reads, composes and sends mail from a maildir",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (or set WREN_CONFIG)")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(replyAllCmd)
	rootCmd.AddCommand(forwardCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(sendAllCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(addrCmd)
}

func resolveConfigPath(cmd *cobra.Command) (string, error) {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = os.Getenv(configEnvVar)
	}
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = config.ExpandHome("~/.wrenrc")
	}
	return cfgPath, nil
}

func loadEnvFile() error {
	if _, err := os.Stat(defaultEnvFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(defaultEnvFile)
}

// session bundles everything a command needs.
type session struct {
	cfg    config.Config
	store  *store.Store
	engine *lifecycle.Engine
	logger *slog.Logger
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfgPath, err := resolveConfigPath(cmd)
	if err != nil {
		return nil, err
	}
	if err := loadEnvFile(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))

	st := store.New(cfg.Maildir)
	if err := st.Init(); err != nil {
		return nil, err
	}

	engine, err := lifecycle.New(
		lifecycle.WithStore(st),
		lifecycle.WithConfig(cfg),
		lifecycle.WithSender(&transport.SMTP{Logger: logger}),
		lifecycle.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, store: st, engine: engine, logger: logger}, nil
}

// mailItem resolves a positional argument that is either a list number
// into cur/ or a direct file path.
func (s *session) mailItem(arg string) (*store.Item, error) {
	if n, err := parsePositive(arg); err == nil {
		return s.store.Item(store.FolderCur, n)
	}
	if _, err := os.Stat(arg); err != nil {
		return nil, fmt.Errorf("no message %q", arg)
	}
	return &store.Item{Path: arg}, nil
}

func parsePositive(arg string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(arg, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("message numbers start at 1")
	}
	return n, nil
}
