package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"eni-go/internal/app"
	"eni-go/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an ENIApp. The caller must defer a.Close().
// mutating marks commands that may change locks or labels; the property store
// is snapshotted when they finish.
func newApp(ctx context.Context, command string, mutating bool) (*app.ENIApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewENIApp(ctx, cfg, app.NewOperation(command, mutating, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "eni",
	Short:        "ENI gateway over a git working copy",
	SilenceUsage: true,
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		gatewayID := uuid.New().String()
		cfg := config.NewConfig(gatewayID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Gateway ID: %s\n", gatewayID)
		fmt.Printf("Base Dir:   %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Gateway ID:   %s\n", cfg.GatewayID)
		fmt.Printf("Listen:       %s\n", cfg.Listen)
		fmt.Printf("Log Dir:      %s (%s)\n", cfg.LogDir, cfg.LogLevel)
		fmt.Printf("Repository:   %s %s\n", cfg.Repository.Type, cfg.Repository.WorkingCopy)
		if cfg.Repository.Remote != "" {
			fmt.Printf("Remote:       %s\n", cfg.Repository.Remote)
		}
		fmt.Printf("Root:         %q\n", cfg.Repository.Root)
		fmt.Printf("Database:     %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Object types: %d\n", len(cfg.Types))
		fmt.Printf("Users:        %d\n", len(cfg.Users))
		if cfg.Snapshot.Enabled {
			fmt.Printf("Snapshots:    %s vault %q, encryption %s\n", cfg.Snapshot.Vault.Type, cfg.Snapshot.Vault.Name, cfg.Snapshot.Encryption.Type)
		} else {
			fmt.Println("Snapshots:    disabled")
		}
		return nil
	},
}

// types command
var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List registered object types",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "types", false)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, t := range a.Types() {
			fmt.Printf("%-8s %s  %s\n", t.Extension, t.TypeID, t.Description)
		}
		return nil
	},
}

// tree command
var treeCmd = &cobra.Command{
	Use:   "tree [FOLDER]",
	Short: "Show the object namespace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "tree", false)
		if err != nil {
			return err
		}
		defer a.Close()

		folder := ""
		if len(args) > 0 {
			folder = args[0]
		}

		entries, err := a.Tree(cmd.Context(), folder)
		if err != nil {
			return err
		}

		exts := make(map[string]string)
		for _, t := range a.Types() {
			exts[t.TypeID] = t.Extension
		}

		label := folder
		if label == "" {
			label = "(root)"
		}
		fmt.Print(renderTree(label, entries, exts))
		return nil
	},
}

// locks command
var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List checked-out objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "locks", false)
		if err != nil {
			return err
		}
		defer a.Close()

		locks, err := a.Locks(cmd.Context())
		if err != nil {
			return err
		}

		if len(locks) == 0 {
			fmt.Println("No objects checked out.")
			return nil
		}

		for _, l := range locks {
			fmt.Printf("%s  %-12s  %s  %s\n",
				l.Since.Local().Format("2006-01-02 15:04:05"),
				l.Holder,
				l.Path,
				l.Comment,
			)
		}
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock PATH",
	Short: "Break the lock on an object (path as shown by locks)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "unlock", true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BreakLock(args[0]); err != nil {
			return err
		}
		fmt.Printf("Lock on %s removed\n", args[0])
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := app.InitKeys(cfg, pass); err != nil {
			return fmt.Errorf("initializing keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", cfg.Snapshot.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Snapshot.Encryption.PrivateKeyPath)
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Upload a snapshot of locks and labels to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "snapshot", false)
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.Snapshot()
		if err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}
		fmt.Printf("Snapshot stored as version %d\n", version)
		return nil
	},
}

var restorePropsCmd = &cobra.Command{
	Use:   "restore-props",
	Short: "Replace the local property store with the newest snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		var pass string
		if app.NeedsPassphrase(cfg) {
			if pass, err = readPassphrase("Passphrase: "); err != nil {
				return err
			}
		}

		version, err := app.RestoreProperties(cmd.Context(), cfg, pass)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored snapshot version %d\n", version)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(locksCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(restorePropsCmd)
}
