package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/render"
	"github.com/derickschaefer/pricetrack/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save and replay exact command lines",
	Long: `Snapshots let you save a pricetrack command and replay it later,
producing reproducible output from the same parameters.

  pricetrack snapshot save --name "ken-monthly" --cmd "run KEN --summary --start 2023-01-01"
  pricetrack snapshot list
  pricetrack snapshot run ken-monthly`,
}

// ─── snapshot save ────────────────────────────────────────────────────────────

var (
	snapshotSaveName string
	snapshotSaveCmd  string
)

var snapshotSaveCommand = &cobra.Command{
	Use:   "save",
	Short: "Save a command line as a named snapshot",
	Example: `  pricetrack snapshot save --name "ken-index" --cmd "run KEN --start 2022-01-01"
  pricetrack snapshot save --name "eth-summary" --cmd "run ETH --summary --format csv"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(snapshotSaveName) == "" {
			return fmt.Errorf("--name is required")
		}
		if _, err := splitCommandLine(snapshotSaveCmd); err != nil {
			return fmt.Errorf("--cmd: %w", err)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		snap := store.NewSnapshot(snapshotSaveName, snapshotSaveCmd)
		if err := deps.Store.PutSnapshot(snap); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved snapshot %s  (%s)\n", snap.ID, snap.Name)
		return nil
	},
}

// ─── snapshot list ────────────────────────────────────────────────────────────

var snapshotListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all saved snapshots",
	Example: `  pricetrack snapshot list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		snaps, err := deps.Store.ListSnapshots()
		if err != nil {
			return fmt.Errorf("listing snapshots: %w", err)
		}
		if len(snaps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots saved.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: pricetrack snapshot save --name <name> --cmd \"<command>\"")
			return nil
		}

		format := resolveFormat(deps.Config.Format, "")
		tbl := &render.Table{Headers: []string{"ID", "NAME", "COMMAND", "CREATED"}}
		for _, s := range snaps {
			cmdPreview := s.CommandLine
			if format == render.FormatTable && len(cmdPreview) > 50 {
				cmdPreview = cmdPreview[:47] + "..."
			}
			tbl.Rows = append(tbl.Rows, []string{s.ID, s.Name, cmdPreview, s.CreatedAt.Format("2006-01-02 15:04")})
		}
		return emit(cmd, deps, newResult(model.KindTable, "snapshot list", tbl, len(snaps), nil, start), format)
	},
}

// ─── snapshot show ────────────────────────────────────────────────────────────

var snapshotShowCmd = &cobra.Command{
	Use:     "show <ID|NAME>",
	Short:   "Show full details of a snapshot",
	Example: `  pricetrack snapshot show ken-index`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		snap, err := findSnapshot(deps.Store, args[0])
		if err != nil {
			return err
		}

		printSimpleTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, func(add func(...string)) {
			add("ID", snap.ID)
			add("Name", snap.Name)
			add("Command", snap.CommandLine)
			add("Created", snap.CreatedAt.Format(time.RFC3339))
		})
		return nil
	},
}

// ─── snapshot run ─────────────────────────────────────────────────────────────

var snapshotRunCmd = &cobra.Command{
	Use:     "run <ID|NAME>",
	Short:   "Re-execute a saved snapshot",
	Example: `  pricetrack snapshot run ken-index`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}

		// Read the snapshot, then release the store: the child process
		// opens its own handle and bbolt holds an exclusive file lock.
		snap, err := findSnapshot(deps.Store, args[0])
		deps.Close()
		if err != nil {
			return err
		}

		parts, err := splitCommandLine(snap.CommandLine)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", snap.ID, err)
		}
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("finding executable: %w", err)
		}

		c := exec.CommandContext(cmd.Context(), self, parts...)
		c.Stdin = cmd.InOrStdin()
		c.Stdout = cmd.OutOrStdout()
		c.Stderr = cmd.ErrOrStderr()

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "▶ pricetrack %s\n\n", snap.CommandLine)
		}
		return c.Run()
	},
}

// ─── snapshot delete ──────────────────────────────────────────────────────────

var snapshotDeleteCmd = &cobra.Command{
	Use:     "delete <ID|NAME>",
	Short:   "Delete a saved snapshot",
	Example: `  pricetrack snapshot delete ken-index`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		snap, err := findSnapshot(deps.Store, args[0])
		if err != nil {
			return err
		}
		if err := deps.Store.DeleteSnapshot(snap.ID); err != nil {
			return fmt.Errorf("deleting snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted snapshot %s  (%s)\n", snap.ID, snap.Name)
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotSaveCommand)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotRunCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	snapshotSaveCommand.Flags().StringVar(&snapshotSaveName, "name", "", "human-readable name for the snapshot (required)")
	snapshotSaveCommand.Flags().StringVar(&snapshotSaveCmd, "cmd", "", "command line to save, without the binary name (required)")
	snapshotSaveCommand.MarkFlagRequired("name")
	snapshotSaveCommand.MarkFlagRequired("cmd")
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func findSnapshot(s *store.Store, ref string) (store.Snapshot, error) {
	snap, ok, err := s.GetSnapshot(ref)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	if !ok {
		return store.Snapshot{}, fmt.Errorf("snapshot %q not found", ref)
	}
	return snap, nil
}

// splitCommandLine splits a saved command line into arguments. Single and
// double quotes group words; a backslash escapes the next rune outside
// single quotes.
func splitCommandLine(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 || escaped {
		return nil, fmt.Errorf("unterminated quote or escape in %q", s)
	}
	if inWord {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command line")
	}
	return args, nil
}
