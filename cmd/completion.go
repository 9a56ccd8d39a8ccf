package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/config"
	"github.com/derickschaefer/pricetrack/internal/store"
)

// completionCmd wraps Cobra's shell completion generator. Country and
// snapshot arguments complete from the local store, so `pricetrack fetch`
// once before expecting ISO3 completions.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for pricetrack.

ISO3 arguments complete from the cached country index and snapshot
arguments from saved snapshot names; neither touches the network.

To load completions in the current shell session:

  source <(pricetrack completion bash)
  source <(pricetrack completion zsh)
  pricetrack completion fish | source`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(cmd.OutOrStdout(), true)
		case "zsh":
			return root.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return root.GenFishCompletion(cmd.OutOrStdout(), true)
		default:
			return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
	},
}

// withStore opens the configured store for a completion lookup. Any failure
// yields nil; completion must never print errors into the shell.
func withStore(fn func(s *store.Store) []string) []string {
	cfg, err := config.Load()
	if err != nil {
		return nil
	}
	if globalFlags.DBPath != "" {
		cfg.DBPath = globalFlags.DBPath
	}
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil
	}
	defer s.Close()
	return fn(s)
}

// completeCountries offers cached ISO3 codes. Commands taking a single
// country stop completing after the first argument.
func completeCountries(multi bool) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if !multi && len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		codes := withStore(func(s *store.Store) []string {
			index, _, _, err := s.GetCountries()
			if err != nil {
				return nil
			}
			var out []string
			for _, c := range index {
				if strings.HasPrefix(c.ISO3, strings.ToUpper(toComplete)) {
					out = append(out, c.ISO3)
				}
			}
			return out
		})
		return codes, cobra.ShellCompDirectiveNoFileComp
	}
}

func completeSnapshots(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := withStore(func(s *store.Store) []string {
		snaps, err := s.ListSnapshots()
		if err != nil {
			return nil
		}
		var out []string
		for _, snap := range snaps {
			if strings.HasPrefix(snap.Name, toComplete) {
				out = append(out, snap.Name)
			}
		}
		return out
	})
	return names, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(completionCmd)

	for _, c := range []*cobra.Command{
		panelGetCmd, panelOptionsCmd, runCmd,
		cleanDedupCmd, cleanFilterCmd, cleanFillCmd, cleanAllCmd,
		transformIndexCmd, transformOverallCmd,
		analyzeMomentumCmd, analyzeTrendCmd, analyzeDescribeCmd,
	} {
		c.ValidArgsFunction = completeCountries(false)
	}
	fetchCmd.ValidArgsFunction = completeCountries(true)
	countriesCmd.ValidArgsFunction = completeCountries(true)

	for _, c := range []*cobra.Command{snapshotShowCmd, snapshotRunCmd, snapshotDeleteCmd} {
		c.ValidArgsFunction = completeSnapshots
	}
}
