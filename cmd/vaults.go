package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vault-solver/config"
	"vault-solver/pkg/portals"
)

var (
	vaultsChain  string
	symbolFilter string
)

var vaultsCmd = &cobra.Command{
	Use:   "vaults",
	Short: "List vaults known to the metadata service",
	Long: `List the vaults available on a chain, with their underlying token
and current APR.

Examples:
  vault-solver vaults --chain mainnet
  vault-solver vaults --chain mainnet --symbol USDC
  vault-solver vaults --chain mainnet --json`,
	Run: runVaults,
}

func init() {
	rootCmd.AddCommand(vaultsCmd)

	vaultsCmd.Flags().StringVar(&vaultsChain, "chain", "", "Configured chain name (REQUIRED)")
	vaultsCmd.Flags().StringVar(&symbolFilter, "symbol", "", "Filter by vault or token symbol")

	_ = vaultsCmd.MarkFlagRequired("chain")
}

func runVaults(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if cfg.Portals.MetaURL == "" {
		printError(fmt.Errorf("portals.meta_url is not configured"))
		os.Exit(1)
	}

	chainCfg, err := cfg.ChainByName(vaultsChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	meta := portals.NewMetaClient(cfg.Portals.MetaURL, portalTimeout(cfg))

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching vaults..."
		s.Start()
	}

	vaults, err := meta.Vaults(context.Background(), chainCfg.ChainID)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if symbolFilter != "" {
		vaults = filterVaults(vaults, symbolFilter)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(vaults, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayVaults(vaults, vaultsChain)
}

func filterVaults(vaults []portals.VaultInfo, symbol string) []portals.VaultInfo {
	symbol = strings.ToUpper(symbol)
	var matched []portals.VaultInfo
	for _, v := range vaults {
		if strings.Contains(strings.ToUpper(v.Symbol), symbol) ||
			strings.Contains(strings.ToUpper(v.Token.Symbol), symbol) {
			matched = append(matched, v)
		}
	}
	return matched
}

func displayVaults(vaults []portals.VaultInfo, chainName string) {
	if len(vaults) == 0 {
		fmt.Println("\nNo vaults found.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                  VAULTS ON %s", strings.ToUpper(chainName))
	fmt.Println(strings.Repeat("=", 70))

	for _, v := range vaults {
		fmt.Printf("\n  %s\n", color.YellowString(v.Symbol))
		fmt.Printf("    Address:    %s\n", color.CyanString(v.Address))
		fmt.Printf("    Underlying: %s (%s)\n", v.Token.Symbol, color.HiBlackString(v.Token.Address))
		if v.APRPercent != "" {
			fmt.Printf("    APR:        %s%%\n", v.APRPercent)
		}
	}

	fmt.Printf("\nTotal: %d vaults\n", len(vaults))
	fmt.Println(strings.Repeat("=", 70) + "\n")
}
