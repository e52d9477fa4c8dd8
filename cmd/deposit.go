package cmd

import (
	"github.com/spf13/cobra"

	"vault-solver/pkg/solver"
)

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Deposit into a vault",
	Long: `Deposit a token into a vault through the chosen settlement venue.

The vanilla venue calls the vault directly and only accepts the vault's
underlying token (or the native asset when a wrapper is configured).
The router venue swaps any input token en route through the zap
aggregator. The intent venue signs an off-chain order and waits for a
filler to settle it.

Examples:
  # Direct deposit of the underlying token
  vault-solver deposit --chain mainnet --vault 0xVault... --token 0xUSDC... --amount 250

  # Zap in from a different token
  vault-solver deposit --chain mainnet --vault 0xVault... --token 0xWETH... --amount 0.5 --venue router

  # Deposit the full native balance (gas reserve held back)
  vault-solver deposit --chain mainnet --vault 0xVault... --token native --max --venue router

  # Skip the confirmation prompt
  vault-solver deposit --chain mainnet --vault 0xVault... --token 0xUSDC... --amount 250 --yes`,
	Run: func(cmd *cobra.Command, args []string) {
		runExecute(cmd, solver.Deposit)
	},
}

func init() {
	rootCmd.AddCommand(depositCmd)
	addExecuteFlags(depositCmd)
}
