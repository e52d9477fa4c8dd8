package cmd

import (
	"github.com/spf13/cobra"

	"vault-solver/pkg/solver"
)

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw from a vault",
	Long: `Withdraw vault shares back into a token through the chosen venue.

The vanilla venue redeems shares directly for the vault's underlying
token. The router venue redeems and swaps to any output token in one
route. The intent venue sells the shares on the off-chain order book.

Examples:
  # Direct redemption to the underlying token
  vault-solver withdraw --chain mainnet --vault 0xVault... --token 0xUSDC... --amount 100

  # Zap out to a different token
  vault-solver withdraw --chain mainnet --vault 0xVault... --token 0xWETH... --amount 100 --venue router --slippage-bps 100`,
	Run: func(cmd *cobra.Command, args []string) {
		runExecute(cmd, solver.Withdraw)
	},
}

func init() {
	rootCmd.AddCommand(withdrawCmd)
	addExecuteFlags(withdrawCmd)
}
