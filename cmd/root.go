package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "vault-solver",
	Short: "A CLI for executing vault deposits and withdrawals across settlement venues",
	Long: `vault-solver turns deposit and withdraw intents into settled outcomes.
It picks between three settlement venues: direct vault calls (vanilla),
the zap aggregator (router), and the off-chain order book (intent),
handling allowances, slippage protection, and settlement polling.

Examples:
  vault-solver deposit --chain mainnet --vault 0xVault... --token 0xToken... --amount 100.5
  vault-solver withdraw --chain mainnet --vault 0xVault... --token 0xToken... --amount 50 --venue router
  vault-solver status <order-id>
  vault-solver vaults --chain mainnet`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

// buildLogger returns the logger commands hand to the engine. Quiet by
// default so engine logs do not fight the formatted CLI output.
func buildLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
