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
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <order-id>",
	Short: "Check the status of an intent order",
	Long: `Check the settlement status of an order on the off-chain order book.

Examples:
  vault-solver status ord-1234
  vault-solver status ord-1234 --watch
  vault-solver status ord-1234 --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	orderID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if cfg.Portals.OrderBookURL == "" {
		printError(fmt.Errorf("portals.order_book_url is not configured"))
		os.Exit(1)
	}

	book := portals.NewOrderBookClient(cfg.Portals.OrderBookURL, portalTimeout(cfg))

	if watchStatus {
		watchOrderStatus(book, orderID, jsonOutput)
	} else {
		checkOrderStatus(book, orderID, jsonOutput)
	}
}

func checkOrderStatus(book *portals.OrderBookClient, orderID string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking order status..."
		s.Start()
	}

	status, err := book.Status(context.Background(), orderID)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(map[string]string{
			"order_id": orderID,
			"status":   status,
		}, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayOrderStatus(orderID, status)
	}
}

func watchOrderStatus(book *portals.OrderBookClient, orderID string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching order %s\n", color.CyanString(orderID))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if checkAndDisplayOrder(book, orderID) {
		return
	}

	// Then check periodically until the order goes terminal
	for range ticker.C {
		if checkAndDisplayOrder(book, orderID) {
			return
		}
	}
}

func checkAndDisplayOrder(book *portals.OrderBookClient, orderID string) bool {
	status, err := book.Status(context.Background(), orderID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayOrderStatus(orderID, status)
	return status != portals.OrderStatusOpen
}

func displayOrderStatus(orderID, status string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     ORDER STATUS")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Order ID: %s\n", color.CyanString(orderID))
	fmt.Printf("  Status:   %s\n", coloredOrderStatus(status))
	fmt.Printf("  Checked:  %s\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func coloredOrderStatus(status string) string {
	switch status {
	case portals.OrderStatusFulfilled:
		return color.GreenString(strings.ToUpper(status))
	case portals.OrderStatusOpen:
		return color.YellowString(strings.ToUpper(status))
	case portals.OrderStatusCancelled, portals.OrderStatusExpired:
		return color.RedString(strings.ToUpper(status))
	default:
		return strings.ToUpper(status)
	}
}
