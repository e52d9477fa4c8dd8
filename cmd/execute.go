package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vault-solver/config"
	"vault-solver/pkg/amount"
	"vault-solver/pkg/chain"
	"vault-solver/pkg/order"
	"vault-solver/pkg/portals"
	"vault-solver/pkg/solver"
)

var (
	chainName     string
	destChainID   uint64
	vaultAddr     string
	tokenAddr     string
	amountStr     string
	venueName     string
	slippageFlag  uint32
	tokenDecimals uint8
	vaultDecimals uint8
	spendMax      bool
	skipConfirm   bool
)

func addExecuteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&chainName, "chain", "", "Configured chain name (REQUIRED)")
	cmd.Flags().Uint64Var(&destChainID, "dest-chain-id", 0, "Destination chain id for cross-chain routes (optional)")
	cmd.Flags().StringVar(&vaultAddr, "vault", "", "Vault address (REQUIRED)")
	cmd.Flags().StringVar(&tokenAddr, "token", "", "Token address, or 'native' (REQUIRED)")
	cmd.Flags().StringVar(&amountStr, "amount", "", "Amount in token units, e.g. 100.5")
	cmd.Flags().StringVar(&venueName, "venue", "", "Settlement venue: vanilla, router, or intent (default: router when the token differs from the vault's underlying, vanilla otherwise)")
	cmd.Flags().Uint32Var(&slippageFlag, "slippage-bps", 0, "Slippage tolerance in basis points (overrides config)")
	cmd.Flags().Uint8Var(&tokenDecimals, "token-decimals", 18, "Token decimals (overridden by metadata service when configured)")
	cmd.Flags().Uint8Var(&vaultDecimals, "vault-decimals", 18, "Vault share decimals (overridden by metadata service when configured)")
	cmd.Flags().BoolVar(&spendMax, "max", false, "Spend the full balance of the input token (native deposits hold back a gas reserve and need the router venue)")
	cmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")

	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("vault")
	_ = cmd.MarkFlagRequired("token")
}

func runExecute(cmd *cobra.Command, direction solver.Direction) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	chainCfg, err := cfg.ChainByName(chainName)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	log := buildLogger(verbose)
	ctx := context.Background()

	client, err := dialChain(chainCfg, cfg, log)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	req, err := buildRequest(ctx, client, cfg, direction)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	slippage := cfg.SlippageBps
	if cmd.Flags().Changed("slippage-bps") {
		if slippageFlag >= 10000 {
			printError(fmt.Errorf("slippage-bps must be below 10000, got %d", slippageFlag))
			os.Exit(1)
		}
		slippage = slippageFlag
	}

	if venueName == "" {
		venueName = defaultVenue(ctx, cfg, client.ChainID(), req.InputToken, req.OutputToken, direction)
	}
	if req.SpendFullBalance && venueName != "router" {
		printError(fmt.Errorf("--max with the native token requires the router venue (it holds back the gas reserve)"))
		os.Exit(1)
	}

	sol, err := buildSolver(client, cfg, chainCfg, slippage, log)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	// Quote with spinner
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	quote, err := sol.Init(ctx, req)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		if verbose {
			fmt.Printf("\nDebug: Error getting quote: %v\n", err)
		}
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"venue":        quote.Venue.String(),
			"direction":    direction.String(),
			"expected_out": quote.ExpectedOut.String(),
			"min_out":      quote.MinOut.String(),
			"slippage_bps": quote.SlippageBps,
			"status":       "quote_generated",
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayQuote(quote, req)
	}

	// Ask for confirmation
	if !skipConfirm && !cfg.AutoConfirm && !jsonOutput {
		if !confirmExecution(direction) {
			fmt.Printf("\n%s cancelled.\n", titled(direction))
			os.Exit(0)
		}
	}

	if !jsonOutput {
		s.Suffix = fmt.Sprintf(" Executing %s...", direction)
		s.Start()
	}

	orch := solver.NewOrchestrator(log)
	receipt, err := orch.Execute(ctx, sol, req)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"venue":  receipt.Venue.String(),
			"status": "settled",
		}
		if receipt.OrderID != "" {
			output["order_id"] = receipt.OrderID
		} else {
			output["tx_hash"] = receipt.TxHash.Hex()
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayReceipt(receipt, direction)
}

// dialChain wires the per-chain client: signer, gas overrides, and the
// read gate built from every configured chain's rate limit.
func dialChain(chainCfg config.Chain, cfg *config.Config, log *zap.Logger) (*chain.Client, error) {
	var signer chain.Signer
	if chainCfg.PrivateKey != "" {
		ks, err := chain.NewKeySigner(chainCfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		signer = ks
	}

	opts := chain.Options{ChainID: chainCfg.ChainID}
	if chainCfg.GasPrice != nil {
		opts.GasPrice = big.NewInt(*chainCfg.GasPrice)
	}
	opts.GasLimit = chainCfg.GasLimit

	limits := make(map[uint64]chain.Limit)
	for _, c := range cfg.Chains {
		if c.RateLimit == nil {
			continue
		}
		limits[c.ChainID] = chain.Limit{
			MaxRequests: c.RateLimit.MaxRequests,
			Window:      time.Duration(c.RateLimit.WindowMs) * time.Millisecond,
		}
	}

	return chain.Dial(chainCfg.RPCUrl, opts, signer, chain.NewAllowanceCache(), chain.NewReadGate(limits), log)
}

// buildRequest assembles the execution request from flags, resolving
// token decimals through the metadata service when one is configured.
func buildRequest(ctx context.Context, client *chain.Client, cfg *config.Config, direction solver.Direction) (*solver.ExecutionRequest, error) {
	signer := client.Signer()
	if signer == nil {
		return nil, fmt.Errorf("no private key configured for chain %s", chainName)
	}

	token := solver.NativeToken
	if !strings.EqualFold(tokenAddr, "native") {
		token = common.HexToAddress(tokenAddr)
	}
	vault := common.HexToAddress(vaultAddr)

	resolveDecimals(ctx, cfg, client.ChainID(), token, vault)

	var inputToken, outputToken common.Address
	var inputDecimals, outputDecimals uint8
	if direction == solver.Deposit {
		inputToken, outputToken = token, vault
		inputDecimals, outputDecimals = tokenDecimals, vaultDecimals
	} else {
		inputToken, outputToken = vault, token
		inputDecimals, outputDecimals = vaultDecimals, tokenDecimals
	}

	var inputAmount *big.Int
	switch {
	case spendMax:
		var balance *big.Int
		var err error
		if inputToken == solver.NativeToken {
			if direction != solver.Deposit {
				return nil, fmt.Errorf("--max cannot withdraw the native token")
			}
			balance, err = client.NativeBalance(ctx, signer.Address())
		} else {
			// ERC-20 MAX needs no gas reserve; gas is paid in native.
			balance, err = client.BalanceOf(ctx, inputToken, signer.Address())
		}
		if err != nil {
			return nil, fmt.Errorf("reading balance: %w", err)
		}
		if balance.Sign() == 0 {
			return nil, fmt.Errorf("nothing to spend: zero balance")
		}
		inputAmount = balance
	case amountStr != "":
		parsed, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", amountStr, err)
		}
		inputAmount = amount.FromNormalized(parsed, inputDecimals).Raw
	default:
		return nil, fmt.Errorf("either --amount or --max is required")
	}

	return &solver.ExecutionRequest{
		ChainID:          client.ChainID(),
		DestChainID:      destChainID,
		From:             signer.Address(),
		InputToken:       inputToken,
		OutputToken:      outputToken,
		InputAmount:      inputAmount,
		Direction:        direction,
		InputDecimals:    inputDecimals,
		OutputDecimals:   outputDecimals,
		SpendFullBalance: spendMax && inputToken == solver.NativeToken,
	}, nil
}

// resolveDecimals overwrites the decimals flags with metadata-service
// answers when available. Flag values stand on lookup failure.
func resolveDecimals(ctx context.Context, cfg *config.Config, chainID uint64, token, vault common.Address) {
	if cfg.Portals.MetaURL == "" {
		return
	}
	meta := portals.NewMetaClient(cfg.Portals.MetaURL, portalTimeout(cfg))

	if token != solver.NativeToken {
		if info, err := meta.Token(ctx, chainID, token.Hex()); err == nil {
			tokenDecimals = info.Decimals
		}
	}
	if info, err := meta.Token(ctx, chainID, vault.Hex()); err == nil {
		vaultDecimals = info.Decimals
	}
}

// defaultVenue picks router when the user's token is not the vault's
// underlying (a swap is needed), vanilla otherwise. The underlying is
// read from the metadata service; without one, vanilla is assumed.
func defaultVenue(ctx context.Context, cfg *config.Config, chainID uint64, inputToken, outputToken common.Address, direction solver.Direction) string {
	if cfg.Portals.MetaURL == "" || cfg.Portals.RouterURL == "" {
		return "vanilla"
	}

	token, vault := inputToken, outputToken
	if direction == solver.Withdraw {
		token, vault = outputToken, inputToken
	}
	if token == solver.NativeToken {
		return "router"
	}

	meta := portals.NewMetaClient(cfg.Portals.MetaURL, portalTimeout(cfg))
	vaults, err := meta.Vaults(ctx, chainID)
	if err != nil {
		return "vanilla"
	}
	for _, v := range vaults {
		if strings.EqualFold(v.Address, vault.Hex()) {
			if strings.EqualFold(v.Token.Address, token.Hex()) {
				return "vanilla"
			}
			return "router"
		}
	}
	return "vanilla"
}

func buildSolver(client *chain.Client, cfg *config.Config, chainCfg config.Chain, slippage uint32, log *zap.Logger) (solver.Solver, error) {
	switch venueName {
	case "vanilla":
		return solver.NewVanillaSolver(client, common.HexToAddress(chainCfg.NativeWrapper)), nil
	case "router":
		if cfg.Portals.RouterURL == "" {
			return nil, fmt.Errorf("router venue requires portals.router_url")
		}
		api := portals.NewRouterClient(cfg.Portals.RouterURL, portalTimeout(cfg))
		return solver.NewRouterSolver(client, api, slippage), nil
	case "intent":
		if cfg.Portals.OrderBookURL == "" || cfg.Portals.MetaURL == "" {
			return nil, fmt.Errorf("intent venue requires portals.order_book_url and portals.meta_url")
		}
		if cfg.Portals.SettlementHex == "" {
			return nil, fmt.Errorf("intent venue requires portals.settlement_address")
		}
		book := portals.NewOrderBookClient(cfg.Portals.OrderBookURL, portalTimeout(cfg))
		pricer := portals.NewMetaClient(cfg.Portals.MetaURL, portalTimeout(cfg))
		poller := order.NewPoller(log)
		settlement := common.HexToAddress(cfg.Portals.SettlementHex)
		return solver.NewIntentSolver(client, book, pricer, poller, settlement, slippage), nil
	default:
		return nil, fmt.Errorf("unknown venue %q (want vanilla, router, or intent)", venueName)
	}
}

func portalTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Portals.TimeoutSec) * time.Second
}

func displayQuote(quote *solver.Quote, req *solver.ExecutionRequest) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   EXECUTION QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Venue:        %s\n", color.CyanString(quote.Venue.String()))
	fmt.Printf("  Direction:    %s\n", req.Direction)
	fmt.Printf("  Input:        %s\n", amount.FromRaw(req.InputAmount, req.InputDecimals))
	fmt.Printf("  Expected Out: ~%s\n", color.YellowString(quote.ExpectedOut.String()))
	fmt.Printf("  Minimum Out:  %s\n", quote.MinOut)
	if quote.SlippageBps > 0 {
		fmt.Printf("  Slippage:     %d bps\n", quote.SlippageBps)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func displayReceipt(receipt *solver.Receipt, direction solver.Direction) {
	color.Green("\n✓ %s settled on the %s venue", titled(direction), receipt.Venue)
	if receipt.OrderID != "" {
		fmt.Printf("  Order ID: %s\n", color.CyanString(receipt.OrderID))
		fmt.Println("\nYou can re-check the order using:")
		color.Cyan("  vault-solver status %s\n", receipt.OrderID)
	} else {
		fmt.Printf("  Transaction: %s\n", color.CyanString(receipt.TxHash.Hex()))
	}
	fmt.Println()
}

func titled(d solver.Direction) string {
	s := d.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

func confirmExecution(direction solver.Direction) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\nProceed with %s? (y/N): ", direction)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
