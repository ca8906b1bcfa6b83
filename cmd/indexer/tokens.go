package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainScope/internal/scan"
)

func newTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Discover contract creations and classify token contracts",
		RunE:  runTokens,
	}
	addCommonFlags(cmd.Flags())
	addTokensFlags(cmd)
	cmd.Flags().Bool("once", false, "scan up to the current head and exit")
	return cmd
}

func addTokensFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Uint64("token-start-block", 0, "first block scanned when no checkpoint exists")
	flags.Uint64("token-batch-size", 1000, "blocks per checkpointed batch")
	flags.Int("token-workers", 10, "blocks fetched concurrently inside a batch")
	flags.Duration("chunk-delay", 100*time.Millisecond, "pause between block chunks")
	flags.Int("probe-workers", 5, "contracts probed concurrently")
	flags.Duration("token-interval", 30*time.Second, "pause between scans")
	flags.Int("token-skip-capacity", 100_000, "known non-token addresses remembered before the skip set resets")
}

func runTokens(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	scanner := a.newScanner()
	if once, _ := cmd.Flags().GetBool("once"); once {
		result, err := scanner.ScanForTokens(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("token scan finished",
			zap.Uint64("to", result.Range.To),
			zap.Int("classified", result.Classified),
			zap.Int("unclassified", result.Unclassified),
			zap.Int("pending", result.Pending),
		)
		return nil
	}
	return exitErr(ctx, scanner.Run(ctx))
}

func newNFTCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nft",
		Short: "Index NFT transfers and rebuild holder rankings",
		RunE:  runNFT,
	}
	addCommonFlags(cmd.Flags())
	addNFTFlags(cmd)
	cmd.Flags().StringSlice("token", nil, "NFT contracts to index once (comma-separated); empty indexes all continuously")
	cmd.Flags().Bool("full", false, "drop stored transfers and reindex from the creation block")
	return cmd
}

func addNFTFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64("log-range", 2000, "blocks per log query")
	cmd.Flags().Duration("nft-interval", time.Minute, "pause between holder passes")
}

func runNFT(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	holders := a.newHolderIndexer()
	if len(a.cfg.NFT.Tokens) == 0 {
		return exitErr(ctx, holders.Run(ctx))
	}

	addresses, err := scan.ParseAddresses(a.cfg.NFT.Tokens)
	if err != nil {
		return err
	}
	for _, address := range addresses {
		result, err := holders.IndexContract(ctx, address, a.cfg.NFT.Full)
		if err != nil {
			return fmt.Errorf("index %s: %w", address.Hex(), err)
		}
		a.logger.Info("nft indexed",
			zap.String("token", result.Token),
			zap.Int("transfers", result.Transfers),
			zap.Int("holders", result.Holders),
		)
	}
	return nil
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Mark a contract verified when compiled bytecode matches the deployed code",
		RunE:  runVerify,
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().String("address", "", "contract address")
	cmd.Flags().String("bytecode", "", "compiled runtime bytecode (hex)")
	cmd.Flags().String("bytecode-file", "", "file holding the compiled runtime bytecode")
	cmd.Flags().String("source-file", "", "optional source code stored with the contract")
	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	address, _ := cmd.Flags().GetString("address")
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address: %q", address)
	}
	compiled, _ := cmd.Flags().GetString("bytecode")
	if path, _ := cmd.Flags().GetString("bytecode-file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read bytecode: %w", err)
		}
		compiled = strings.TrimSpace(string(raw))
	}
	if compiled == "" {
		return fmt.Errorf("bytecode or bytecode-file is required")
	}
	var source string
	if path, _ := cmd.Flags().GetString("source-file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		source = string(raw)
	}

	a, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	verified, err := a.newVerifier().Verify(ctx, common.HexToAddress(address), compiled, source)
	if err != nil {
		return err
	}
	if !verified {
		return fmt.Errorf("bytecode does not match %s", address)
	}
	return nil
}
