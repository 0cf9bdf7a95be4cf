package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mbd888/safescore/internal/risk"
	"github.com/mbd888/safescore/internal/validation"
)

var (
	scoreReport  bool
	scoreRefresh bool

	batchFile string
	batchText bool

	protocolDetails bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <address>",
	Short: "Assess the risk of one wallet",
	Example: `  safescore score 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045
  safescore score 0xd8da... --report --json`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

var batchCmd = &cobra.Command{
	Use:   "batch [address...]",
	Short: "Assess several wallets in one paced run",
	Long: fmt.Sprintf(`Assess up to %d wallets. Addresses come from the arguments and from
--file (one per line, '-' for stdin, blank lines and # comments skipped).`, risk.MaxBatchSize),
	RunE: runBatch,
}

var protocolCmd = &cobra.Command{
	Use:   "protocol <name>",
	Short: "Rate a DeFi protocol listed on DeFiLlama",
	Args:  cobra.ExactArgs(1),
	RunE:  runProtocol,
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreReport, "report", false, "Include the transaction, protocol and asset summaries")
	scoreCmd.Flags().BoolVar(&scoreRefresh, "refresh", false, "Bypass the assessment cache")

	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "Read addresses from a file ('-' for stdin)")
	batchCmd.Flags().BoolVar(&batchText, "text", false, "Print the plain-text risk report")

	protocolCmd.Flags().BoolVar(&protocolDetails, "details", false, "Fetch the protocol's detail record")
}

func runScore(cmd *cobra.Command, args []string) error {
	address := validation.SanitizeAddress(args[0])
	if !validation.IsValidEthAddress(address) {
		return fmt.Errorf("%q is not a valid Ethereum address", args[0])
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stop := spin("Assessing " + validation.ChecksumAddress(address))
	if scoreReport {
		report, err := a.service.Report(ctx, address)
		stop(err)
		if err != nil {
			return err
		}
		if flagJSON {
			return writeOut(report)
		}
		if err := renderAssessment(report.WalletAssessment); err != nil {
			return err
		}
		t := report.Transactions
		pterm.DefaultSection.Println("Activity")
		pterm.Printfln("recent (30d) %d, contracts %d, counterparties %d, fees %.6f ETH",
			t.RecentActivity, t.ContractInteractions, t.UniqueAddresses, t.TotalFeesPaid)
		return nil
	}

	assess := a.service.Assess
	if scoreRefresh {
		assess = a.service.Reassess
	}
	wa, err := assess(ctx, address)
	stop(err)
	if err != nil {
		return err
	}
	if flagJSON {
		return writeOut(wa)
	}
	return renderAssessment(wa)
}

func runBatch(cmd *cobra.Command, args []string) error {
	addresses := append([]string(nil), args...)
	if batchFile != "" {
		var r io.Reader = os.Stdin
		if batchFile != "-" {
			f, err := os.Open(batchFile)
			if err != nil {
				return fmt.Errorf("failed to open address file: %w", err)
			}
			defer f.Close()
			r = f
		}
		fromFile, err := readAddresses(r)
		if err != nil {
			return err
		}
		addresses = append(addresses, fromFile...)
	}
	for i, addr := range addresses {
		addresses[i] = validation.SanitizeAddress(addr)
	}
	if errs := validation.Validate(validation.AddressList("addresses", addresses, risk.MaxBatchSize)); len(errs) > 0 {
		return errs
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stop := spin(fmt.Sprintf("Assessing %d wallets", len(addresses)))
	batch, err := a.service.AssessBatch(ctx, addresses)
	stop(err)
	if err != nil {
		return err
	}

	switch {
	case flagJSON:
		return writeOut(batch)
	case batchText:
		_, err := fmt.Fprint(os.Stdout, risk.TextReport(batch.Results, batch.CompletedAt))
		return err
	default:
		return renderBatch(batch)
	}
}

func runProtocol(cmd *cobra.Command, args []string) error {
	name := validation.SanitizeString(args[0], 100)
	if name == "" {
		return fmt.Errorf("protocol name is required")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stop := spin("Looking up " + name)
	report, err := a.protocols.Lookup(ctx, name, protocolDetails)
	stop(err)
	if err != nil {
		return err
	}
	if flagJSON {
		return writeOut(report)
	}
	return renderProtocol(report)
}

// readAddresses returns one address per non-blank line, skipping # comments.
func readAddresses(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read addresses: %w", err)
	}
	return out, nil
}

// spin shows a spinner unless output is JSON. The returned func stops it,
// marking success or failure.
func spin(text string) func(error) {
	if flagJSON {
		return func(error) {}
	}
	start := time.Now()
	sp, err := pterm.DefaultSpinner.WithRemoveWhenDone(false).Start(text)
	if err != nil {
		return func(error) {}
	}
	return func(err error) {
		if err != nil {
			sp.Fail(text)
			return
		}
		sp.Success(fmt.Sprintf("%s (%s)", text, time.Since(start).Round(time.Millisecond)))
	}
}
