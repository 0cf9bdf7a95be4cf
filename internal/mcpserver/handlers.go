package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/safescore/internal/defillama"
	"github.com/mbd888/safescore/internal/risk"
	"github.com/mbd888/safescore/internal/validation"
)

const maxHistoryLimit = 100

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *SafeScoreClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *SafeScoreClient) *Handlers {
	return &Handlers{client: client}
}

// HandleAssessWallet scores a single wallet.
func (h *Handlers) HandleAssessWallet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, errResult := addressArg(req)
	if errResult != nil {
		return errResult, nil
	}
	refresh := req.GetBool("refresh", false)

	wa, err := h.client.AssessWallet(ctx, address, refresh)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to assess wallet: %v", err)), nil
	}
	return mcp.NewToolResultText(formatAssessment(wa)), nil
}

// HandleGetWalletReport returns a fresh assessment with its supporting data.
func (h *Handlers) HandleGetWalletReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, errResult := addressArg(req)
	if errResult != nil {
		return errResult, nil
	}

	report, err := h.client.GetReport(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to build report: %v", err)), nil
	}
	return mcp.NewToolResultText(formatReport(report)), nil
}

// HandleGetAssessmentHistory lists stored assessments for a wallet.
func (h *Handlers) HandleGetAssessmentHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, errResult := addressArg(req)
	if errResult != nil {
		return errResult, nil
	}
	limit := req.GetInt("limit", 10)
	if limit < 1 || limit > maxHistoryLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit)), nil
	}

	history, err := h.client.GetHistory(ctx, address, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get history: %v", err)), nil
	}
	return mcp.NewToolResultText(formatHistory(address, history.Assessments)), nil
}

// HandleBatchAssess scores several wallets in one call.
func (h *Handlers) HandleBatchAssess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addresses := addressListArg(req)
	if errs := validation.Validate(validation.AddressList("addresses", addresses, risk.MaxBatchSize)); len(errs) > 0 {
		return mcp.NewToolResultError(errs.Error()), nil
	}

	batch, err := h.client.BatchAssess(ctx, addresses)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Batch assessment failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatBatch(batch)), nil
}

// HandleGetProtocolRisk rates a DeFi protocol by name.
func (h *Handlers) HandleGetProtocolRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("name", ""))
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	details := req.GetBool("details", false)

	report, err := h.client.GetProtocol(ctx, name, details)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to look up protocol: %v", err)), nil
	}
	return mcp.NewToolResultText(formatProtocol(report)), nil
}

// --- Argument helpers ---

func addressArg(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	address := validation.SanitizeAddress(req.GetString("address", ""))
	errs := validation.Validate(
		validation.Required("address", address),
		validation.ValidAddress("address", address),
	)
	if len(errs) > 0 {
		return "", mcp.NewToolResultError(errs.Error())
	}
	return address, nil
}

// addressListArg accepts a JSON array of strings or a single
// comma-separated string.
func addressListArg(req mcp.CallToolRequest) []string {
	var out []string
	switch v := req.GetArguments()["addresses"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, validation.SanitizeAddress(s))
			}
		}
	case []string:
		for _, s := range v {
			out = append(out, validation.SanitizeAddress(s))
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, validation.SanitizeAddress(s))
			}
		}
	}
	return out
}

// --- Formatting ---

func formatAssessment(wa *risk.WalletAssessment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Wallet: %s\n", validation.ChecksumAddress(wa.Address))
	writeScore(&sb, wa)
	if wa.Cached {
		sb.WriteString("(served from cache)\n")
	}
	return sb.String()
}

func writeScore(sb *strings.Builder, wa *risk.WalletAssessment) {
	a := wa.Assessment
	if a == nil {
		sb.WriteString("No score available.\n")
		return
	}
	fmt.Fprintf(sb, "Risk Score: %.1f / 100 (%s)\n", a.OverallRiskScore, a.RiskLevel)
	if a.RiskDescription != "" {
		fmt.Fprintf(sb, "  %s\n", a.RiskDescription)
	}

	s := wa.Summary
	fmt.Fprintf(sb, "Transactions: %d (%.0f%% successful)\n", s.TotalTransactions, s.SuccessRate*100)
	fmt.Fprintf(sb, "ETH Balance: %.4f\n", s.ETHBalance)
	if len(s.Protocols) > 0 {
		fmt.Fprintf(sb, "Protocols: %s\n", strings.Join(s.Protocols, ", "))
	}

	if len(a.ComponentScores) > 0 {
		sb.WriteString("\nComponents:\n")
		names := make([]string, 0, len(a.ComponentScores))
		for name := range a.ComponentScores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(sb, "  %-22s %5.1f\n", name, a.ComponentScores[name])
		}
	}
	writeList(sb, "Risk Factors", a.RiskFactors)
	writeList(sb, "Recommendations", a.Recommendations)
	if llm := a.DetailedAnalysis.LLM; llm != nil && llm.Reasoning != "" {
		fmt.Fprintf(sb, "\nAI Analysis:\n  %s\n", llm.Reasoning)
	}
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(sb, "  - %s\n", item)
	}
}

func formatReport(r *risk.ComprehensiveReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Comprehensive Report: %s\n", validation.ChecksumAddress(r.Address))
	writeScore(&sb, r.WalletAssessment)

	t := r.Transactions
	sb.WriteString("\nActivity:\n")
	fmt.Fprintf(&sb, "  Recent (30d): %d\n", t.RecentActivity)
	fmt.Fprintf(&sb, "  Contract interactions: %d\n", t.ContractInteractions)
	fmt.Fprintf(&sb, "  Unique counterparties: %d\n", t.UniqueAddresses)
	fmt.Fprintf(&sb, "  Value in/out: %.4f / %.4f ETH\n", t.TotalValueIn, t.TotalValueOut)
	fmt.Fprintf(&sb, "  Fees paid: %.6f ETH\n", t.TotalFeesPaid)
	fmt.Fprintf(&sb, "\nAnalysis took %.2fs\n", r.Duration)
	return sb.String()
}

func formatHistory(address string, list []*risk.WalletAssessment) string {
	if len(list) == 0 {
		return fmt.Sprintf("No stored assessments for %s.", validation.ChecksumAddress(address))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d assessment(s) for %s:\n\n", len(list), validation.ChecksumAddress(address))
	for i, wa := range list {
		fmt.Fprintf(&sb, "%d. %s  score %.1f  %s\n", i+1, wa.AssessedAt.UTC().Format("2006-01-02 15:04"), wa.Score(), wa.Level())
	}
	return sb.String()
}

func formatBatch(b *risk.Batch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %d succeeded, %d failed\n\n", b.ID, b.Succeeded, b.Failed)
	for _, r := range b.Results {
		addr := validation.ChecksumAddress(r.Address)
		if r.Error != "" {
			fmt.Fprintf(&sb, "  %s  ERROR: %s\n", addr, r.Error)
			continue
		}
		fmt.Fprintf(&sb, "  %s  %5.1f  %s\n", addr, r.Assessment.Score(), r.Assessment.Level())
	}
	return sb.String()
}

func formatProtocol(r *defillama.ProtocolReport) string {
	p := r.Protocol
	var sb strings.Builder
	fmt.Fprintf(&sb, "Protocol: %s\n", p.Name)
	if p.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", p.Category)
	}
	fmt.Fprintf(&sb, "TVL: $%.0f\n", p.TVL)
	if len(p.Chains) > 0 {
		fmt.Fprintf(&sb, "Chains: %s\n", strings.Join(p.Chains, ", "))
	}
	fmt.Fprintf(&sb, "Risk Score: %.1f / 100 (%s)\n", r.RiskScore, r.RiskLevel)
	if r.DetailsError != "" {
		fmt.Fprintf(&sb, "Details unavailable: %s\n", r.DetailsError)
	}
	return sb.String()
}
