package mcpserver

import (
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/safescore/internal/risk"
)

// Tool definitions for the SafeScore MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAssessWallet = mcp.NewTool("assess_wallet_risk",
	mcp.WithDescription(
		"Score the risk of an Ethereum wallet from 0 (safe) to 100 (risky). "+
			"Returns the overall score, risk level, per-component scores, risk factors, and recommendations. "+
			"Results are cached for a short time; set refresh to force a new assessment."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address, 0x followed by 40 hex characters")),
	mcp.WithBoolean("refresh",
		mcp.Description("Skip the cache and re-fetch on-chain data")),
)

var ToolGetWalletReport = mcp.NewTool("get_wallet_report",
	mcp.WithDescription(
		"Build a comprehensive report for a wallet: a fresh risk assessment plus the "+
			"transaction activity, value flows, and fees it was computed from. Slower than assess_wallet_risk."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address, 0x followed by 40 hex characters")),
)

var ToolGetAssessmentHistory = mcp.NewTool("get_assessment_history",
	mcp.WithDescription(
		"List previously stored risk assessments for a wallet, newest first. "+
			"Use this to see how a wallet's risk has changed over time."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address, 0x followed by 40 hex characters")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of assessments to return (1-100, default 10)"),
		mcp.Min(1),
		mcp.Max(maxHistoryLimit)),
)

var ToolBatchAssess = mcp.NewTool("batch_assess_wallets",
	mcp.WithDescription(
		"Score up to "+strconv.Itoa(risk.MaxBatchSize)+" wallets in one call. "+
			"Failed wallets are reported individually and do not fail the batch."),
	mcp.WithArray("addresses",
		mcp.Required(),
		mcp.Description("Wallet addresses to assess"),
		mcp.Items(map[string]any{"type": "string"})),
)

var ToolGetProtocolRisk = mcp.NewTool("get_protocol_risk",
	mcp.WithDescription(
		"Rate a DeFi protocol listed on DeFiLlama by name or slug (e.g. 'Uniswap', 'aave-v3'). "+
			"Returns its category, TVL, chains, and a 0-100 risk score."),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("Protocol name or slug")),
	mcp.WithBoolean("details",
		mcp.Description("Also fetch the protocol's detail record (TVL history, audits)")),
)
