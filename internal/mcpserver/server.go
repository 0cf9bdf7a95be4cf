package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all SafeScore tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("safescore", version, server.WithToolCapabilities(false))
	h := NewHandlers(NewSafeScoreClient(cfg))

	s.AddTool(ToolAssessWallet, h.HandleAssessWallet)
	s.AddTool(ToolGetWalletReport, h.HandleGetWalletReport)
	s.AddTool(ToolGetAssessmentHistory, h.HandleGetAssessmentHistory)
	s.AddTool(ToolBatchAssess, h.HandleBatchAssess)
	s.AddTool(ToolGetProtocolRisk, h.HandleGetProtocolRisk)

	return s
}
