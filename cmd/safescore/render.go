package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pterm/pterm"

	"github.com/mbd888/safescore/internal/defillama"
	"github.com/mbd888/safescore/internal/risk"
	"github.com/mbd888/safescore/internal/scoring"
	"github.com/mbd888/safescore/internal/validation"
)

func levelColor(level scoring.RiskLevel) pterm.Color {
	switch level {
	case scoring.LevelVeryHigh, scoring.LevelHigh:
		return pterm.FgRed
	case scoring.LevelMedium:
		return pterm.FgYellow
	case scoring.LevelLow:
		return pterm.FgCyan
	default:
		return pterm.FgGreen
	}
}

func scoreText(score float64, level scoring.RiskLevel) string {
	return levelColor(level).Sprintf("%.1f %s", score, level)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderAssessment(wa *risk.WalletAssessment) error {
	a := wa.Assessment
	pterm.DefaultHeader.WithFullWidth().Println(validation.ChecksumAddress(wa.Address))
	pterm.Printfln("Risk score: %s", scoreText(a.OverallRiskScore, a.RiskLevel))
	pterm.Println(a.RiskDescription)
	pterm.Println()

	s := wa.Summary
	facts := pterm.TableData{
		{"Transactions", fmt.Sprintf("%d", s.TotalTransactions)},
		{"Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate*100)},
		{"ETH balance", fmt.Sprintf("%.4f", s.ETHBalance)},
		{"Token types", fmt.Sprintf("%d", s.TokenTypes)},
		{"Protocols", fmt.Sprintf("%d", s.ProtocolsIdentified)},
	}
	if err := pterm.DefaultTable.WithData(facts).Render(); err != nil {
		return err
	}

	names := make([]string, 0, len(a.ComponentScores))
	for name := range a.ComponentScores {
		names = append(names, name)
	}
	sort.Strings(names)
	components := pterm.TableData{{"Component", "Score", "Weight"}}
	for _, name := range names {
		score := a.ComponentScores[name]
		components = append(components, []string{
			name,
			scoreText(score, scoring.Level(score)),
			fmt.Sprintf("%.0f%%", a.ComponentWeights[name]*100),
		})
	}
	pterm.DefaultSection.Println("Components")
	if err := pterm.DefaultTable.WithHasHeader().WithData(components).Render(); err != nil {
		return err
	}

	if err := renderList("Risk factors", a.RiskFactors); err != nil {
		return err
	}
	if err := renderList("Recommendations", a.Recommendations); err != nil {
		return err
	}
	if llm := a.DetailedAnalysis.LLM; llm != nil && llm.Reasoning != "" {
		pterm.DefaultBox.WithTitle("AI analysis").Println(llm.Reasoning)
	}
	if wa.Cached {
		pterm.Info.Println("served from cache")
	}
	return nil
}

func renderList(title string, items []string) error {
	if len(items) == 0 {
		return nil
	}
	pterm.DefaultSection.Println(title)
	list := make([]pterm.BulletListItem, len(items))
	for i, item := range items {
		list[i] = pterm.BulletListItem{Level: 0, Text: item}
	}
	return pterm.DefaultBulletList.WithItems(list).Render()
}

func renderBatch(b *risk.Batch) error {
	rows := pterm.TableData{{"Address", "Score", "Transactions", "Note"}}
	for _, r := range b.Results {
		addr := validation.ChecksumAddress(r.Address)
		if r.Error != "" {
			rows = append(rows, []string{addr, pterm.FgRed.Sprint("failed"), "", r.Error})
			continue
		}
		wa := r.Assessment
		rows = append(rows, []string{
			addr,
			scoreText(wa.Score(), wa.Level()),
			fmt.Sprintf("%d", wa.Summary.TotalTransactions),
			"",
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}
	pterm.Printfln("%d succeeded, %d failed (batch %s)", b.Succeeded, b.Failed, b.ID)
	return nil
}

func renderProtocol(r *defillama.ProtocolReport) error {
	p := r.Protocol
	pterm.DefaultHeader.WithFullWidth().Println(p.Name)
	rows := pterm.TableData{
		{"Category", p.Category},
		{"TVL", fmt.Sprintf("$%.0f", p.TVL)},
		{"Chains", fmt.Sprintf("%d", len(p.Chains))},
		{"Risk", scoreText(r.RiskScore, r.RiskLevel)},
	}
	if err := pterm.DefaultTable.WithData(rows).Render(); err != nil {
		return err
	}
	if r.DetailsError != "" {
		pterm.Warning.Printfln("details unavailable: %s", r.DetailsError)
	}
	return nil
}

func writeOut(v any) error {
	return printJSON(os.Stdout, v)
}
