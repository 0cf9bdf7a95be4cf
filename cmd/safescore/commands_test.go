package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/safescore/internal/scoring"
)

func TestReadAddresses(t *testing.T) {
	in := strings.NewReader(`# watchlist
0xd8da6bf26964af9d7eed9e03e53415d37aa96045

  0x1111111111111111111111111111111111111111  # treasury
#0x2222222222222222222222222222222222222222
`)
	got, err := readAddresses(in)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0xd8da6bf26964af9d7eed9e03e53415d37aa96045",
		"0x1111111111111111111111111111111111111111",
	}, got)
}

func TestLevelColor(t *testing.T) {
	assert.Equal(t, pterm.FgRed, levelColor(scoring.LevelVeryHigh))
	assert.Equal(t, pterm.FgRed, levelColor(scoring.LevelHigh))
	assert.Equal(t, pterm.FgYellow, levelColor(scoring.LevelMedium))
	assert.Equal(t, pterm.FgGreen, levelColor(scoring.LevelVeryLow))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"succeeded": 2}))
	assert.Equal(t, "{\n  \"succeeded\": 2\n}\n", buf.String())
}

func TestBatchRejectsInvalidAddresses(t *testing.T) {
	batchFile = ""
	err := runBatch(batchCmd, []string{"0xnope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "addresses[0]")
}

func TestScoreRejectsInvalidAddress(t *testing.T) {
	err := runScore(scoreCmd, []string{"0x123"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid Ethereum address")
}
