package etherscan

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/safescore/internal/scoring"
)

const (
	recentWindow      = scoring.RecentActivityDays * 24 * time.Hour
	topCounterparties = 10
	secondsPerDay     = 24 * 60 * 60
)

// Error markers handed to the engine when history is unavailable.
const (
	NoDataReason         = "No transaction data available"
	NoTransactionsReason = "No transactions found"
)

var (
	oneETH = decimal.New(1, 18)
	gwei   = decimal.New(1, 9)
)

// Patterns fetches the transaction list and aggregates it. Any failure
// becomes the no-data marker instead of an error.
func (c *Client) Patterns(ctx context.Context, address string) scoring.TransactionPatterns {
	txs, err := c.Transactions(ctx, address)
	if err != nil {
		return PatternsOrMarker(address, nil, err, time.Now())
	}
	return AnalyzePatterns(address, txs, time.Now())
}

// PatternsOrMarker aggregates txs, or returns the no-data marker matching err.
func PatternsOrMarker(address string, txs []Transaction, err error, now time.Time) scoring.TransactionPatterns {
	switch {
	case errors.Is(err, ErrNoTransactions):
		return scoring.NoTransactionData(NoTransactionsReason)
	case err != nil:
		return scoring.NoTransactionData(NoDataReason)
	default:
		return AnalyzePatterns(address, txs, now)
	}
}

// AnalyzePatterns aggregates a transaction list for address. Transactions
// within 30 days of now count as recent. An empty list yields the
// no-transactions marker.
func AnalyzePatterns(address string, txs []Transaction, now time.Time) scoring.TransactionPatterns {
	if len(txs) == 0 {
		return scoring.NoTransactionData(NoTransactionsReason)
	}

	self := strings.ToLower(address)
	recentCutoff := now.Add(-recentWindow).Unix()

	p := scoring.TransactionPatterns{TotalTransactions: len(txs)}
	unique := make(map[string]struct{})
	freq := make(map[string]int)

	var (
		gasPriceSum decimal.Decimal
		feesWei     decimal.Decimal
		valueSum    decimal.Decimal
		valueIn     decimal.Decimal
		valueOut    decimal.Decimal
		largest     decimal.Decimal
		first, last int64
	)

	for _, tx := range txs {
		if tx.ReceiptStatus == "1" {
			p.SuccessfulTransactions++
		} else {
			p.FailedTransactions++
		}

		from := strings.ToLower(tx.From)
		to := strings.ToLower(tx.To)
		for _, a := range [...]string{from, to} {
			if a == "" {
				continue
			}
			unique[a] = struct{}{}
			if a != self {
				freq[a]++
			}
		}

		if tx.IsContractCall() {
			p.ContractInteractions++
		}

		value := parseDecimal(tx.Value)
		valueSum = valueSum.Add(value)
		if value.GreaterThan(oneETH) {
			p.HighValueTransactions++
		}
		if value.GreaterThan(largest) {
			largest = value
		}
		if from == self {
			valueOut = valueOut.Add(value)
		} else {
			valueIn = valueIn.Add(value)
		}

		ts := parseInt(tx.TimeStamp)
		if ts > recentCutoff {
			p.RecentActivity++
		}
		if first == 0 || ts < first {
			first = ts
		}
		if ts > last {
			last = ts
		}

		gasUsed := parseDecimal(tx.GasUsed)
		gasPrice := parseDecimal(tx.GasPrice)
		p.Gas.TotalGasUsed += uint64(gasUsed.IntPart()) //nolint:gosec // gas is never negative
		gasPriceSum = gasPriceSum.Add(gasPrice)
		feesWei = feesWei.Add(gasUsed.Mul(gasPrice))
	}

	n := decimal.NewFromInt(int64(len(txs)))
	p.Gas.AvgGasPrice = gasPriceSum.Div(n).Div(gwei).InexactFloat64()
	p.Gas.TotalFees = toETH(feesWei)

	p.Value.TotalValueIn = toETH(valueIn)
	p.Value.TotalValueOut = toETH(valueOut)
	p.Value.LargestTransaction = toETH(largest)
	p.Value.AvgTransactionValue = valueSum.Div(n).Div(oneETH).InexactFloat64()

	p.UniqueAddresses = len(unique)
	p.Addresses = scoring.AddressInteractions{
		MostFrequentAddresses: topAddresses(freq, topCounterparties),
		InteractionDiversity:  len(freq),
	}

	p.Time.FirstTransaction = first
	p.Time.LastTransaction = last
	if span := last - first; span > 0 {
		p.Time.ActivityFrequency = float64(len(txs)) / (float64(span) / secondsPerDay)
	}

	return p
}

// ContractCalls returns the transactions that carry calldata.
func ContractCalls(txs []Transaction) []Transaction {
	calls := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.IsContractCall() {
			calls = append(calls, tx)
		}
	}
	return calls
}

// TokenHoldings lists distinct token contracts. Transfers arrive newest
// first, so the first row per contract supplies name and last activity.
func TokenHoldings(transfers []TokenTransfer) []scoring.TokenHolding {
	seen := make(map[string]struct{})
	holdings := make([]scoring.TokenHolding, 0)
	for _, tr := range transfers {
		if tr.ContractAddress == "" {
			continue
		}
		key := strings.ToLower(tr.ContractAddress)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		decimals := 18
		if d, err := strconv.Atoi(tr.TokenDecimal); err == nil {
			decimals = d
		}
		holdings = append(holdings, scoring.TokenHolding{
			ContractAddress: tr.ContractAddress,
			TokenName:       tr.TokenName,
			TokenSymbol:     tr.TokenSymbol,
			TokenDecimal:    decimals,
			LastTransaction: parseInt(tr.TimeStamp),
		})
	}
	return holdings
}

// Balances fetches the ETH balance and token holdings. A failed token
// lookup leaves Tokens empty; a failed balance lookup is returned.
func (c *Client) Balances(ctx context.Context, address string) (scoring.BalanceData, error) {
	data := scoring.BalanceData{Tokens: []scoring.TokenHolding{}}

	transfers, err := c.TokenTransfers(ctx, address)
	if err != nil {
		c.logger.Warn("token transfer lookup failed", "address", address, "error", err)
	} else {
		data.Tokens = TokenHoldings(transfers)
	}

	bal, err := c.Balance(ctx, address)
	if err != nil {
		return data, err
	}
	data.ETHBalance = bal
	return data, nil
}

func topAddresses(freq map[string]int, limit int) []scoring.AddressCount {
	out := make([]scoring.AddressCount, 0, len(freq))
	for addr, n := range freq {
		out = append(out, scoring.AddressCount{Address: addr, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Address < out[j].Address
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func toETH(wei decimal.Decimal) float64 {
	return wei.Shift(-18).InexactFloat64()
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
