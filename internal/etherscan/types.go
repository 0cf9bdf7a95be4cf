package etherscan

import (
	"encoding/json"
	"fmt"
)

// Transaction is one row of the txlist endpoint. Etherscan encodes every
// numeric field as a decimal string.
type Transaction struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	Gas             string `json:"gas"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	Input           string `json:"input"`
	IsError         string `json:"isError"`
	ReceiptStatus   string `json:"txreceipt_status"`
	ContractAddress string `json:"contractAddress"`
	FunctionName    string `json:"functionName"`
	MethodID        string `json:"methodId"`
}

// IsContractCall reports whether the transaction carries calldata.
func (t Transaction) IsContractCall() bool {
	return t.Input != "" && t.Input != "0x"
}

// TokenTransfer is one row of the tokentx endpoint.
type TokenTransfer struct {
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// envelope is the common response wrapper. Result is a list, a string
// or an error message depending on endpoint and status.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// APIError is a non-OK answer from Etherscan, either at the HTTP layer
// (StatusCode != 200) or in the response body (status "0").
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("etherscan: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("etherscan: %s", e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	switch {
	case e.StatusCode == 429, e.StatusCode >= 500:
		return true
	case e.StatusCode == 0:
		return isRateLimitMessage(e.Message)
	default:
		return false
	}
}
