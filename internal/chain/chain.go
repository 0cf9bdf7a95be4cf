// Package chain probes Ethereum addresses over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/safescore/internal/metrics"
	"github.com/mbd888/safescore/internal/scoring"
)

var (
	ErrInvalidAddress = errors.New("chain: invalid address")
	ErrRPCConnection  = errors.New("chain: RPC connection failed")
)

// Address type labels reported by Probe.
const (
	TypeContract = "Contract"
	TypeEOA      = "Externally Owned Account (EOA)"
)

// EthClient is the subset of go-ethereum's client the prober reads through.
type EthClient interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Prober reads address metadata from an Ethereum node.
type Prober struct {
	client EthClient
}

// NewProber wraps an existing client.
func NewProber(client EthClient) *Prober {
	return &Prober{client: client}
}

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string) (*Prober, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
	}
	return &Prober{client: client}, nil
}

// Probe reports whether address holds code, its ETH balance and its nonce.
func (p *Prober) Probe(ctx context.Context, address string) (info *scoring.AddressInfo, err error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)

	start := time.Now()
	defer func() { metrics.ObserveUpstream("rpc", start, err) }()

	var (
		code    []byte
		balance *big.Int
		nonce   uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		code, err = p.client.CodeAt(gctx, addr, nil)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = p.client.BalanceAt(gctx, addr, nil)
		return err
	})
	g.Go(func() error {
		var err error
		nonce, err = p.client.NonceAt(gctx, addr, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", address, err)
	}

	info = &scoring.AddressInfo{
		Address:          strings.ToLower(address),
		IsContract:       len(code) > 0,
		AddressType:      TypeEOA,
		ETHBalance:       WeiToETH(balance),
		TransactionCount: nonce,
	}
	if info.IsContract {
		info.AddressType = TypeContract
	}
	return info, nil
}

// Ping checks that the node answers.
func (p *Prober) Ping(ctx context.Context) error {
	if _, err := p.client.ChainID(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRPCConnection, err)
	}
	return nil
}

// Close releases the RPC connection.
func (p *Prober) Close() error {
	p.client.Close()
	return nil
}

// WeiToETH converts a wei amount to ETH. Nil is zero.
func WeiToETH(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	return decimal.NewFromBigInt(wei, -18).InexactFloat64()
}
