package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an ethclient connection scoped to one market contract. Log
// subscriptions require the endpoint to be a websocket URL; read calls work
// over either transport.
type Client struct {
	ec       *ethclient.Client
	contract common.Address
}

// Dial connects to the RPC endpoint and validates the contract address. An
// unreachable endpoint or malformed address is a configuration error the
// caller should treat as fatal.
func Dial(ctx context.Context, rpcURL, contractAddr string) (*Client, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("chain: invalid contract address %q", contractAddr)
	}

	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	return &Client{
		ec:       ec,
		contract: common.HexToAddress(contractAddr),
	}, nil
}

// Contract returns the market contract address this client is scoped to.
func (c *Client) Contract() common.Address {
	return c.contract
}

// HeadBlock returns the current chain head block number.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	n, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: head block: %w", err)
	}
	return n, nil
}

// FilterLogs queries all subscribed contract events in [from, to] inclusive.
func (c *Client) FilterLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.contract},
		Topics:    EventTopics(),
	}
	logs, err := c.ec.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chain: filter logs [%d,%d]: %w", from, to, err)
	}
	return logs, nil
}

// SubscribeLogs opens a live subscription to all subscribed contract events.
func (c *Client) SubscribeLogs(ctx context.Context, sink chan<- types.Log) (ethereum.Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    EventTopics(),
	}
	sub, err := c.ec.SubscribeFilterLogs(ctx, query, sink)
	if err != nil {
		return nil, fmt.Errorf("chain: subscribe logs: %w", err)
	}
	return sub, nil
}

// CallContract performs a point-in-time eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, calldata []byte) ([]byte, error) {
	msg := ethereum.CallMsg{
		To:   &c.contract,
		Data: calldata,
	}
	out, err := c.ec.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call contract: %w", err)
	}
	return out, nil
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() {
	c.ec.Close()
}
