package ethereum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to reach an EVM compatible ledger.
type Config struct {
	Name   string
	RPCURL string
	Notes  string
}

// Clock reads block heights from an EVM compatible node. It satisfies the
// chain.BlockClock interface.
type Clock struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	mu        sync.Mutex
}

// NewClock dials the configured RPC endpoint and returns a ready-to-use clock.
func NewClock(ctx context.Context, cfg Config) (*Clock, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置账本 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接账本节点失败: %w", err)
	}

	return &Clock{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
	}, nil
}

// client returns the underlying client under the mutex, so reads never race a
// concurrent Close.
func (c *Clock) client() *ethclient.Client {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eth
}

// BlockNumber returns the latest block height.
func (c *Clock) BlockNumber(ctx context.Context) (uint64, error) {
	eth := c.client()
	if eth == nil {
		return 0, errors.New("未初始化的账本时钟")
	}
	height, err := eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return height, nil
}

// ChainID fetches the ledger's chain id for reporting purposes.
func (c *Clock) ChainID(ctx context.Context) (string, error) {
	eth := c.client()
	if eth == nil {
		return "", errors.New("未初始化的账本时钟")
	}
	id, err := eth.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("获取链 ID 失败: %w", err)
	}
	return "0x" + id.Text(16), nil
}

// Close releases network connections held by the clock.
func (c *Clock) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}
