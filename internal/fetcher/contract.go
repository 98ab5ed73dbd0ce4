package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/easygo-dev/token/internal/metrics"
)

const erc20ABIJSON = `[
	{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// ContractOptions parameterise the on-chain supply fetcher.
type ContractOptions struct {
	RPCURL         string
	TokenAddress   string
	NonCirculating []string
	Timeout        time.Duration
}

// Contract reads supply figures straight from the token contract. Addresses
// listed in NonCirculating (treasury, locks, burn) are subtracted from total
// supply to derive the circulating figure.
type Contract struct {
	opts      ContractOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewContract builds a contract-read fetcher.
func NewContract(opts ContractOptions, logger zerolog.Logger) *Contract {
	return &Contract{opts: opts, logger: logger.With().Str("component", "contract_fetcher").Logger()}
}

// FetchMetrics reads total and circulating supply from the token contract.
func (c *Contract) FetchMetrics(ctx context.Context) (metrics.TokenData, error) {
	if c.opts.RPCURL == "" {
		return metrics.TokenData{}, errors.New("ethereum rpc url not configured")
	}
	if c.opts.TokenAddress == "" {
		return metrics.TokenData{}, errors.New("token contract address not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return metrics.TokenData{}, err
	}

	token := common.HexToAddress(c.opts.TokenAddress)

	name, err := c.callString(ctx, client, token, "name")
	if err != nil {
		return metrics.TokenData{}, err
	}
	symbol, err := c.callString(ctx, client, token, "symbol")
	if err != nil {
		return metrics.TokenData{}, err
	}

	decimalsRaw, err := c.callUint8(ctx, client, token, "decimals")
	if err != nil {
		return metrics.TokenData{}, err
	}

	totalRaw, err := c.callUint256(ctx, client, token, "totalSupply")
	if err != nil {
		return metrics.TokenData{}, err
	}

	circulatingRaw := new(big.Int).Set(totalRaw)
	for _, addr := range c.opts.NonCirculating {
		balance, err := c.callUint256(ctx, client, token, "balanceOf", common.HexToAddress(addr))
		if err != nil {
			return metrics.TokenData{}, fmt.Errorf("balanceOf %s: %w", addr, err)
		}
		circulatingRaw.Sub(circulatingRaw, balance)
	}
	if circulatingRaw.Sign() < 0 {
		circulatingRaw.SetInt64(0)
	}

	exp := -int32(decimalsRaw)
	values := metrics.NewSet(metrics.TotalSupply, metrics.CirculatingSupply)
	values.Set(metrics.TotalSupply, decimal.NewFromBigInt(totalRaw, exp))
	values.Set(metrics.CirculatingSupply, decimal.NewFromBigInt(circulatingRaw, exp))

	return metrics.TokenData{
		Name:   name,
		Symbol: symbol,
		Values: values,
	}, nil
}

// Close releases the RPC connection.
func (c *Contract) Close() {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *Contract) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *Contract) call(ctx context.Context, client *ethclient.Client, token common.Address, method string, args ...any) ([]any, error) {
	payload, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	outputs, err := erc20ABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected %s response", method)
	}
	return outputs, nil
}

func (c *Contract) callString(ctx context.Context, client *ethclient.Client, token common.Address, method string) (string, error) {
	outputs, err := c.call(ctx, client, token, method)
	if err != nil {
		return "", err
	}
	value, ok := outputs[0].(string)
	if !ok {
		return "", fmt.Errorf("failed to decode %s output", method)
	}
	return value, nil
}

func (c *Contract) callUint8(ctx context.Context, client *ethclient.Client, token common.Address, method string) (uint8, error) {
	outputs, err := c.call(ctx, client, token, method)
	if err != nil {
		return 0, err
	}
	value, ok := outputs[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("failed to decode %s output", method)
	}
	return value, nil
}

func (c *Contract) callUint256(ctx context.Context, client *ethclient.Client, token common.Address, method string, args ...any) (*big.Int, error) {
	outputs, err := c.call(ctx, client, token, method, args...)
	if err != nil {
		return nil, err
	}
	value, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode %s output", method)
	}
	return value, nil
}

var _ MetricsFetcher = (*Contract)(nil)
var _ Closer = (*Contract)(nil)
