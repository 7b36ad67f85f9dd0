package events

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tickpool/internal/chain"
)

// CurrencyMeta describes the pool's currency token.
type CurrencyMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// FetchCurrencyMeta resolves the pool's currency token and its ERC20
// metadata. Symbol and name tolerate both string and bytes32 returns.
func FetchCurrencyMeta(ctx context.Context, chainClient *chain.Client, pool common.Address, logger *zap.Logger) (CurrencyMeta, error) {
	if chainClient == nil {
		return CurrencyMeta{}, fmt.Errorf("chain client is nil")
	}
	log := logger
	if log == nil {
		log = zap.NewNop()
	}

	poolABI, err := PoolABI()
	if err != nil {
		return CurrencyMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	data, err := poolABI.Pack("currencyToken")
	if err != nil {
		return CurrencyMeta{}, fmt.Errorf("pack currencyToken: %w", err)
	}
	resp, err := chainClient.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return CurrencyMeta{}, fmt.Errorf("call currencyToken: %w", err)
	}
	values, err := poolABI.Unpack("currencyToken", resp)
	if err != nil {
		return CurrencyMeta{}, fmt.Errorf("unpack currencyToken: %w", err)
	}
	token, err := asAddress(values[0])
	if err != nil {
		return CurrencyMeta{}, fmt.Errorf("currencyToken: %w", err)
	}

	meta := CurrencyMeta{Address: token.Hex()}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		resp, err := chainClient.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		return values, nil
	}

	values, err = call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := call("symbol", stringABI); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := call("symbol", bytes32ABI); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		log.Warn("symbol fetch failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := call("name", stringABI); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := call("name", bytes32ABI); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		log.Warn("name fetch failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	raw, ok := value.([32]byte)
	if !ok {
		return "", false
	}
	trimmed := bytes.TrimRight(raw[:], "\x00")
	if len(trimmed) == 0 {
		return "", false
	}
	return string(trimmed), true
}
