package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20TransferABI = `[{
	"constant": false,
	"inputs": [
		{"name": "_to", "type": "address"},
		{"name": "_value", "type": "uint256"}
	],
	"name": "transfer",
	"outputs": [{"name": "", "type": "bool"}],
	"type": "function"
}]`

var erc20ABI = mustParseABI(erc20TransferABI)

var errNotTransfer = errors.New("calldata is not an erc20 transfer")

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// decodeTransfer extracts recipient and base-unit value from transfer(address,uint256) calldata.
func decodeTransfer(data []byte) (common.Address, *big.Int, error) {
	if len(data) < 4 {
		return common.Address{}, nil, errNotTransfer
	}
	method, err := erc20ABI.MethodById(data[:4])
	if err != nil || method.Name != "transfer" {
		return common.Address{}, nil, errNotTransfer
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("unpack transfer args: %w", err)
	}
	if len(args) != 2 {
		return common.Address{}, nil, errNotTransfer
	}
	to, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, errNotTransfer
	}
	value, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, errNotTransfer
	}
	return to, value, nil
}

// EncodeTransfer builds transfer(address,uint256) calldata.
func EncodeTransfer(to common.Address, value *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, value)
}
