package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Dial connects to an EVM JSON-RPC endpoint and checks it answers.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.ChainID(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger rpc chain id: %w", err)
	}
	return client, nil
}
