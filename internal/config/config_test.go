package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.PaymentWindow)
	assert.Equal(t, 24*time.Hour, cfg.OrderHoldTimeout)
	assert.Equal(t, uint64(3), cfg.MinConfirmations)
	assert.True(t, cfg.AmountTolerance.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, cfg.Prices()[asset.ETH].Equal(decimal.NewFromInt(2500)))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PAYMENT_WINDOW", "15m")
	t.Setenv("RECEIVING_ADDRESS_USDC", "0x9999999999999999999999999999999999999999")
	t.Setenv("PRICE_ETH", "3100.25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.PaymentWindow)
	assert.Equal(t, "0x9999999999999999999999999999999999999999", cfg.ReceivingAddresses()[asset.USDC])
	assert.True(t, cfg.PriceETH.Equal(decimal.RequireFromString("3100.25")))
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "dynamodb")
	_, err := Load()
	assert.Error(t, err)
}
