package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
)

const (
	txHash    = "0x8f2a5b3c4d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708"
	merchant  = "0x1111111111111111111111111111111111111111"
	usdcToken = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	stranger  = "0x2222222222222222222222222222222222222222"
)

type fakeLedger struct {
	tx        *types.Transaction
	isPending bool
	txErr     error
	receipt   *types.Receipt
	rcptErr   error
	head      uint64
	headErr   error
}

func (f *fakeLedger) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	if f.txErr != nil {
		return nil, false, f.txErr
	}
	return f.tx, f.isPending, nil
}

func (f *fakeLedger) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if f.rcptErr != nil {
		return nil, f.rcptErr
	}
	return f.receipt, nil
}

func (f *fakeLedger) BlockNumber(context.Context) (uint64, error) {
	return f.head, f.headErr
}

func minedAt(block int64) *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(block)}
}

func tokenTx(t *testing.T, contract, payee string, units int64) *types.Transaction {
	t.Helper()
	data, err := EncodeTransfer(common.HexToAddress(payee), big.NewInt(units))
	require.NoError(t, err)
	to := common.HexToAddress(contract)
	return types.NewTx(&types.LegacyTx{To: &to, Value: big.NewInt(0), Gas: 60000, GasPrice: big.NewInt(1), Data: data})
}

func nativeTx(payee string, wei *big.Int) *types.Transaction {
	to := common.HexToAddress(payee)
	return types.NewTx(&types.LegacyTx{To: &to, Value: wei, Gas: 21000, GasPrice: big.NewInt(1)})
}

func newVerifier(l LedgerClient) *Verifier {
	return NewVerifier(l, Config{
		MinConfirmations: 3,
		Tolerance:        decimal.RequireFromString("0.001"),
		TokenContracts:   map[asset.Asset]string{asset.USDC: usdcToken},
	}, zap.NewNop())
}

func usdcExpectation(amount string) Expectation {
	return Expectation{TxHash: txHash, Asset: asset.USDC, Recipient: merchant, Amount: decimal.RequireFromString(amount)}
}

func TestVerifyTokenTransferWithinTolerance(t *testing.T) {
	l := &fakeLedger{tx: tokenTx(t, usdcToken, merchant, 100_050_000), receipt: minedAt(100), head: 103}

	res := newVerifier(l).Verify(context.Background(), usdcExpectation("100.00"))

	require.Equal(t, Confirmed, res.Outcome, res.Reason)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("100.05")))
	assert.Equal(t, uint64(3), res.Confirmations)
}

func TestVerifyTokenTransferOutsideTolerance(t *testing.T) {
	l := &fakeLedger{tx: tokenTx(t, usdcToken, merchant, 100_200_000), receipt: minedAt(100), head: 110}

	res := newVerifier(l).Verify(context.Background(), usdcExpectation("100.00"))

	assert.Equal(t, Invalid, res.Outcome)
	assert.Contains(t, res.Reason, "tolerance")
}

func TestVerifyTokenRecipientMismatch(t *testing.T) {
	l := &fakeLedger{tx: tokenTx(t, usdcToken, stranger, 100_000_000), receipt: minedAt(100), head: 110}

	res := newVerifier(l).Verify(context.Background(), usdcExpectation("100"))

	assert.Equal(t, Invalid, res.Outcome)
	assert.Contains(t, res.Reason, "token recipient")
}

func TestVerifyTokenWrongContract(t *testing.T) {
	l := &fakeLedger{tx: tokenTx(t, stranger, merchant, 100_000_000), receipt: minedAt(100), head: 110}

	res := newVerifier(l).Verify(context.Background(), usdcExpectation("100"))

	assert.Equal(t, Invalid, res.Outcome)
}

func TestVerifyTokenUndecodableInput(t *testing.T) {
	to := common.HexToAddress(usdcToken)
	tx := types.NewTx(&types.LegacyTx{To: &to, Value: big.NewInt(0), Gas: 60000, GasPrice: big.NewInt(1), Data: []byte{0xde, 0xad}})
	l := &fakeLedger{tx: tx, receipt: minedAt(100), head: 110}

	res := newVerifier(l).Verify(context.Background(), usdcExpectation("100"))

	assert.Equal(t, Invalid, res.Outcome)
	assert.Contains(t, res.Reason, "undecodable")
}

func TestVerifyNativeTransfer(t *testing.T) {
	wei, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)
	l := &fakeLedger{tx: nativeTx(merchant, wei), receipt: minedAt(50), head: 60}

	res := newVerifier(l).Verify(context.Background(), Expectation{
		TxHash: txHash, Asset: asset.ETH, Recipient: merchant, Amount: decimal.RequireFromString("1.5"),
	})

	assert.Equal(t, Confirmed, res.Outcome, res.Reason)
}

func TestVerifyNativeWrongRecipient(t *testing.T) {
	l := &fakeLedger{tx: nativeTx(stranger, big.NewInt(1e18)), receipt: minedAt(50), head: 60}

	res := newVerifier(l).Verify(context.Background(), Expectation{
		TxHash: txHash, Asset: asset.ETH, Recipient: merchant, Amount: decimal.NewFromInt(1),
	})

	assert.Equal(t, Invalid, res.Outcome)
}

func TestVerifyPendingStates(t *testing.T) {
	tests := []struct {
		name   string
		ledger *fakeLedger
	}{
		{"mempool", &fakeLedger{tx: tokenTx(t, usdcToken, merchant, 100_000_000), isPending: true}},
		{"too few confirmations", &fakeLedger{tx: tokenTx(t, usdcToken, merchant, 100_000_000), receipt: minedAt(100), head: 102}},
		{"receipt missing", &fakeLedger{tx: tokenTx(t, usdcToken, merchant, 100_000_000), rcptErr: ethereum.NotFound}},
		{"transport error", &fakeLedger{txErr: errors.New("connection reset")}},
		{"head unavailable", &fakeLedger{tx: tokenTx(t, usdcToken, merchant, 100_000_000), receipt: minedAt(100), headErr: errors.New("timeout")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newVerifier(tt.ledger).Verify(context.Background(), usdcExpectation("100"))
			assert.Equal(t, Pending, res.Outcome, res.Reason)
			assert.False(t, res.OK())
		})
	}
}

func TestVerifyInvalidStates(t *testing.T) {
	reverted := minedAt(100)
	reverted.Status = types.ReceiptStatusFailed

	tests := []struct {
		name   string
		ledger *fakeLedger
		exp    Expectation
	}{
		{"not found", &fakeLedger{txErr: ethereum.NotFound}, usdcExpectation("100")},
		{"reverted", &fakeLedger{tx: tokenTx(t, usdcToken, merchant, 100_000_000), receipt: reverted, head: 200}, usdcExpectation("100")},
		{"malformed hash", &fakeLedger{}, Expectation{TxHash: "0x123", Asset: asset.USDC, Recipient: merchant, Amount: decimal.NewFromInt(1)}},
		{"btc", &fakeLedger{}, Expectation{TxHash: txHash, Asset: asset.BTC, Recipient: merchant, Amount: decimal.NewFromInt(1)}},
		{"no contract configured", &fakeLedger{tx: tokenTx(t, usdcToken, merchant, 1)}, Expectation{TxHash: txHash, Asset: asset.DAI, Recipient: merchant, Amount: decimal.NewFromInt(1)}},
		{"zero expected", &fakeLedger{}, usdcExpectation("0")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newVerifier(tt.ledger).Verify(context.Background(), tt.exp)
			assert.Equal(t, Invalid, res.Outcome, res.Reason)
		})
	}
}

func TestWithinTolerance(t *testing.T) {
	tol := decimal.RequireFromString("0.001")
	d := decimal.RequireFromString

	assert.True(t, WithinTolerance(d("100.05"), d("100"), tol))
	assert.True(t, WithinTolerance(d("99.9"), d("100"), tol))
	assert.True(t, WithinTolerance(d("100.1"), d("100"), tol))
	assert.False(t, WithinTolerance(d("100.2"), d("100"), tol))
	assert.False(t, WithinTolerance(d("99.8"), d("100"), tol))
	assert.False(t, WithinTolerance(d("1"), d("0"), tol))
}

func TestValidHash(t *testing.T) {
	assert.True(t, ValidHash(txHash))
	assert.False(t, ValidHash(txHash[2:]))
	assert.False(t, ValidHash("0xzz"+txHash[4:]))
}
