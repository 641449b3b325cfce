package chain

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
)

const (
	DefaultMinConfirmations = 3
	DefaultTolerance        = "0.001"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidHash reports whether s is a 0x-prefixed 32 byte hex transaction hash.
func ValidHash(s string) bool { return txHashPattern.MatchString(s) }

// LedgerClient is the read-only slice of an EVM JSON-RPC client the verifier needs.
// *ethclient.Client satisfies it.
type LedgerClient interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type Outcome int

const (
	// Invalid is terminal: the transaction can never satisfy the expectation.
	Invalid Outcome = iota
	// Pending may turn into Confirmed on a later attempt.
	Pending
	Confirmed
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Pending:
		return "pending"
	default:
		return "invalid"
	}
}

type Result struct {
	Outcome       Outcome
	Reason        string
	Confirmations uint64
	Amount        decimal.Decimal
}

func (r Result) OK() bool { return r.Outcome == Confirmed }

func invalid(format string, args ...any) Result {
	return Result{Outcome: Invalid, Reason: fmt.Sprintf(format, args...)}
}

func pending(format string, args ...any) Result {
	return Result{Outcome: Pending, Reason: fmt.Sprintf(format, args...)}
}

// Expectation is what an incoming transaction must match.
type Expectation struct {
	TxHash    string
	Asset     asset.Asset
	Recipient string
	Amount    decimal.Decimal
}

type Config struct {
	MinConfirmations uint64
	Tolerance        decimal.Decimal
	// TokenContracts maps each ERC-20 asset to its contract address.
	TokenContracts map[asset.Asset]string
}

type Verifier struct {
	client    LedgerClient
	minConf   uint64
	tolerance decimal.Decimal
	contracts map[asset.Asset]common.Address
	log       *zap.Logger
}

func NewVerifier(client LedgerClient, cfg Config, log *zap.Logger) *Verifier {
	v := &Verifier{
		client:    client,
		minConf:   cfg.MinConfirmations,
		tolerance: cfg.Tolerance,
		contracts: make(map[asset.Asset]common.Address, len(cfg.TokenContracts)),
		log:       log,
	}
	if v.minConf == 0 {
		v.minConf = DefaultMinConfirmations
	}
	if v.tolerance.IsZero() {
		v.tolerance = decimal.RequireFromString(DefaultTolerance)
	}
	for a, addr := range cfg.TokenContracts {
		if common.IsHexAddress(addr) {
			v.contracts[a] = common.HexToAddress(addr)
		}
	}
	return v
}

// WithinTolerance reports |actual-expected|/expected <= tol. Non-positive expectations never match.
func WithinTolerance(actual, expected, tol decimal.Decimal) bool {
	if !expected.IsPositive() {
		return false
	}
	return actual.Sub(expected).Abs().Div(expected).LessThanOrEqual(tol)
}

// Verify reads the transaction from the ledger and checks it against exp.
// Ledger read failures are reported as Pending so the caller can retry; they
// never produce Confirmed.
func (v *Verifier) Verify(ctx context.Context, exp Expectation) Result {
	res := v.verify(ctx, exp)
	v.log.Info("transaction verified",
		zap.String("tx_hash", exp.TxHash),
		zap.String("asset", string(exp.Asset)),
		zap.String("outcome", res.Outcome.String()),
		zap.String("reason", res.Reason),
		zap.Uint64("confirmations", res.Confirmations))
	return res
}

func (v *Verifier) verify(ctx context.Context, exp Expectation) Result {
	if !ValidHash(exp.TxHash) {
		return invalid("malformed transaction hash")
	}
	if !exp.Asset.Payable() {
		return invalid("asset %s cannot be verified on chain", exp.Asset)
	}
	if !common.IsHexAddress(exp.Recipient) {
		return invalid("receiving address not configured for %s", exp.Asset)
	}
	if !exp.Amount.IsPositive() {
		return invalid("expected amount must be positive")
	}
	recipient := common.HexToAddress(exp.Recipient)
	hash := common.HexToHash(exp.TxHash)

	tx, isPending, err := v.client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return invalid("transaction not found")
	}
	if err != nil {
		return pending("ledger read failed: %v", err)
	}
	if isPending {
		return pending("transaction not yet mined")
	}

	amount, res, ok := v.matchTransfer(tx, exp.Asset, recipient)
	if !ok {
		return res
	}
	if !WithinTolerance(amount, exp.Amount, v.tolerance) {
		return invalid("amount %s outside tolerance of expected %s", amount, exp.Amount)
	}

	receipt, err := v.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return pending("receipt not available")
	}
	if err != nil {
		return pending("ledger read failed: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return invalid("transaction reverted")
	}
	if receipt.BlockNumber == nil {
		return pending("receipt not yet in a block")
	}

	head, err := v.client.BlockNumber(ctx)
	if err != nil {
		return pending("ledger read failed: %v", err)
	}
	mined := receipt.BlockNumber.Uint64()
	var confs uint64
	if head >= mined {
		confs = head - mined
	}
	if confs < v.minConf {
		return Result{Outcome: Pending, Reason: fmt.Sprintf("%d of %d confirmations", confs, v.minConf), Confirmations: confs, Amount: amount}
	}
	return Result{Outcome: Confirmed, Confirmations: confs, Amount: amount}
}

// matchTransfer checks the transaction pays recipient in the given asset and returns the paid amount.
func (v *Verifier) matchTransfer(tx *types.Transaction, a asset.Asset, recipient common.Address) (decimal.Decimal, Result, bool) {
	to := tx.To()
	if to == nil {
		return decimal.Zero, invalid("contract creation is not a payment"), false
	}
	if !a.IsToken() {
		if *to != recipient {
			return decimal.Zero, invalid("recipient %s does not match receiving address", to.Hex()), false
		}
		return a.FromUnits(tx.Value()), Result{}, true
	}

	contract, ok := v.contracts[a]
	if !ok {
		return decimal.Zero, invalid("no contract configured for %s", a), false
	}
	if *to != contract {
		return decimal.Zero, invalid("transaction targets %s, not the %s contract", to.Hex(), a), false
	}
	payee, value, err := decodeTransfer(tx.Data())
	if err != nil {
		return decimal.Zero, invalid("undecodable token transfer: %v", err), false
	}
	if payee != recipient {
		return decimal.Zero, invalid("token recipient %s does not match receiving address", payee.Hex()), false
	}
	return a.FromUnits(value), Result{}, true
}
