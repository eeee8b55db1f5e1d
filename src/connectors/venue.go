package connectors

import (
	"context"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"strategyvault/src/ledger"
	"strategyvault/src/model"
	"strategyvault/src/oracle"
)

// SwapReceipt reports one venue fill. AmountOut is what the venue claims
// it delivered; the core never trusts it and measures the before/after
// balance delta of the output asset instead. GasUsed is the gas the venue
// attributes to the fill and is bookkeeping only.
type SwapReceipt struct {
	AmountOut decimal.Decimal `json:"amount_out"`
	GasUsed   decimal.Decimal `json:"gas_used"`
}

// SwapVenue is the opaque external execution venue. Given an input amount
// and routing instructions it either swaps and reports a receipt or
// fails; each call must be atomic (no partial fills observable by the
// core).
type SwapVenue interface {
	ExecuteSwap(
		ctx context.Context,
		assetIn, assetOut string,
		amountIn decimal.Decimal,
		routingPayload string,
		minAmountOut decimal.Decimal,
	) (*SwapReceipt, error)
}

// Flat gas figure the stub attributes to every fill, the intrinsic cost
// of a plain transfer.
const stubSwapGas = 21000

// StubVenue swaps against the in-process ledger at the oracle rate. It is
// the default venue for deployments without a real execution backend and
// for tests.
type StubVenue struct {
	Ledger ledger.AssetLedger
	Oracle oracle.PriceOracle

	// Account whose balances the swap moves; defaults to the vault.
	Account string

	// FailNext forces the next call to fail, for failure-path tests.
	FailNext bool
}

func NewStubVenue(l ledger.AssetLedger, o oracle.PriceOracle) *StubVenue {
	return &StubVenue{Ledger: l, Oracle: o, Account: ledger.VaultAccount}
}

// ExecuteSwap debits the input asset and credits the output asset computed
// at the current oracle rate, truncating toward zero. Nothing moves when
// the output would undercut minAmountOut.
func (v *StubVenue) ExecuteSwap(
	ctx context.Context,
	assetIn, assetOut string,
	amountIn decimal.Decimal,
	routingPayload string,
	minAmountOut decimal.Decimal,
) (*SwapReceipt, error) {

	if v.FailNext {
		v.FailNext = false
		return nil, model.ErrSwapFailed
	}

	rate, err := v.Oracle.CurrentPrice(ctx, assetIn, assetOut)
	if err != nil {
		return nil, model.ErrSwapFailed
	}

	amountOut := amountIn.Mul(rate).Truncate(0)
	if amountOut.LessThan(minAmountOut) {
		return nil, model.ErrSlippageExceeded
	}

	account := v.Account
	if account == "" {
		account = ledger.VaultAccount
	}

	if err := v.Ledger.Debit(account, assetIn, amountIn); err != nil {
		return nil, model.ErrSwapFailed
	}

	if err := v.Ledger.Credit(account, assetOut, amountOut); err != nil {
		// Undo the debit so a failed swap moves nothing.
		_ = v.Ledger.Credit(account, assetIn, amountIn)
		return nil, model.ErrSwapFailed
	}

	logger.WithFields(map[string]interface{}{
		"venue":      "stub",
		"asset_in":   assetIn,
		"asset_out":  assetOut,
		"amount_in":  amountIn.String(),
		"amount_out": amountOut.String(),
	}).Debug("Stub venue swap executed")

	return &SwapReceipt{AmountOut: amountOut, GasUsed: decimal.NewFromInt(stubSwapGas)}, nil
}
