package model

import "errors"

// Sentinel errors shared across repositories, the eligibility engine and
// the settlement engine. Handlers map these onto HTTP status codes.
var (
	ErrInvalidParameter       = errors.New("invalid parameter")
	ErrDuplicateID            = errors.New("duplicate order id")
	ErrNotFound               = errors.New("order not found")
	ErrUnauthorized           = errors.New("caller is not an authorized executor")
	ErrNotOrderMaker          = errors.New("caller is not the order maker")
	ErrOrderNotActive         = errors.New("order is not active")
	ErrOrderExpired           = errors.New("order deadline has passed")
	ErrOrderCompleted         = errors.New("order is already completed")
	ErrTooEarly               = errors.New("interval has not elapsed yet")
	ErrPriceConditionNotMet   = errors.New("price condition not met")
	ErrDependencyNotSatisfied = errors.New("dependent order not completed")
	ErrLevelAlreadyExecuted   = errors.New("grid level already executed")
	ErrAlreadyFulfilled       = errors.New("gas station order already fulfilled")
	ErrSwapFailed             = errors.New("swap execution failed")
	ErrSlippageExceeded       = errors.New("swap output below slippage minimum")
	ErrInsufficientOutput     = errors.New("received amount does not cover gas cost")
	ErrNothingToClaim         = errors.New("no vested amount claimable yet")
)
