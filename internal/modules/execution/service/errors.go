package service

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrSettlementTimeout контракт куплен, но расчёт не дождались.
	ErrSettlementTimeout = errors.New("contract_wait_timeout")

	errProposalMissingID   = errors.New("proposal_missing_id")
	errBuyMissingContract  = errors.New("buy_missing_contract_id")
	errUnsupportedSide     = errors.New("unsupported_side")
	errMultiplierNotPicked = errors.New("multiplier_not_resolved")
)

// SettlementTimeout несёт id контракта, чтобы сделку можно было пометить unknown.
type SettlementTimeout struct {
	ContractID int64
	Waited     time.Duration
}

func (e *SettlementTimeout) Error() string {
	return fmt.Sprintf("%s: contract_id=%d waited=%s", ErrSettlementTimeout, e.ContractID, e.Waited)
}

func (e *SettlementTimeout) Unwrap() error { return ErrSettlementTimeout }
