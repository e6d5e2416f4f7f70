package branch_transfer

import "rxledger/pkg/numerator"

const (
	// NumeratorStrategy defines the numbering strategy for orders,
	// transfers and receipts. All three are inter-branch accounting
	// documents, so numbering is Strict and gap-free.
	NumeratorStrategy = numerator.StrategyStrict
)
