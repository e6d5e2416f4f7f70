package sales_invoice

import "rxledger/pkg/numerator"

const (
	// NumeratorStrategy defines the numbering strategy for this document type.
	// Sales invoices are primary accounting documents, so numbering is Strict.
	NumeratorStrategy = numerator.StrategyStrict
)
