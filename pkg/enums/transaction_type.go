package enums

// TransactionType maps to transaction_type_enum. Only the two escrow
// movements exist; deposits and withdrawals are handled elsewhere.
type TransactionType string

const (
	TransactionTypePrizeLock         TransactionType = "PRIZE_LOCK"
	TransactionTypePrizeDistribution TransactionType = "PRIZE_DISTRIBUTION"
)

func (t TransactionType) String() string {
	return string(t)
}

func (t TransactionType) IsValid() bool {
	return oneOf(t, TransactionTypePrizeLock, TransactionTypePrizeDistribution)
}
