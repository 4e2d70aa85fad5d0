package enums

// TransactionStatus maps to transaction_status_enum. Escrow entries are
// written already settled, so CONFIRMED is the only state.
type TransactionStatus string

const TransactionStatusConfirmed TransactionStatus = "CONFIRMED"

func (s TransactionStatus) IsValid() bool {
	return oneOf(s, TransactionStatusConfirmed)
}
