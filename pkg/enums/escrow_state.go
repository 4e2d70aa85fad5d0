package enums

// EscrowState is the derived lifecycle position of an event's prize.
type EscrowState string

const (
	EscrowStateUnverified EscrowState = "unverified"
	EscrowStateVerified   EscrowState = "verified"
	EscrowStateSettled    EscrowState = "settled"
)

// String implements fmt.Stringer.
func (s EscrowState) String() string {
	return string(s)
}
