package enums

import "slices"

// oneOf reports whether v is among values. Each enum lists its members at
// the call site so adding a constant and accepting it happen together.
func oneOf[T ~string](v T, values ...T) bool {
	return slices.Contains(values, v)
}
