package common

// Coalesce picks the first argument that is not the zero value of T. Names and node paths use it to fall
// back to generated defaults.
//
// Parameters:
//   - candidates: the values in order of preference
//
// Returns:
//   - T: the first non-zero candidate, or the zero value when there is none
func Coalesce[T comparable](candidates ...T) T {
	var zero T
	for i := range candidates {
		if candidates[i] != zero {
			return candidates[i]
		}
	}
	return zero
}
