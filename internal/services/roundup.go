package services

// centsPerUnit is one whole currency unit.
const centsPerUnit = 100

// ComputeRoundUp returns the supplement that lifts a debit amount (in cents)
// to the next whole currency unit. Whole amounts round up to nothing. Pure
// function; the caller decides whether and where the supplement is applied.
func ComputeRoundUp(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	remainder := amount % centsPerUnit
	if remainder == 0 {
		return 0
	}
	return centsPerUnit - remainder
}
