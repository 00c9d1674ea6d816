package ledger

import "github.com/ethereum/go-ethereum/common/math"

// CheckedAdd adds two balances, rejecting with NumericalOverflow on wrap.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, overflow := math.SafeAdd(a, b)
	if overflow {
		return 0, Reject(CodeNumericalOverflow, "%d + %d overflows", a, b)
	}
	return sum, nil
}

// CheckedSub subtracts b from a, rejecting with InsufficientFunds when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, underflow := math.SafeSub(a, b)
	if underflow {
		return 0, Reject(CodeInsufficientFunds, "need %d, have %d", b, a)
	}
	return diff, nil
}
