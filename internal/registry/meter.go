package registry

import "fmt"

// Meter prices the marginal storage footprint of a mutating call at a fixed
// price per byte.
type Meter struct {
	PricePerByte uint64
}

// Receipt is the settled outcome of metering one call.
type Receipt struct {
	StorageDelta int64  // bytes of net footprint growth (may be negative)
	Required     uint64 // deposit consumed to pay for growth
	Refund       uint64 // amount owed back to the caller
}

// Settle compares the footprint before and after the call's writes with the
// attached deposit.
//
// Growth must be covered by the deposit or the call fails with
// ErrInsufficientDeposit. Excess deposit is refunded. Net shrinkage refunds
// the full deposit plus the price of the released bytes.
func (m Meter) Settle(before, after int64, attached uint64) (Receipt, error) {
	r := Receipt{StorageDelta: after - before}

	if after > before {
		r.Required = uint64(after-before) * m.PricePerByte
		if attached < r.Required {
			return Receipt{}, fmt.Errorf("%w: required %d, attached %d",
				ErrInsufficientDeposit, r.Required, attached)
		}
		r.Refund = attached - r.Required
		return r, nil
	}

	r.Refund = attached + uint64(before-after)*m.PricePerByte
	return r, nil
}
