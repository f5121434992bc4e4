// Package tokenid derives token identifiers and content hashes for the
// registry's two issuance workflows.
package tokenid

import (
	"crypto/sha256"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// counterWidth is the minimum decimal width of the counter component inside
// an identity token id. Counters shorter than this are zero-padded on the
// left; longer counters are used as-is.
const counterWidth = 3

// Sequential renders a counter value as a property-unit token id.
func Sequential(counter uint64) string {
	return strconv.FormatUint(counter, 10)
}

// Identity derives a KYC identity token id from the issuance timestamp
// (Unix seconds) and the counter value.
//
// Formula: decimal(issuedAt) ++ zeroFill ++ decimal(counter), where zeroFill
// pads the counter component to at least counterWidth digits.
func Identity(issuedAt int64, counter uint64) string {
	counterStr := strconv.FormatUint(counter, 10)
	zeroFill := ""
	if pad := counterWidth - len(counterStr); pad > 0 {
		zeroFill = strings.Repeat("0", pad)
	}
	return strconv.FormatInt(issuedAt, 10) + zeroFill + counterStr
}

// URLHash computes the base58-encoded SHA-256 digest of the URL bytes. The
// registry hashes the URL itself, not the referenced content.
func URLHash(url string) string {
	digest := sha256.Sum256([]byte(url))
	return base58.Encode(digest[:])
}
