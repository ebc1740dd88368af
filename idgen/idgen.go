// Package idgen mints the opaque string identifiers used across the
// gateway's entities: a fixed prefix, a millisecond epoch, and an
// 11-digit random suffix drawn from a UUID's entropy.
package idgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	PrefixOrder  = "o_"
	PrefixCharge = "ch_"
	PrefixRefund = "re_"
	PrefixEvent  = "evt_"
)

// New mints an id of the form "<prefix><ms-epoch><11-digit random>".
func New(prefix string) string {
	return prefix + New11DigitSuffix()
}

// New11DigitSuffix returns "<ms-epoch><11-digit random>", the part of the
// id after the prefix. Used directly when deriving a merchant order number
// from an id (e.g. refund_merchant_order_no = refund_id[len("re_"):]).
func New11DigitSuffix() string {
	ms := time.Now().UnixMilli()
	return fmt.Sprintf("%d%s", ms, randomDigits(11))
}

func randomDigits(n int) string {
	id := uuid.New()
	var b strings.Builder
	for _, c := range id.String() {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
			if b.Len() == n {
				break
			}
		}
	}
	for b.Len() < n {
		b.WriteByte('0')
	}
	return b.String()
}
