package session

import "strings"

const (
	orderIDDigits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// lowest four digit base-36 value starting with a letter ("A000")
	minOrderCounter = 10 * 36 * 36 * 36
	// "ZZZZ"
	maxOrderCounter = 36*36*36*36 - 1
)

// NextOrderID advances counter and renders the new value as a four
// character order id. Values outside the letter-leading range, including a
// fresh counter and overflow past "ZZZZ", restart at "A000".
func NextOrderID(counter int) (id string, next int) {
	next = counter + 1
	if next < minOrderCounter || next > maxOrderCounter {
		next = minOrderCounter
	}
	return FormatOrderID(next), next
}

// FormatOrderID renders v as four base-36 digits, most significant first.
func FormatOrderID(v int) string {
	var sb strings.Builder
	sb.Grow(4)
	div := 36 * 36 * 36
	for i := 0; i < 4; i++ {
		sb.WriteByte(orderIDDigits[(v/div)%36])
		div /= 36
	}
	return sb.String()
}
