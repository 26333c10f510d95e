package ndb

import "fmt"

var durationUnits = map[string]int64{
	"ns": 1,
	"us": 1000,
	"ms": 1000000,
	"s":  1000000000,
	"m":  60 * 1000000000,
	"h":  3600 * 1000000000,
}

// ParseDurationString parses a sequence of "<number><unit>" terms (e.g.
// "1h30m", "250ms") into nanoseconds. It does not require surrounding
// quotes, since it reads a bare connection-string value, not a JSON
// string literal.
func ParseDurationString(s string) (int64, error) {
	orig := s
	var total int64
	for len(s) != 0 {
		n := 0
		dec := int64(0)
		for n < len(s) && '0' <= s[n] && s[n] <= '9' {
			dec = dec*10 + int64(s[n]-'0')
			n++
		}
		frac := false
		fracDiv := int64(1)
		if n < len(s) && s[n] == '.' {
			frac = true
			n++
			fracStart := n
			for n < len(s) && '0' <= s[n] && s[n] <= '9' {
				dec = dec*10 + int64(s[n]-'0')
				n++
			}
			fracDigits := n - fracStart
			for i := 0; i < fracDigits; i++ {
				fracDiv *= 10
			}
		}
		if n == 0 {
			return 0, fmt.Errorf("invalid duration %q: expected a number", orig)
		}
		u := n
		for u < len(s) && !('0' <= s[u] && s[u] <= '9') {
			u++
		}
		unit := s[n:u]
		mult, ok := durationUnits[unit]
		if !ok {
			return 0, fmt.Errorf("invalid duration %q: unknown unit %q", orig, unit)
		}
		if frac {
			total += dec * mult / fracDiv
		} else {
			total += dec * mult
		}
		s = s[u:]
	}
	return total, nil
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
