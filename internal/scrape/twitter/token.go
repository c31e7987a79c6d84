package twitter

import (
	"math"
	"strconv"
	"strings"
)

const radixDigits = "0123456789abcdefghijklmnopqrstuvwxyz"

// Token derives the syndication token for a post id: (id / 1e15 * pi) written
// in base 36 with zeros and the radix point removed.
func Token(id string) string {
	n, err := strconv.ParseFloat(id, 64)
	if err != nil {
		return ""
	}

	s := formatRadix36(n / 1e15 * math.Pi)
	s = strings.ReplaceAll(s, "0", "")
	return strings.ReplaceAll(s, ".", "")
}

// formatRadix36 prints a non-negative float the way a JS engine's
// Number.prototype.toString(36) does: fraction digits stop once the value is
// uniquely identified.
func formatRadix36(value float64) string {
	const radix = 36

	integer := math.Floor(value)
	fraction := value - integer

	delta := 0.5 * (math.Nextafter(value, math.Inf(1)) - value)
	delta = math.Max(math.Nextafter(0, 1), delta)

	var frac []int
	if fraction >= delta {
		for {
			fraction *= radix
			delta *= radix
			digit := int(fraction)
			frac = append(frac, digit)
			fraction -= float64(digit)

			if fraction > 0.5 || (fraction == 0.5 && digit&1 == 1) {
				if fraction+delta > 1 {
					// round up, carrying into the integer part if needed
					for {
						if len(frac) == 0 {
							integer++
							break
						}
						last := frac[len(frac)-1]
						frac = frac[:len(frac)-1]
						if last+1 < radix {
							frac = append(frac, last+1)
							break
						}
					}
					break
				}
			}
			if fraction < delta {
				break
			}
		}
	}

	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(integer), radix))
	if len(frac) > 0 {
		b.WriteByte('.')
		for _, d := range frac {
			b.WriteByte(radixDigits[d])
		}
	}

	return b.String()
}
