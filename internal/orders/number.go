package orders

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const NumberPrefix = "DSF"

var numberPattern = regexp.MustCompile(`^DSF\d{2}\d{2}\d{5,}$`)

// FormatNumber renders DSF<YY><MM><seq>, with seq taken from the order counter.
func FormatNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("%s%02d%02d%05d", NumberPrefix, at.Year()%100, int(at.Month()), seq)
}

// IsOrderNumber reports whether ref looks like an order number rather than an id.
func IsOrderNumber(ref string) bool {
	return strings.HasPrefix(strings.ToUpper(ref), NumberPrefix)
}

func ValidNumber(n string) bool { return numberPattern.MatchString(n) }
