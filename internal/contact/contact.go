// Package contact normalizes and checks customer email addresses and phone
// numbers.
package contact

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\d{10,11}$`)
	phoneStrip   = strings.NewReplacer(" ", "", ".", "", "-", "", "(", "", ")", "")
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizePhone strips separators and rewrites a +84 prefix to 0. The
// second result reports whether what remains is 10 or 11 digits.
func NormalizePhone(phone string) (string, bool) {
	p := phoneStrip.Replace(strings.TrimSpace(phone))
	if rest, ok := strings.CutPrefix(p, "+84"); ok {
		p = "0" + rest
	}
	return p, phonePattern.MatchString(p)
}
