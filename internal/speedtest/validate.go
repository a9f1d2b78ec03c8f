package speedtest

import (
	"strconv"
	"strings"
)

// IsValidIP reports whether s is a dotted-quad IPv4 address with every octet
// in canonical decimal form, so "1.1.1.1" passes and "01.1.1.1" does not.
func IsValidIP(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}

	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
		if strconv.Itoa(n) != part {
			return false
		}
	}

	return true
}

// Validate fails with *InvalidInputError when servers is empty or holds any
// string IsValidIP rejects.
func Validate(servers []string) error {
	if len(servers) == 0 {
		return &InvalidInputError{}
	}

	var invalid []string
	for _, s := range servers {
		if !IsValidIP(s) {
			invalid = append(invalid, s)
		}
	}
	if len(invalid) > 0 {
		return &InvalidInputError{Invalid: invalid}
	}

	return nil
}
