package speedtest

import (
	"fmt"
	"strings"
)

// InvalidInputError is returned before any probe is sent. An empty Invalid
// slice means the server list itself was empty.
type InvalidInputError struct {
	Invalid []string
}

func (e *InvalidInputError) Error() string {
	if len(e.Invalid) == 0 {
		return "dns server list is empty"
	}
	return fmt.Sprintf("invalid ip address: %s", strings.Join(e.Invalid, ", "))
}
