package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// FormatUserError converts internal errors into actionable messages for the
// terminal. Wrapped causes are preserved; only well-known failure modes get
// a friendlier rendering.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	switch {
	case errors.Is(err, os.ErrPermission) || strings.Contains(msg, "operation not permitted"):
		return fmt.Sprintf("%s\nOpening a BLE adapter usually requires elevated privileges (try sudo or CAP_NET_ADMIN).", msg)
	case strings.Contains(msg, "adapter is not powered") || strings.Contains(msg, "no such device"):
		return fmt.Sprintf("%s\nCheck that a Bluetooth adapter is present and powered on.", msg)
	default:
		return msg
	}
}
