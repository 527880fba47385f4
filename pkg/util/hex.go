package util

// IsHex reports whether s consists solely of hexadecimal characters.
func IsHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsHexN reports whether s is exactly n hexadecimal characters.
func IsHexN(s string, n int) bool {
	return len(s) == n && IsHex(s)
}
