/*
2019 © Postgres.ai
*/

// Package text provides helpers for user-supplied strings.
package text

import (
	"strings"
)

// CutText cuts length of a text if it exceeds specified size. Specifies was text cut or not.
func CutText(text string, size int, separator string) (string, bool) {
	if len(text) > size {
		size -= len(separator)
		res := text[0:size] + separator

		return res, true
	}

	return text, false
}

// MaskEmail hides the local part of an address keeping up to two leading characters.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}

	local, domain := []rune(email[:at]), email[at:]

	visible := 2
	if len(local) <= visible {
		visible = 1
	}

	return string(local[:visible]) + "***" + domain
}
