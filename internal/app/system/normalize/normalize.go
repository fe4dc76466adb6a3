// Package normalize canonicalizes identity values before they are stored or compared.
package normalize

import (
	"strings"

	"github.com/dalemusser/workshophub/internal/domain/models"
)

// invitationFiller pads short invitation codes to the stored length.
const invitationFiller = "x"

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace and collapses inner runs of spaces.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// EventCode trims an event code. Codes are case-sensitive.
func EventCode(s string) string {
	return strings.TrimSpace(s)
}

// InvitationCode trims code and pads it to models.InvitationCodeLength.
// Longer codes are returned unchanged and will simply not match.
func InvitationCode(code string) string {
	code = strings.TrimSpace(code)
	if n := models.InvitationCodeLength - len(code); n > 0 {
		code += strings.Repeat(invitationFiller, n)
	}
	return code
}
