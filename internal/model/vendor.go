package model

import (
	"net/mail"
	"strconv"
	"strings"

	"github.com/robertspest/reorderdesk/internal/apperror"

	"github.com/google/uuid"
)

// Vendor represents a supplier that receives purchase orders
type Vendor struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	CCEmails  []string          `json:"cc_emails,omitempty"` // order is significant
	Notes     string            `json:"notes"`
	Extension map[string]string `json:"extension,omitempty"`
}

func (v Vendor) Validate() error {
	if v.ID == uuid.Nil {
		return apperror.Validation("vendor id is required")
	}
	if strings.TrimSpace(v.Name) == "" {
		return apperror.Validation("vendor name is required")
	}
	if v.Email != "" {
		if _, err := mail.ParseAddress(v.Email); err != nil {
			return apperror.Validation("vendor %q: invalid email %q", v.Name, v.Email)
		}
	}
	for _, cc := range v.CCEmails {
		if _, err := mail.ParseAddress(cc); err != nil {
			return apperror.Validation("vendor %q: invalid cc email %q", v.Name, cc)
		}
	}
	return validateExtension("vendor "+strconv.Quote(v.Name), v.Extension)
}

// SplitEmails parses a comma or semicolon separated address list, keeping
// the original order and dropping blanks. Returns nil for an empty list.
func SplitEmails(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func JoinEmails(emails []string) string {
	return strings.Join(emails, ", ")
}
