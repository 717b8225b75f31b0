package model

import (
	"strings"

	"github.com/robertspest/reorderdesk/internal/apperror"
)

// NormalizeExtension trims keys and values and drops entries whose value is
// blank. A blank key, or two keys that trim to the same name, is rejected.
// Returns nil when nothing is left.
func NormalizeExtension(ext map[string]string) (map[string]string, error) {
	var out map[string]string
	seen := make(map[string]bool, len(ext))
	for k, v := range ext {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, apperror.Validation("extension field name is blank")
		}
		if seen[key] {
			return nil, apperror.Validation("extension field %q is given twice", key)
		}
		seen[key] = true
		val := strings.TrimSpace(v)
		if val == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(ext))
		}
		out[key] = val
	}
	return out, nil
}

// validateExtension accepts only what NormalizeExtension produces.
func validateExtension(owner string, ext map[string]string) error {
	for k, v := range ext {
		if k == "" || k != strings.TrimSpace(k) {
			return apperror.Validation("%s: extension field name %q must be non-blank and trimmed", owner, k)
		}
		if v == "" || v != strings.TrimSpace(v) {
			return apperror.Validation("%s: extension field %q must have a non-blank trimmed value", owner, k)
		}
	}
	return nil
}
