package entity

import (
	"fmt"
	"regexp"
)

// maxUnitNumber caps the accepted unit index. Long-running serials top out in
// the low thousands; anything past this is a malformed or hostile request.
const maxUnitNumber = 100000

// maxSlugLength bounds slug input before it reaches the catalog lookup.
const maxSlugLength = 128

// slugPattern matches catalog unit slugs: lowercase alphanumerics separated
// by single hyphens, e.g. "chapter-125" or "vol-3-extra".
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidateUnitNumber validates a requested content unit number.
// Unit numbers are 1-based positive integers bounded by maxUnitNumber.
func ValidateUnitNumber(n int) error {
	if n <= 0 {
		return &ValidationError{Field: "unit", Message: "must be positive"}
	}
	if n > maxUnitNumber {
		return &ValidationError{
			Field:   "unit",
			Message: fmt.Sprintf("must not exceed %d", maxUnitNumber),
		}
	}
	return nil
}

// ValidateUnitSlug validates the format of a catalog unit slug before it is
// used for a lookup. Format-only: existence is the catalog's concern.
func ValidateUnitSlug(slug string) error {
	if slug == "" {
		return &ValidationError{Field: "unit_slug", Message: "is required"}
	}
	if len(slug) > maxSlugLength {
		return &ValidationError{
			Field:   "unit_slug",
			Message: fmt.Sprintf("must not exceed %d characters", maxSlugLength),
		}
	}
	if !slugPattern.MatchString(slug) {
		return &ValidationError{Field: "unit_slug", Message: "has invalid format"}
	}
	return nil
}
