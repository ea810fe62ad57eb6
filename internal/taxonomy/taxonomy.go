// Package taxonomy validates indicator values against the grammar of their type.
package taxonomy

import (
	"fmt"
	"net/netip"
	"strings"
	"unicode/utf8"

	"threatreg/internal/domain"
)

const (
	maxFilenameLength = 255
	portSeparator     = "|"
)

var kinds = []domain.IndicatorKind{
	domain.KindAddressSrc,
	domain.KindAddressDst,
	domain.KindAddressPortSrc,
	domain.KindAddressPortDst,
	domain.KindFilename,
	domain.KindHashMD5,
	domain.KindHashSHA1,
	domain.KindHashSHA256,
	domain.KindDomainName,
}

// Kinds returns every supported indicator type.
func Kinds() []domain.IndicatorKind {
	return append([]domain.IndicatorKind(nil), kinds...)
}

// ParseKind resolves a raw type name, failing with domain.ErrUnsupportedKind.
func ParseKind(raw string) (domain.IndicatorKind, error) {
	kind := domain.IndicatorKind(strings.TrimSpace(raw))
	for _, k := range kinds {
		if k == kind {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, raw)
}

// Validate checks value against the grammar for kind.
func Validate(kind domain.IndicatorKind, value string) error {
	if n := utf8.RuneCountInString(value); n > domain.MaxValueLength {
		return domain.Invalid("value", "must be at most %d characters, got %d", domain.MaxValueLength, n)
	}

	switch kind {
	case domain.KindAddressSrc, domain.KindAddressDst:
		return validateAddress(value)
	case domain.KindAddressPortSrc, domain.KindAddressPortDst:
		return validateAddressPort(value)
	case domain.KindDomainName:
		return validateDomain(value)
	case domain.KindFilename:
		return validateFilename(value)
	case domain.KindHashMD5:
		return validateHex(value, 32)
	case domain.KindHashSHA1:
		return validateHex(value, 40)
	case domain.KindHashSHA256:
		return validateHex(value, 64)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, kind)
	}
}

// ValidateDescription enforces the description length limit.
func ValidateDescription(description *string) error {
	if description == nil {
		return nil
	}
	if n := utf8.RuneCountInString(*description); n > domain.MaxDescriptionLength {
		return domain.Invalid("description", "must be at most %d characters, got %d", domain.MaxDescriptionLength, n)
	}
	return nil
}

// ValidateCompany requires a non-empty owner name that fits the company column.
func ValidateCompany(company string) error {
	if company == "" {
		return domain.Invalid("company", "cannot be empty")
	}
	if n := utf8.RuneCountInString(company); n > domain.MaxCompanyLength {
		return domain.Invalid("company", "must be at most %d characters, got %d", domain.MaxCompanyLength, n)
	}
	return nil
}

func validateAddress(value string) error {
	if _, err := netip.ParseAddr(value); err != nil {
		return domain.Invalid("value", "%q is not an IPv4 or IPv6 address", value)
	}
	return nil
}

func validateAddressPort(value string) error {
	if strings.Count(value, portSeparator) != 1 {
		return domain.Invalid("value", "%q must be ADDRESS|PORT", value)
	}

	addr, port, _ := strings.Cut(value, portSeparator)
	if _, err := netip.ParseAddr(addr); err != nil {
		return domain.Invalid("value", "%q is not an IPv4 or IPv6 address", addr)
	}
	if port == "" || !allDigits(port) {
		return domain.Invalid("value", "port %q must be decimal digits", port)
	}
	return nil
}

func validateDomain(value string) error {
	if !strings.Contains(value, ".") {
		return domain.Invalid("value", "%q is not a domain name", value)
	}
	return nil
}

func validateFilename(value string) error {
	if value == "" {
		return domain.Invalid("value", "filename cannot be empty")
	}
	if n := utf8.RuneCountInString(value); n > maxFilenameLength {
		return domain.Invalid("value", "filename must be at most %d characters, got %d", maxFilenameLength, n)
	}
	return nil
}

func validateHex(value string, length int) error {
	if len(value) != length {
		return domain.Invalid("value", "hash must be %d hex characters, got %d", length, len(value))
	}
	for i := 0; i < len(value); i++ {
		if !isHex(value[i]) {
			return domain.Invalid("value", "hash contains non-hex character %q", value[i])
		}
	}
	return nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		return true
	}
	return false
}
