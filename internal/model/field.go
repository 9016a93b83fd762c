package model

import (
	"net/url"
	"strings"
	"unicode"
)

// FieldType identifies which contact field a value belongs to.
type FieldType string

const (
	FieldEmail   FieldType = "email"
	FieldPhone   FieldType = "phone"
	FieldURL     FieldType = "url"
	FieldAddress FieldType = "address"
)

// FieldTypes lists every supported contact field.
var FieldTypes = []FieldType{FieldEmail, FieldPhone, FieldURL, FieldAddress}

// Valid reports whether f is a known field type.
func (f FieldType) Valid() bool {
	switch f {
	case FieldEmail, FieldPhone, FieldURL, FieldAddress:
		return true
	default:
		return false
	}
}

// Normalize returns the comparison key for a raw value of this field type.
// Two values with the same key are considered duplicates.
func (f FieldType) Normalize(v string) string {
	v = strings.TrimSpace(v)
	switch f {
	case FieldEmail:
		v = strings.TrimPrefix(strings.ToLower(v), "mailto:")
		return strings.TrimSpace(v)
	case FieldPhone:
		digits := make([]rune, 0, len(v))
		for _, r := range v {
			if unicode.IsDigit(r) {
				digits = append(digits, r)
			}
		}
		// Drop the NANP country code so "+1 (555) 010-2000" matches "555-010-2000".
		if len(digits) == 11 && digits[0] == '1' {
			digits = digits[1:]
		}
		return string(digits)
	case FieldURL:
		return URLHost(v)
	case FieldAddress:
		return strings.Join(strings.Fields(strings.ToLower(v)), " ")
	default:
		return v
	}
}

// URLHost returns the lowercase host of raw without a leading "www.".
// Values without a scheme are treated as bare hosts.
func URLHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// EmailDomain returns the lowercase part after the last '@', or "".
func EmailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[i+1:]))
}
