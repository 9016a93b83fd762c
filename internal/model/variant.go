package model

import "github.com/rotisserie/eris"

// Variant selects which missing contact field a pass tries to fill.
type Variant string

const (
	// VariantURL targets firms without any URL.
	VariantURL Variant = "url"
	// VariantEmail targets firms without an email that do have a URL.
	VariantEmail Variant = "email"
	// VariantPhone targets firms without a phone that do have a URL.
	VariantPhone Variant = "phone"
	// VariantAddress targets firms without an address that do have a URL.
	VariantAddress Variant = "address"
)

// ParseVariant converts s into a Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	switch v {
	case VariantURL, VariantEmail, VariantPhone, VariantAddress:
		return v, nil
	default:
		return "", eris.Errorf("model: unknown variant %q", s)
	}
}

// Target is the field the variant fills and the one whose absence makes a
// firm eligible.
func (v Variant) Target() FieldType {
	return FieldType(v)
}

// RequiresURL reports whether eligible firms must already have a URL.
func (v Variant) RequiresURL() bool {
	return v != VariantURL
}
