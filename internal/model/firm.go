package model

import "time"

// Firm is a business registry record together with the contact data already
// on file for it. Firms are owned by the registry and only read here.
type Firm struct {
	ID            int64     `json:"firm_id"`
	Active        bool      `json:"active"`
	OutOfBusiness *string   `json:"out_of_business,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	Names     []string `json:"names,omitempty"`
	Emails    []string `json:"emails,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	URLs      []string `json:"urls,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// Values returns the existing values of the given field.
func (f *Firm) Values(field FieldType) []string {
	switch field {
	case FieldEmail:
		return f.Emails
	case FieldPhone:
		return f.Phones
	case FieldURL:
		return f.URLs
	case FieldAddress:
		return f.Addresses
	default:
		return nil
	}
}

// Name returns the first usable company name, or "".
func (f *Firm) Name() string {
	for _, n := range f.Names {
		if n != "" {
			return n
		}
	}
	return ""
}

// URL returns the first URL on file, or "".
func (f *Firm) URL() string {
	for _, u := range f.URLs {
		if u != "" {
			return u
		}
	}
	return ""
}
