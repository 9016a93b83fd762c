package model

// Status ids written with generated values.
const (
	StatusValid      = 1 // confirmed live (URL answered 200)
	StatusUnverified = 2 // scraped, not independently checked
	StatusInvalid    = 3
)

// GeneratedValue is one accepted enrichment candidate.
type GeneratedValue struct {
	FirmID     int64     `json:"firm_id"`
	Field      FieldType `json:"field_type"`
	Value      string    `json:"value"`
	Domain     string    `json:"domain,omitempty"`
	TypeID     int       `json:"type_id"`
	StatusID   int       `json:"status_id"`
	Confidence float64   `json:"confidence"`
	Note       string    `json:"note,omitempty"`
	ActivityID int64     `json:"activity_id"`
}
