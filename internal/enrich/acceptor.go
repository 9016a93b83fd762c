package enrich

import (
	"iter"

	"github.com/sells-group/contact-enricher/internal/model"
)

// Acceptor applies dedupe-and-cap to candidates within one batch. A
// candidate is skipped when the firm already has it on file or when any
// firm in the batch already accepted it.
type Acceptor struct {
	field model.FieldType
	limit int
	batch map[string]struct{}
}

// NewAcceptor returns an Acceptor keeping at most limit values per firm.
func NewAcceptor(field model.FieldType, limit int) *Acceptor {
	return &Acceptor{
		field: field,
		limit: limit,
		batch: make(map[string]struct{}),
	}
}

// Accept pulls candidates until limit are accepted or the sequence ends.
// When the sequence yields an error nothing is accepted for the firm and
// the error is returned.
func (a *Acceptor) Accept(firm *model.Firm, candidates iter.Seq2[string, error]) ([]string, error) {
	existing := make(map[string]struct{})
	for _, v := range firm.Values(a.field) {
		if k := a.field.Normalize(v); k != "" {
			existing[k] = struct{}{}
		}
	}

	var accepted []string
	keys := make(map[string]struct{})
	for v, err := range candidates {
		if err != nil {
			return nil, err
		}
		k := a.field.Normalize(v)
		if k == "" {
			continue
		}
		if _, ok := existing[k]; ok {
			continue
		}
		if _, ok := a.batch[k]; ok {
			continue
		}
		if _, ok := keys[k]; ok {
			continue
		}
		keys[k] = struct{}{}
		accepted = append(accepted, v)
		if len(accepted) >= a.limit {
			break
		}
	}

	for k := range keys {
		a.batch[k] = struct{}{}
	}
	return accepted, nil
}
