package importer

import (
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/model"
)

// Column keys understood in a firm export header.
const (
	colID            = "firm_id"
	colCreated       = "created_on"
	colActive        = "active"
	colOutOfBusiness = "out_of_business"
	colName          = "name"
	colEmail         = "email"
	colPhone         = "phone"
	colURL           = "url"
	colAddress       = "address"
)

var headerAliases = map[string]string{
	"firm_id":              colID,
	"id":                   colID,
	"created_on":           colCreated,
	"createdon":            colCreated,
	"created_at":           colCreated,
	"active":               colActive,
	"out_of_business":      colOutOfBusiness,
	"outofbusiness_status": colOutOfBusiness,
	"name":                 colName,
	"company_name":         colName,
	"email":                colEmail,
	"emails":               colEmail,
	"phone":                colPhone,
	"phones":               colPhone,
	"url":                  colURL,
	"urls":                 colURL,
	"website":              colURL,
	"address":              colAddress,
	"addresses":            colAddress,
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006",
}

// RowError reports a data row that could not be turned into a firm.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return "row " + strconv.Itoa(e.Row) + ": " + e.Err.Error() }

func (e *RowError) Unwrap() error { return e.Err }

// Firms reads a header row from rows and yields one firm per data row.
// A bad data row yields a *RowError and iteration continues; a read error
// or an unusable header ends it. Multi-valued cells separate values with
// ';' or '|'.
func Firms(rows iter.Seq2[[]string, error], now time.Time) iter.Seq2[model.Firm, error] {
	return func(yield func(model.Firm, error) bool) {
		var cols map[string]int
		n := 0
		for row, err := range rows {
			if err != nil {
				yield(model.Firm{}, err)
				return
			}
			n++
			if cols == nil {
				cols, err = mapHeader(row)
				if err != nil {
					yield(model.Firm{}, err)
					return
				}
				continue
			}
			if blank(row) {
				continue
			}
			f, err := parseFirm(row, cols, now)
			if err != nil {
				err = &RowError{Row: n, Err: err}
			}
			if !yield(f, err) {
				return
			}
		}
	}
}

func mapHeader(row []string) (map[string]int, error) {
	cols := make(map[string]int)
	for i, h := range row {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if c, ok := headerAliases[key]; ok {
			if _, dup := cols[c]; !dup {
				cols[c] = i
			}
		}
	}
	if _, ok := cols[colID]; !ok {
		return nil, eris.New("importer: header has no firm_id column")
	}
	return cols, nil
}

func parseFirm(row []string, cols map[string]int, now time.Time) (model.Firm, error) {
	cell := func(c string) string {
		i, ok := cols[c]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	id, err := strconv.ParseInt(cell(colID), 10, 64)
	if err != nil || id <= 0 {
		return model.Firm{}, eris.Errorf("invalid firm_id %q", cell(colID))
	}
	f := model.Firm{ID: id, Active: true, CreatedAt: now}

	if v := cell(colCreated); v != "" {
		if f.CreatedAt, err = parseDate(v); err != nil {
			return model.Firm{}, err
		}
	}
	if v := cell(colActive); v != "" {
		if f.Active, err = parseBool(v); err != nil {
			return model.Firm{}, eris.Errorf("invalid active value %q", v)
		}
	}
	if v := cell(colOutOfBusiness); v != "" {
		f.OutOfBusiness = &v
	}
	f.Names = splitValues(cell(colName))
	f.Emails = splitValues(cell(colEmail))
	f.Phones = splitValues(cell(colPhone))
	f.URLs = splitValues(cell(colURL))
	f.Addresses = splitValues(cell(colAddress))
	return f, nil
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("invalid created_on %q", v)
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return strconv.ParseBool(v)
}

func splitValues(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == '|' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
