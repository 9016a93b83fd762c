package store

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/config"
	"github.com/sells-group/contact-enricher/internal/db"
	"github.com/sells-group/contact-enricher/internal/model"
)

// dialect captures the SQL differences between the two backends.
type dialect struct {
	name        string
	placeholder func(n int) string
	serial      string
	timestamp   string
	uuid        string
}

var (
	postgresDialect = dialect{
		name:        "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		serial:      "BIGSERIAL PRIMARY KEY",
		timestamp:   "TIMESTAMPTZ",
		uuid:        "UUID",
	}
	sqliteDialect = dialect{
		name:        "sqlite",
		placeholder: func(n int) string { return fmt.Sprintf("?%d", n) },
		serial:      "INTEGER PRIMARY KEY AUTOINCREMENT",
		timestamp:   "DATETIME",
		uuid:        "TEXT",
	}
)

// tables resolves configured table names to quoted SQL identifiers.
type tables struct {
	cfg config.TablesConfig
}

func (t tables) q(name string) string { return db.QuoteTable(name) }

// source returns the registry table and value column holding field.
func (t tables) source(field model.FieldType) (table, column string, err error) {
	switch field {
	case model.FieldEmail:
		return t.cfg.FirmEmail, "email", nil
	case model.FieldPhone:
		return t.cfg.FirmPhone, "phone", nil
	case model.FieldURL:
		return t.cfg.FirmURL, "url", nil
	case model.FieldAddress:
		return t.cfg.FirmAddress, t.cfg.AddressColumn, nil
	}
	return "", "", eris.Errorf("store: unknown field type %q", field)
}

// generated returns the output table for field.
func (t tables) generated(field model.FieldType) (string, error) {
	switch field {
	case model.FieldEmail:
		return t.cfg.GeneratedEmail, nil
	case model.FieldPhone:
		return t.cfg.GeneratedPhone, nil
	case model.FieldURL:
		return t.cfg.GeneratedURL, nil
	case model.FieldAddress:
		return t.cfg.GeneratedAddress, nil
	}
	return "", eris.Errorf("store: unknown field type %q", field)
}

// generatedColumns lists the output columns for field, in row order.
func generatedColumns(field model.FieldType) []string {
	f := string(field)
	return []string{"firm_id", f, "domain", f + "_type_id", f + "_status_id", "confidence_level", "note", "activity_id"}
}

func generatedRow(v model.GeneratedValue) []any {
	var domain any
	if v.Domain != "" {
		domain = v.Domain
	}
	return []any{v.FirmID, v.Value, domain, v.TypeID, v.StatusID, v.Confidence, v.Note, v.ActivityID}
}

var processedColumns = []string{"firm_id", "script_id", "activity_id"}

var firmColumns = []string{"firm_id", "active", "outofbusiness_status", "createdon"}

// eligibilityQuery renders the batch selection statement. A firm is
// eligible when it is active, still in business, older than the cutoff,
// has no processed mark and no live lease for the run, lacks the variant's
// target field and, for non-url variants, has at least one URL.
//
// Parameters: 1 run id, 2 created-before cutoff, 3 lease clock, 4 limit.
func eligibilityQuery(t tables, v model.Variant, d dialect) (string, error) {
	targetTable, _, err := t.source(v.Target())
	if err != nil {
		return "", err
	}
	p := d.placeholder

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT f.firm_id FROM %s f\n", t.q(t.cfg.Firm))
	b.WriteString("WHERE f.active = TRUE\n")
	b.WriteString("  AND f.outofbusiness_status IS NULL\n")
	fmt.Fprintf(&b, "  AND f.createdon < %s\n", p(2))
	fmt.Fprintf(&b, "  AND NOT EXISTS (SELECT 1 FROM %s pm WHERE pm.firm_id = f.firm_id AND pm.script_id = %s)\n",
		t.q(t.cfg.Processed), p(1))
	fmt.Fprintf(&b, "  AND NOT EXISTS (SELECT 1 FROM %s fl WHERE fl.firm_id = f.firm_id AND fl.script_id = %s AND fl.expires_at > %s)\n",
		t.q(t.cfg.Lease), p(1), p(3))
	fmt.Fprintf(&b, "  AND NOT EXISTS (SELECT 1 FROM %s tv WHERE tv.firm_id = f.firm_id)\n", t.q(targetTable))
	if v.RequiresURL() {
		fmt.Fprintf(&b, "  AND EXISTS (SELECT 1 FROM %s fu WHERE fu.firm_id = f.firm_id)\n", t.q(t.cfg.FirmURL))
	}
	fmt.Fprintf(&b, "ORDER BY f.createdon DESC, f.firm_id DESC\nLIMIT %s", p(4))
	return b.String(), nil
}

// contactSources lists the registry tables loaded into a Firm.
func contactSources(t tables) []contactSource {
	return []contactSource{
		{t.cfg.FirmName, "company_name",
			func(f *model.Firm, v string) { f.Names = append(f.Names, v) },
			func(f *model.Firm) []string { return f.Names }},
		{t.cfg.FirmEmail, "email",
			func(f *model.Firm, v string) { f.Emails = append(f.Emails, v) },
			func(f *model.Firm) []string { return f.Emails }},
		{t.cfg.FirmPhone, "phone",
			func(f *model.Firm, v string) { f.Phones = append(f.Phones, v) },
			func(f *model.Firm) []string { return f.Phones }},
		{t.cfg.FirmURL, "url",
			func(f *model.Firm, v string) { f.URLs = append(f.URLs, v) },
			func(f *model.Firm) []string { return f.URLs }},
		{t.cfg.FirmAddress, t.cfg.AddressColumn,
			func(f *model.Firm, v string) { f.Addresses = append(f.Addresses, v) },
			func(f *model.Firm) []string { return f.Addresses }},
	}
}

type contactSource struct {
	table  string
	column string
	add    func(f *model.Firm, v string)
	get    func(f *model.Firm) []string
}

// orderFirms returns the loaded firms in the order of ids, skipping ids
// that did not load.
func orderFirms(ids []int64, byID map[int64]*model.Firm) []model.Firm {
	out := make([]model.Firm, 0, len(byID))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, *f)
		}
	}
	return out
}

// bookkeepingDDL renders the tables this tool owns.
func bookkeepingDDL(t tables, d dialect) string {
	idx := func(table, suffix string) string {
		return db.QuoteColumns([]string{strings.ReplaceAll(table, ".", "_") + "_" + suffix})
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %[1]s (
	script_id   %[3]s,
	name        TEXT NOT NULL,
	version     TEXT NOT NULL,
	description TEXT,
	created_at  %[4]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (name, version)
);

CREATE TABLE IF NOT EXISTS %[2]s (
	activity_id   %[3]s,
	script_id     BIGINT NOT NULL REFERENCES %[1]s (script_id),
	initiated_at  %[4]s NOT NULL,
	terminated_at %[4]s,
	error_code    TEXT,
	error_text    TEXT
);
`, t.q(t.cfg.Script), t.q(t.cfg.ScriptActivity), d.serial, d.timestamp)

	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %[1]s (
	firm_id      BIGINT NOT NULL,
	script_id    BIGINT NOT NULL,
	activity_id  BIGINT NOT NULL,
	processed_at %[2]s NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s (script_id, firm_id);

CREATE TABLE IF NOT EXISTS %[4]s (
	firm_id     BIGINT NOT NULL,
	script_id   BIGINT NOT NULL,
	activity_id BIGINT NOT NULL,
	token       %[5]s NOT NULL,
	expires_at  %[2]s NOT NULL,
	PRIMARY KEY (script_id, firm_id)
);
CREATE INDEX IF NOT EXISTS %[6]s ON %[4]s (token);
`, t.q(t.cfg.Processed), d.timestamp, idx(t.cfg.Processed, "script_firm_idx"),
		t.q(t.cfg.Lease), d.uuid, idx(t.cfg.Lease, "token_idx"))

	for _, field := range model.FieldTypes {
		table, _ := t.generated(field)
		f := string(field)
		fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %[1]s (
	id               %[2]s,
	firm_id          BIGINT NOT NULL,
	%[3]s            TEXT NOT NULL,
	domain           TEXT,
	%[3]s_type_id    INTEGER,
	%[3]s_status_id  INTEGER,
	confidence_level DOUBLE PRECISION,
	note             TEXT,
	activity_id      BIGINT NOT NULL,
	created_at       %[4]s NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS %[5]s ON %[1]s (firm_id);
`, t.q(table), d.serial, f, d.timestamp, idx(table, "firm_idx"))
	}
	return b.String()
}
