package store

import (
	"fmt"

	"github.com/sells-group/contact-enricher/internal/config"
	"github.com/sells-group/contact-enricher/internal/model"
)

// queries holds statements rendered once per store for its dialect.
type queries struct {
	insertRun      string
	selectRun      string
	insertActivity string
	endActivity    string
	listActivities string
	releaseLeases  string
	eligibility    map[model.Variant]string
}

func buildQueries(cfg config.TablesConfig, d dialect) (queries, tables, error) {
	t := tables{cfg: cfg}
	p := d.placeholder

	q := queries{
		insertRun: fmt.Sprintf(
			`INSERT INTO %s (name, version, description) VALUES (%s, %s, %s) ON CONFLICT (name, version) DO NOTHING`,
			t.q(cfg.Script), p(1), p(2), p(3)),
		selectRun: fmt.Sprintf(
			`SELECT script_id, name, version, description FROM %s WHERE name = %s AND version = %s`,
			t.q(cfg.Script), p(1), p(2)),
		insertActivity: fmt.Sprintf(
			`INSERT INTO %s (script_id, initiated_at) VALUES (%s, %s) RETURNING activity_id`,
			t.q(cfg.ScriptActivity), p(1), p(2)),
		endActivity: fmt.Sprintf(
			`UPDATE %s SET terminated_at = %s, error_code = %s, error_text = %s WHERE activity_id = %s AND terminated_at IS NULL`,
			t.q(cfg.ScriptActivity), p(1), p(2), p(3), p(4)),
		listActivities: fmt.Sprintf(
			`SELECT activity_id, script_id, initiated_at, terminated_at, error_code, error_text FROM %s WHERE script_id = %s ORDER BY initiated_at DESC, activity_id DESC LIMIT %s`,
			t.q(cfg.ScriptActivity), p(1), p(2)),
		releaseLeases: fmt.Sprintf(
			`DELETE FROM %s WHERE script_id = %s AND token = %s`,
			t.q(cfg.Lease), p(1), p(2)),
		eligibility: make(map[model.Variant]string, 4),
	}

	for _, v := range []model.Variant{model.VariantURL, model.VariantEmail, model.VariantPhone, model.VariantAddress} {
		sql, err := eligibilityQuery(t, v, d)
		if err != nil {
			return queries{}, t, err
		}
		q.eligibility[v] = sql
	}
	return q, t, nil
}
