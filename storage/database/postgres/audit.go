package pgrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/unapuno/tesis/core"
	"github.com/unapuno/tesis/core/audit"
)

type auditRow struct {
	ID        string         `db:"id"`
	UserID    sql.NullString `db:"user_id"`
	Kind      string         `db:"kind"`
	Details   sql.NullString `db:"details"`
	IPAddress sql.NullString `db:"ip_address"`
	CreatedAt sql.NullTime   `db:"created_at"`
}

func (r auditRow) unpack() audit.Event {
	return audit.Event{
		ID:        r.ID,
		UserID:    r.UserID.String,
		Kind:      audit.Kind(r.Kind),
		Details:   r.Details.String,
		IPAddress: r.IPAddress.String,
		CreatedAt: r.CreatedAt.Time,
	}
}

type auditRepository struct {
	db *sqlx.DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *sqlx.DB) *auditRepository {
	return &auditRepository{db: db}
}

func (repo auditRepository) AppendEvent(ctx context.Context, evt audit.Event) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, kind, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		evt.ID, nullableStr(evt.UserID), evt.Kind, evt.Details, evt.IPAddress, evt.CreatedAt,
	)
	return errors.Wrap(err, "inserting audit event")
}

func (repo auditRepository) QueryEvents(ctx context.Context, filter *audit.QueryFilter, ordering []core.DBOrdering) ([]audit.Event, error) {
	query := "SELECT * FROM audit_log"
	var clauses []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.UserID != "" {
			clauses = append(clauses, "user_id = "+arg(filter.UserID))
		}
		if filter.Kind != "" {
			clauses = append(clauses, "kind = "+arg(filter.Kind))
		}
		if !filter.CreatedFrom.IsZero() {
			clauses = append(clauses, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			clauses = append(clauses, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += orderingClause(ordering, "created_at DESC")

	var rows []auditRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying audit events")
	}
	events := make([]audit.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.unpack())
	}
	return events, nil
}

func nullableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
