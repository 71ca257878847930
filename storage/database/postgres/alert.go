package pgrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/unapuno/tesis/core/alert"
)

type dismissedAlertRepository struct {
	db *sqlx.DB
}

var _ alert.Repository = (*dismissedAlertRepository)(nil) // interface compliance check

func NewDismissedAlertRepository(db *sqlx.DB) *dismissedAlertRepository {
	return &dismissedAlertRepository{db: db}
}

func (repo dismissedAlertRepository) ListDismissedAlertIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	var ids []string
	err := repo.db.SelectContext(ctx, &ids,
		"SELECT alert_id FROM dismissed_alert WHERE user_id = $1", userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying dismissed alerts")
	}
	dismissed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		dismissed[id] = struct{}{}
	}
	return dismissed, nil
}

func (repo dismissedAlertRepository) InsertDismissedAlert(ctx context.Context, userID, alertID string) error {
	// idempotent: re-dismissing is a no-op
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO dismissed_alert (user_id, alert_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, alert_id) DO NOTHING`,
		userID, alertID,
	)
	return errors.Wrap(err, "inserting dismissed alert")
}
