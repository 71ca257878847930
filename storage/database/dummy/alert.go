package dummydb

import (
	"context"

	"github.com/unapuno/tesis/core/alert"
)

type dismissedAlertRepository struct {
	db *dismissedTable
}

var _ alert.Repository = (*dismissedAlertRepository)(nil) // interface compliance check

func NewDismissedAlertRepository(db *DB) *dismissedAlertRepository {
	return &dismissedAlertRepository{db: db.dismissed}
}

func (repo *dismissedAlertRepository) ListDismissedAlertIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	dismissed := make(map[string]struct{}, len(repo.db.table[userID]))
	for id := range repo.db.table[userID] {
		dismissed[id] = struct{}{}
	}
	return dismissed, nil
}

func (repo *dismissedAlertRepository) InsertDismissedAlert(ctx context.Context, userID, alertID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.db.table[userID] == nil {
		repo.db.table[userID] = make(map[string]struct{})
	}
	repo.db.table[userID][alertID] = struct{}{}
	return nil
}
