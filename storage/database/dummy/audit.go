package dummydb

import (
	"context"

	"github.com/unapuno/tesis/core"
	"github.com/unapuno/tesis/core/audit"
)

type auditRepository struct {
	db *auditTable

	failWrites error
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db.audit}
}

// FailWith makes subsequent AppendEvent calls fail; tests use it to
// exercise the non-fatal audit failure path. Pass nil to heal.
func (repo *auditRepository) FailWith(err error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.failWrites = err
}

func (repo *auditRepository) AppendEvent(ctx context.Context, evt audit.Event) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if repo.failWrites != nil {
		return repo.failWrites
	}
	repo.db.events = append(repo.db.events, evt)
	return nil
}

func (repo *auditRepository) QueryEvents(ctx context.Context, filter *audit.QueryFilter, ordering []core.DBOrdering) ([]audit.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var events []audit.Event
	for _, evt := range repo.db.events {
		if filter != nil {
			if filter.UserID != "" && evt.UserID != filter.UserID {
				continue
			}
			if filter.Kind != "" && evt.Kind != filter.Kind {
				continue
			}
			if !filter.CreatedFrom.IsZero() && evt.CreatedAt.Before(filter.CreatedFrom.UTC()) {
				continue
			}
			if !filter.CreatedTo.IsZero() && evt.CreatedAt.After(filter.CreatedTo.UTC()) {
				continue
			}
		}
		events = append(events, evt)
	}
	return events, nil
}

// Events returns a copy of everything appended so far (test helper).
func (repo *auditRepository) Events() []audit.Event {
	repo.db.RLock()
	defer repo.db.RUnlock()
	out := make([]audit.Event, len(repo.db.events))
	copy(out, repo.db.events)
	return out
}
