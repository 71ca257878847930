package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unapuno/tesis/core"
)

type (
	Repository interface {
		AppendEvent(ctx context.Context, evt Event) error
		QueryEvents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Event, error)
	}

	ServiceInterface interface {
		// Log appends an audit event. It never fails the caller: a failed
		// write is reported to the logger and swallowed.
		Log(ctx context.Context, userID string, kind Kind, details, ipAddress string)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Event, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(repo Repository, logger core.Logger) *service {
	return &service{repo: repo, logger: logger}
}

func (svc *service) Log(ctx context.Context, userID string, kind Kind, details, ipAddress string) {
	evt := Event{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		Details:   details,
		IPAddress: ipAddress,
		CreatedAt: time.Now().UTC(),
	}
	if err := svc.repo.AppendEvent(ctx, evt); err != nil {
		svc.logger.Error("audit write failed", errors.Wrap(err, "appending audit event"), evt)
	}
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Event, error) {
	return svc.repo.QueryEvents(ctx, filter, ordering)
}
