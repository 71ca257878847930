package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unapuno/tesis/core/audit"
)

type auditApi struct {
	svc audit.ServiceInterface
}

func registerAuditAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := auditApi{svc: opts.AuditSvc}

	ag := g.Group("/audit", jwt, soporteMiddleware())

	ag.GET("", api.query)
}

func (api *auditApi) query(ctx echo.Context) error {
	filter := new(audit.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []audit.Event{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	events, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying audit events")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}
