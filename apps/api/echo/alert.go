package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unapuno/tesis/core/alert"
)

type alertApi struct {
	svc      alert.ServiceInterface
	validate *validator.Validate
}

func registerAlertAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := alertApi{
		svc:      opts.AlertSvc,
		validate: opts.Validate,
	}

	ag := g.Group("/alerts", jwt, directorMiddleware())

	ag.GET("", api.query)
	ag.POST("/contact", api.contact)
	ag.POST("/:id/dismiss", api.dismiss)
}

// Handlers

func (api *alertApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	alerts, err := api.svc.Derive(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "deriving alerts")
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	return ctx.JSON(http.StatusOK, alerts)
}

func (api *alertApi) dismiss(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.Dismiss(ctx.Request().Context(), claims.Subject, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "dismissing alert")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *alertApi) contact(ctx echo.Context) error {
	var data alert.ContactStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ContactStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.Contact(ctx.Request().Context(), claims.Subject, data); err != nil {
		return errors.Wrap(err, "contacting student")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "El mensaje ha sido enviado al estudiante."})
}
