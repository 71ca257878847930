package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unapuno/tesis/core/audit"
	"github.com/unapuno/tesis/core/project"
)

type projectApi struct {
	svc      project.ServiceInterface
	auditSvc audit.ServiceInterface
	validate *validator.Validate
}

func registerProjectAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := projectApi{
		svc:      opts.ProjectSvc,
		auditSvc: opts.AuditSvc,
		validate: opts.Validate,
	}

	pg := g.Group("/projects", jwt)

	pg.GET("", api.query)
	pg.POST("", api.create, oficinaMiddleware())
	pg.GET("/stats", api.stats, oficinaMiddleware())
	pg.GET("/mine", api.mine, investigadorMiddleware())

	// detail endpoints
	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, oficinaMiddleware())
	dg.POST("/approve", api.approve, directorMiddleware())
	dg.POST("/observe", api.observe, directorMiddleware())
	dg.GET("/observations", api.observations)
	dg.POST("/observations/:obsID/resolve", api.resolveObservation, directorMiddleware())
}

// Handlers

// query lists projects. Directors only ever see their own portfolio: the
// advisor filter is forced to the authenticated director's id.
func (api *projectApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(project.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []project.Project{})
	}
	if !(claims.IsOficina || claims.IsSoporte) {
		filter.AdvisorID = claims.Subject
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	projects, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying projects")
	}
	if projects == nil {
		projects = []project.Project{}
	}
	return ctx.JSON(http.StatusOK, projects)
}

func (api *projectApi) create(ctx echo.Context) error {
	var data project.NewProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rctx := ctx.Request().Context()
	prj, err := api.svc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating project")
	}

	api.auditSvc.Log(rctx, claims.Subject, audit.KindProjectCreate,
		fmt.Sprintf("Registró proyecto %q", prj.Title), ctx.RealIP())
	return ctx.JSON(http.StatusCreated, prj)
}

// mine returns the authenticated student's own project.
func (api *projectApi) mine(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	prj, err := api.svc.GetByStudent(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "finding project by student")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) retrieve(ctx echo.Context) error {
	prj, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding project by ID")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) update(ctx echo.Context) error {
	var data project.UpdateProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rctx := ctx.Request().Context()
	prj, err := api.svc.Update(rctx, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating project")
	}

	api.auditSvc.Log(rctx, claims.Subject, audit.KindProjectUpdate,
		fmt.Sprintf("Actualizó proyecto %q", prj.Title), ctx.RealIP())
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) approve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	prj, err := api.svc.Approve(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving phase")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) observe(ctx echo.Context) error {
	var data ObserveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ObserveRequest")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	prj, err := api.svc.Observe(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "observing project")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) observations(ctx echo.Context) error {
	obs, err := api.svc.Observations(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying observations")
	}
	if obs == nil {
		obs = []project.Observation{}
	}
	return ctx.JSON(http.StatusOK, obs)
}

func (api *projectApi) resolveObservation(ctx echo.Context) error {
	obs, err := api.svc.ResolveObservation(ctx.Request().Context(), ctx.Param("obsID"))
	if err != nil {
		return errors.Wrap(err, "resolving observation")
	}
	return ctx.JSON(http.StatusOK, obs)
}

func (api *projectApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

type ObserveRequest struct {
	Reason string `json:"reason"`
}
