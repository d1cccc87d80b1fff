package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/internly/internly/core/review"
	"github.com/internly/internly/core/user"
)

type dashboardApi struct {
	svc    *review.Service
	usrSvc *user.Service
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *review.Service, usrSvc *user.Service) {
	api := dashboardApi{svc: svc, usrSvc: usrSvc}

	dg := g.Group("/dashboard", jwt)
	dg.GET("/stats", api.stats)
}

// stats serves reviewer stats to mentors, teachers and admins, owner stats to everyone else.
func (api *dashboardApi) stats(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if usr.Actor().IsReviewer() {
		stats, err := api.svc.ReviewerStats(ctx.Request().Context(), usr.ID)
		if err != nil {
			return errors.Wrap(err, "computing reviewer stats")
		}
		return ctx.JSON(http.StatusOK, stats)
	}

	stats, err := api.svc.OwnerStats(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "computing owner stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
