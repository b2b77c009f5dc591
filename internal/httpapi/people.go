package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Alp4ka/relaypager"
	"github.com/Alp4ka/relaypager/internal/people"
)

// PeopleLister serves pages of people.
type PeopleLister interface {
	List(ctx context.Context, q people.ListQuery) (*relaypager.Page[people.Person], error)
}

type PeopleRouter struct {
	e       *echo.Echo
	lister  PeopleLister
	maxTake int
}

func NewPeopleRouter(e *echo.Echo, lister PeopleLister, maxTake int) *PeopleRouter {
	return &PeopleRouter{
		e:       e,
		lister:  lister,
		maxTake: maxTake,
	}
}

func (r *PeopleRouter) Bind() {
	r.e.GET("/people", r.listHandler)
}

// listHandler serves GET /people.
//
// Query parameters follow Relay connection arguments: first, after, last,
// before, plus skip, search and a repeatable sort ("lastName desc").
func (r *PeopleRouter) listHandler(c echo.Context) error {
	var (
		args relaypager.ConnectionArgs
		sort []string
	)

	binder := echo.QueryParamsBinder(c).
		String("after", &args.After).
		String("before", &args.Before).
		Int("skip", &args.Skip).
		String("search", &args.Search).
		Strings("sort", &sort)

	if c.QueryParam("first") != "" {
		args.First = new(int)
		binder = binder.Int("first", args.First)
	}
	if c.QueryParam("last") != "" {
		args.Last = new(int)
		binder = binder.Int("last", args.Last)
	}

	if err := binder.BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}

	params, err := args.NormalizeMax(r.maxTake)
	if err != nil {
		return err
	}

	page, err := r.lister.List(c.Request().Context(), people.ListQuery{
		Params: params,
		Sort:   sort,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, page)
}
