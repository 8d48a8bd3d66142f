package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/handler"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/service"
)

type catalogStub struct {
	handler.Catalog
}

func (catalogStub) Search(context.Context, string, int, int) (service.GamePage, error) {
	return service.GamePage{Items: []model.Game{}}, nil
}

func (catalogStub) GetGame(_ context.Context, id uint64) (model.Game, error) {
	return model.Game{ID: id, Title: "Portal"}, nil
}

type reviewsStub struct {
	handler.Reviews
}

// markCached stands in for the redis response cache.
func markCached(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("X-Cache", "MISS")
		return next(c)
	}
}

func TestResponseCacheOnlyOnCatalogListing(t *testing.T) {
	e := echo.New()
	RegisterCatalog(e, handler.NewGameHandler(context.Background(), catalogStub{}), handler.NewReviewHandler(reviewsStub{}), markCached)

	cases := []struct {
		path   string
		cached bool
	}{
		{"/v1/games", true},
		{"/v1/games?q=portal", true},
		{"/v1/games/7", false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d body %s", tc.path, rec.Code, rec.Body)
		}
		if got := rec.Header().Get("X-Cache") != ""; got != tc.cached {
			t.Errorf("%s: cached = %v, want %v", tc.path, got, tc.cached)
		}
	}
}
