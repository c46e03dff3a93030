package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/datallboy/nzbstream/internal/app"
	"github.com/datallboy/nzbstream/internal/nzb"
	"github.com/datallboy/nzbstream/internal/store"
	"github.com/labstack/echo/v5"
)

// maxNZBSize bounds uploaded documents.
const maxNZBSize = 64 << 20

type NZBController struct {
	App *app.Context
}

// HandleList returns every imported NZB, newest first
func (ctrl *NZBController) HandleList(c *echo.Context) error {
	items, err := ctrl.App.Store.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	if items == nil {
		items = []*store.Record{}
	}
	return c.JSON(http.StatusOK, NZBListResponse{Items: items, Total: len(items)})
}

// HandleImport stores the request body as an NZB document
func (ctrl *NZBController) HandleImport(c *echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		name = "upload.nzb"
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxNZBSize+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	if len(raw) > maxNZBSize {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "nzb too large"})
	}

	rec, err := ctrl.App.Store.Import(c.Request().Context(), name, raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	ctrl.App.Logger.Info("Imported %s as %s (%d files)", rec.Name, rec.ID, rec.FileCount)
	return c.JSON(http.StatusCreated, rec)
}

// HandleGet returns one NZB with its file listing
func (ctrl *NZBController) HandleGet(c *echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	rec, err := ctrl.App.Store.Get(ctx, id)
	if err != nil {
		return storeError(c, err)
	}
	model, err := ctrl.App.Store.Model(ctx, id)
	if err != nil {
		return storeError(c, err)
	}

	return c.JSON(http.StatusOK, NZBDetailResponse{Record: rec, Files: model.FileInfos()})
}

// HandleDelete removes an imported NZB
func (ctrl *NZBController) HandleDelete(c *echo.Context) error {
	if err := ctrl.App.Store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func storeError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, nzb.ErrNoFiles):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
