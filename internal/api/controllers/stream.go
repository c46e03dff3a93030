package controllers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/datallboy/nzbstream/internal/app"
	"github.com/datallboy/nzbstream/internal/streamer"
	"github.com/datallboy/nzbstream/internal/usenet"
	"github.com/labstack/echo/v5"
)

type StreamController struct {
	App     *app.Context
	Service *streamer.Service
}

// HandleStream serves one file of an imported NZB, honouring a single Range.
func (ctrl *StreamController) HandleStream(c *echo.Context) error {
	ctx := c.Request().Context()

	idx, err := strconv.Atoi(c.Param("file"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file must be a numeric index"})
	}

	model, err := ctrl.App.Store.Model(ctx, c.Param("id"))
	if err != nil {
		return storeError(c, err)
	}

	plan, err := ctrl.Service.Plan(ctx, model, idx)
	if err != nil {
		switch {
		case errors.Is(err, streamer.ErrFileNotFound), usenet.IsArticleNotFound(err):
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		default:
			return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		}
	}

	rangeHeader := c.Request().Header.Get("Range")
	start, end, err := streamer.ParseRange(rangeHeader, plan.Total)
	if err != nil {
		c.Response().Header().Set("Content-Range", fmt.Sprintf("bytes */%d", plan.Total))
		return c.JSON(http.StatusRequestedRangeNotSatisfiable, ErrorResponse{Error: err.Error()})
	}

	st, err := ctrl.Service.Open(ctx, plan, start, end)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	defer st.Close()

	contentType := mime.TypeByExtension(filepath.Ext(plan.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, contentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set(echo.HeaderContentLength, strconv.FormatInt(st.Len(), 10))
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", plan.Name))

	status := http.StatusOK
	if rangeHeader != "" {
		status = http.StatusPartialContent
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", st.Start, st.End-1, plan.Total))
	}
	c.Response().WriteHeader(status)

	if c.Request().Method == http.MethodHead {
		return nil
	}

	n, err := io.Copy(c.Response(), st)
	if err != nil {
		// Headers are gone; all we can do is cut the connection short.
		ctrl.App.Logger.Error("Stream %s/%d aborted after %d bytes: %v", c.Param("id"), idx, n, err)
		return nil
	}
	return nil
}
