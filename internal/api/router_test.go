package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/datallboy/nzbstream/internal/api/controllers"
	"github.com/datallboy/nzbstream/internal/app"
	"github.com/datallboy/nzbstream/internal/domain"
	"github.com/datallboy/nzbstream/internal/infra/config"
	"github.com/datallboy/nzbstream/internal/infra/logger"
	"github.com/datallboy/nzbstream/internal/metrics"
	"github.com/datallboy/nzbstream/internal/store"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFetcher struct {
	bodies map[string][]byte
}

func (f *memFetcher) Fetch(_ context.Context, id string, w io.Writer, _ []string) error {
	body, ok := f.bodies[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, domain.ErrArticleNotFound)
	}
	_, err := w.Write(body)
	return err
}

func (f *memFetcher) TotalCapacity() int { return 2 }
func (f *memFetcher) Close() error       { return nil }

func sampleNZB(sizes ...int) (string, map[string][]byte, []byte) {
	var (
		sb     strings.Builder
		bodies = map[string][]byte{}
		whole  []byte
	)
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
<head><meta type="title">Holiday Clip</meta></head>
<file poster="p@example.com" date="1700000000" subject="[1/1] &quot;holiday.mp4&quot; yEnc (1/3)">
<groups><group>alt.binaries.test</group></groups><segments>`)
	for i, size := range sizes {
		id := fmt.Sprintf("part%d@example.com", i+1)
		body := bytes.Repeat([]byte{byte('a' + i)}, size)
		bodies[id] = body
		whole = append(whole, body...)
		fmt.Fprintf(&sb, `<segment bytes="%d" number="%d">%s</segment>`, size, i+1, id)
	}
	sb.WriteString(`</segments></file></nzb>`)
	return sb.String(), bodies, whole
}

func newTestServer(t *testing.T, fetcher app.Fetcher) (*echo.Echo, *app.Context) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{}
	cfg.Stream.MaxDownloadWorkers = 2
	cfg.Stream.CloseTimeout = time.Second

	a := &app.Context{
		Config:  cfg,
		Logger:  logger.NewWithWriters(io.Discard, nil, logger.LevelDebug),
		Metrics: metrics.New(),
		NNTP:    fetcher,
		Store:   st,
	}
	e := echo.New()
	RegisterRoutes(e, a)
	return e, a
}

func do(e *echo.Echo, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func importSample(t *testing.T, e *echo.Echo, doc string) *store.Record {
	t.Helper()
	rec := do(e, http.MethodPost, "/api/nzb?name=holiday.nzb", strings.NewReader(doc), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out store.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return &out
}

func TestRouter_ImportListGet(t *testing.T) {
	doc, bodies, _ := sampleNZB(100, 100, 50)
	e, _ := newTestServer(t, &memFetcher{bodies: bodies})

	created := importSample(t, e, doc)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Holiday Clip", created.Title)
	assert.Equal(t, 1, created.FileCount)

	again := importSample(t, e, doc)
	assert.Equal(t, created.ID, again.ID)

	rec := do(e, http.MethodGet, "/api/nzb", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list controllers.NZBListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	rec = do(e, http.MethodGet, "/api/nzb/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"holiday.mp4"`)

	rec = do(e, http.MethodGet, "/api/nzb/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ImportRejectsGarbage(t *testing.T) {
	e, _ := newTestServer(t, &memFetcher{})

	rec := do(e, http.MethodPost, "/api/nzb", strings.NewReader("not xml"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Delete(t *testing.T) {
	doc, bodies, _ := sampleNZB(10)
	e, _ := newTestServer(t, &memFetcher{bodies: bodies})
	created := importSample(t, e, doc)

	rec := do(e, http.MethodDelete, "/api/nzb/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodDelete, "/api/nzb/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_StreamWholeFile(t *testing.T) {
	doc, bodies, whole := sampleNZB(100, 100, 50)
	e, _ := newTestServer(t, &memFetcher{bodies: bodies})
	created := importSample(t, e, doc)

	rec := do(e, http.MethodGet, "/stream/"+created.ID+"/0", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "250", rec.Header().Get("Content-Length"))
	assert.Equal(t, whole, rec.Body.Bytes())
}

func TestRouter_StreamRange(t *testing.T) {
	doc, bodies, whole := sampleNZB(100, 100, 50)
	e, _ := newTestServer(t, &memFetcher{bodies: bodies})
	created := importSample(t, e, doc)

	rec := do(e, http.MethodGet, "/stream/"+created.ID+"/0", nil, map[string]string{"Range": "bytes=90-109"})
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 90-109/250", rec.Header().Get("Content-Range"))
	assert.Equal(t, "20", rec.Header().Get("Content-Length"))
	assert.Equal(t, whole[90:110], rec.Body.Bytes())

	rec = do(e, http.MethodGet, "/stream/"+created.ID+"/0", nil, map[string]string{"Range": "bytes=-30"})
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, whole[220:], rec.Body.Bytes())
}

func TestRouter_StreamErrors(t *testing.T) {
	doc, bodies, _ := sampleNZB(100)
	e, _ := newTestServer(t, &memFetcher{bodies: bodies})
	created := importSample(t, e, doc)

	rec := do(e, http.MethodGet, "/stream/"+created.ID+"/0", nil, map[string]string{"Range": "bytes=500-"})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */100", rec.Header().Get("Content-Range"))

	rec = do(e, http.MethodGet, "/stream/"+created.ID+"/7", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/stream/"+created.ID+"/x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/stream/nope/0", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	e, _ := newTestServer(t, &memFetcher{})

	rec := do(e, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nzbstream_active_streams")
}
