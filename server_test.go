package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
	"bitbucket.org/mmdatafocus/batchlink_backend/models"
	"bitbucket.org/mmdatafocus/batchlink_backend/reconcile"
	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testCSV = "BatchNumber,DateTime,Client,Formula,Cement,Sand,Gravel,Water,Additives,TotalVolume,Operator\n" +
	"B-1,2024-03-01T10:00,ACME Corp,C25,350,800,1000,180,2,8.0,Ko Ko\n" +
	"B-2,2024-03-01T10:00,,C25,350,800,1000,180,2,8.0,Ko Ko\n"

type memoryStore struct {
	runs    map[string]*reconcile.ImportRun
	review  []*models.BatchRecord
	saveErr error
	nextId  int
}

func (s *memoryStore) FindDeliveriesByDate(ctx context.Context, day time.Time, limit int) ([]reconcile.DeliveryRecord, error) {
	return []reconcile.DeliveryRecord{
		{ID: 9, ClientName: "ACME", FormulaCode: "C25", Volume: decimal.RequireFromString("8.0"), Time: "10:05"},
	}, nil
}

func (s *memoryStore) SaveLinkedBatch(ctx context.Context, batch reconcile.LinkedBatch) (int, error) {
	s.nextId++
	return s.nextId, nil
}

func (s *memoryStore) SaveImportRun(ctx context.Context, run *reconcile.ImportRun) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.runs[run.ID] = run
	return nil
}

func (s *memoryStore) GetImportRun(ctx context.Context, id string) (*reconcile.ImportRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return run, nil
}

func (s *memoryStore) GetReviewBatches(ctx context.Context, from, to time.Time) ([]*models.BatchRecord, error) {
	return s.review, nil
}

type failingArchiver struct{ calls int }

func (a *failingArchiver) Archive(ctx context.Context, fileName string, data []byte) (string, error) {
	a.calls++
	return "", errors.New("bucket unavailable")
}

func newTestRouter(t *testing.T, store *memoryStore, settings config.ImportSettings) (*gin.Engine, *importService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc := &importService{
		importer: reconcile.NewCoordinator(store, settings, logger),
		runs:     store,
		review:   store,
		settings: settings,
	}
	holder := &serviceHolder{}
	holder.set(svc)
	return newRouter(holder, logger), svc
}

func newMemoryStore() *memoryStore {
	return &memoryStore{runs: map[string]*reconcile.ImportRun{}, nextId: 500}
}

func TestReadinessGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newRouter(&serviceHolder{}, logrus.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/batch-imports", bytes.NewBufferString(testCSV)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRecoveryAnswersGenericJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := gin.New()
	r.Use(recoveryMiddleware(logger))
	r.Use(func(c *gin.Context) { panic("session store exploded") })
	r.GET("/batch-imports/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch-imports/x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestBatchImport_RawBody(t *testing.T) {
	store := newMemoryStore()
	r, _ := newTestRouter(t, store, config.DefaultImportSettings())

	req := httptest.NewRequest(http.MethodPost, "/batch-imports?filename=plant-a.csv", bytes.NewBufferString(testCSV))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("x-correlation-id", "cid-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cid-42", w.Header().Get("x-correlation-id"))

	var body importSummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.TotalRows)
	assert.Equal(t, 1, body.Imported)
	assert.Equal(t, 1, body.Failed)
	assert.Equal(t, 1, body.AutoLinked)
	assert.Equal(t, 0, body.PendingLink)
	assert.Equal(t, []int{501}, body.BatchIds)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, reconcile.RowError{Row: 2, Line: 3, Field: "Client", Message: "required field is missing"}, body.Errors[0])

	stored := store.runs[body.ImportRunId]
	require.NotNil(t, stored)
	assert.Equal(t, "plant-a.csv", stored.SourceFile)
	assert.Equal(t, "cid-42", stored.CorrelationId)
}

func TestBatchImport_MultipartWithArchiveFailure(t *testing.T) {
	store := newMemoryStore()
	r, svc := newTestRouter(t, store, config.DefaultImportSettings())
	archiver := &failingArchiver{}
	svc.archiver = archiver

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "plant-b.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(testCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/batch-imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, archiver.calls)

	var body importSummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "plant-b.csv", store.runs[body.ImportRunId].SourceFile)
	assert.Empty(t, store.runs[body.ImportRunId].ArchiveKey)
}

func TestBatchImport_InvocationErrors(t *testing.T) {
	store := newMemoryStore()
	settings := config.DefaultImportSettings()
	settings.MaxUploadBytes = 1024
	r, _ := newTestRouter(t, store, settings)

	cases := []struct {
		name     string
		req      func() *http.Request
		expected int
	}{
		{"empty body", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/batch-imports", bytes.NewBufferString("  \n"))
		}, http.StatusBadRequest},
		{"missing multipart file", func() *http.Request {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			_ = mw.WriteField("note", "no file")
			_ = mw.Close()
			req := httptest.NewRequest(http.MethodPost, "/batch-imports", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			return req
		}, http.StatusBadRequest},
		{"too large", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/batch-imports", bytes.NewBuffer(make([]byte, 2048)))
		}, http.StatusRequestEntityTooLarge},
		{"unreadable workbook", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/batch-imports?filename=a.xlsx", bytes.NewBufferString("not a workbook"))
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, tc.req())
		assert.Equal(t, tc.expected, w.Code, tc.name)
	}
	assert.Empty(t, store.runs)
}

func TestBatchImport_InternalErrorIsGeneric(t *testing.T) {
	store := newMemoryStore()
	store.saveErr = errors.New("mysql: connection reset")
	r, _ := newTestRouter(t, store, config.DefaultImportSettings())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/batch-imports", bytes.NewBufferString(testCSV)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestImportRunLookup(t *testing.T) {
	store := newMemoryStore()
	store.runs["run-1"] = &reconcile.ImportRun{ID: "run-1", TotalRows: 4, BatchIds: []int{}, Errors: []reconcile.RowError{}}
	r, _ := newTestRouter(t, store, config.DefaultImportSettings())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch-imports/run-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var run reconcile.ImportRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, 4, run.TotalRows)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch-imports/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewExport(t *testing.T) {
	store := newMemoryStore()
	store.review = []*models.BatchRecord{{
		ID:          3,
		BatchNumber: "B-9",
		BatchTime:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		ClientName:  "ACME",
		LinkState:   reconcile.LinkStatePending,
		Candidates:  []models.BatchLinkCandidate{{Rank: 1, DeliveryId: 9, Confidence: 75}},
	}}
	r, _ := newTestRouter(t, store, config.DefaultImportSettings())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch-records/review?from=2024-03-01", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "batch-review_20240301_20240301.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Review")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B-9", rows[1][1])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch-records/review?from=2024-03-02&to=2024-03-01", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch-records/review", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
