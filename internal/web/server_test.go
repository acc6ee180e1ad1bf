package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dynatable/internal/config"
	"github.com/JonMunkholm/dynatable/internal/core"
	"github.com/JonMunkholm/dynatable/internal/notify"
	"github.com/JonMunkholm/dynatable/internal/store"
)

type testServer struct {
	*Server
	dispatcher *core.Dispatcher
	notes      *notify.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.OpenTestSQLite(t)

	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 10 * time.Second
	cfg.Import.MaxFileSize = 64 << 10

	importer := core.NewImporter(st.DB, st.Dialect, nil, core.ImporterConfig{
		MaxFileSize:  cfg.Import.MaxFileSize,
		UniqueFields: []string{"email"},
	})
	notes := &notify.Recorder{}
	dispatcher := core.NewDispatcher(importer, core.NewJobStore(st.DB, st.Dialect), notes, nil,
		core.DispatcherConfig{MaxConcurrent: 2, MaxWait: time.Second})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = dispatcher.Shutdown(ctx)
	})

	srv := NewServer(cfg, Services{
		Store:      st,
		Schema:     core.NewSchemaManager(st.DB, st.Dialect, nil),
		Records:    core.NewRecordEngine(st.DB, st.Dialect, nil),
		Importer:   importer,
		Dispatcher: dispatcher,
	})
	return &testServer{Server: srv, dispatcher: dispatcher, notes: notes}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) createCustomer(t *testing.T) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/create-table/", map[string]any{
		"table_name": "customer",
		"fields":     []map[string]string{{"name": "name", "type": "TEXT"}, {"name": "email", "type": "TEXT"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestCreateTable(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t)

	rec := ts.do(t, http.MethodGet, "/api/describe-table/?table_name=customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	cols := data["columns"].([]any)
	require.Len(t, cols, 3)
	assert.Equal(t, "id", cols[0].(map[string]any)["name"])
}

func TestCreateTable_ObjectFieldsKeepOrder(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/create-table/",
		`{"table_name": "event", "fields": {"zeta": "TEXT", "alpha": "INTEGER", "mid": "DATE"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Table event created successfully", decodeBody(t, rec)["message"])

	rec = ts.do(t, http.MethodGet, "/api/describe-table/?table_name=event", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Data core.TableSchema `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"id", "zeta", "alpha", "mid"}, got.Data.ColumnNames())
}

func TestCreateTable_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing fields", `{"table_name": "t"}`, http.StatusBadRequest, "VAL010"},
		{"bad json", `{"table_name": `, http.StatusBadRequest, "VAL011"},
		{"bad fields shape", `{"table_name": "t", "fields": 3}`, http.StatusBadRequest, "VAL011"},
		{"bad table name", `{"table_name": "t; drop", "fields": {"a": "TEXT"}}`, http.StatusBadRequest, "IDN001"},
		{"bad column type", `{"table_name": "t", "fields": {"a": "TEXT); DROP TABLE x; --"}}`, http.StatusBadRequest, "IDN002"},
		{"explicit id column", `{"table_name": "t", "fields": {"id": "TEXT"}}`, http.StatusConflict, "SCH003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/api/create-table/", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeBody(t, rec)["code"])
		})
	}
}

func TestAddColumnAndDeleteTable(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t)

	body := map[string]string{"table_name": "customer", "column_name": "tier", "column_type": "INTEGER"}
	rec := ts.do(t, http.MethodPost, "/api/add-column/", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Column tier added to customer successfully", decodeBody(t, rec)["message"])

	rec = ts.do(t, http.MethodPost, "/api/add-column/", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/add-column/", map[string]string{"table_name": "customer"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/delete-table/", map[string]string{"table_name": "customer"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Table customer deleted successfully", decodeBody(t, rec)["message"])

	rec = ts.do(t, http.MethodGet, "/api/describe-table/?table_name=customer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SCH002", decodeBody(t, rec)["code"])
}

func TestRecordLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t)

	rec := ts.do(t, http.MethodPost, "/api/insert-record/", map[string]any{
		"table_name": "customer",
		"data":       map[string]any{"name": "Ann", "email": "ann@example.com"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inserted := decodeBody(t, rec)
	assert.Equal(t, "Record inserted successfully", inserted["message"])
	id := inserted["data"].(map[string]any)["id"]
	require.NotNil(t, id)

	rec = ts.do(t, http.MethodPut, "/api/update-record/", map[string]any{
		"table_name": "customer",
		"id":         id,
		"data":       map[string]any{"name": "Bea"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Bea", updated["name"])
	assert.Equal(t, "ann@example.com", updated["email"])

	rec = ts.do(t, http.MethodPut, "/api/update-record/", map[string]any{
		"table_name": "customer",
		"id":         "999",
		"data":       map[string]any{"name": "Nobody"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Record not found", decodeBody(t, rec)["error"])

	rec = ts.do(t, http.MethodDelete, "/api/delete-record/", map[string]any{"table_name": "customer", "id": id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Record deleted successfully", decodeBody(t, rec)["message"])

	rec = ts.do(t, http.MethodDelete, "/api/delete-record/", map[string]any{"table_name": "customer", "id": id})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRecords(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t)

	for _, name := range []string{"ann", "bea", "cy", "dee", "eve"} {
		rec := ts.do(t, http.MethodPost, "/api/insert-record/", map[string]any{
			"table_name": "customer",
			"data":       map[string]any{"name": name},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/get-records/?table_name=customer&page=2&limit=2&order_direction=DESC", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Data  []map[string]any `json:"data"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "cy", page.Data[0]["name"])
	assert.Equal(t, "bea", page.Data[1]["name"])

	filters := url.QueryEscape(`{"name": "dee"}`)
	rec = ts.do(t, http.MethodGet, "/api/get-records/?table_name=customer&filters="+filters, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(1), page.Total)
}

func TestGetRecords_Rejections(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
	}{
		{"missing table name", "", http.StatusBadRequest, "VAL010"},
		{"unknown table", "table_name=ghost", http.StatusNotFound, "SCH002"},
		{"page not a number", "table_name=customer&page=two", http.StatusBadRequest, "VAL008"},
		{"page zero", "table_name=customer&page=0", http.StatusBadRequest, "VAL008"},
		{"bad direction", "table_name=customer&order_direction=sideways", http.StatusBadRequest, "VAL008"},
		{"bad sort column", "table_name=customer&order_by=" + url.QueryEscape("name;--"), http.StatusBadRequest, "IDN001"},
		{"bad filters", "table_name=customer&filters=" + url.QueryEscape("[1]"), http.StatusBadRequest, "VAL011"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/get-records/?"+tt.query, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeBody(t, rec)["code"])
		})
	}
}

func multipartUpload(t *testing.T, fields map[string]string, csv string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if csv != "" {
		fw, err := mw.CreateFormFile("file", "upload.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(csv))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) upload(t *testing.T, fields map[string]string, csv string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, fields, csv)
	req := httptest.NewRequest(http.MethodPost, "/api/upload-csv/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	return rec
}

func TestUploadCSV(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t)

	rec := ts.upload(t, map[string]string{"table_name": "customer", "email": "ops@example.com"},
		"name,email\nAnn,ann@example.com\nBea,bea@example.com\n")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "File uploaded successfully, processing started.", body["message"])
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, ts.dispatcher.Wait(ctx))

	events := ts.notes.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "ops@example.com", events[0].To)
	assert.Equal(t, "Successfully imported 2 records into customer.", events[0].Body)

	rec = ts.do(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "succeeded", job["state"])
	assert.EqualValues(t, 2, job["inserted"])

	rec = ts.do(t, http.MethodGet, "/api/jobs?table_name=customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	rec = ts.do(t, http.MethodGet, "/api/get-records/?table_name=customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["total"])
}

func TestUploadCSV_UnknownColumnsFailTheJob(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer(t)

	rec := ts.upload(t, map[string]string{"table_name": "customer", "email": "ops@example.com"},
		"name,email,unknown_col\nAnn,ann@example.com,x\n")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, ts.dispatcher.Wait(ctx))

	events := ts.notes.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "CSV Import Failed", events[0].Subject)
	assert.True(t, strings.HasSuffix(events[0].Body, "(Code: VAL002)"), events[0].Body)
}

func TestUploadCSV_Rejections(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		fields     map[string]string
		csv        string
		wantStatus int
		wantCode   string
	}{
		{"no file", map[string]string{"table_name": "customer", "email": "ops@example.com"}, "", http.StatusBadRequest, "UPL003"},
		{"no email", map[string]string{"table_name": "customer"}, "name\nAnn\n", http.StatusBadRequest, "VAL010"},
		{"bad email", map[string]string{"table_name": "customer", "email": "nope"}, "name\nAnn\n", http.StatusBadRequest, "VAL001"},
		{"bad table", map[string]string{"table_name": "1abc", "email": "ops@example.com"}, "name\nAnn\n", http.StatusBadRequest, "IDN001"},
		{"header only", map[string]string{"table_name": "customer", "email": "ops@example.com"}, "name\n", http.StatusBadRequest, "VAL005"},
		{"too large", map[string]string{"table_name": "customer", "email": "ops@example.com"},
			"name\n" + strings.Repeat("x", 70<<10) + "\n", http.StatusRequestEntityTooLarge, "UPL002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.upload(t, tt.fields, tt.csv)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeBody(t, rec)["code"])
		})
	}
	assert.Empty(t, ts.notes.Events())
}

func TestGetJob_NotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/jobs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadCSV_RateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, UploadLimit: 1}
	ts.Server = NewServer(ts.cfg, ts.svc)

	fields := map[string]string{"table_name": "customer"}
	first := ts.upload(t, fields, "name\nAnn\n")
	assert.Equal(t, http.StatusBadRequest, first.Code)

	second := ts.upload(t, fields, "name\nAnn\n")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}
