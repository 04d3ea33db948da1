package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubJobService struct {
	manifest  *JobManifest
	prepErr   error
	result    *Result
	runErr    error
	discarded []string

	gotOrder    []int
	gotLogo     bool
	gotCover    int
	gotPayload  string
	gotOrderNum string
}

func (s *stubJobService) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error) {
	return s.result, s.runErr
}

func (s *stubJobService) DiscardJob(jobID string) error {
	s.discarded = append(s.discarded, jobID)
	return nil
}

func (s *stubJobService) PreparePostprocessJob(ctx context.Context, files []*multipart.FileHeader, order []int, logo *multipart.FileHeader) (*JobManifest, error) {
	s.gotOrder = order
	s.gotLogo = logo != nil
	return s.manifest, s.prepErr
}

func (s *stubJobService) PrepareGrayscaleJob(ctx context.Context, file *multipart.FileHeader, coverPages int) (*JobManifest, error) {
	s.gotCover = coverPages
	return s.manifest, s.prepErr
}

func (s *stubJobService) PrepareQRPageJob(ctx context.Context, file *multipart.FileHeader, payload, orderNumber string) (*JobManifest, error) {
	s.gotPayload = payload
	s.gotOrderNum = orderNumber
	return s.manifest, s.prepErr
}

type stubScheduler struct {
	ops []OperationType
	err error
}

func (s *stubScheduler) Schedule(ctx context.Context, op OperationType, jobID string) error {
	s.ops = append(s.ops, op)
	return s.err
}

type formFile struct {
	field, name string
	data        []byte
}

func newMultipartRequest(t *testing.T, target string, files []formFile, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		fw, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := io.Copy(fw, bytes.NewReader(f.data)); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func stubResult(t *testing.T, meta any) (*Result, []byte, string) {
	t.Helper()
	jobDir := filepath.Join(t.TempDir(), "job")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatalf("failed to create jobDir: %v", err)
	}
	outputPath := filepath.Join(jobDir, postprocessFilename)
	pdfData := []byte("%PDF-1.4\n% dummy pdf content\n")
	if err := os.WriteFile(outputPath, pdfData, 0o640); err != nil {
		t.Fatalf("failed to create output file: %v", err)
	}
	return &Result{
		JobID:          "job-123",
		OutputPath:     outputPath,
		OutputFilename: postprocessFilename,
		OutputSize:     int64(len(pdfData)),
		ResultKind:     ResultKindPDF,
		Meta:           meta,
		jobDir:         jobDir,
	}, pdfData, jobDir
}

func TestParseOrderJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	ctx.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("order=%5B0%2C2%2C1%5D"))
	ctx.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	order, err := parseOrder(ctx)
	if err != nil {
		t.Fatalf("parseOrder returned error: %v", err)
	}
	expected := []int{0, 2, 1}
	if len(order) != len(expected) {
		t.Fatalf("unexpected order length: %#v", order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d] = %d, want %d", i, order[i], v)
		}
	}
}

func TestParseOrderArray(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	ctx.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("order[]=0&order[]=1"))
	ctx.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	order, err := parseOrder(ctx)
	if err != nil {
		t.Fatalf("parseOrder returned error: %v", err)
	}
	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Fatalf("unexpected order: %#v", order)
	}
}

func TestParseOrderInvalid(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	ctx.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("order=not-json"))
	ctx.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := parseOrder(ctx); err == nil {
		t.Fatal("expected error for invalid order")
	}
}

func TestPostprocessHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	result, pdfData, jobDir := stubResult(t, &PostprocessMeta{TotalPages: 2})
	service := &stubJobService{
		manifest: &JobManifest{JobID: "job-123", Operation: OperationPostprocess},
		result:   result,
	}

	req := newMultipartRequest(t, "/api/books/postprocess", []formFile{
		{field: "files[]", name: "a.pdf", data: []byte("dummy")},
		{field: "files[]", name: "b.pdf", data: []byte("dummy")},
		{field: "logo", name: "logo.png", data: []byte("dummy")},
	}, map[string]string{"order": "[1,0]"})
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/books/postprocess", PostprocessHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Fatal("expected Content-Disposition header")
	}
	if rec.Header().Get("X-Job-Id") != "job-123" {
		t.Fatalf("unexpected X-Job-Id header: %s", rec.Header().Get("X-Job-Id"))
	}
	if rec.Header().Get(DegradedHeader) != "" {
		t.Fatal("postprocess must not set the degraded header")
	}
	if !bytes.Equal(rec.Body.Bytes(), pdfData) {
		t.Fatalf("unexpected response body: %q", rec.Body.Bytes())
	}
	if len(service.gotOrder) != 2 || service.gotOrder[0] != 1 {
		t.Fatalf("order not forwarded: %#v", service.gotOrder)
	}
	if !service.gotLogo {
		t.Fatal("logo not forwarded")
	}
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Fatalf("expected jobDir to be removed, stat err=%v", err)
	}
}

func TestPostprocessHandlerWithoutFiles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	req := newMultipartRequest(t, "/api/books/postprocess", nil, map[string]string{"order": "[0]"})
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/books/postprocess", PostprocessHandler(&stubJobService{}, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestPostprocessHandlerLimitExceeded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{
		prepErr: &Error{Code: "LIMIT_EXCEEDED", Message: "サイズ上限を超えています"},
	}

	req := newMultipartRequest(t, "/api/books/postprocess", []formFile{{field: "files[]", name: "a.pdf", data: []byte("dummy")}}, nil)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/books/postprocess", PostprocessHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != "LIMIT_EXCEEDED" {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestPostprocessHandlerAsync(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{
		manifest: &JobManifest{
			JobID:     "job-async",
			Operation: OperationPostprocess,
			Files:     []JobFile{{Pages: 30}, {Pages: 30}},
		},
	}
	scheduler := &stubScheduler{}

	req := newMultipartRequest(t, "/api/books/postprocess", []formFile{{field: "files[]", name: "a.pdf", data: []byte("dummy")}}, nil)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/books/postprocess", PostprocessHandler(service, HandlerOptions{
		Scheduler:           scheduler,
		AsyncThresholdPages: 40,
	}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["jobId"] != "job-async" {
		t.Fatalf("unexpected jobId: %s", payload["jobId"])
	}
	if len(scheduler.ops) != 1 || scheduler.ops[0] != OperationPostprocess {
		t.Fatalf("unexpected scheduled ops: %#v", scheduler.ops)
	}
}

func TestDispatchDiscardsJobWhenScheduleFails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{
		manifest: &JobManifest{JobID: "job-x", Operation: OperationQRPage, Files: []JobFile{{Size: 100}}},
	}
	scheduler := &stubScheduler{err: errors.New("redis down")}

	req := newMultipartRequest(t, "/api/books/qr", []formFile{{field: "file", name: "a.pdf", data: []byte("dummy")}}, map[string]string{"payload": "x"})
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/books/qr", QRPageHandler(service, HandlerOptions{Scheduler: scheduler, AsyncThresholdBytes: 10}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(service.discarded) != 1 || service.discarded[0] != "job-x" {
		t.Fatalf("job was not discarded: %#v", service.discarded)
	}
}

func TestGrayscaleHandlerDegradedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	result, _, _ := stubResult(t, &GrayscaleMeta{Degraded: true, Warning: "tool missing"})
	service := &stubJobService{
		manifest: &JobManifest{JobID: "job-123", Operation: OperationGrayscale},
		result:   result,
	}

	req := newMultipartRequest(t, "/api/books/grayscale", []formFile{{field: "file", name: "a.pdf", data: []byte("dummy")}}, map[string]string{"coverPages": "2"})
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/books/grayscale", GrayscaleHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(DegradedHeader) != "true" {
		t.Fatalf("expected %s header", DegradedHeader)
	}
	if service.gotCover != 2 {
		t.Fatalf("coverPages not forwarded: %d", service.gotCover)
	}
}

func TestGrayscaleHandlerInvalidCover(t *testing.T) {
	gin.SetMode(gin.TestMode)
	req := newMultipartRequest(t, "/api/books/grayscale", []formFile{{field: "file", name: "a.pdf", data: []byte("dummy")}}, map[string]string{"coverPages": "-3"})
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/books/grayscale", GrayscaleHandler(&stubJobService{}, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestQRPageHandlerForwardsOrderNumber(t *testing.T) {
	gin.SetMode(gin.TestMode)
	result, _, _ := stubResult(t, &QRPageMeta{})
	service := &stubJobService{
		manifest: &JobManifest{JobID: "job-123", Operation: OperationQRPage},
		result:   result,
	}

	req := newMultipartRequest(t, "/api/books/qr", []formFile{{field: "file", name: "a.pdf", data: []byte("dummy")}}, map[string]string{"orderNumber": "42"})
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/books/qr", QRPageHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if service.gotOrderNum != "42" || service.gotPayload != "" {
		t.Fatalf("unexpected forwarded values: payload=%q order=%q", service.gotPayload, service.gotOrderNum)
	}
}

func TestStatusForError(t *testing.T) {
	cases := map[string]int{
		"INVALID_INPUT":      http.StatusBadRequest,
		"EMPTY_DOCUMENT_SET": http.StatusBadRequest,
		"LIMIT_EXCEEDED":     http.StatusRequestEntityTooLarge,
		"UNSUPPORTED_PDF":    http.StatusUnprocessableEntity,
		"TOOL_UNAVAILABLE":   http.StatusServiceUnavailable,
		"RENDER_FAILED":      http.StatusBadGateway,
	}
	for code, want := range cases {
		if got := StatusForError(newError(code, "x", nil)); got != want {
			t.Fatalf("%s: got %d, want %d", code, got, want)
		}
	}
	if got := StatusForError(context.Canceled); got != http.StatusRequestTimeout {
		t.Fatalf("canceled: got %d", got)
	}
	if got := StatusForError(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("plain error: got %d", got)
	}
}

func TestInspectHandlerWithService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	src := writeTestPDF(t, filepath.Join(dir, "book.pdf"), 4, 40, 60, color.White)
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("failed to read pdf: %v", err)
	}

	svc, _ := newTestService(t, &fakeRasterizer{}, nil)
	req := newMultipartRequest(t, "/api/books/inspect", []formFile{{field: "file", name: "book.pdf", data: data}}, nil)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/books/inspect", InspectHandler(svc))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload InspectResult
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Source.Pages != 4 || payload.Source.Name != "book.pdf" {
		t.Fatalf("unexpected inspect result: %#v", payload.Source)
	}
	if payload.Cover == nil || int(payload.Cover.Width+0.5) != 40 || int(payload.Cover.Height+0.5) != 60 {
		t.Fatalf("unexpected cover size: %#v", payload.Cover)
	}
	if payload.GrayscaleAvailable {
		t.Fatalf("grayscale should be reported unavailable with the default test converter")
	}
}
