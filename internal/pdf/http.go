package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// DegradedHeader はグレースケール化が縮退（カラーのまま出力）した場合に付与するヘッダーです。
const DegradedHeader = "X-Grayscale-Degraded"

// JobRunner はジョブを実行できるサービスが実装します。
type JobRunner interface {
	RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error)
	DiscardJob(jobID string) error
}

// PostprocessService は結合・後処理ジョブの準備と実行を提供します。
type PostprocessService interface {
	JobRunner
	PreparePostprocessJob(ctx context.Context, files []*multipart.FileHeader, order []int, logo *multipart.FileHeader) (*JobManifest, error)
}

// GrayscaleService は表紙以外のグレースケール化ジョブの準備と実行を提供します。
type GrayscaleService interface {
	JobRunner
	PrepareGrayscaleJob(ctx context.Context, file *multipart.FileHeader, coverPages int) (*JobManifest, error)
}

// QRPageService はQRページ追加ジョブの準備と実行を提供します。
type QRPageService interface {
	JobRunner
	PrepareQRPageJob(ctx context.Context, file *multipart.FileHeader, payload, orderNumber string) (*JobManifest, error)
}

// InspectService はPDFのメタデータ取得を提供します。
type InspectService interface {
	InspectMultipart(ctx context.Context, file *multipart.FileHeader) (*InspectResult, error)
}

// JobScheduler はジョブを非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, op OperationType, jobID string) error
}

// HandlerOptions は同期/非同期切り替えのための設定です。
type HandlerOptions struct {
	Scheduler           JobScheduler
	AsyncThresholdBytes int64
	AsyncThresholdPages int
}

// PostprocessHandler は POST /api/books/postprocess のハンドラーを返します。
func PostprocessHandler(svc PostprocessService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := parseMultipart(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		files := form.File["files[]"]
		if len(files) == 0 {
			files = form.File["files"]
		}
		if len(files) == 0 {
			badRequest(c, "アップロードされたPDFファイルが見つかりません。")
			return
		}

		order, err := parseOrder(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		var logo *multipart.FileHeader
		if logos := form.File["logo"]; len(logos) > 0 {
			logo = logos[0]
		}

		manifest, err := svc.PreparePostprocessJob(c.Request.Context(), files, order, logo)
		if err != nil {
			respondWithError(c, err)
			return
		}
		dispatch(c, svc, manifest, opts, "後処理結果の読み込みに失敗しました")
	}
}

// GrayscaleHandler は POST /api/books/grayscale のハンドラーを返します。
func GrayscaleHandler(svc GrayscaleService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := parseMultipart(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		coverPages := 1
		if raw := strings.TrimSpace(c.PostForm("coverPages")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				badRequest(c, "coverPages は0以上の整数で指定してください。")
				return
			}
			coverPages = n
		}

		manifest, err := svc.PrepareGrayscaleJob(c.Request.Context(), file, coverPages)
		if err != nil {
			respondWithError(c, err)
			return
		}
		dispatch(c, svc, manifest, opts, "グレースケール化結果の読み込みに失敗しました")
	}
}

// QRPageHandler は POST /api/books/qr のハンドラーを返します。
func QRPageHandler(svc QRPageService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := parseMultipart(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		manifest, err := svc.PrepareQRPageJob(c.Request.Context(), file, c.PostForm("payload"), c.PostForm("orderNumber"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		dispatch(c, svc, manifest, opts, "QRページ追加結果の読み込みに失敗しました")
	}
}

// InspectHandler は POST /api/books/inspect のハンドラーを返します。
func InspectHandler(svc InspectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := parseMultipart(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		result, err := svc.InspectMultipart(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// dispatch は閾値に応じてジョブを非同期キューへ投入するか、その場で実行して結果を返します。
func dispatch(c *gin.Context, svc JobRunner, manifest *JobManifest, opts HandlerOptions, readErrMsg string) {
	if shouldProcessAsync(manifest, opts) {
		if err := opts.Scheduler.Schedule(c.Request.Context(), manifest.Operation, manifest.JobID); err != nil {
			if cleanupErr := svc.DiscardJob(manifest.JobID); cleanupErr != nil {
				err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
			}
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"jobId": manifest.JobID})
		return
	}

	result, err := svc.RunJob(c.Request.Context(), manifest.JobID, nil)
	if err != nil {
		respondWithError(c, err)
		return
	}
	defer result.Cleanup()

	if meta, ok := result.Meta.(*GrayscaleMeta); ok && meta.Degraded {
		c.Header(DegradedHeader, "true")
	}
	if err := streamResult(c, result, readErrMsg); err != nil {
		respondWithError(c, err)
	}
}

func shouldProcessAsync(manifest *JobManifest, opts HandlerOptions) bool {
	if manifest == nil || opts.Scheduler == nil {
		return false
	}
	if opts.AsyncThresholdBytes > 0 && manifest.TotalSize() > opts.AsyncThresholdBytes {
		return true
	}
	if opts.AsyncThresholdPages > 0 && manifest.TotalPages() > opts.AsyncThresholdPages {
		return true
	}
	return false
}

func parseMultipart(c *gin.Context) (*multipart.Form, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "multipart/form-data でPDFファイルを送信してください。")
		return nil, false
	}
	return form, true
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "INVALID_INPUT",
		"message": message,
	})
}

func parseOrder(c *gin.Context) ([]int, error) {
	raw := strings.TrimSpace(c.PostForm("order"))
	if raw != "" {
		var order []int
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			return nil, errors.New("order は JSON 形式の整数配列で指定してください。例: [0,1,2]")
		}
		return order, nil
	}

	if values := c.PostFormArray("order[]"); len(values) > 0 {
		order := make([]int, len(values))
		for i, v := range values {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				return nil, errors.New("order[] に空の値が含まれています。")
			}
			num, err := strconv.Atoi(trimmed)
			if err != nil {
				return nil, errors.New("order[] の値は整数で指定してください。")
			}
			order[i] = num
		}
		return order, nil
	}

	return nil, nil
}

// StatusForError は pdf.Error のコードに対応する HTTP ステータスを返します。
func StatusForError(err error) int {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		switch apiErr.Code {
		case "LIMIT_EXCEEDED":
			return http.StatusRequestEntityTooLarge
		case "UNSUPPORTED_PDF":
			return http.StatusUnprocessableEntity
		case "TOOL_UNAVAILABLE":
			return http.StatusServiceUnavailable
		case "RENDER_FAILED":
			return http.StatusBadGateway
		default:
			return http.StatusBadRequest
		}
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(c *gin.Context, err error) {
	status := StatusForError(err)
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(status, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(status, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("PDFファイルを選択してください。")
	}
	for _, key := range []string{"file", "file[]", "files", "files[]"} {
		if files := form.File[key]; len(files) > 0 {
			return files[0], nil
		}
	}
	return nil, errors.New("PDFファイルを選択してください。")
}

// ContentDisposition はダウンロード用の Content-Disposition 値を返します。
func ContentDisposition(filename string) string {
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", filename, url.PathEscape(filename))
}

func streamResult(c *gin.Context, result *Result, readErrMsg string) error {
	file, err := os.Open(result.OutputPath)
	if err != nil {
		return fmt.Errorf("%s: %w", readErrMsg, err)
	}
	defer file.Close()

	contentType := "application/pdf"
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", ContentDisposition(result.OutputFilename))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", result.JobID)
	c.DataFromReader(http.StatusOK, result.OutputSize, contentType, file, nil)
	return nil
}
