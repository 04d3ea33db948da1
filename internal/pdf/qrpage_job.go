package pdf

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// PrepareQRPageJob はQRページ追加ジョブの入力を保存します。
// payload が空の場合は orderNumber と QR_BASE_URL から組み立てます。
func (s *Service) PrepareQRPageJob(ctx context.Context, file *multipart.FileHeader, payload, orderNumber string) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	payload = strings.TrimSpace(payload)
	if payload == "" && strings.TrimSpace(orderNumber) != "" {
		payload = QRPayloadForOrder(s.cfg.QRBaseURL, orderNumber)
	}
	if payload == "" {
		return nil, newError("INVALID_INPUT", "payload または orderNumber を指定してください。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}

	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, 0)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	manifest := &JobManifest{
		JobID:     ws.jobID,
		Operation: OperationQRPage,
		Files:     toJobFiles([]storedFile{stored}),
		Payload:   payload,
		Caption:   s.cfg.QRCaption,
		CreatedAt: s.now().UTC(),
	}
	if err := writeManifest(ws, manifest); err != nil {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}
	return manifest, nil
}

func (s *Service) executeQRPage(ctx context.Context, ws workspace, manifest *JobManifest, stored storedFile, progress ProgressReporter) (*Result, error) {
	reportProgress(progress, StageProcess, 30)

	outputPath := filepath.Join(ws.outDir, qrPageFilename)
	if _, err := AppendQRPage(ctx, stored.path, manifest.Payload, manifest.Caption, outputPath); err != nil {
		return nil, err
	}
	reportProgress(progress, StageWrite, 90)

	caption := manifest.Caption
	if caption == "" {
		caption = DefaultQRCaption
	}
	meta := &QRPageMeta{
		Source:     stored.meta(),
		Payload:    manifest.Payload,
		Caption:    caption,
		TotalPages: stored.pages + 1,
	}
	return s.finishResult(ws, OperationQRPage, meta, progress)
}
