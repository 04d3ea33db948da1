package pdf

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
)

// PrepareGrayscaleJob は表紙以外のグレースケール化ジョブの入力を保存します。
func (s *Service) PrepareGrayscaleJob(ctx context.Context, file *multipart.FileHeader, coverPages int) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if coverPages < 0 {
		return nil, newError("INVALID_INPUT", "coverPages は0以上で指定してください。", nil)
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
		JobID:      ws.jobID,
		Operation:  OperationGrayscale,
		Files:      toJobFiles([]storedFile{stored}),
		CoverPages: coverPages,
		CreatedAt:  s.now().UTC(),
	}
	if err := writeManifest(ws, manifest); err != nil {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}
	return manifest, nil
}

func (s *Service) executeGrayscale(ctx context.Context, ws workspace, manifest *JobManifest, stored storedFile, progress ProgressReporter) (*Result, error) {
	reportProgress(progress, StageProcess, 20)

	outputPath := filepath.Join(ws.outDir, grayscaleFilename)
	res, err := CompositeGrayscale(ctx, s.gray, stored.path, manifest.CoverPages, outputPath, s.logger)
	if err != nil {
		return nil, err
	}
	reportProgress(progress, StageWrite, 90)

	meta := &GrayscaleMeta{
		Source:     stored.meta(),
		CoverPages: res.CoverPages,
		Success:    res.Success,
		Degraded:   res.Degraded,
		Converter:  res.Converter,
	}
	if res.Degraded {
		meta.Warning = "グレースケール変換を実行できなかったため、元のカラーPDFをそのまま出力しました。（" + res.Reason + "）"
	}
	return s.finishResult(ws, OperationGrayscale, meta, progress)
}
