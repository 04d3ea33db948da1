package pdf

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
)

// PreparePostprocessJob は結合・後処理ジョブの入力を保存し、マニフェストを作成します。
// order は files の並び替え（0-based）で、空の場合は受付順です。logo は任意です。
func (s *Service) PreparePostprocessJob(ctx context.Context, files []*multipart.FileHeader, order []int, logo *multipart.FileHeader) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(files) == 0 {
		return nil, newError("EMPTY_DOCUMENT_SET", "処理対象のPDFがありません。", ErrEmptyDocumentSet)
	}
	if err := validateOrder(order, len(files)); err != nil {
		return nil, err
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}

	stored := make([]storedFile, 0, len(files))
	for i, fh := range files {
		sf, err := s.storeMultipartFile(ctx, fh, ws.inDir, i)
		if err != nil {
			_ = removeDir(ws.dir)
			return nil, err
		}
		stored = append(stored, sf)
	}

	logoName, err := s.storeLogoFile(ctx, logo, ws.inDir)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	manifest := &JobManifest{
		JobID:     ws.jobID,
		Operation: OperationPostprocess,
		Files:     toJobFiles(stored),
		Order:     append([]int(nil), order...),
		LogoName:  logoName,
		CreatedAt: s.now().UTC(),
	}
	if err := writeManifest(ws, manifest); err != nil {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}
	return manifest, nil
}

func (s *Service) executePostprocess(ctx context.Context, ws workspace, manifest *JobManifest, stored []storedFile, progress ProgressReporter) (*Result, error) {
	if err := validateOrder(manifest.Order, len(stored)); err != nil {
		return nil, err
	}
	ordered := applyOrder(stored, manifest.Order)

	documents := make([]string, len(ordered))
	for i, sf := range ordered {
		documents[i] = sf.path
	}

	logoPath := s.cfg.LogoPath
	if manifest.LogoName != "" {
		logoPath = filepath.Join(ws.inDir, filepath.Base(manifest.LogoName))
	}

	outputPath := filepath.Join(ws.outDir, postprocessFilename)
	res, err := Postprocess(ctx, documents, outputPath, PostprocessOptions{
		Rasterizer: s.rasterizer,
		Scale:      s.cfg.RenderScale,
		Threshold:  uint8(s.cfg.WhitewashThreshold),
		LogoPath:   logoPath,
		Progress:   progress,
	})
	if err != nil {
		return nil, err
	}
	if !res.LogoApplied && logoPath != "" {
		s.logger.Printf("postprocess job=%s cover logo skipped: %s", ws.jobID, res.LogoSkipReason)
	}

	meta := &PostprocessMeta{
		TotalPages:     res.TotalPages,
		Sources:        sourceMetas(ordered),
		Rasterizer:     s.rasterizer.Name(),
		LogoApplied:    res.LogoApplied,
		LogoSkipReason: res.LogoSkipReason,
	}
	return s.finishResult(ws, OperationPostprocess, meta, progress)
}
