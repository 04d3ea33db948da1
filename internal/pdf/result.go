package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	postprocessFilename = "storybook.pdf"
	grayscaleFilename   = "storybook-print.pdf"
	qrPageFilename      = "storybook-qr.pdf"
)

var operationOutput = map[OperationType]struct {
	filename string
	kind     ResultKind
}{
	OperationPostprocess: {filename: postprocessFilename, kind: ResultKindPDF},
	OperationGrayscale:   {filename: grayscaleFilename, kind: ResultKindPDF},
	OperationQRPage:      {filename: qrPageFilename, kind: ResultKindPDF},
}

// OpenResultFile はジョブIDに対応する成果物ファイルを開き、Result 情報とファイルハンドルを返します。
func (s *Service) OpenResultFile(jobID string) (*Result, *os.File, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, nil, fmt.Errorf("jobID is required")
	}

	ws := s.workspaceFor(jobID)
	manifest, err := loadManifest(ws)
	if err != nil {
		return nil, nil, err
	}
	output, ok := operationOutput[manifest.Operation]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported operation for result download: %s", manifest.Operation)
	}

	outputPath := filepath.Join(ws.outDir, output.filename)
	file, err := os.Open(outputPath)
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	result := &Result{
		JobID:          jobID,
		Operation:      manifest.Operation,
		OutputPath:     outputPath,
		OutputFilename: output.filename,
		OutputSize:     info.Size(),
		ResultKind:     output.kind,
		jobDir:         ws.dir,
	}

	return result, file, nil
}

// finishResult は成果物のサイズを確認し、メタデータを保存して Result を組み立てます。
func (s *Service) finishResult(ws workspace, op OperationType, meta any, progress ProgressReporter) (*Result, error) {
	output := operationOutput[op]
	outputPath := filepath.Join(ws.outDir, output.filename)

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("出力ファイルの確認に失敗しました: %w", err)
	}

	record := struct {
		Type      OperationType `json:"type"`
		CreatedAt string        `json:"createdAt"`
		Output    string        `json:"output"`
		Size      int64         `json:"size"`
		Meta      any           `json:"meta"`
	}{
		Type:      op,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
		Output:    output.filename,
		Size:      info.Size(),
		Meta:      meta,
	}
	if err := writeJSON(ws.metaPath(), record); err != nil {
		return nil, fmt.Errorf("メタデータの保存に失敗しました: %w", err)
	}

	s.expireLater(ws)
	reportProgress(progress, StageCompleted, 100)

	return &Result{
		JobID:          ws.jobID,
		Operation:      op,
		OutputPath:     outputPath,
		OutputFilename: output.filename,
		OutputSize:     info.Size(),
		ResultKind:     output.kind,
		Meta:           meta,
		jobDir:         ws.dir,
	}, nil
}
