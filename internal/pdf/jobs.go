package pdf

import (
	"context"
	"fmt"
)

// RunJob はジョブIDに対応する後処理を実行します。
// 失敗した場合は作業ディレクトリを削除します。
func (s *Service) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ws := s.workspaceFor(jobID)
	manifest, err := loadManifest(ws)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}
	if manifest.Operation == "" {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("manifest missing operation")
	}

	stored := storedFilesFromManifest(ws, manifest)
	if len(stored) == 0 {
		_ = removeDir(ws.dir)
		return nil, newError("EMPTY_DOCUMENT_SET", "処理対象のPDFがありません。", ErrEmptyDocumentSet)
	}

	reportProgress(reporter, StageLoad, 5)

	var (
		result *Result
		runErr error
	)

	switch manifest.Operation {
	case OperationPostprocess:
		result, runErr = s.executePostprocess(ctx, ws, manifest, stored, reporter)
	case OperationGrayscale:
		result, runErr = s.executeGrayscale(ctx, ws, manifest, stored[0], reporter)
	case OperationQRPage:
		result, runErr = s.executeQRPage(ctx, ws, manifest, stored[0], reporter)
	default:
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("unsupported operation: %s", manifest.Operation)
	}

	if runErr != nil {
		s.logger.Printf("job failed job=%s op=%s: %v", jobID, manifest.Operation, runErr)
		if cleanupErr := removeDir(ws.dir); cleanupErr != nil {
			runErr = fmt.Errorf("%w (ワークスペースの削除にも失敗しました: %v)", runErr, cleanupErr)
		}
		return nil, runErr
	}

	return result, nil
}
