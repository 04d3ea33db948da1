package pdf

import (
	"context"
	"mime/multipart"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageSize は PDF ページの寸法（pt）です。
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// InspectResult は絵本PDFを処理に回す前の確認情報です。
// Cover は表紙（1ページ目）の寸法、GrayscaleAvailable が false の場合は
// グレースケール変換がカラーのままの出力に縮退することを示します。
type InspectResult struct {
	Source             SourceFileMeta `json:"source"`
	Cover              *PageSize      `json:"cover,omitempty"`
	GrayscaleAvailable bool           `json:"grayscaleAvailable"`
}

// InspectMultipart はアップロードされた絵本PDFを一時領域で検査し、作業領域は残しません。
func (s *Service) InspectMultipart(ctx context.Context, file *multipart.FileHeader) (*InspectResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError("INVALID_INPUT", "PDFファイルを選択してください。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = removeDir(ws.dir)
	}()

	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, 0)
	if err != nil {
		return nil, err
	}

	result := &InspectResult{
		Source:             stored.meta(),
		GrayscaleAvailable: s.gray != nil && s.gray.Available(),
	}
	dims, err := pdfapi.PageDimsFile(stored.path)
	if err != nil || len(dims) == 0 {
		// ledongthuc/pdf でのみ読めた文書は寸法を返さない
		s.logger.Printf("inspect: page size unavailable for %s: %v", stored.originalName, err)
		return result, nil
	}
	result.Cover = &PageSize{Width: dims[0].Width, Height: dims[0].Height}
	return result, nil
}
