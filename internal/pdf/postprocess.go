package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/yourusername/storybook-forge/internal/imaging"
	"github.com/yourusername/storybook-forge/internal/render"
)

// PostprocessOptions は Postprocess の描画・変換パラメータです。
type PostprocessOptions struct {
	Rasterizer render.Rasterizer
	Scale      float64 // 0 の場合は 1.0
	Threshold  uint8   // 0 の場合は imaging.DefaultWhitewashThreshold
	LogoPath   string  // 空、または存在しない場合はロゴ合成を省略
	Progress   ProgressReporter
}

// PostprocessResult は後処理の結果です。
type PostprocessResult struct {
	OutputPath     string
	TotalPages     int
	PageCounts     []int // 入力文書ごとのページ数
	LogoApplied    bool
	LogoSkipReason string
}

// Postprocess は複数の絵本PDFを1冊にまとめます。
// 先頭文書の1ページ目（表紙）だけカラーのまま残してロゴを重ね、
// それ以外の全ページはグレースケール化と白飛ばしを行います。
func Postprocess(ctx context.Context, documents []string, outputPath string, opts PostprocessOptions) (*PostprocessResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(documents) == 0 {
		return nil, newError("EMPTY_DOCUMENT_SET", "処理対象のPDFがありません。", ErrEmptyDocumentSet)
	}
	if opts.Rasterizer == nil {
		return nil, newError("TOOL_UNAVAILABLE", "ページ描画ツールが見つかりません。", render.ErrNoRasterizer)
	}
	for i, doc := range documents {
		if _, err := os.Stat(doc); err != nil {
			return nil, newError("INVALID_INPUT", fmt.Sprintf("%d 番目のPDFを読み込めません。", i+1), err)
		}
	}

	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = imaging.DefaultWhitewashThreshold
	}

	result := &PostprocessResult{OutputPath: outputPath}
	logo, skipReason := loadOptionalLogo(opts.LogoPath)
	result.LogoApplied = logo != nil
	result.LogoSkipReason = skipReason

	reportProgress(opts.Progress, StageLoad, 10)

	rendered := make([][]image.Image, 0, len(documents))
	for i, doc := range documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages, err := opts.Rasterizer.Render(ctx, doc, scale)
		if err != nil {
			return nil, newError("RENDER_FAILED", fmt.Sprintf("%d 番目のPDFの描画に失敗しました。", i+1), err)
		}
		rendered = append(rendered, pages)
		result.PageCounts = append(result.PageCounts, len(pages))
		reportProgress(opts.Progress, StageProcess, 10+(60*(i+1))/len(documents))
	}

	pages := composePages(rendered, logo, threshold)
	if len(pages) == 0 {
		return nil, newError("EMPTY_DOCUMENT_SET", "処理対象のページがありません。", ErrEmptyDocumentSet)
	}
	result.TotalPages = len(pages)

	reportProgress(opts.Progress, StageWrite, 80)
	if err := writeImagesPDF(pages, outputPath); err != nil {
		return nil, fmt.Errorf("出力PDFの書き込みに失敗しました: %w", err)
	}
	reportProgress(opts.Progress, StageWrite, 95)

	return result, nil
}

// composePages は描画済みページを文書順・ページ順に並べ、表紙と本文それぞれの変換を適用します。
func composePages(documents [][]image.Image, logo image.Image, threshold uint8) []image.Image {
	var out []image.Image
	cover := true
	for _, pages := range documents {
		for _, page := range pages {
			if cover {
				rgba := imaging.ToRGBA(page)
				if logo != nil {
					imaging.OverlayLogo(rgba, logo)
				}
				out = append(out, rgba)
				cover = false
				continue
			}
			out = append(out, imaging.RemoveWatermark(page, threshold))
		}
	}
	return out
}

// loadOptionalLogo はロゴを読み込みます。読めない場合は nil と理由を返し、処理は続行します。
func loadOptionalLogo(path string) (image.Image, string) {
	if path == "" {
		return nil, "no logo configured"
	}
	logo, err := imaging.LoadLogo(path)
	if err != nil {
		if errors.Is(err, imaging.ErrLogoMissing) {
			return nil, "logo not found"
		}
		return nil, fmt.Sprintf("logo unreadable: %v", err)
	}
	return logo, ""
}
