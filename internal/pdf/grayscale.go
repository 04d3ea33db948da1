package pdf

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/storybook-forge/internal/render"
)

// CompositeResult は CompositeGrayscale の結果です。
// Degraded が true の場合、出力は元文書のカラーコピーで、Reason に理由が入ります。
type CompositeResult struct {
	OutputPath string
	Success    bool
	Degraded   bool
	Reason     string
	Converter  string
	TotalPages int
	CoverPages int // 実際にカラーで残したページ数
}

// CompositeGrayscale は先頭 coverPages ページをカラーのまま残し、残りをグレースケールにします。
// 変換ツールが無い、または失敗した場合はエラーにせず、元文書をそのまま出力して Degraded を返します。
func CompositeGrayscale(ctx context.Context, converter render.ColorConverter, sourcePath string, coverPages int, outputPath string, logger *log.Logger) (*CompositeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, newError("INVALID_INPUT", "PDFファイルを読み込めません。", err)
	}
	total, err := pageCount(sourcePath)
	if err != nil {
		return nil, newError("UNSUPPORTED_PDF", "PDFのページ数を取得できませんでした。", err)
	}

	cover := min(max(coverPages, 0), total)
	result := &CompositeResult{
		OutputPath: outputPath,
		TotalPages: total,
		CoverPages: cover,
	}

	degrade := func(reason string) (*CompositeResult, error) {
		if logger != nil {
			logger.Printf("grayscale composite degraded source=%s reason=%s", filepath.Base(sourcePath), reason)
		}
		if err := copyFile(sourcePath, outputPath); err != nil {
			return nil, fmt.Errorf("元PDFのコピーに失敗しました: %w", err)
		}
		result.Success = false
		result.Degraded = true
		result.Reason = reason
		result.CoverPages = total
		return result, nil
	}

	if converter == nil || !converter.Available() {
		return degrade(render.ErrConverterUnavailable.Error())
	}
	result.Converter = converter.Name()

	if cover >= total {
		// 全ページが表紙扱いなので変換は不要
		if err := copyFile(sourcePath, outputPath); err != nil {
			return nil, fmt.Errorf("元PDFのコピーに失敗しました: %w", err)
		}
		result.Success = true
		return result, nil
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	tmpDir, err := os.MkdirTemp(filepath.Dir(outputPath), ".composite-*")
	if err != nil {
		return nil, fmt.Errorf("一時ディレクトリの作成に失敗しました: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	grayPath := filepath.Join(tmpDir, "gray.pdf")
	if err := converter.ConvertToGray(ctx, sourcePath, grayPath); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return degrade(err.Error())
	}
	grayTotal, err := pageCount(grayPath)
	if err != nil {
		return degrade(fmt.Sprintf("grayscale copy unreadable: %v", err))
	}
	if grayTotal != total {
		return degrade(fmt.Sprintf("grayscale copy has %d pages, expected %d", grayTotal, total))
	}

	combined, err := recombine(sourcePath, grayPath, cover, tmpDir)
	if err != nil {
		return degrade(err.Error())
	}
	if err := moveFile(combined, outputPath); err != nil {
		return nil, fmt.Errorf("出力PDFの書き込みに失敗しました: %w", err)
	}

	result.Success = true
	return result, nil
}

// recombine は元文書の 1..cover ページとグレースケール版の cover+1.. ページを結合します。
func recombine(colorPath, grayPath string, cover int, workDir string) (string, error) {
	if cover == 0 {
		return grayPath, nil
	}

	coverPath := filepath.Join(workDir, "cover.pdf")
	if err := pdfapi.CollectFile(colorPath, coverPath, []string{"1-" + strconv.Itoa(cover)}, nil); err != nil {
		return "", fmt.Errorf("failed to collect cover pages: %w", err)
	}

	restPath := filepath.Join(workDir, "interior.pdf")
	if err := pdfapi.CollectFile(grayPath, restPath, []string{strconv.Itoa(cover+1) + "-"}, nil); err != nil {
		return "", fmt.Errorf("failed to collect interior pages: %w", err)
	}

	combinedPath := filepath.Join(workDir, "combined.pdf")
	if err := pdfapi.MergeCreateFile([]string{coverPath, restPath}, combinedPath, false, nil); err != nil {
		return "", fmt.Errorf("failed to merge cover and interior: %w", err)
	}
	return combinedPath, nil
}
