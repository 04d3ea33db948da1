package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "image/png"
)

// BaseDPI は描画倍率 1.0 に相当する解像度です（PDFの1pt = 1px）。
const BaseDPI = 72

// ErrNoRasterizer はページ描画に使えるツールが見つからなかったことを表します。
var ErrNoRasterizer = errors.New("no PDF rasterizer available")

// Rasterizer は PDF の全ページを、文書順に画像化します。
type Rasterizer interface {
	Name() string
	Render(ctx context.Context, pdfPath string, scale float64) ([]image.Image, error)
}

// NewRasterizer は実行ファイルの種類に応じた Rasterizer を返します。
func NewRasterizer(toolPath string) Rasterizer {
	if toolKind(toolPath) == "pdftoppm" {
		return &Pdftoppm{Path: toolPath}
	}
	return &Ghostscript{Path: toolPath}
}

// DiscoverRasterizer は候補パス、次に PATH 上の gs / pdftoppm を探します。
func DiscoverRasterizer(candidates []string) (Rasterizer, error) {
	path, ok := Locate(candidates, "gs", "pdftoppm")
	if !ok {
		return nil, ErrNoRasterizer
	}
	return NewRasterizer(path), nil
}

// DPIForScale は描画倍率を整数DPIに変換します。
func DPIForScale(scale float64) int {
	if scale <= 0 {
		scale = 1
	}
	return int(math.Round(BaseDPI * scale))
}

// Ghostscript は png16m デバイスでページを描画します。
type Ghostscript struct {
	Path string
}

func (g *Ghostscript) Name() string { return "ghostscript" }

func (g *Ghostscript) Render(ctx context.Context, pdfPath string, scale float64) ([]image.Image, error) {
	dir, err := os.MkdirTemp("", "sbf-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := run(ctx, g.Path, ghostscriptRenderArgs(pdfPath, filepath.Join(dir, "page-%04d.png"), DPIForScale(scale))...); err != nil {
		return nil, err
	}
	return loadPages(filepath.Join(dir, "page-*.png"))
}

func ghostscriptRenderArgs(inputPath, outputPattern string, dpi int) []string {
	return []string{
		"-dSAFER",
		"-dBATCH",
		"-dNOPAUSE",
		"-dQUIET",
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%d", dpi),
		"-dTextAlphaBits=4",
		"-dGraphicsAlphaBits=4",
		fmt.Sprintf("-sOutputFile=%s", outputPattern),
		inputPath,
	}
}

// Pdftoppm は Poppler の pdftoppm でページを描画します。
type Pdftoppm struct {
	Path string
}

func (p *Pdftoppm) Name() string { return "pdftoppm" }

func (p *Pdftoppm) Render(ctx context.Context, pdfPath string, scale float64) ([]image.Image, error) {
	dir, err := os.MkdirTemp("", "sbf-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if err := run(ctx, p.Path, pdftoppmArgs(pdfPath, prefix, DPIForScale(scale))...); err != nil {
		return nil, err
	}
	return loadPages(prefix + "-*.png")
}

func pdftoppmArgs(inputPath, outputPrefix string, dpi int) []string {
	return []string{
		"-png",
		"-r", fmt.Sprintf("%d", dpi),
		inputPath,
		outputPrefix,
	}
}

// loadPages は連番ファイルを名前順に読み込みます。
// どちらのツールもページ番号をゼロ埋めするため、名前順がページ順になります。
func loadPages(pattern string) ([]image.Image, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("rasterizer produced no pages")
	}
	sort.Strings(files)

	pages := make([]image.Image, 0, len(files))
	for _, path := range files {
		img, err := decodeFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

func decodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}
