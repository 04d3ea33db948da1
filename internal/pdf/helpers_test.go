package pdf

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/storybook-forge/internal/config"
	"github.com/yourusername/storybook-forge/internal/storage"
)

func solidPage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// writeTestPDF は w×h pt の単色ページを n 枚持つ PDF を作成します。
func writeTestPDF(t *testing.T, path string, n, w, h int, c color.Color) string {
	t.Helper()
	pages := make([]image.Image, n)
	for i := range pages {
		pages[i] = solidPage(w, h, c)
	}
	require.NoError(t, writeImagesPDF(pages, path))
	return path
}

func writeTestPNG(t *testing.T, path string, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o640))
	return path
}

func pageDims(t *testing.T, path string) [][2]int {
	t.Helper()
	dims, err := pdfapi.PageDimsFile(path)
	require.NoError(t, err)
	out := make([][2]int, len(dims))
	for i, d := range dims {
		out[i] = [2]int{int(d.Width + 0.5), int(d.Height + 0.5)}
	}
	return out
}

// pageImages は書き出された PDF から各ページの画像を取り出し、ページ順に返します。
// このパッケージの出力は1ページ1画像です。
func pageImages(t *testing.T, path string) []image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	perPage, err := pdfapi.ExtractImagesRaw(f, nil, nil)
	require.NoError(t, err)

	out := make([]image.Image, len(perPage))
	for _, images := range perPage {
		require.Len(t, images, 1)
		for _, raw := range images {
			img, _, err := image.Decode(raw)
			require.NoErrorf(t, err, "page %d", raw.PageNr)
			require.True(t, raw.PageNr >= 1 && raw.PageNr <= len(out))
			out[raw.PageNr-1] = img
		}
	}
	return out
}

// fakeRasterizer は文書パスごとに用意したページ画像を返します。
type fakeRasterizer struct {
	pages  map[string][]image.Image
	err    error
	scales []float64
}

func (f *fakeRasterizer) Name() string { return "fake" }

func (f *fakeRasterizer) Render(ctx context.Context, pdfPath string, scale float64) ([]image.Image, error) {
	f.scales = append(f.scales, scale)
	if f.err != nil {
		return nil, f.err
	}
	if pages, ok := f.pages[pdfPath]; ok {
		return pages, nil
	}
	n, err := pageCount(pdfPath)
	if err != nil {
		return nil, err
	}
	pages := make([]image.Image, n)
	for i := range pages {
		pages[i] = solidPage(40, 60, color.RGBA{R: 200, G: 30, B: 30, A: 255})
	}
	return pages, nil
}

// fakeGray は入力と同じページ数で、ページ寸法だけが異なる PDF を書き出します。
// 出力ページが変換後のものかどうかを寸法で判別するためです。
type fakeGray struct {
	available bool
	err       error
	pages     int // 0 の場合は入力と同じ
	calls     int
}

const fakeGraySize = 50

func (f *fakeGray) Available() bool { return f.available }

func (f *fakeGray) Name() string { return "fake-gray" }

func (f *fakeGray) ConvertToGray(ctx context.Context, inputPath, outputPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	n := f.pages
	if n == 0 {
		var err error
		if n, err = pageCount(inputPath); err != nil {
			return err
		}
	}
	pages := make([]image.Image, n)
	for i := range pages {
		pages[i] = solidPage(fakeGraySize, fakeGraySize, color.Gray{Y: 128})
	}
	return writeImagesPDF(pages, outputPath)
}

var errFakeTool = errors.New("fake tool failed")

func newTestService(t *testing.T, raster *fakeRasterizer, gray *fakeGray) (*Service, *storage.Local) {
	t.Helper()
	store, err := storage.NewLocal(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)

	cfg := &config.Config{
		MaxFileSize:        10 << 20,
		MaxPages:           200,
		JobExpireMinutes:   10,
		RenderScale:        1.0,
		WhitewashThreshold: 200,
		QRBaseURL:          "https://example.com/order/",
		QRCaption:          DefaultQRCaption,
	}
	opts := Options{}
	if raster != nil {
		opts.Rasterizer = raster
	}
	if gray != nil {
		opts.GrayConverter = gray
	} else {
		opts.GrayConverter = &fakeGray{}
	}
	svc, err := NewService(cfg, store, opts)
	require.NoError(t, err)
	return svc, store
}

// multipartFiles はファイルを multipart フォームに詰めて FileHeader を取り出します。
func multipartFiles(t *testing.T, field string, paths ...string) []*multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		fw, err := writer.CreateFormFile(field, filepath.Base(p))
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File[field]
}
