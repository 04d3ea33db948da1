package pdf

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	ledongthucpdf "github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/yourusername/storybook-forge/internal/imaging"
)

// pageCount は PDF のページ数を返します。
// pdfcpu が読めない文書は ledongthuc/pdf で再試行します。
func pageCount(path string) (int, error) {
	n, err := pdfapi.PageCountFile(path)
	if err == nil {
		return n, nil
	}

	f, r, fallbackErr := ledongthucpdf.Open(path)
	if fallbackErr != nil {
		return 0, err
	}
	defer f.Close()
	return r.NumPage(), nil
}

// PageCount はパッケージ外（テストやCLI）向けの pageCount です。
func PageCount(path string) (int, error) {
	return pageCount(path)
}

// encodePages はページ画像を pdfcpu の画像インポートに渡せる形にします。
func encodePages(pages []image.Image) ([]io.Reader, error) {
	readers := make([]io.Reader, len(pages))
	for i, page := range pages {
		data, err := imaging.EncodePNG(page)
		if err != nil {
			return nil, fmt.Errorf("ページ %d のエンコードに失敗しました: %w", i+1, err)
		}
		readers[i] = bytes.NewReader(data)
	}
	return readers, nil
}

// writeImagesPDF はページ画像だけから成る PDF を作成します。
// 各ページのサイズは画像サイズ（1px = 1pt）になります。
func writeImagesPDF(pages []image.Image, outputPath string) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages to write")
	}
	readers, err := encodePages(pages)
	if err != nil {
		return err
	}
	return writeFileAtomic(outputPath, func(w io.Writer) error {
		return pdfapi.ImportImages(nil, w, readers, pdfcpu.DefaultImportConfig(), nil)
	})
}

// appendImagePages は既存 PDF の末尾に画像ページを追加した文書を outputPath に書き出します。
func appendImagePages(sourcePath string, pages []image.Image, outputPath string) error {
	readers, err := encodePages(pages)
	if err != nil {
		return err
	}
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	return writeFileAtomic(outputPath, func(w io.Writer) error {
		return pdfapi.ImportImages(src, w, readers, pdfcpu.DefaultImportConfig(), nil)
	})
}

// writeFileAtomic は同じディレクトリの一時ファイルに書き込み、成功時のみリネームします。
// 失敗した場合、最終パスには何も残りません。
func writeFileAtomic(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o640); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// copyFile は src を dst へそのままコピーします。
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeFileAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// moveFile は同一ディレクトリ内の一時成果物を最終パスへ移動します。
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
