package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

const sniffBytes = 3072

// SourceFileMeta は入力ファイルの概要です。
type SourceFileMeta struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages"`
}

type storedFile struct {
	path         string
	originalName string
	size         int64
	pages        int
}

func (f storedFile) meta() SourceFileMeta {
	return SourceFileMeta{Name: f.originalName, Size: f.size, Pages: f.pages}
}

// storeMultipartFile はアップロードされたPDFを dir に保存し、ページ数を検証します。
func (s *Service) storeMultipartFile(ctx context.Context, file *multipart.FileHeader, dir string, index int) (storedFile, error) {
	if file == nil {
		return storedFile{}, newError("INVALID_INPUT", "PDFファイルを選択してください。", nil)
	}
	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return storedFile{}, newError("LIMIT_EXCEEDED", fmt.Sprintf("%s のサイズが上限を超えています。", file.Filename), nil)
	}

	storedPath := filepath.Join(dir, fmt.Sprintf("%03d.pdf", index))
	size, err := s.copyUpload(ctx, file, storedPath, func(mime *mimetype.MIME) bool {
		return mime.Is("application/pdf")
	})
	if err != nil {
		return storedFile{}, err
	}

	pages, err := pageCount(storedPath)
	if err != nil {
		return storedFile{}, newError("UNSUPPORTED_PDF", fmt.Sprintf("%s を読み込めませんでした。ファイルが破損していないか確認してください。", file.Filename), err)
	}
	if pages == 0 {
		return storedFile{}, newError("UNSUPPORTED_PDF", fmt.Sprintf("%s にページがありません。", file.Filename), nil)
	}
	if s.cfg.MaxPages > 0 && pages > s.cfg.MaxPages {
		return storedFile{}, newError("LIMIT_EXCEEDED", fmt.Sprintf("%s のページ数が上限（%dページ）を超えています。", file.Filename, s.cfg.MaxPages), nil)
	}

	return storedFile{
		path:         storedPath,
		originalName: filepath.Base(file.Filename),
		size:         size,
		pages:        pages,
	}, nil
}

// storeLogoFile はアップロードされたロゴ画像（PNG/JPEG）を dir に保存し、保存名を返します。
func (s *Service) storeLogoFile(ctx context.Context, file *multipart.FileHeader, dir string) (string, error) {
	if file == nil {
		return "", nil
	}
	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return "", newError("LIMIT_EXCEEDED", "ロゴ画像のサイズが上限を超えています。", nil)
	}

	var ext string
	tmpPath := filepath.Join(dir, "logo.upload")
	if _, err := s.copyUpload(ctx, file, tmpPath, func(mime *mimetype.MIME) bool {
		switch {
		case mime.Is("image/png"):
			ext = ".png"
		case mime.Is("image/jpeg"):
			ext = ".jpg"
		default:
			return false
		}
		return true
	}); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Code == "INVALID_INPUT" {
			return "", newError("INVALID_INPUT", "ロゴ画像は PNG または JPEG を指定してください。", nil)
		}
		return "", err
	}

	name := "logo" + ext
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("ロゴ画像の保存に失敗しました: %w", err)
	}
	return name, nil
}

// copyUpload は先頭バイトで形式を判定してからファイル全体を保存します。
func (s *Service) copyUpload(ctx context.Context, file *multipart.FileHeader, dst string, accept func(*mimetype.MIME) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := file.Open()
	if err != nil {
		return 0, newError("INVALID_INPUT", "アップロードファイルを開けませんでした。", err)
	}
	defer src.Close()

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, newError("INVALID_INPUT", "アップロードファイルを読み込めませんでした。", err)
	}
	head = head[:n]
	if n == 0 {
		return 0, newError("INVALID_INPUT", fmt.Sprintf("%s は空のファイルです。", file.Filename), nil)
	}
	if !accept(mimetype.Detect(head)) {
		return 0, newError("INVALID_INPUT", fmt.Sprintf("%s は対応していないファイル形式です。", file.Filename), nil)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("アップロードファイルの保存に失敗しました: %w", err)
	}
	defer out.Close()

	reader := io.MultiReader(bytes.NewReader(head), src)
	if s.cfg.MaxFileSize > 0 {
		reader = io.LimitReader(reader, s.cfg.MaxFileSize+1)
	}
	size, err := io.Copy(out, reader)
	if err != nil {
		return 0, fmt.Errorf("アップロードファイルの保存に失敗しました: %w", err)
	}
	if s.cfg.MaxFileSize > 0 && size > s.cfg.MaxFileSize {
		return 0, newError("LIMIT_EXCEEDED", fmt.Sprintf("%s のサイズが上限を超えています。", file.Filename), nil)
	}
	return size, nil
}
