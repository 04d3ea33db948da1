package pdf

import (
	"sync"
)

// OperationType は後処理の種別を表します。
type OperationType string

const (
	OperationPostprocess OperationType = "postprocess"
	OperationGrayscale   OperationType = "grayscale"
	OperationQRPage      OperationType = "qr"
)

// ResultKind は生成される成果物の種別を表します。
type ResultKind string

const (
	ResultKindPDF ResultKind = "pdf"
)

// Result はPDF処理の成果を表します。
type Result struct {
	JobID          string        `json:"jobId"`
	Operation      OperationType `json:"operation"`
	OutputPath     string        `json:"outputPath"`
	OutputFilename string        `json:"outputFilename"`
	OutputSize     int64         `json:"outputSize"`
	ResultKind     ResultKind    `json:"resultKind"`
	Meta           any           `json:"meta,omitempty"`

	jobDir      string
	cleanupOnce sync.Once
	cleanupErr  error
}

// Cleanup は作業ディレクトリを削除します。
func (r *Result) Cleanup() error {
	if r == nil {
		return nil
	}
	r.cleanupOnce.Do(func() {
		r.cleanupErr = removeDir(r.jobDir)
	})
	return r.cleanupErr
}

// PostprocessMeta は結合・後処理のメタデータです。
type PostprocessMeta struct {
	TotalPages     int              `json:"totalPages"`
	Sources        []SourceFileMeta `json:"sources"`
	Rasterizer     string           `json:"rasterizer"`
	LogoApplied    bool             `json:"logoApplied"`
	LogoSkipReason string           `json:"logoSkipReason,omitempty"`
}

// GrayscaleMeta は表紙以外のグレースケール化のメタデータです。
// Degraded の場合、出力は元文書のカラーコピーです。
type GrayscaleMeta struct {
	Source     SourceFileMeta `json:"source"`
	CoverPages int            `json:"coverPages"`
	Success    bool           `json:"success"`
	Degraded   bool           `json:"degraded"`
	Warning    string         `json:"warning,omitempty"`
	Converter  string         `json:"converter,omitempty"`
}

// QRPageMeta はQRページ追加のメタデータです。
type QRPageMeta struct {
	Source     SourceFileMeta `json:"source"`
	Payload    string         `json:"payload"`
	Caption    string         `json:"caption"`
	TotalPages int            `json:"totalPages"`
}
