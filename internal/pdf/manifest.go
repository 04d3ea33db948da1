package pdf

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const manifestFilename = "manifest.json"

// JobManifest はジョブに必要な情報を保持します。
type JobManifest struct {
	JobID      string        `json:"jobId"`
	Operation  OperationType `json:"operation"`
	Files      []JobFile     `json:"files"`
	Order      []int         `json:"order,omitempty"`
	LogoName   string        `json:"logoName,omitempty"`
	CoverPages int           `json:"coverPages,omitempty"`
	Payload    string        `json:"payload,omitempty"`
	Caption    string        `json:"caption,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// JobFile はジョブ入力ファイルのメタデータを表します。
type JobFile struct {
	StoredName   string `json:"storedName"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Pages        int    `json:"pages"`
}

// TotalPages は入力ファイルの合計ページ数です。
func (m *JobManifest) TotalPages() int {
	var total int
	for _, f := range m.Files {
		total += f.Pages
	}
	return total
}

// TotalSize は入力ファイルの合計サイズです。
func (m *JobManifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

func writeManifest(ws workspace, manifest *JobManifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(ws.manifestPath(), data, 0o640); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func loadManifest(ws workspace) (*JobManifest, error) {
	data, err := os.ReadFile(ws.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest JobManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}
