// Package pdf は絵本PDFの後処理（結合・表紙以外のグレースケール化・QRページ追加）を提供します。
package pdf

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/yourusername/storybook-forge/internal/config"
	"github.com/yourusername/storybook-forge/internal/render"
	"github.com/yourusername/storybook-forge/internal/storage"
)

const defaultCleanupMin = 10

// Options は Service の外部ツールを差し替えるための設定です。
// nil のフィールドは設定値の候補パスから自動検出します。
type Options struct {
	Rasterizer    render.Rasterizer
	GrayConverter render.ColorConverter
	Logger        *log.Logger
	Now           func() time.Time
}

// Service はジョブ作業領域とPDF処理を束ねます。
type Service struct {
	cfg        *config.Config
	store      *storage.Local
	rasterizer render.Rasterizer
	gray       render.ColorConverter
	logger     *log.Logger
	now        func() time.Time
}

// NewService は Service を初期化します。
func NewService(cfg *config.Config, store *storage.Local, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("storage is nil")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	rasterizer := opts.Rasterizer
	if rasterizer == nil {
		if r, err := render.DiscoverRasterizer(cfg.RasterizerPaths); err == nil {
			rasterizer = r
		} else {
			logger.Printf("page rasterizer not found, postprocess disabled: %v", err)
		}
	}

	gray := opts.GrayConverter
	if gray == nil {
		gray = render.DiscoverGrayConverter(cfg.GrayscaleToolPaths)
	}
	if !gray.Available() {
		logger.Printf("grayscale tool not found, grayscale output will be degraded")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		cfg:        cfg,
		store:      store,
		rasterizer: rasterizer,
		gray:       gray,
		logger:     logger,
		now:        now,
	}, nil
}

// Tools は検出済みの外部ツール名を返します（未検出は空文字）。
func (s *Service) Tools() (rasterizer, grayConverter string) {
	if s.rasterizer != nil {
		rasterizer = s.rasterizer.Name()
	}
	if s.gray != nil && s.gray.Available() {
		grayConverter = s.gray.Name()
	}
	return rasterizer, grayConverter
}

// DiscardJob は投入に失敗したジョブの作業領域を削除します。
func (s *Service) DiscardJob(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return nil
	}
	return removeDir(s.workspaceFor(jobID).dir)
}

func (s *Service) createWorkspace() (workspace, error) {
	dirs, err := s.store.CreateJob()
	if err != nil {
		return workspace{}, err
	}
	return workspaceFromDirs(dirs), nil
}

func (s *Service) workspaceFor(jobID string) workspace {
	return workspaceFromDirs(s.store.Job(jobID))
}

// expireLater は成果物を一定時間後に削除するよう予約します。
func (s *Service) expireLater(ws workspace) {
	expireMinutes := s.cfg.JobExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = defaultCleanupMin
	}
	s.store.ExpireAfter(ws.dir, time.Duration(expireMinutes)*time.Minute)
}

func removeDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}
