// Package storage はジョブ作業領域と成果物の公開先を抽象化します。
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobDirs はジョブ1件分のディレクトリ構成です（<root>/<jobID>/in|out）。
type JobDirs struct {
	JobID  string
	Dir    string
	InDir  string
	OutDir string
}

// Local はローカルファイルシステム上のジョブ作業領域を管理します。
type Local struct {
	root string
}

// NewLocal はルートディレクトリを作成して Local を返します。
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: root}, nil
}

// Root はルートディレクトリを返します。
func (l *Local) Root() string {
	return l.root
}

// CreateJob は新しいジョブIDで in/out ディレクトリを作成します。
func (l *Local) CreateJob() (JobDirs, error) {
	dirs := l.Job(uuid.NewString())
	for _, d := range []string{dirs.InDir, dirs.OutDir} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			_ = os.RemoveAll(dirs.Dir)
			return JobDirs{}, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
		}
	}
	return dirs, nil
}

// Job は既存ジョブのディレクトリ構成を返します（存在確認はしません）。
func (l *Local) Job(jobID string) JobDirs {
	dir := filepath.Join(l.root, filepath.Base(jobID))
	return JobDirs{
		JobID:  jobID,
		Dir:    dir,
		InDir:  filepath.Join(dir, "in"),
		OutDir: filepath.Join(dir, "out"),
	}
}

// Remove はジョブディレクトリを削除します。存在しない場合は何もしません。
func (l *Local) Remove(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ExpireAfter は一定時間後にジョブディレクトリを削除します。
func (l *Local) ExpireAfter(dir string, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() {
		_ = l.Remove(dir)
	})
}
