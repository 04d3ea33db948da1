package pdf

import (
	"path/filepath"

	"github.com/yourusername/storybook-forge/internal/storage"
)

type workspace struct {
	jobID  string
	dir    string
	inDir  string
	outDir string
}

func workspaceFromDirs(d storage.JobDirs) workspace {
	return workspace{jobID: d.JobID, dir: d.Dir, inDir: d.InDir, outDir: d.OutDir}
}

func (w workspace) manifestPath() string {
	return filepath.Join(w.dir, manifestFilename)
}

func (w workspace) metaPath() string {
	return filepath.Join(w.dir, "meta.json")
}
