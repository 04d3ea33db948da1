package pdf

import "path/filepath"

func toJobFiles(stored []storedFile) []JobFile {
	files := make([]JobFile, len(stored))
	for i, sf := range stored {
		files[i] = JobFile{
			StoredName:   filepath.Base(sf.path),
			OriginalName: sf.originalName,
			Size:         sf.size,
			Pages:        sf.pages,
		}
	}
	return files
}

func storedFilesFromManifest(ws workspace, manifest *JobManifest) []storedFile {
	if manifest == nil {
		return nil
	}
	stored := make([]storedFile, len(manifest.Files))
	for i, f := range manifest.Files {
		stored[i] = storedFile{
			path:         filepath.Join(ws.inDir, filepath.Base(f.StoredName)),
			originalName: f.OriginalName,
			size:         f.Size,
			pages:        f.Pages,
		}
	}
	return stored
}

func sourceMetas(stored []storedFile) []SourceFileMeta {
	metas := make([]SourceFileMeta, len(stored))
	for i, sf := range stored {
		metas[i] = sf.meta()
	}
	return metas
}

// applyOrder は order（0-based の並び）に従って入力を並べ替えます。order が空なら受付順です。
func applyOrder(stored []storedFile, order []int) []storedFile {
	if len(order) == 0 {
		return stored
	}
	out := make([]storedFile, len(order))
	for i, idx := range order {
		out[i] = stored[idx]
	}
	return out
}

// validateOrder は order が 0..count-1 の順列であることを確認します。
func validateOrder(order []int, count int) error {
	if len(order) == 0 {
		return nil
	}
	if len(order) != count {
		return newError("INVALID_INPUT", "order配列の長さがファイル数と一致していません。", nil)
	}

	seen := make([]bool, count)
	for _, idx := range order {
		if idx < 0 || idx >= count {
			return newError("INVALID_INPUT", "order配列に不正な番号が含まれています。", nil)
		}
		if seen[idx] {
			return newError("INVALID_INPUT", "order配列に重複した番号が含まれています。", nil)
		}
		seen[idx] = true
	}
	return nil
}
