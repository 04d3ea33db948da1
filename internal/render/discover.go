// Package render は外部ツール（Ghostscript / Poppler）を用いた PDF のラスタライズと
// 文書全体のグレースケール変換を提供します。
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Locate は候補パスを順に調べ、最初に見つかった実行ファイルを返します。
// 候補がどれも存在しない場合は fallbackNames を PATH から探します。
func Locate(candidates []string, fallbackNames ...string) (string, bool) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if filepath.IsAbs(c) || strings.ContainsRune(c, os.PathSeparator) {
			info, err := os.Stat(c)
			if err == nil && !info.IsDir() {
				return c, true
			}
			continue
		}
		// "gs" のような素の名前は PATH 解決に回す
		if p, err := exec.LookPath(c); err == nil {
			return p, true
		}
	}
	for _, name := range fallbackNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, true
		}
	}
	return "", false
}

// toolKind は実行ファイル名からツール種別を判定します。
func toolKind(path string) string {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".exe")
	if strings.HasPrefix(base, "pdftoppm") {
		return "pdftoppm"
	}
	return "ghostscript"
}

func run(ctx context.Context, tool string, args ...string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	hideWindow(cmd)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", filepath.Base(tool), err, strings.TrimSpace(output.String()))
	}
	return nil
}
