package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrConverterUnavailable はグレースケール変換ツールが無い状態で変換を要求したことを表します。
var ErrConverterUnavailable = errors.New("grayscale conversion tool not found")

// ColorConverter は文書全体をグレースケール化するバックエンドです。
type ColorConverter interface {
	Available() bool
	Name() string
	ConvertToGray(ctx context.Context, inputPath, outputPath string) error
}

// DiscoverGrayConverter は候補パス、次に PATH 上の gs を探します。
// 見つからない場合も nil ではなく Unavailable を返します。
func DiscoverGrayConverter(candidates []string) ColorConverter {
	path, ok := Locate(candidates, "gs", "gswin64c", "gswin32c")
	if !ok {
		return &Unavailable{Searched: append([]string(nil), candidates...)}
	}
	return &GhostscriptGray{Path: path}
}

// GhostscriptGray は pdfwrite デバイスの色変換で DeviceGray の PDF を出力します。
type GhostscriptGray struct {
	Path string
}

func (g *GhostscriptGray) Available() bool { return true }

func (g *GhostscriptGray) Name() string { return "ghostscript" }

func (g *GhostscriptGray) ConvertToGray(ctx context.Context, inputPath, outputPath string) error {
	return run(ctx, g.Path, ghostscriptGrayArgs(inputPath, outputPath)...)
}

func ghostscriptGrayArgs(inputPath, outputPath string) []string {
	return []string{
		"-dSAFER",
		"-dBATCH",
		"-dNOPAUSE",
		"-dQUIET",
		"-sDEVICE=pdfwrite",
		"-sColorConversionStrategy=Gray",
		"-dProcessColorModel=/DeviceGray",
		"-dOverrideICC",
		"-dCompatibilityLevel=1.5",
		fmt.Sprintf("-sOutputFile=%s", outputPath),
		inputPath,
	}
}

// Unavailable は変換ツールが見つからなかった場合のバックエンドです。
type Unavailable struct {
	Searched []string
}

func (u *Unavailable) Available() bool { return false }

func (u *Unavailable) Name() string { return "unavailable" }

func (u *Unavailable) ConvertToGray(context.Context, string, string) error {
	if len(u.Searched) == 0 {
		return ErrConverterUnavailable
	}
	return fmt.Errorf("%w (searched: %s)", ErrConverterUnavailable, strings.Join(u.Searched, ", "))
}
