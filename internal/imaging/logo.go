package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// LogoRatio はページ幅・高さに対するロゴの最大比率です。
	LogoRatio = 0.3
	// LogoMargin はページ左上からのロゴ配置オフセット（px）です。
	LogoMargin = 10
)

// ErrLogoMissing はロゴファイルが存在しないことを表します。
var ErrLogoMissing = errors.New("logo image not found")

// LoadImage は PNG / JPEG ファイルを読み込みます。
func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// LoadLogo はロゴを読み込みます。path が空、またはファイルが無い場合は ErrLogoMissing を返します。
func LoadLogo(path string) (image.Image, error) {
	if path == "" {
		return nil, ErrLogoMissing
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrLogoMissing
		}
		return nil, err
	}
	return LoadImage(path)
}

// LogoRect はページサイズに対するロゴの配置矩形を返します。
// 倍率は min(pw*0.3/lw, ph*0.3/lh) で、縦横比を保ちます。
func LogoRect(page, logo image.Rectangle) image.Rectangle {
	lw, lh := float64(logo.Dx()), float64(logo.Dy())
	if lw == 0 || lh == 0 {
		return image.Rectangle{}
	}
	pw, ph := float64(page.Dx()), float64(page.Dy())
	factor := min(pw*LogoRatio/lw, ph*LogoRatio/lh)
	w, h := int(lw*factor), int(lh*factor)
	origin := page.Min.Add(image.Pt(LogoMargin, LogoMargin))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(w, h))}
}

// OverlayLogo はページ左上にロゴをアルファ合成します。page を直接書き換えます。
func OverlayLogo(page *image.RGBA, logo image.Image) {
	dr := LogoRect(page.Bounds(), logo.Bounds())
	if dr.Empty() {
		return
	}
	xdraw.CatmullRom.Scale(page, dr, logo, logo.Bounds(), xdraw.Over, nil)
}

// ScaleNearest は最近傍補間で拡大縮小します。QRコードのセル境界を崩さないために使います。
func ScaleNearest(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// TextWidth は basicfont で描画した場合の幅（px）を、拡大率 scale 込みで返します。
func TextWidth(text string, scale int) int {
	d := &font.Drawer{Face: basicfont.Face7x13}
	return d.MeasureString(text).Ceil() * max(scale, 1)
}

// DrawCenteredText は baselineY を基準に、text を水平中央へ描画します。
// basicfont を scale 倍に拡大して描くので、ページ解像度に依存せず読める大きさになります。
func DrawCenteredText(dst *image.RGBA, text string, baselineY, scale int, c color.Color) {
	scale = max(scale, 1)
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	w := d.MeasureString(text).Ceil()
	h := face.Height
	if w == 0 {
		return
	}

	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d.Dst = glyphs
	d.Src = image.NewUniform(c)
	d.Dot = fixed.P(0, face.Ascent)
	d.DrawString(text)

	sw, sh := w*scale, h*scale
	x := dst.Bounds().Min.X + (dst.Bounds().Dx()-sw)/2
	y := baselineY - face.Ascent*scale
	xdraw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+sw, y+sh), glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

// LineHeight は scale 倍の basicfont で複数行を描く際の行送り（px）です。
func LineHeight(scale int) int {
	return (basicfont.Face7x13.Height + 2) * max(scale, 1)
}
