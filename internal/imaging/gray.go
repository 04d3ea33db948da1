// Package imaging はページ画像に対する画素処理（グレースケール化・白飛ばし・ロゴ合成）を提供します。
package imaging

import (
	"image"
	"image/color"
	"image/draw"
)

// DefaultWhitewashThreshold はこの値を超える輝度を純白に置き換える既定の閾値です。
const DefaultWhitewashThreshold = 200

// ToRGBA は任意の画像を原点始まりの *image.RGBA にコピーします。
func ToRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Grayscale は 8bit グレースケールへ変換します。輝度は color.GrayModel (ITU-R 601) で計算します。
func Grayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetGray(x, y, color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return dst
}

// Whitewash は threshold を超える画素を 255 に、それ以外をそのまま残します。
// 元画像は変更しません。
func Whitewash(src *image.Gray, threshold uint8) *image.Gray {
	dst := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		if v > threshold {
			dst.Pix[i] = 255
			continue
		}
		dst.Pix[i] = v
	}
	return dst
}

// GrayToRGBA は単一チャンネル画像を R=G=B の3チャンネル画像へ展開します。
func GrayToRGBA(src *image.Gray) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+b.Dx()]
		off := y * dst.Stride
		for x, v := range row {
			i := off + x*4
			dst.Pix[i] = v
			dst.Pix[i+1] = v
			dst.Pix[i+2] = v
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// RemoveWatermark は本文ページ用の変換です。
// グレースケール化 → 白飛ばし → 3チャンネル化 の順に適用します。
func RemoveWatermark(src image.Image, threshold uint8) *image.RGBA {
	return GrayToRGBA(Whitewash(Grayscale(src), threshold))
}

// IsGrayscale は全画素の R/G/B が一致するかを返します。
func IsGrayscale(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r != g || g != bl {
				return false
			}
		}
	}
	return true
}
