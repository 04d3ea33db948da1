package pdf

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"
	"unicode/utf8"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/yourusername/storybook-forge/internal/imaging"
)

// A4 を 72dpi で描いたときのピクセル寸法（= pt）。
const (
	A4Width  = 595
	A4Height = 842
)

const (
	qrWidthRatio = 0.7
	// QR をページ中央からどれだけ上へずらすか（ページ高さ比）
	qrLiftRatio    = 0.05
	captionPadding = 40
)

// DefaultQRCaption は QR ページの既定キャプションです。
const DefaultQRCaption = "Scan this code to access the audio content"

// QRPayloadForOrder は注文番号から音声コンテンツの URL を組み立てます。
func QRPayloadForOrder(baseURL, orderNumber string) string {
	orderNumber = strings.TrimSpace(orderNumber)
	if baseURL == "" {
		return orderNumber
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + orderNumber
}

// RenderQRPage は QR コードとキャプションを配置した A4 ページ画像を生成します。
func RenderQRPage(payload, caption string) (*image.RGBA, error) {
	if payload == "" {
		return nil, fmt.Errorf("QR payload is empty")
	}
	if caption == "" {
		caption = DefaultQRCaption
	}

	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR payload: %w", err)
	}

	page := image.NewRGBA(image.Rect(0, 0, A4Width, A4Height))
	draw.Draw(page, page.Bounds(), image.White, image.Point{}, draw.Src)

	size, origin := qrLayout()
	symbol := code.Image(size)
	if symbol.Bounds().Dx() != size || symbol.Bounds().Dy() != size {
		symbol = imaging.ScaleNearest(symbol, size, size)
	}
	draw.Draw(page, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(size, size))}, symbol, symbol.Bounds().Min, draw.Src)

	scale, lines := layoutCaption(caption, A4Width-captionPadding)
	baseline := origin.Y + size + captionPadding
	for _, line := range lines {
		if baseline > A4Height-captionPadding/2 {
			break
		}
		imaging.DrawCenteredText(page, line, baseline, scale, color.Black)
		baseline += imaging.LineHeight(scale)
	}

	return page, nil
}

// qrLayout は QR シンボルの一辺と左上座標を返します。
// 幅はページ幅の 70%、位置は水平中央でページ高さの 5% だけ中央より上です。
func qrLayout() (int, image.Point) {
	width, height := float64(A4Width), float64(A4Height)
	size := int(width * qrWidthRatio)
	lift := int(height * qrLiftRatio)
	return size, image.Pt((A4Width-size)/2, (A4Height-size)/2-lift)
}

// layoutCaption はキャプションの描画倍率と行分割を決めます。
// 2倍で1行に収まらない場合は等倍にし、maxWidth を超えないよう単語単位で折り返します。
func layoutCaption(caption string, maxWidth int) (int, []string) {
	if imaging.TextWidth(caption, 2) <= maxWidth {
		return 2, []string{caption}
	}
	return 1, wrapText(caption, maxWidth, 1)
}

func wrapText(text string, maxWidth, scale int) []string {
	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		// 1語で幅を超える場合は文字単位で分割する
		for imaging.TextWidth(word, scale) > maxWidth {
			cut := fitPrefix(word, maxWidth, scale)
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			lines = append(lines, word[:cut])
			word = word[cut:]
		}
		if word == "" {
			continue
		}
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if imaging.TextWidth(candidate, scale) > maxWidth {
			lines = append(lines, current)
			candidate = word
		}
		current = candidate
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// fitPrefix は maxWidth に収まる word の最長接頭辞のバイト長を返します（最低1文字）。
func fitPrefix(word string, maxWidth, scale int) int {
	cut := 0
	for cut < len(word) {
		_, n := utf8.DecodeRuneInString(word[cut:])
		if imaging.TextWidth(word[:cut+n], scale) > maxWidth {
			break
		}
		cut += n
	}
	if cut == 0 {
		_, n := utf8.DecodeRuneInString(word)
		cut = n
	}
	return cut
}

// AppendQRPage は source の全ページの後ろに QR ページを1枚追加し、outputPath に書き出します。
func AppendQRPage(ctx context.Context, sourcePath, payload, caption, outputPath string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(payload) == "" {
		return "", newError("INVALID_INPUT", "QRコードに埋め込む内容を指定してください。", nil)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return "", newError("INVALID_INPUT", "PDFファイルを読み込めません。", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	page, err := RenderQRPage(payload, caption)
	if err != nil {
		return "", newError("INVALID_INPUT", "QRコードを生成できませんでした。", err)
	}
	if err := appendImagePages(sourcePath, []image.Image{page}, outputPath); err != nil {
		return "", newError("UNSUPPORTED_PDF", "QRページの追加に失敗しました。", err)
	}
	return outputPath, nil
}
