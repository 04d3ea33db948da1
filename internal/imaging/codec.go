package imaging

import (
	"bytes"
	"image"
	"image/png"
)

// EncodePNG はページ画像を可逆形式でエンコードします。
// 不透明な RGBA は image/png によりアルファ無しの RGB として書き出されます。
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
