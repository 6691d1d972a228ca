package imagecache

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/disintegration/imaging"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	placeholderEdge = 512
	jpegQuality     = 90
)

// decodeBitmap 解码任意受支持格式（png/jpeg/gif/webp/bmp/tiff）并统一为
// NRGBA 像素布局，后续所有处理都在该布局上进行。
func decodeBitmap(raw []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return imaging.Clone(img), nil
}

// fitWithin 将最长边收敛到 maxEdge 以内，小图保持原尺寸，从不放大。
func fitWithin(img *image.NRGBA, maxEdge int) *image.NRGBA {
	if img == nil || maxEdge <= 0 {
		return img
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxEdge && bounds.Dy() <= maxEdge {
		return img
	}
	return imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
}

// encodeJPEG 生成用于落盘的有损正文。
func encodeJPEG(img *image.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Placeholder 返回中性灰占位图。每次调用都分配新副本，调用方可放心修改。
func Placeholder() *image.NRGBA {
	return imaging.New(placeholderEdge, placeholderEdge, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
}
