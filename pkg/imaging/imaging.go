// Package imaging holds the image post-processing steps applied after a
// download: WebP to JPEG conversion, optional recompression and resizing,
// and dimension probing for the resolution filter.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"

	errs "imggrab/pkg/errors"
)

// convertQuality is the JPEG quality used for WebP conversion.
const convertQuality = 95

// Dimensions returns the pixel width and height of an encoded image without
// fully decoding it.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// DecodeConfig only knows registered formats; try webp explicitly.
		if wcfg, werr := webp.DecodeConfig(bytes.NewReader(data)); werr == nil {
			return wcfg.Width, wcfg.Height, nil
		}
		return 0, 0, errs.Newf(errs.ErrorTypeParsing, "failed to decode image dimensions: %v", err)
	}
	return cfg.Width, cfg.Height, nil
}

// IsWebP sniffs the RIFF/WEBP container signature.
func IsWebP(data []byte) bool {
	return len(data) >= 12 &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WEBP"))
}

// ConvertWebPToJPEG decodes a WebP image and re-encodes it as JPEG.
// Transparency is flattened onto a white background.
func ConvertWebPToJPEG(data []byte) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeParsing, "failed to decode webp: %v", err)
	}

	flattened := flattenOntoWhite(img)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, flattened, &jpeg.Options{Quality: convertQuality}); err != nil {
		return nil, errs.Newf(errs.ErrorTypeIO, "failed to encode jpeg: %v", err)
	}
	return out.Bytes(), nil
}

// flattenOntoWhite composites the image over white, dropping any alpha.
func flattenOntoWhite(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Recompress optionally downscales the image so it fits within maxW x maxH
// (aspect ratio preserved; zero means no bound) and re-encodes it in its
// source format. The quality setting applies to JPEG only (zero means
// quality 85); PNG and GIF keep their lossless encoding and are rewritten
// only when a resize happened. Returns the input unchanged when there is
// nothing to do, the image cannot be decoded, or the format cannot be
// re-encoded.
func Recompress(data []byte, quality, maxW, maxH int) []byte {
	if quality <= 0 && maxW <= 0 && maxH <= 0 {
		return data
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	newWidth, newHeight := width, height

	if maxW > 0 && newWidth > maxW {
		ratio := float64(maxW) / float64(newWidth)
		newWidth = maxW
		newHeight = int(float64(newHeight) * ratio)
	}
	if maxH > 0 && newHeight > maxH {
		ratio := float64(maxH) / float64(newHeight)
		newHeight = maxH
		newWidth = int(float64(newWidth) * ratio)
	}

	resized := newWidth != width || newHeight != height
	if resized {
		scaled := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, xdraw.Over, nil)
		img = scaled
	}

	var out bytes.Buffer
	switch format {
	case "jpeg":
		q := quality
		if q <= 0 {
			q = 85
		} else if q > 100 {
			q = 100
		}
		if err := jpeg.Encode(&out, flattenOntoWhite(img), &jpeg.Options{Quality: q}); err != nil {
			return data
		}
	case "png":
		if !resized {
			return data
		}
		if err := png.Encode(&out, img); err != nil {
			return data
		}
	case "gif":
		if !resized {
			return data
		}
		if err := gif.Encode(&out, img, nil); err != nil {
			return data
		}
	default:
		return data
	}
	return out.Bytes()
}
