// imgprep.go - Image preprocessing for better OCR accuracy

package imgprep

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/disintegration/imaging"
)

// Decode parses uploaded image bytes. EXIF orientation is not applied;
// invoice photos arrive upright from the mobile client.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Prepare resizes and enhances a decoded invoice photo for OCR. The
// enhancement level adapts to the measured quality: dim, low-contrast
// photos get the aggressive treatment.
func Prepare(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if maxDimension > 0 && (width > maxDimension || height > maxDimension) {
		if width > height {
			img = imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
		}
	}

	quality := analyzeQuality(img)
	switch {
	case quality < 50:
		img = aggressiveEnhancement(img)
	case quality < 75:
		img = standardEnhancement(img)
	default:
		img = lightEnhancement(img)
	}

	// Final sharpening pass for small digits.
	return imaging.Sharpen(img, 1.0)
}

// EncodeJPEG serializes a prepared image for the remote engine.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode processed image: %w", err)
	}
	return buf.Bytes(), nil
}

// analyzeQuality returns a 0-100 score from sampled brightness and
// contrast. Ideal: average brightness near 128, contrast 200+.
func analyzeQuality(img image.Image) float64 {
	bounds := img.Bounds()

	var totalBrightness float64
	minBrightness, maxBrightness := 255.0, 0.0
	pixelCount := 0

	// Sample every 10th pixel for speed.
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0

			totalBrightness += brightness
			if brightness < minBrightness {
				minBrightness = brightness
			}
			if brightness > maxBrightness {
				maxBrightness = brightness
			}
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return 0
	}

	avgBrightness := totalBrightness / float64(pixelCount)
	contrast := maxBrightness - minBrightness

	brightnessScore := 100.0 - math.Abs(avgBrightness-128.0)/1.28
	contrastScore := math.Min(contrast/2.0, 100.0)

	return brightnessScore*0.4 + contrastScore*0.6
}

func lightEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 2.0)
	result = imaging.AdjustContrast(result, 30)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 20)
	return imaging.AdjustGamma(result, 1.05)
}

func standardEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 3.0)
	result = imaging.AdjustContrast(result, 45)
	result = imaging.AdjustBrightness(result, 15)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 35)
	return imaging.AdjustGamma(result, 1.15)
}

func aggressiveEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 4.0)
	result = imaging.AdjustContrast(result, 60)
	result = imaging.AdjustBrightness(result, 25)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 55)
	result = imaging.AdjustGamma(result, 1.3)
	// Blur then re-sharpen to knock out sensor noise without losing
	// glyph edges.
	result = imaging.Blur(result, 0.5)
	result = imaging.Sharpen(result, 2.5)
	return imaging.AdjustContrast(result, 20)
}
