package pagesource

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/gen2brain/go-fitz"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/port"
)

const imageMediaType = "image/png"

// PageRasterizer renders every page of a PDF to PNG bytes, in page order.
type PageRasterizer func(ctx context.Context, data []byte, dpi float64, maxPages int) ([][]byte, error)

// ImageSource renders each PDF page to an image unit for vision models.
type ImageSource struct {
	dpi       float64
	maxPages  int
	rasterize PageRasterizer
}

// NewImageSource creates an ImageSource backed by MuPDF through go-fitz.
func NewImageSource(cfg config.PDFConfig) *ImageSource {
	return NewImageSourceWithRasterizer(cfg, rasterizePages)
}

// NewImageSourceWithRasterizer creates an ImageSource with a custom rasterizer (for testing).
func NewImageSourceWithRasterizer(cfg config.PDFConfig, rasterize PageRasterizer) *ImageSource {
	dpi := float64(cfg.DPI)
	if dpi <= 0 {
		dpi = 150
	}
	return &ImageSource{dpi: dpi, maxPages: cfg.MaxPages, rasterize: rasterize}
}

// Units returns one image unit per distinct page. Pages whose PNG bytes are identical
// to an earlier page are dropped; the kept unit carries the first page number.
func (s *ImageSource) Units(ctx context.Context, data []byte) ([]port.Unit, error) {
	images, err := s.rasterize(ctx, data, s.dpi, s.maxPages)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: PDF has no pages", domain.ErrNoExtractableContent)
	}

	seen := make(map[[sha256.Size]byte]int, len(images))
	units := make([]port.Unit, 0, len(images))
	for i, img := range images {
		sum := sha256.Sum256(img)
		if first, dup := seen[sum]; dup {
			log.Printf("pagesource.ImageSource: page %d duplicates page %d, skipping", i+1, first)
			continue
		}
		seen[sum] = i + 1
		units = append(units, port.Unit{
			Index:       len(units),
			Kind:        domain.UnitImage,
			ImageBase64: base64.StdEncoding.EncodeToString(img),
			MediaType:   imageMediaType,
			Page:        i + 1,
		})
	}
	return units, nil
}

func rasterizePages(ctx context.Context, data []byte, dpi float64, maxPages int) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: opening pdf: %v", domain.ErrInvalidDocument, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if maxPages > 0 && n > maxPages {
		return nil, fmt.Errorf("%w: %d pages, limit is %d", domain.ErrTooManyPages, n, maxPages)
	}

	images := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		png, err := doc.ImagePNG(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("%w: rendering page %d: %v", domain.ErrInvalidDocument, i+1, err)
		}
		images = append(images, png)
	}
	return images, nil
}
