package imagery

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"
	"strings"
	"sync"

	_ "image/png" // tile decode

	"github.com/joshuahaertel/friendexing/internal/models"
)

// fetchImage retrieves one image's thumbnail and assembled full-resolution
// rendition concurrently.
func (w *Worker) fetchImage(ctx context.Context, entry ImageEntry) (*models.Image, error) {
	var (
		wg        sync.WaitGroup
		thumbnail []byte
		full      []byte
		thumbErr  error
		fullErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		thumbnail, thumbErr = w.client.GetBytes(ctx, entry.ThumbURL)
	}()
	go func() {
		defer wg.Done()
		full, fullErr = w.assembleFull(ctx, entry.MetadataURL)
	}()
	wg.Wait()

	if thumbErr != nil {
		return nil, fmt.Errorf("fetch thumbnail for %s: %w", entry.ID, thumbErr)
	}
	if fullErr != nil {
		return nil, fmt.Errorf("assemble image %s: %w", entry.ID, fullErr)
	}
	return &models.Image{
		ID:             entry.ID,
		ImageBytes:     full,
		ThumbnailBytes: thumbnail,
	}, nil
}

// assembleFull fetches the deepzoom descriptor, retrieves every tile of the
// deepest zoom level concurrently and pastes them onto one canvas by pixel
// offset. Any tile failure fails the whole image; a partial composite is
// never produced.
func (w *Worker) assembleFull(ctx context.Context, metadataURL string) ([]byte, error) {
	metaBytes, err := w.client.GetBytes(ctx, metadataURL)
	if err != nil {
		return nil, fmt.Errorf("fetch deepzoom metadata: %w", err)
	}
	meta, err := ParseDeepzoom(metaBytes)
	if err != nil {
		return nil, err
	}

	width, height := meta.Size.Width, meta.Size.Height
	maxXTiles := tileCount(width, meta.TileSize)
	maxYTiles := tileCount(height, meta.TileSize)
	zoom := zoomLevel(width, height)

	canvas := image.NewGray(image.Rect(0, 0, width, height))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for yIndex := 0; yIndex < maxYTiles; yIndex++ {
		for xIndex := 0; xIndex < maxXTiles; xIndex++ {
			wg.Add(1)
			go func(xIndex, yIndex int) {
				defer wg.Done()
				tileURL := tileURL(metadataURL, zoom, xIndex, yIndex, meta.Format)
				data, err := w.client.GetBytes(ctx, tileURL)
				if err != nil {
					fail(fmt.Errorf("fetch tile %d_%d: %w", xIndex, yIndex, err))
					return
				}
				tile, _, err := image.Decode(bytes.NewReader(data))
				if err != nil {
					fail(fmt.Errorf("decode tile %d_%d: %w", xIndex, yIndex, err))
					return
				}
				x, y := TileCoordinates(xIndex, yIndex, meta.TileSize, meta.Overlap)
				bounds := tile.Bounds()
				target := image.Rect(x, y, x+bounds.Dx(), y+bounds.Dy())
				mu.Lock()
				draw.Draw(canvas, target, tile, bounds.Min, draw.Src)
				mu.Unlock()
			}(xIndex, yIndex)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, nil); err != nil {
		return nil, fmt.Errorf("encode assembled image: %w", err)
	}
	return buf.Bytes(), nil
}

// tileCount is the number of tiles covering a dimension: ceiling division,
// so an exact multiple of the tile size never asks for a column or row past
// the grid.
func tileCount(dimension, tileSize int) int {
	return (dimension + tileSize - 1) / tileSize
}

// zoomLevel is the deepest deepzoom level: ceil(log2) of the larger
// dimension.
func zoomLevel(width, height int) int {
	maxDimension := width
	if height > maxDimension {
		maxDimension = height
	}
	return int(math.Ceil(math.Log2(float64(maxDimension))))
}

// tileURL derives a tile's URL from the image's metadata URL.
func tileURL(metadataURL string, zoom, xIndex, yIndex int, format string) string {
	return strings.Replace(
		metadataURL,
		"image.xml",
		fmt.Sprintf("image_files/%d/%d_%d.%s", zoom, xIndex, yIndex, format),
		1,
	)
}

// TileCoordinates maps a tile's grid index to its pixel offset on the
// canvas. Every tile past the first row/column overlaps its neighbor by the
// descriptor's overlap, so those tiles shift up/left by that amount.
func TileCoordinates(xIndex, yIndex, tileSize, overlap int) (x, y int) {
	x = xIndex * tileSize
	if xIndex != 0 {
		x -= overlap
	}
	y = yIndex * tileSize
	if yIndex != 0 {
		y -= overlap
	}
	return x, y
}
