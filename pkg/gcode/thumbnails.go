package gcode

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// ErrNoThumbnail is returned when a file carries no embedded thumbnail
var ErrNoThumbnail = errors.New("no embedded thumbnail")

// maxThumbnailHeaderLines bounds the header scan for thumbnail blocks
const maxThumbnailHeaderLines = 2000

const (
	thumbnailBegin = "; thumbnail begin "
	thumbnailEnd   = "; thumbnail end"
)

// Thumbnail is a slicer preview image embedded as base64 PNG comments
type Thumbnail struct {
	Width  int
	Height int
	PNG    []byte
}

// PixelCount returns width times height
func (t Thumbnail) PixelCount() int { return t.Width * t.Height }

// Decode decodes the PNG payload
func (t Thumbnail) Decode() (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(t.PNG))
	if err != nil {
		return nil, fmt.Errorf("failed to decode thumbnail: %w", err)
	}
	return img, nil
}

// Scaled decodes the thumbnail and resamples it to w x h
func (t Thumbnail) Scaled(w, h int) (*image.RGBA, error) {
	img, err := t.Decode()
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// ExtractThumbnails reads "; thumbnail begin WxH SIZE" blocks from the
// header of r. Scanning stops at the first G, M or T command or after
// 2000 lines. Results are sorted largest first.
func ExtractThumbnails(r io.Reader) ([]Thumbnail, error) {
	var (
		thumbs  []Thumbnail
		current Thumbnail
		data    strings.Builder
		inBlock bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lines := 0; lines < maxThumbnailHeaderLines && scanner.Scan(); lines++ {
		line := strings.TrimRight(scanner.Text(), "\r")

		if i := strings.Index(line, thumbnailBegin); i >= 0 {
			if w, h, ok := parseThumbnailSize(line[i+len(thumbnailBegin):]); ok {
				current = Thumbnail{Width: w, Height: h}
				data.Reset()
				inBlock = true
			}
			continue
		}

		if inBlock && strings.Contains(line, thumbnailEnd) {
			inBlock = false
			raw, err := base64.StdEncoding.DecodeString(data.String())
			if err != nil || len(raw) == 0 {
				slog.Debug("[Thumbnails] Skipping undecodable block", "width", current.Width, "height", current.Height)
				continue
			}
			current.PNG = raw
			thumbs = append(thumbs, current)
			continue
		}

		if inBlock && strings.HasPrefix(line, "; ") {
			data.WriteString(strings.TrimSpace(line[2:]))
			continue
		}

		if line != "" && (line[0] == 'G' || line[0] == 'M' || line[0] == 'T') {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read thumbnails: %w", err)
	}

	sort.SliceStable(thumbs, func(i, j int) bool {
		return thumbs[i].PixelCount() > thumbs[j].PixelCount()
	})
	return thumbs, nil
}

// ExtractThumbnailsFromFile opens path and extracts its thumbnails
func ExtractThumbnailsFromFile(path string) ([]Thumbnail, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ExtractThumbnails(file)
}

// BestThumbnail returns the largest embedded thumbnail of the file at path
func BestThumbnail(path string) (Thumbnail, error) {
	thumbs, err := ExtractThumbnailsFromFile(path)
	if err != nil {
		return Thumbnail{}, err
	}
	if len(thumbs) == 0 {
		return Thumbnail{}, ErrNoThumbnail
	}
	return thumbs[0], nil
}

// SaveThumbnail writes the largest embedded thumbnail of gcodePath as a
// PNG file at outputPath
func SaveThumbnail(gcodePath, outputPath string) error {
	thumb, err := BestThumbnail(gcodePath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, thumb.PNG, 0o644); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return nil
}

// parseThumbnailSize reads "WxH [SIZE]"
func parseThumbnailSize(dims string) (int, int, bool) {
	fields := strings.Fields(dims)
	if len(fields) == 0 {
		return 0, 0, false
	}
	ws, hs, ok := strings.Cut(fields[0], "x")
	if !ok {
		return 0, 0, false
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
