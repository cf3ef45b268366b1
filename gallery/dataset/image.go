package dataset

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

var imageMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// Image describes a record's image file. A missing file is not an error; the
// UI shows a placeholder instead.
type Image struct {
	Path   string
	Exists bool
	MIME   string

	// Taken and Camera come from EXIF when the file carries it.
	Taken  time.Time
	Camera string
}

// InspectImage stats path and reads EXIF metadata when available.
func InspectImage(path string) Image {
	img := Image{Path: path, MIME: mimeFor(path)}
	if path == "" {
		return img
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return img
	}
	img.Exists = true

	f, err := os.Open(path)
	if err != nil {
		return img
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return img
	}
	if t, err := x.DateTime(); err == nil {
		img.Taken = t
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			img.Camera = strings.TrimSpace(s)
		}
	}
	return img
}

// Base64 returns the raw base64 payload without the data URL prefix.
func (img Image) Base64() (string, error) {
	if !img.Exists {
		return "", fmt.Errorf("image %q not found", img.Path)
	}
	b, err := os.ReadFile(img.Path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func mimeFor(path string) string {
	if m, ok := imageMIME[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return "image/jpeg"
}
