package onboard

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// ImageSource steps through still images, either a single file or every
// png/jpeg in a directory, holding each for LoopTime. Images are scaled to
// the configured resolution so lane boundaries line up with the camera.
type ImageSource struct {
	LoopTime time.Duration

	paths         []string
	width, height int
	scale         bool

	lock    sync.Mutex
	next    int
	stopped bool
}

// OpenImages opens path for reading. A zero width or height keeps each image
// at its own size.
func OpenImages(path string, loopTime time.Duration, width, height int) (*ImageSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var paths []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".png", ".jpg", ".jpeg":
				paths = append(paths, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", path)
	}

	first, err := decodeImage(paths[0])
	if err != nil {
		return nil, err
	}

	s := &ImageSource{LoopTime: loopTime, paths: paths}
	if width > 0 && height > 0 {
		s.width, s.height, s.scale = width, height, true
	} else {
		s.width, s.height = imageSize(first)
	}
	return s, nil
}

func resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Min == (image.Point{}) && b.Dx() == width && b.Dy() == height {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

func (s *ImageSource) Size() (int, int) {
	return s.width, s.height
}

func (s *ImageSource) Read(ctx context.Context) (*Frame, error) {
	s.lock.Lock()
	if s.stopped || s.next >= len(s.paths) {
		s.lock.Unlock()
		return nil, io.EOF
	}
	id := s.next
	path := s.paths[id]
	s.next++
	s.lock.Unlock()

	if id > 0 && s.LoopTime > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.LoopTime):
		}
	}

	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	if s.scale {
		img = resize(img, s.width, s.height)
	}

	w, h := imageSize(img)
	return &Frame{ID: id, Width: w, Height: h, Image: img}, nil
}

func (s *ImageSource) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopped = true
	return nil
}
