// Package source provides frame sources for the depth pipeline: still
// images, image sequences and synthetic test patterns.
//
// Decoders for PNG, JPEG, GIF, BMP and WebP are registered.
package source

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ErrNoImages is returned when a sequence directory holds no decodable images.
var ErrNoImages = errors.New("source: no images found")

// None never has a frame.
type None struct{}

// CurrentFrame returns nil.
func (None) CurrentFrame() image.Image { return nil }

// Still returns the same image on every call.
type Still struct {
	img image.Image
}

// NewStill wraps an already decoded image.
func NewStill(img image.Image) *Still {
	return &Still{img: img}
}

// OpenStill decodes an image file.
func OpenStill(path string) (*Still, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return &Still{img: img}, nil
}

// CurrentFrame returns the still image.
func (s *Still) CurrentFrame() image.Image {
	return s.img
}

// Decode reads and decodes an image file in any registered format.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("source: decode %s: %w", path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("source: %s image %s is empty", format, path)
	}
	return img, nil
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// Sequence plays the images of a directory in lexical order, one per call.
// Unreadable files are skipped and reported through Err.
type Sequence struct {
	mu    sync.Mutex
	paths []string
	next  int
	loop  bool
	err   error
}

// OpenSequence lists the image files in dir. With loop set the sequence
// restarts after the last image; otherwise it then yields nil forever.
func OpenSequence(dir string, loop bool) (*Sequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("source: read dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	sort.Strings(paths)
	return &Sequence{paths: paths, loop: loop}, nil
}

// Len returns the number of images in the sequence.
func (s *Sequence) Len() int {
	return len(s.paths)
}

// CurrentFrame decodes and returns the next image.
func (s *Sequence) CurrentFrame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.paths) {
		if !s.loop {
			return nil
		}
		s.next = 0
	}
	path := s.paths[s.next]
	s.next++

	img, err := Decode(path)
	if err != nil {
		s.err = err
		return nil
	}
	return img
}

// Err returns the last decode error, if any.
func (s *Sequence) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
