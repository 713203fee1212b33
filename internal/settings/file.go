package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultImageSize is the emulated EEPROM size in bytes.
const DefaultImageSize = 512

// FileImage is a fixed-size byte image kept in memory and written to a
// file on Commit. A missing file reads as erased (0xFF) storage.
type FileImage struct {
	path  string
	image []byte
}

// OpenFileImage loads path, or starts from an erased image if it is absent.
func OpenFileImage(path string, size int) (*FileImage, error) {
	if size < RecordSize {
		return nil, fmt.Errorf("image size %d smaller than record", size)
	}
	img := erased(size)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read image: %w", err)
	default:
		copy(img, data)
	}
	return &FileImage{path: path, image: img}, nil
}

func erased(size int) []byte {
	img := make([]byte, size)
	for i := range img {
		img[i] = 0xFF
	}
	return img
}

func checkRange(offset, length, size int) error {
	if offset < 0 || length < 0 || offset+length > size {
		return fmt.Errorf("range [%d,%d) outside image of %d bytes", offset, offset+length, size)
	}
	return nil
}

// ReadBytes returns a copy of the staged image range.
func (f *FileImage) ReadBytes(offset, length int) ([]byte, error) {
	if err := checkRange(offset, length, len(f.image)); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, f.image[offset:])
	return out, nil
}

// WriteBytes stages data into the image.
func (f *FileImage) WriteBytes(offset int, data []byte) error {
	if err := checkRange(offset, len(data), len(f.image)); err != nil {
		return err
	}
	copy(f.image[offset:], data)
	return nil
}

// Commit writes the image to a temporary file and renames it into place.
func (f *FileImage) Commit() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, f.image, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename image: %w", err)
	}
	return nil
}
