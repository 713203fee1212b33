package settings

// FakeImage is an in-memory Persistence that counts commits.
type FakeImage struct {
	Image     []byte
	Commits   int
	ReadError error
	// CommitError, if set, is returned by Commit.
	CommitError error
}

// NewFakeImage creates an erased in-memory image.
func NewFakeImage(size int) *FakeImage {
	return &FakeImage{Image: erased(size)}
}

// ReadBytes returns a copy of the image range.
func (f *FakeImage) ReadBytes(offset, length int) ([]byte, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if err := checkRange(offset, length, len(f.Image)); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, f.Image[offset:])
	return out, nil
}

// WriteBytes copies data into the image.
func (f *FakeImage) WriteBytes(offset int, data []byte) error {
	if err := checkRange(offset, len(data), len(f.Image)); err != nil {
		return err
	}
	copy(f.Image[offset:], data)
	return nil
}

// Commit counts the commit.
func (f *FakeImage) Commit() error {
	if f.CommitError != nil {
		return f.CommitError
	}
	f.Commits++
	return nil
}
