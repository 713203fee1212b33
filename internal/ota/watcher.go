package ota

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Image file naming in the drop directory. Uploaders write each file under
// a temporary name and rename it into place once complete. Every image needs
// a <name>.bin.sha256 digest; either file may land first, and the install
// starts when both are present.
const (
	imageSuffix      = ".bin"
	filesystemSuffix = ".fs.bin"
	checksumSuffix   = ".sha256"
)

var (
	// ErrChecksum is reported when an image does not match its .sha256 file.
	ErrChecksum = errors.New("ota: checksum mismatch")
	// ErrNoChecksum is reported when an image has no .sha256 file yet.
	ErrNoChecksum = errors.New("ota: missing checksum file")
)

// WatcherConfig configures a DirWatcher.
type WatcherConfig struct {
	Dir            string // drop directory to watch
	FirmwarePath   string // destination for firmware images
	FilesystemPath string // destination for filesystem images
	ChunkSize      int
}

// DirWatcher installs images dropped into a directory. Installation runs
// on its own goroutine; events are buffered for Handle.
type DirWatcher struct {
	cfg       WatcherConfig
	fsWatcher *fsnotify.Watcher
	events    chan Event
	busy      atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewDirWatcher starts watching cfg.Dir.
func NewDirWatcher(cfg WatcherConfig) (*DirWatcher, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 32 * 1024
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create update dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.Dir, err)
	}

	w := &DirWatcher{
		cfg:       cfg,
		fsWatcher: fsw,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.eventLoop()
	return w, nil
}

func (w *DirWatcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			image := ev.Name
			switch {
			case strings.HasSuffix(image, imageSuffix+checksumSuffix):
				image = strings.TrimSuffix(image, checksumSuffix)
			case strings.HasSuffix(image, imageSuffix):
			default:
				continue
			}
			if _, err := os.Stat(image); err != nil {
				continue
			}
			if !w.busy.CompareAndSwap(false, true) {
				log.Debug().Str("path", ev.Name).Msg("update already in progress, ignoring")
				continue
			}
			w.wg.Add(1)
			go func(path string) {
				defer w.wg.Done()
				defer w.busy.Store(false)
				w.install(path)
			}(image)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("update watcher error")
		}
	}
}

func (w *DirWatcher) install(path string) {
	target, dest := TargetFirmware, w.cfg.FirmwarePath
	if strings.HasSuffix(path, filesystemSuffix) {
		target, dest = TargetFilesystem, w.cfg.FilesystemPath
	}

	want, err := readChecksum(path + checksumSuffix)
	if errors.Is(err, ErrNoChecksum) {
		log.Info().Str("path", path).Msg("image waiting for its checksum file")
		return
	}
	if err != nil {
		w.emit(Event{Kind: KindError, Target: target, Err: err})
		return
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		w.emit(Event{Kind: KindError, Target: target, Err: err})
		return
	}
	total := info.Size()
	w.emit(Event{Kind: KindStart, Target: target, Total: total})

	if err := w.copyImage(path, dest, target, total, want); err != nil {
		w.emit(Event{Kind: KindError, Target: target, Total: total, Err: err})
		return
	}
	os.Remove(path + checksumSuffix)
	os.Remove(path)
	w.emit(Event{Kind: KindEnd, Target: target, Done: total, Total: total})
}

func (w *DirWatcher) copyImage(src, dest string, target Target, total int64, want []byte) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	tmp := dest + ".new"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	h := sha256.New()
	buf := make([]byte, w.cfg.ChunkSize)
	var done int64
	lastPct := -1
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				os.Remove(tmp)
				return fmt.Errorf("write destination: %w", err)
			}
			h.Write(buf[:n])
			done += int64(n)
			ev := Event{Kind: KindProgress, Target: target, Done: done, Total: total}
			if pct := ev.Percent(); pct/10 != lastPct/10 {
				lastPct = pct
				w.emitProgress(ev)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			os.Remove(tmp)
			return fmt.Errorf("read image: %w", rerr)
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close destination: %w", err)
	}

	if !bytes.Equal(want, h.Sum(nil)) {
		os.Remove(tmp)
		return ErrChecksum
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("install image: %w", err)
	}
	return nil
}

// readChecksum parses the hex digest in path, sha256sum format.
func readChecksum(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoChecksum
	}
	if err != nil {
		return nil, fmt.Errorf("read checksum: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return nil, ErrChecksum
	}
	want, err := hex.DecodeString(fields[0])
	if err != nil || len(want) != sha256.Size {
		return nil, ErrChecksum
	}
	return want, nil
}

func (w *DirWatcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// emitProgress drops the event rather than wait for the loop to catch up.
func (w *DirWatcher) emitProgress(ev Event) {
	select {
	case w.events <- ev:
	default:
	}
}

// Handle drains buffered events without blocking.
func (w *DirWatcher) Handle() []Event {
	var out []Event
	for {
		select {
		case ev := <-w.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Close stops the watcher and waits for any installation to finish.
func (w *DirWatcher) Close() error {
	close(w.done)
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}
