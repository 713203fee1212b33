// Package settings persists the device configuration record.
//
// The record has a fixed layout, little-endian, 41 bytes:
//
//	[0:4]   format version tag
//	[4:36]  device name, UTF-8, NUL padded
//	[36:40] target brightness, float32
//	[40]    operation mode
package settings

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sweeney/light-controller/internal/logic"
)

// FormatVersion is the compiled-in schema tag. Change it whenever the
// layout changes so old records fall back to defaults.
const FormatVersion = "LC01"

const (
	versionSize = 4
	nameSize    = 32
	RecordSize  = versionSize + nameSize + 4 + 1

	nameOffset   = versionSize
	targetOffset = nameOffset + nameSize
	modeOffset   = targetOffset + 4
)

// ErrVersionMismatch is returned when the stored tag is not FormatVersion.
var ErrVersionMismatch = errors.New("settings: format version mismatch")

// Encode serializes s into a RecordSize byte record. Names longer than the
// field are cut at a rune boundary.
func Encode(s logic.Settings) []byte {
	buf := make([]byte, RecordSize)
	copy(buf[:versionSize], FormatVersion)
	copy(buf[nameOffset:nameOffset+nameSize], truncateName(s.DeviceName))
	binary.LittleEndian.PutUint32(buf[targetOffset:], math.Float32bits(float32(s.TargetBrightness)))
	buf[modeOffset] = byte(s.Mode)
	return buf
}

// Decode parses a record. A record whose tag does not match yields
// ErrVersionMismatch; out-of-range fields are pulled back into range.
func Decode(buf []byte) (logic.Settings, error) {
	if len(buf) < RecordSize {
		return logic.Settings{}, fmt.Errorf("settings: short record (%d bytes)", len(buf))
	}
	if string(buf[:versionSize]) != FormatVersion {
		return logic.Settings{}, ErrVersionMismatch
	}

	name := buf[nameOffset : nameOffset+nameSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	target := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[targetOffset:])))
	if math.IsNaN(target) || target < logic.MinTargetBrightness || target > logic.MaxTargetBrightness {
		target = logic.DefaultSettings().TargetBrightness
	}

	mode := logic.Mode(buf[modeOffset])
	if !mode.Valid() {
		mode = logic.ModeOff
	}

	return logic.Settings{
		DeviceName:       strings.ToValidUTF8(string(name), ""),
		TargetBrightness: target,
		Mode:             mode,
	}, nil
}

func truncateName(name string) string {
	if len(name) <= nameSize {
		return name
	}
	end := 0
	for i, r := range name {
		n := utf8.RuneLen(r)
		if n < 0 || i+n > nameSize {
			break
		}
		end = i + n
	}
	return name[:end]
}
