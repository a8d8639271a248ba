// Package replay feeds recorded GPX and FIT tracks to the tracker as if
// they were live location and pedometer plugins.
package replay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sstent/stridetrack-go/internal/tracking"
)

var ErrNoTrackData = errors.New("no track points found")

// Parser turns a recorded activity file into position samples.
type Parser interface {
	Parse(data []byte) ([]tracking.PositionSample, error)
}

func NewParser(fileType FileType) (Parser, error) {
	switch fileType {
	case FileTypeFIT:
		return &FITParser{}, nil
	case FileTypeGPX:
		return &GPXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", fileType)
	}
}

// Load reads a track from disk. The format is chosen by extension, falling
// back to the file contents.
func Load(path string) ([]tracking.PositionSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fileType := FileTypeUnknown
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fit":
		fileType = FileTypeFIT
	case ".gpx":
		fileType = FileTypeGPX
	default:
		fileType = DetectFileTypeFromData(data)
	}

	samples, err := parse(fileType, data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return samples, nil
}

// LoadData parses a track whose format is detected from its contents.
func LoadData(data []byte) ([]tracking.PositionSample, error) {
	return parse(DetectFileTypeFromData(data), data)
}

func parse(fileType FileType, data []byte) ([]tracking.PositionSample, error) {
	p, err := NewParser(fileType)
	if err != nil {
		return nil, err
	}
	samples, err := p.Parse(data)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNoTrackData
	}
	return normalize(samples), nil
}

// normalize orders samples by time. Tracks without timestamps are spaced
// one second apart.
func normalize(samples []tracking.PositionSample) []tracking.PositionSample {
	for _, s := range samples {
		if s.Timestamp.IsZero() {
			base := time.Unix(0, 0).UTC()
			for i := range samples {
				samples[i].Timestamp = base.Add(time.Duration(i) * time.Second)
			}
			return samples
		}
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples
}
