package replay

import (
	"bytes"
	"fmt"
	"math"

	"github.com/tormoder/fit"

	"github.com/sstent/stridetrack-go/internal/tracking"
)

type FITParser struct{}

func (p *FITParser) Parse(data []byte) ([]tracking.PositionSample, error) {
	fitFile, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode FIT file: %w", err)
	}

	activity, err := fitFile.Activity()
	if err != nil {
		return nil, fmt.Errorf("failed to get activity from FIT: %w", err)
	}

	samples := recordSamples(activity.Records)
	if len(samples) == 0 {
		return nil, ErrNoTrackData
	}
	return samples, nil
}

// recordSamples keeps the records that carry a valid position.
func recordSamples(records []*fit.RecordMsg) []tracking.PositionSample {
	var samples []tracking.PositionSample
	for _, r := range records {
		if r == nil || r.PositionLat.Invalid() || r.PositionLong.Invalid() {
			continue
		}
		lat, lon := r.PositionLat.Degrees(), r.PositionLong.Degrees()
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			continue
		}

		s := tracking.PositionSample{Latitude: lat, Longitude: lon, Timestamp: r.Timestamp}
		alt := r.GetEnhancedAltitudeScaled()
		if math.IsNaN(alt) {
			alt = r.GetAltitudeScaled()
		}
		if !math.IsNaN(alt) {
			s.Altitude = &alt
		}
		samples = append(samples, s)
	}
	return samples
}
