package replay

import (
	"fmt"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/sstent/stridetrack-go/internal/tracking"
)

// GPXParser reads track points, falling back to route points when the file
// has no tracks.
type GPXParser struct{}

func (p *GPXParser) Parse(data []byte) ([]tracking.PositionSample, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode GPX file: %w", err)
	}

	var samples []tracking.PositionSample
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			for i := range seg.Points {
				samples = append(samples, fromGPXPoint(&seg.Points[i]))
			}
		}
	}
	if len(samples) == 0 {
		for _, rte := range g.Routes {
			for i := range rte.Points {
				samples = append(samples, fromGPXPoint(&rte.Points[i]))
			}
		}
	}
	if len(samples) == 0 {
		return nil, ErrNoTrackData
	}
	return samples, nil
}

func fromGPXPoint(p *gpx.GPXPoint) tracking.PositionSample {
	s := tracking.PositionSample{
		Latitude:  p.Point.Latitude,
		Longitude: p.Point.Longitude,
		Timestamp: p.Timestamp,
	}
	if p.Elevation.NotNull() {
		alt := p.Elevation.Value()
		s.Altitude = &alt
	}
	return s
}
