package travel

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances
const EarthRadiusMeters = 6371008.8

// SpeedsKmh are the fixed per-mode speeds used for straight-line estimates
var SpeedsKmh = map[models.TravelMode]float64{
	models.ModeWalk:    4.5,
	models.ModeBicycle: 15,
	models.ModeCar:     40,
	models.ModeTaxi:    40,
	models.ModeBus:     20,
	models.ModeSubway:  30,
	models.ModeTrain:   60,
	models.ModeTransit: 25,
}

const maxPathSegments = 16

// Estimator is the single source of straight-line travel estimates
type Estimator struct {
	speeds map[models.TravelMode]float64
}

// NewEstimator returns an estimator using SpeedsKmh
func NewEstimator() *Estimator {
	return &Estimator{speeds: SpeedsKmh}
}

// Distance returns the great-circle distance between two points in meters
func Distance(a, b models.Coordinates) float64 {
	return s2.LatLngFromDegrees(a.Lat, a.Lng).Distance(s2.LatLngFromDegrees(b.Lat, b.Lng)).Radians() * EarthRadiusMeters
}

// Estimate synthesizes a straight-line segment: great-circle distance,
// duration from the mode's fixed speed, and a path interpolated along
// the great circle. The result is always marked estimated.
func (e *Estimator) Estimate(origin, dest models.Coordinates, mode models.TravelMode) models.Travel {
	meters := Distance(origin, dest)
	speed, ok := e.speeds[mode]
	if !ok {
		speed = e.speeds[models.ModeTransit]
	}

	duration := 0
	if meters > 0 {
		metersPerMinute := speed * 1000 / 60
		duration = int(math.Ceil(meters / metersPerMinute))
		if duration < 1 {
			duration = 1
		}
	}

	return models.Travel{
		Mode:            mode,
		DurationMinutes: duration,
		DistanceMeters:  int(math.Round(meters)),
		Path:            straightPath(origin, dest, meters),
		IsEstimated:     true,
	}
}

func straightPath(origin, dest models.Coordinates, meters float64) []models.Coordinates {
	segments := int(meters / 1000)
	if segments < 1 {
		segments = 1
	}
	if segments > maxPathSegments {
		segments = maxPathSegments
	}

	a := s2.PointFromLatLng(s2.LatLngFromDegrees(origin.Lat, origin.Lng))
	b := s2.PointFromLatLng(s2.LatLngFromDegrees(dest.Lat, dest.Lng))

	path := make([]models.Coordinates, 0, segments+1)
	path = append(path, origin)
	for i := 1; i < segments; i++ {
		ll := s2.LatLngFromPoint(s2.Interpolate(float64(i)/float64(segments), a, b))
		path = append(path, models.Coordinates{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()})
	}
	path = append(path, dest)
	return path
}
