package geo

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Point is one route location.
type Point struct {
	ID  int64
	Lat float64
	Lon float64
}

// Valid reports whether both coordinates are finite.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lon) && !math.IsInf(p.Lon, 0)
}

// Standardize rescales each axis to zero mean and unit variance using the
// population variance. An axis without variance is only centered.
func Standardize(pts []Point) []Point {
	if len(pts) == 0 {
		return nil
	}
	lat := make([]float64, len(pts))
	lon := make([]float64, len(pts))
	for i, p := range pts {
		lat[i], lon[i] = p.Lat, p.Lon
	}
	latMean, latScale := axisScale(lat)
	lonMean, lonScale := axisScale(lon)

	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{
			ID:  p.ID,
			Lat: (p.Lat - latMean) / latScale,
			Lon: (p.Lon - lonMean) / lonScale,
		}
	}
	return out
}

func axisScale(x []float64) (mean, scale float64) {
	mean, variance := stat.PopMeanVariance(x, nil)
	if variance <= 0 || math.IsNaN(variance) {
		return mean, 1
	}
	return mean, math.Sqrt(variance)
}
