// Package geo provides point encoding and distance calculations for owner
// locations.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID is the spatial reference of every stored point (WGS 84).
const SRID = 4326

const earthRadiusKM = 6371.0

// Point returns a WGS 84 point. go-geom orders coordinates as (x, y), so
// longitude comes first.
func Point(lat, lon float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID)
}

// EncodePoint returns the EWKB encoding of (lat, lon) with SRID 4326, ready
// for ST_GeomFromEWKB.
func EncodePoint(lat, lon float64) ([]byte, error) {
	data, err := ewkb.Marshal(Point(lat, lon), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode point")
	}
	return data, nil
}

// ValidCoords reports whether lat and lon are within WGS 84 bounds.
func ValidCoords(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DistanceKM returns the great-circle distance between two points.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Base is the reference point distances are measured from. The zero value
// disables distance calculation.
type Base struct {
	Latitude  float64
	Longitude float64
}

// Configured reports whether b holds a usable reference point.
func (b Base) Configured() bool {
	return (b.Latitude != 0 || b.Longitude != 0) && ValidCoords(b.Latitude, b.Longitude)
}

// DistanceFrom returns the distance from b to (lat, lon), rounded to 0.1 km.
// It returns nil when either coordinate is missing or b is not configured.
func (b Base) DistanceFrom(lat, lon *float64) *float64 {
	if lat == nil || lon == nil || !b.Configured() || !ValidCoords(*lat, *lon) {
		return nil
	}
	d := math.Round(DistanceKM(b.Latitude, b.Longitude, *lat, *lon)*10) / 10
	return &d
}
