package dogs

import "math"

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two points using the
// haversine formula.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// boundsAround returns a box that contains every point within radiusKm of the
// origin. Boxes that would cross a pole or the antimeridian widen to the full
// longitude range.
func boundsAround(lat, lng, radiusKm float64) Bounds {
	latDelta := radiusKm / (earthRadiusKm * math.Pi / 180)
	b := Bounds{
		MinLat: math.Max(lat-latDelta, -90),
		MaxLat: math.Min(lat+latDelta, 90),
		MinLng: -180,
		MaxLng: 180,
	}

	cos := math.Cos(radians(math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat))))
	if cos <= 0.01 {
		return b
	}
	lngDelta := latDelta / cos
	if lng-lngDelta < -180 || lng+lngDelta > 180 {
		return b
	}
	b.MinLng = lng - lngDelta
	b.MaxLng = lng + lngDelta
	return b
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
