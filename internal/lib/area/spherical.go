package area

import (
	"math"

	"github.com/dpup/rooftrace/server/internal/lib/geo"
)

// SphericalArea sums the spherical excess of the fan triangles (0, i, i+1).
// Each triangle is signed by its winding, so fan triangles that fall outside
// a concave outline cancel. Exact for simple polygons on a sphere of radius
// geo.EarthRadius, whatever their size.
func SphericalArea(points []geo.Point) float64 {
	if len(points) < 3 {
		return 0
	}

	origin := unitVector(points[0])
	var total float64
	for i := 1; i < len(points)-1; i++ {
		area := sphericalTriangleArea(points[0], points[i], points[i+1])
		if orientation(origin, unitVector(points[i]), unitVector(points[i+1])) < 0 {
			area = -area
		}
		total += area
	}
	return math.Abs(total)
}

// unitVector places p on the unit sphere
func unitVector(p geo.Point) [3]float64 {
	lat, lng := toRadians(p.Latitude), toRadians(p.Longitude)
	return [3]float64{
		math.Cos(lat) * math.Cos(lng),
		math.Cos(lat) * math.Sin(lng),
		math.Sin(lat),
	}
}

// orientation is the triple product a·(b×c): positive when a, b, c wind
// counter-clockwise seen from outside the sphere
func orientation(a, b, c [3]float64) float64 {
	return a[0]*(b[1]*c[2]-b[2]*c[1]) +
		a[1]*(b[2]*c[0]-b[0]*c[2]) +
		a[2]*(b[0]*c[1]-b[1]*c[0])
}

// sphericalTriangleArea applies L'Huilier's theorem to the triangle's angular
// side lengths
func sphericalTriangleArea(a, b, c geo.Point) float64 {
	sideA := geo.CentralAngle(b, c)
	sideB := geo.CentralAngle(a, c)
	sideC := geo.CentralAngle(a, b)

	s := (sideA + sideB + sideC) / 2

	// tan(E/4) = sqrt(tan(s/2) tan((s-A)/2) tan((s-B)/2) tan((s-C)/2))
	radicand := math.Tan(s/2) *
		math.Tan((s-sideA)/2) *
		math.Tan((s-sideB)/2) *
		math.Tan((s-sideC)/2)
	// Degenerate triangles can round to a tiny negative product.
	radicand = math.Max(0, radicand)

	excess := 4 * math.Atan(math.Sqrt(radicand))
	return geo.EarthRadius * geo.EarthRadius * excess
}
