package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dpup/rooftrace/server/internal/lib/area"
	"github.com/dpup/rooftrace/server/internal/lib/geo"
	"github.com/dpup/rooftrace/server/internal/lib/outline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	geoUtils := geo.NewGeoUtils()

	switch command {
	case "area":
		handleArea(geoUtils)
	case "encode-polyline":
		handleEncodePolyline(geoUtils)
	case "decode-polyline":
		handleDecodePolyline(geoUtils)
	case "kml":
		handleKML(geoUtils)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleArea(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("area", flag.ExitOnError)
	coords := fs.String("coords", "", "Vertices as \"lat,lng;lat,lng;...\"")
	polylineStr := fs.String("polyline", "", "Encoded outline (precision 6)")

	fs.Parse(os.Args[2:])

	points := readOutline(geoUtils, *coords, *polylineStr, "area")

	engine := area.NewEngine()
	result := engine.Compute(context.Background(), points)

	fmt.Printf("Outline area:\n")
	fmt.Printf("  Vertices: %d\n", len(points))
	fmt.Printf("  Area: %.2f m² (method: %s)\n", result.AreaSqm, result.Method)
	fmt.Printf("  Spherical excess: %.2f m²\n", area.SphericalArea(points))
	fmt.Printf("  Planar shoelace: %.2f m²\n", area.PlanarArea(points))
	if len(points) >= 3 {
		fmt.Printf("  Perimeter: %.2f m\n", geoUtils.RingPerimeter(points))
	}
	if centroid, ok := geoUtils.Centroid(points); ok {
		fmt.Printf("  Centroid: (%.6f, %.6f)\n", centroid.Latitude, centroid.Longitude)
	}
}

func handleEncodePolyline(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("encode-polyline", flag.ExitOnError)
	coords := fs.String("coords", "", "Vertices as \"lat,lng;lat,lng;...\"")

	fs.Parse(os.Args[2:])

	if *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-area-engine encode-polyline --coords \"-6.1754,106.82715;-6.1754,106.82724;-6.17549,106.82724;-6.17549,106.82715\"")
		os.Exit(1)
	}

	points, err := parseCoordinatePairs(*coords)
	if err != nil {
		log.Fatalf("Error parsing coordinates: %v", err)
	}
	fmt.Println(geoUtils.EncodePolyline(points))
}

func handleDecodePolyline(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("decode-polyline", flag.ExitOnError)
	polylineStr := fs.String("polyline", "", "Encoded polyline string to decode")
	verbose := fs.Bool("verbose", false, "Show all decoded points")

	fs.Parse(os.Args[2:])

	if *polylineStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-area-engine decode-polyline --polyline \"encoded_string\" --verbose")
		os.Exit(1)
	}

	points, err := geoUtils.DecodePolyline(*polylineStr)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	fmt.Printf("Polyline decoded successfully:\n")
	fmt.Printf("  Input: %s\n", *polylineStr)
	fmt.Printf("  Points: %d\n", len(points))

	if *verbose {
		for i, point := range points {
			fmt.Printf("    %d: (%.6f, %.6f)\n", i+1, point.Latitude, point.Longitude)
		}
	}
}

func handleKML(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("kml", flag.ExitOnError)
	coords := fs.String("coords", "", "Vertices as \"lat,lng;lat,lng;...\"")
	polylineStr := fs.String("polyline", "", "Encoded outline (precision 6)")
	name := fs.String("name", "Roof", "Placemark name")

	fs.Parse(os.Args[2:])

	points := readOutline(geoUtils, *coords, *polylineStr, "kml")
	areaSqm := area.NewEngine().ComputeArea(points)

	if err := outline.WriteKML(os.Stdout, *name, points, areaSqm); err != nil {
		log.Fatalf("Error writing KML: %v", err)
	}
	fmt.Println()
}

// readOutline takes the outline from --polyline or --coords
func readOutline(geoUtils geo.GeoUtils, coords, polylineStr, command string) []geo.Point {
	switch {
	case polylineStr != "":
		points, err := geoUtils.DecodePolyline(polylineStr)
		if err != nil {
			log.Fatalf("Error decoding polyline: %v", err)
		}
		return points
	case coords != "":
		points, err := parseCoordinatePairs(coords)
		if err != nil {
			log.Fatalf("Error parsing coordinates: %v", err)
		}
		return points
	}

	fmt.Println("Example usage:")
	fmt.Printf("  test-area-engine %s --coords \"-6.1754,106.82715;-6.1754,106.82724;-6.17549,106.82724;-6.17549,106.82715\"\n", command)
	fmt.Printf("  test-area-engine %s --polyline \"encoded_string\"\n", command)
	os.Exit(1)
	return nil
}

func printUsage() {
	fmt.Printf(`test-area-engine - Roof outline area testing tool

USAGE:
    test-area-engine <command> [options]

COMMANDS:
    area                Compute outline area through the tier chain
    encode-polyline     Encode coordinates as a precision 6 polyline
    decode-polyline     Decode a precision 6 polyline to coordinates
    kml                 Write the outline as KML to stdout
    help                Show this help message

EXAMPLES:
    # ~10 m square roof in Jakarta
    test-area-engine area --coords "-6.1754,106.82715;-6.1754,106.82724;-6.17549,106.82724;-6.17549,106.82715"

    # Export an outline saved by the server
    test-area-engine kml --polyline "encoded_string" --name "Rumah"
`)
}

// parseCoordinatePairs parses "lat,lng;lat,lng;..."
func parseCoordinatePairs(coordStr string) ([]geo.Point, error) {
	if coordStr == "" {
		return nil, fmt.Errorf("empty coordinate string")
	}

	pairs := strings.Split(coordStr, ";")
	points := make([]geo.Point, 0, len(pairs))

	for _, pair := range pairs {
		coords := strings.Split(strings.TrimSpace(pair), ",")
		if len(coords) != 2 {
			return nil, fmt.Errorf("invalid coordinate pair: %s", pair)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude: %s", coords[0])
		}

		lng, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude: %s", coords[1])
		}

		point, err := geo.NewPoint(lat, lng)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, pair)
		}
		points = append(points, point)
	}

	return points, nil
}
