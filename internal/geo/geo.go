package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// AverageSpeedKMH is the assumed cycling speed used to derive a duration
// when the directions provider does not supply one.
const AverageSpeedKMH = 12.0

const earthRadiusKM = 6371.0

// Interpolate returns steps+1 points on the straight line from start to end,
// the first equal to start and the last equal to end. A non-positive step
// count yields just the two endpoints.
func Interpolate(start, end Coordinate, steps int) []Coordinate {
	if steps <= 0 {
		return []Coordinate{start, end}
	}
	points := make([]Coordinate, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		points = append(points, Coordinate{
			Latitude:  start.Latitude + (end.Latitude-start.Latitude)*t,
			Longitude: start.Longitude + (end.Longitude-start.Longitude)*t,
		})
	}
	points[0] = start
	points[steps] = end
	return points
}

// HaversineKM returns the great-circle distance between two points in km.
func HaversineKM(a, b Coordinate) float64 {
	latA := a.Latitude * math.Pi / 180
	latB := b.Latitude * math.Pi / 180
	dLat := latB - latA
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

// EstimateDuration derives a ride duration from a distance assuming
// AverageSpeedKMH.
func EstimateDuration(distanceKM float64) time.Duration {
	if distanceKM <= 0 {
		return 0
	}
	hours := distanceKM / AverageSpeedKMH
	return time.Duration(math.Round(hours * float64(time.Hour)))
}

// ParseHHMM decodes a cumulative ride time encoded as "HH:MM". The empty
// string decodes to zero. Hours are not capped at 24.
func ParseHHMM(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	parts := strings.Split(value, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	hours, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q: %w", value, err)
	}
	if hours < 0 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("duration %q out of range", value)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

// FormatHHMM encodes a duration as "HH:MM", truncating seconds.
func FormatHHMM(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Minutes())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatClock encodes a duration as "HH:MM:SS" for the ride HUD.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
