package simulation

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/dpup/rooftrace/server/internal/lib/geo"
)

// Accepted ranges of the simulation backend
const (
	MinPanelEfficiency   = 0.15
	MaxPanelEfficiency   = 0.25
	MinSystemCostPerKwp  = 10_000_000
	MaxSystemCostPerKwp  = 25_000_000
	MinElectricityTariff = 1000
	MaxElectricityTariff = 5000
)

// Settings is the numeric configuration sent alongside the outline
type Settings struct {
	MonthlyBill       float64 `json:"monthly_bill" yaml:"monthly_bill" koanf:"monthly_bill"`
	Tilt              float64 `json:"tilt" yaml:"tilt" koanf:"tilt"`
	Azimuth           float64 `json:"azimuth" yaml:"azimuth" koanf:"azimuth"`
	PanelEfficiency   float64 `json:"panel_efficiency" yaml:"panel_efficiency" koanf:"panel_efficiency"`
	SystemCostPerKwp  float64 `json:"system_cost_per_kwp" yaml:"system_cost_per_kwp" koanf:"system_cost_per_kwp"`
	ElectricityTariff float64 `json:"electricity_tariff" yaml:"electricity_tariff" koanf:"electricity_tariff"`
}

// DefaultSettings returns a residential PLN R1 customer in Jakarta
func DefaultSettings() Settings {
	return Settings{
		MonthlyBill:       1_500_000,
		Tilt:              20,
		Azimuth:           180,
		PanelEfficiency:   0.20,
		SystemCostPerKwp:  15_000_000,
		ElectricityTariff: 1444.7,
	}
}

// Validate checks that the settings can be sent to the backend
func (s Settings) Validate() error {
	if err := s.ValidateRanges(); err != nil {
		return err
	}
	if s.MonthlyBill <= 0 {
		return fmt.Errorf("monthly_bill must be greater than 0")
	}
	return nil
}

// ValidateRanges checks the settings against the backend's accepted ranges.
// A zero monthly bill passes, it only blocks calculation.
func (s Settings) ValidateRanges() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"monthly_bill", s.MonthlyBill},
		{"tilt", s.Tilt},
		{"azimuth", s.Azimuth},
		{"panel_efficiency", s.PanelEfficiency},
		{"system_cost_per_kwp", s.SystemCostPerKwp},
		{"electricity_tariff", s.ElectricityTariff},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s must be a finite number", f.name)
		}
	}

	switch {
	case s.MonthlyBill < 0:
		return fmt.Errorf("monthly_bill must not be negative")
	case s.Tilt < 0 || s.Tilt > 90:
		return fmt.Errorf("tilt must be between 0 and 90 degrees")
	case s.Azimuth < 0 || s.Azimuth >= 360:
		return fmt.Errorf("azimuth must be in [0, 360) degrees")
	case s.PanelEfficiency < MinPanelEfficiency || s.PanelEfficiency > MaxPanelEfficiency:
		return fmt.Errorf("panel_efficiency must be between %.2f and %.2f", MinPanelEfficiency, MaxPanelEfficiency)
	case s.SystemCostPerKwp < MinSystemCostPerKwp || s.SystemCostPerKwp > MaxSystemCostPerKwp:
		return fmt.Errorf("system_cost_per_kwp must be between %d and %d", MinSystemCostPerKwp, MaxSystemCostPerKwp)
	case s.ElectricityTariff < MinElectricityTariff || s.ElectricityTariff > MaxElectricityTariff:
		return fmt.Errorf("electricity_tariff must be between %d and %d", MinElectricityTariff, MaxElectricityTariff)
	}
	return nil
}

// BuildRequest serializes the outline as ordered [lat, lng] pairs together
// with the settings
func BuildRequest(points []geo.Point, settings Settings) (CalculationRequest, error) {
	if len(points) < 3 {
		return CalculationRequest{}, ErrTooFewPoints
	}
	if err := settings.Validate(); err != nil {
		return CalculationRequest{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	return CalculationRequest{
		Polygon:           lo.Map(points, func(p geo.Point, _ int) [2]float64 { return p.Pair() }),
		BillIDR:           settings.MonthlyBill,
		Tilt:              settings.Tilt,
		Azimuth:           settings.Azimuth,
		PanelEfficiency:   settings.PanelEfficiency,
		SystemCostPerKwp:  settings.SystemCostPerKwp,
		ElectricityTariff: settings.ElectricityTariff,
	}, nil
}
