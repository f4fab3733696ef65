package simulation

// CalculationRequest is the body accepted by POST /api/v1/simulation/calculate
type CalculationRequest struct {
	Polygon           [][2]float64 `json:"polygon"` // [lat, lng] in outline order
	BillIDR           float64      `json:"bill_idr"`
	Tilt              float64      `json:"tilt"`
	Azimuth           float64      `json:"azimuth"`
	PanelEfficiency   float64      `json:"panel_efficiency,omitempty"`
	SystemCostPerKwp  float64      `json:"system_cost_per_kwp,omitempty"`
	ElectricityTariff float64      `json:"electricity_tariff,omitempty"`
}

// Results is the simulation payload. Only the fields the UI reads are
// modelled; unknown fields are ignored.
type Results struct {
	SiteDetails  SiteDetails  `json:"site_details"`
	EnergyOutput EnergyOutput `json:"energy_output"`
	Financials   Financials   `json:"financials"`
	Environment  Environment  `json:"environment"`
	Meta         Meta         `json:"meta"`
}

// SiteDetails describes the roof as seen by the simulation
type SiteDetails struct {
	RoofAreaSqm    float64         `json:"roof_area_sqm"`
	Location       string          `json:"location"`
	PanelLayout    *PanelLayout    `json:"panel_layout,omitempty"`
	DetailedLosses *DetailedLosses `json:"detailed_losses,omitempty"`
}

// PanelLayout is the panel grid fitted onto the roof
type PanelLayout struct {
	TotalPanels        int     `json:"total_panels"`
	Rows               int     `json:"rows"`
	Columns            int     `json:"columns"`
	CoveragePercentage float64 `json:"coverage_percentage"`
	LayoutWidthM       float64 `json:"layout_width_m"`
	LayoutHeightM      float64 `json:"layout_height_m"`
}

// DetailedLosses breaks down the system losses in percent
type DetailedLosses struct {
	TemperatureLossPercent float64 `json:"temperature_loss_percent"`
	SoilingLossPercent     float64 `json:"soiling_loss_percent"`
	WiringLossPercent      float64 `json:"wiring_loss_percent"`
	InverterLossPercent    float64 `json:"inverter_loss_percent"`
	OrientationLossPercent float64 `json:"orientation_loss_percent"`
	TotalDCLossesPercent   float64 `json:"total_dc_losses_percent"`
	PerformanceRatio       float64 `json:"performance_ratio"`
}

// EnergyOutput is the expected production of the recommended system
type EnergyOutput struct {
	RecommendedSystemSizeKwp float64           `json:"recommended_system_size_kwp"`
	DailyProductionKwh       float64           `json:"daily_production_kwh"`
	AnnualProductionKwh      float64           `json:"annual_production_kwh"`
	MonthlyBreakdown         *MonthlyBreakdown `json:"monthly_breakdown,omitempty"`
}

// MonthlyBreakdown lists production per month
type MonthlyBreakdown struct {
	Months      []MonthlyProduction `json:"monthly_breakdown"`
	PeakMonth   string              `json:"peak_month"`
	LowestMonth string              `json:"lowest_month"`
}

// MonthlyProduction is the energy produced in one month
type MonthlyProduction struct {
	Month            string  `json:"month"`
	MonthlyEnergyKwh float64 `json:"monthly_energy_kwh"`
}

// Financials are cost and payback figures in IDR
type Financials struct {
	EstimatedSystemCostIDR float64 `json:"estimated_system_cost_idr"`
	AnnualSavingsIDR       float64 `json:"annual_savings_idr"`
	BreakEvenPointYears    float64 `json:"break_even_point_years"`
}

// Environment holds the environmental impact
type Environment struct {
	CO2OffsetTon float64 `json:"co2_offset_ton"`
}

// Meta describes how the result was produced
type Meta struct {
	WeatherSource        string `json:"weather_source"`
	CalculationTimestamp string `json:"calculation_timestamp"` // ISO 8601, zone optional
}

// Usable reports whether the payload carries a result worth showing
func (r *Results) Usable() bool {
	return r != nil && r.SiteDetails.RoofAreaSqm > 0 && r.EnergyOutput.RecommendedSystemSizeKwp > 0
}
