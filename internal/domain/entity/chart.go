package entity

// ChartKind enumerates the chart shapes the assistant is allowed to emit.
type ChartKind string

const (
	ChartBar     ChartKind = "bar"
	ChartLine    ChartKind = "line"
	ChartPie     ChartKind = "pie"
	ChartArea    ChartKind = "area"
	ChartScatter ChartKind = "scatter"
	ChartDonut   ChartKind = "donut"
	ChartKPI     ChartKind = "kpi"
)

// ValidKind reports whether k is one of the supported chart kinds.
func ValidKind(k ChartKind) bool {
	switch k {
	case ChartBar, ChartLine, ChartPie, ChartArea, ChartScatter, ChartDonut, ChartKPI:
		return true
	}
	return false
}

// DataPoint is one row of plottable data.
type DataPoint map[string]any

// ChartConfig carries rendering hints for the dashboard.
type ChartConfig struct {
	XAxisKey      string   `json:"xAxisKey,omitempty"`
	YAxisKey      string   `json:"yAxisKey,omitempty"`
	XAxisLabel    string   `json:"xAxisLabel,omitempty"`
	YAxisLabel    string   `json:"yAxisLabel,omitempty"`
	Colors        []string `json:"colors,omitempty"`
	ShowLegend    *bool    `json:"showLegend,omitempty"`
	ShowGrid      *bool    `json:"showGrid,omitempty"`
	ShowTooltip   *bool    `json:"showTooltip,omitempty"`
	ShowTrendLine *bool    `json:"showTrendLine,omitempty"`
	NameKey       string   `json:"nameKey,omitempty"` // pie/donut slice label key
	ValueKey      string   `json:"valueKey,omitempty"`
}

// ChartRecord is one normalized chart extracted from the assistant's reply.
// Records are immutable after parsing except for image enrichment fields.
type ChartRecord struct {
	ID          string      `json:"id"`
	Kind        ChartKind   `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	DataPoints  []DataPoint `json:"data"`
	Config      ChartConfig `json:"config"`

	// Set after the fact when the chart refers to a generated image file.
	URL    string `json:"url,omitempty"`
	Loaded bool   `json:"loaded,omitempty"`
	Error  string `json:"error,omitempty"`

	// True when the record was synthesized by the recovery pipeline rather
	// than parsed from a well-formed block.
	Recovered bool `json:"recovered,omitempty"`
}

// DefaultPalette is the fallback color list applied when a block ships none.
var DefaultPalette = []string{"#6366f1", "#22c55e", "#f59e0b", "#ef4444", "#06b6d4", "#a855f7"}
