package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"datalens-core/internal/domain/entity"
)

// blockRe matches one delimited chart block. Markers are case-insensitive and
// tolerate the spelling variant without underscores the model sometimes emits.
var blockRe = regexp.MustCompile(`(?is)CHART_?START(.*?)CHART_?END`)

// chartTalkRe is the heuristic used to detect prompt non-compliance: prose
// that talks about charts while emitting no parseable block.
var chartTalkRe = regexp.MustCompile(`(?i)\b(chart|graph|visualiz\w*|plot)\b`)

var genericAxisRe = regexp.MustCompile(`(?i)^[xy][\s-]?axis$`)

// ParseOptions carries parse-time context about the source dataset.
type ParseOptions struct {
	// DatasetRows is the row count of the analyzed file, 0 when unknown.
	// Scatter charts are expected to carry exactly this many points.
	DatasetRows int
}

// ParseReport is the full outcome of scanning one model reply.
type ParseReport struct {
	Charts          []entity.ChartRecord
	CleanText       string
	Warnings        []string
	PipelineFailure bool
}

// ChartParser turns free-form model output into validated chart records.
// Per-block failures are recovered through a cascading repair pipeline and
// never fail the overall response.
type ChartParser struct {
	log   *slog.Logger
	newID func() string
}

func NewChartParser(log *slog.Logger) *ChartParser {
	return &ChartParser{
		log:   log,
		newID: uuid.NewString,
	}
}

// Parse extracts every delimited chart block from text, returning normalized
// records plus the display text with block spans replaced by a short
// placeholder. With zero matches the text is returned unchanged.
func (p *ChartParser) Parse(text string, opts ParseOptions) ParseReport {
	report := ParseReport{CleanText: text}

	matches := blockRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		if chartTalkRe.MatchString(text) {
			p.log.Error("model referenced charts but emitted no parseable block",
				"text_len", len(text))
			report.PipelineFailure = true
		}
		return report
	}

	for i, m := range matches {
		inner := text[m[2]:m[3]]
		rec, warns, ok := p.parseBlock(inner, opts)
		report.Warnings = append(report.Warnings, warns...)
		if !ok {
			p.log.Warn("skipped chart block lacking required fields", "block", i+1)
			continue
		}
		report.Charts = append(report.Charts, rec)
	}

	report.CleanText = replaceBlocks(text, matches, len(report.Charts))

	if len(report.Charts) == 0 {
		p.log.Error("all delimited blocks failed extraction", "blocks", len(matches))
		report.PipelineFailure = true
		return report
	}

	p.logSummary(report, opts)
	return report
}

// parseBlock runs the repair cascade for one block. ok is false only when the
// block parses cleanly but is not a chart object at all.
func (p *ChartParser) parseBlock(inner string, opts ParseOptions) (entity.ChartRecord, []string, bool) {
	cleaned := stripCodeFences(inner)

	raw, err := strictParse(cleaned)
	if err != nil {
		raw, err = strictParse(sanitizeJSON(cleaned))
	}
	if err != nil {
		raw, err = reconstructFields(cleaned)
	}
	if err != nil {
		// Terminal stage: a placeholder so the dashboard never shows a gap.
		p.log.Warn("chart block unrecoverable, synthesizing placeholder", "error", err)
		return p.placeholderChart(), nil, true
	}

	normalized := normalizeAliases(raw)
	if !hasRequiredFields(normalized) {
		return entity.ChartRecord{}, nil, false
	}

	rec := p.buildRecord(normalized)
	warns := p.validateKind(&rec, opts)
	applyConfigDefaults(&rec)
	return rec, warns, true
}

func strictParse(s string) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// canonical field names and their accepted aliases.
var fieldAliases = map[string][]string{
	"id":          {"id", "chart_id", "chartId"},
	"type":        {"type", "chart_type", "chartType"},
	"title":       {"title", "chart_title", "chartTitle"},
	"description": {"description", "chart_description", "chartDescription"},
	"data":        {"data", "chart_data", "chartData", "dataPoints", "data_points"},
	"config":      {"config", "chart_config", "chartConfig"},
}

func normalizeAliases(raw map[string]any) map[string]any {
	out := make(map[string]any, len(fieldAliases))
	for canonical, aliases := range fieldAliases {
		for _, alias := range aliases {
			if v, ok := raw[alias]; ok {
				out[canonical] = v
				break
			}
		}
	}
	return out
}

// hasRequiredFields rejects objects that are not chart blocks. A missing id
// is tolerated (one is generated), but a block that still lacks both a type
// and a title alias after every repair stage is skipped.
func hasRequiredFields(m map[string]any) bool {
	_, hasType := m["type"]
	_, hasTitle := m["title"]
	return hasType || hasTitle
}

func (p *ChartParser) buildRecord(m map[string]any) entity.ChartRecord {
	rec := entity.ChartRecord{
		ID:          asString(m["id"]),
		Kind:        entity.ChartKind(strings.ToLower(asString(m["type"]))),
		Title:       asString(m["title"]),
		Description: asString(m["description"]),
	}
	if rec.ID == "" {
		rec.ID = p.newID()
	}
	if rec.Title == "" {
		rec.Title = "Untitled Chart"
	}

	if arr, ok := m["data"].([]any); ok {
		for _, item := range arr {
			if row, ok := item.(map[string]any); ok {
				rec.DataPoints = append(rec.DataPoints, entity.DataPoint(row))
			}
		}
	}

	if cfg, ok := m["config"].(map[string]any); ok {
		rec.Config = decodeConfig(cfg)
	}
	return rec
}

// decodeConfig tolerates snake_case config keys by re-keying to camelCase
// before decoding into the typed struct.
func decodeConfig(cfg map[string]any) entity.ChartConfig {
	rekeyed := make(map[string]any, len(cfg))
	for k, v := range cfg {
		rekeyed[snakeToCamel(k)] = v
	}
	var out entity.ChartConfig
	if raw, err := json.Marshal(rekeyed); err == nil {
		json.Unmarshal(raw, &out)
	}
	return out
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// validateKind applies the kind-specific structural checks. Violations are
// fail-open: the record is kept, the condition is logged and reported.
func (p *ChartParser) validateKind(rec *entity.ChartRecord, opts ParseOptions) []string {
	var warns []string

	if !entity.ValidKind(rec.Kind) {
		warns = append(warns, fmt.Sprintf("chart %s: unknown type %q, defaulting to bar", rec.ID, rec.Kind))
		rec.Kind = entity.ChartBar
	}

	switch rec.Kind {
	case entity.ChartScatter:
		if rec.Config.ShowTrendLine == nil {
			rec.Config.ShowTrendLine = boolPtr(true)
		}
		n := len(rec.DataPoints)
		if opts.DatasetRows > 0 && n != opts.DatasetRows {
			msg := fmt.Sprintf("chart %s: scatter has %d points but dataset has %d rows (aggregation is not permitted)",
				rec.ID, n, opts.DatasetRows)
			warns = append(warns, msg)
			p.log.Error("scatter chart point count does not match dataset",
				"chart_id", rec.ID, "points", n, "dataset_rows", opts.DatasetRows)
		} else if n <= 10 {
			msg := fmt.Sprintf("chart %s: scatter has only %d points, likely truncated", rec.ID, n)
			warns = append(warns, msg)
			p.log.Error("scatter chart looks truncated", "chart_id", rec.ID, "points", n)
		}
	case entity.ChartPie, entity.ChartBar, entity.ChartDonut:
		if len(rec.DataPoints) < 3 {
			warns = append(warns, fmt.Sprintf("chart %s: only %d categories", rec.ID, len(rec.DataPoints)))
		}
	}

	if genericAxisRe.MatchString(rec.Config.XAxisLabel) || genericAxisRe.MatchString(rec.Config.YAxisLabel) {
		warns = append(warns, fmt.Sprintf("chart %s: generic axis labels", rec.ID))
		p.log.Warn("chart uses generic axis labels", "chart_id", rec.ID,
			"x", rec.Config.XAxisLabel, "y", rec.Config.YAxisLabel)
	}

	return warns
}

func applyConfigDefaults(rec *entity.ChartRecord) {
	cfg := &rec.Config
	if len(cfg.Colors) == 0 {
		cfg.Colors = append([]string(nil), entity.DefaultPalette...)
	}
	if cfg.ShowLegend == nil {
		cfg.ShowLegend = boolPtr(true)
	}
	if cfg.ShowGrid == nil {
		cfg.ShowGrid = boolPtr(true)
	}
	if cfg.ShowTooltip == nil {
		cfg.ShowTooltip = boolPtr(true)
	}
	if rec.Kind == entity.ChartPie || rec.Kind == entity.ChartDonut {
		if cfg.NameKey == "" {
			cfg.NameKey = "name"
		}
		if cfg.ValueKey == "" {
			cfg.ValueKey = "value"
		}
	}
}

// placeholderChart is the guaranteed-success terminal repair stage.
func (p *ChartParser) placeholderChart() entity.ChartRecord {
	rec := entity.ChartRecord{
		ID:    p.newID(),
		Kind:  entity.ChartBar,
		Title: "Recovered Chart",
		Description: "This chart could not be reconstructed from the model output. " +
			"Placeholder data is shown instead.",
		DataPoints: []entity.DataPoint{
			{"category": "A", "value": 1.0},
			{"category": "B", "value": 2.0},
			{"category": "C", "value": 3.0},
		},
		Config: entity.ChartConfig{
			XAxisKey: "category",
			YAxisKey: "value",
		},
		Recovered: true,
	}
	applyConfigDefaults(&rec)
	return rec
}

// replaceBlocks substitutes the matched spans so the chat transcript stays
// readable: the first span becomes a short summary line, the rest collapse.
func replaceBlocks(text string, matches [][]int, chartCount int) string {
	var b strings.Builder
	prev := 0
	for i, m := range matches {
		b.WriteString(text[prev:m[0]])
		if i == 0 {
			fmt.Fprintf(&b, "[%d chart(s) generated]", chartCount)
		}
		prev = m[1]
	}
	b.WriteString(text[prev:])
	return strings.TrimSpace(b.String())
}

func (p *ChartParser) logSummary(report ParseReport, opts ParseOptions) {
	truncatedScatter := false
	types := make([]string, 0, len(report.Charts))
	for _, c := range report.Charts {
		types = append(types, fmt.Sprintf("%s:%d", c.Kind, len(c.DataPoints)))
		if c.Kind == entity.ChartScatter && opts.DatasetRows > 0 && len(c.DataPoints) < opts.DatasetRows {
			truncatedScatter = true
		}
	}
	p.log.Info("chart extraction complete",
		"charts", len(report.Charts),
		"types", strings.Join(types, ","),
		"warnings", len(report.Warnings),
		"truncated_scatter", truncatedScatter)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", s), "0"), ".")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func boolPtr(v bool) *bool { return &v }
