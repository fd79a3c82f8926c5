package insights

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
	"github.com/dioptratool/dioptra-web-sub000/internal/outputmetric"
)

// BarChart holds the direct/in-kind/all percentages of one metric's
// efficiency bar. The three always sum to exactly 100.
type BarChart struct {
	DirectPercent float64 `json:"direct_percent"`
	InKindPercent float64 `json:"in_kind_percent"`
	AllPercent    float64 `json:"all_percent"`
}

// BarChartData splits one metric's total cost into its direct, in-kind and
// remaining shares. The remainder absorbs rounding noise so the bar never
// over- or under-fills.
func BarChartData(all, directOnly, inKind float64, inKindEnabled bool) BarChart {
	total := all
	if inKindEnabled {
		total += inKind
	}
	var direct, kind float64
	if total != 0 {
		direct = round2(directOnly / total * 100)
		kind = round2(inKind / total * 100)
	}
	return BarChart{
		DirectPercent: direct,
		InKindPercent: kind,
		AllPercent:    round2(100 - direct - kind),
	}
}

// BreakdownRow is one (cost type, category) slice of the spend of an
// intervention instance.
type BreakdownRow struct {
	CostTypeName   string  `json:"cost_type_name"`
	CategoryName   string  `json:"category_name"`
	Amount         float64 `json:"amount"`
	PercentOfTotal float64 `json:"percent_of_total"`
}

// PieSlice is one labelled wedge of the breakdown pie chart.
type PieSlice struct {
	Label          string  `json:"label"`
	PercentOfTotal float64 `json:"percent_of_total"`
}

// CostBreakdown is the table plus the top-5 pie chart.
type CostBreakdown struct {
	TotalCost float64         `json:"total_cost"`
	Rows      []*BreakdownRow `json:"costs_by_cost_type_category"`
	Chart     []PieSlice      `json:"chart_data"`
}

// CostBreakdownData aggregates allocated cost per (cost type, category) for
// one intervention instance. Client time and in-kind items belong to the
// other-costs table and are left out; Other HQ items keep their cost type
// but report under the pretty analysis-cost-type name.
func CostBreakdownData(items []*models.CostLineItem, typeByID map[int64]*models.CostType, catByID map[int64]*models.Category, instanceID int64) *CostBreakdown {
	type key struct {
		costType string
		category string
	}
	sums := map[key]float64{}
	var order []key
	for _, cli := range items {
		cfg := cli.Config
		if cfg == nil {
			continue
		}
		if cfg.AnalysisCostType == models.AnalysisCostClientTime ||
			cfg.AnalysisCostType == models.AnalysisCostInKind {
			continue
		}
		a := cfg.AllocationFor(instanceID)
		if a == nil {
			continue
		}
		total, _ := cli.TotalCost.Float64()
		pct, _ := a.Float64()

		k := key{costType: "Support", category: "Other Supporting Costs"}
		if cfg.CostTypeID != nil {
			if ct := typeByID[*cfg.CostTypeID]; ct != nil {
				k.costType = ct.Name
			}
		}
		if cfg.AnalysisCostType == models.AnalysisCostOtherHQ {
			k.category = cfg.AnalysisCostType.PrettyName()
		} else if cfg.CategoryID != nil {
			if cat := catByID[*cfg.CategoryID]; cat != nil {
				k.category = cat.Name
			}
		}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] += total * pct / 100
	}

	rows := make([]*BreakdownRow, 0, len(order))
	total := 0.0
	for _, k := range order {
		rows = append(rows, &BreakdownRow{CostTypeName: k.costType, CategoryName: k.category, Amount: sums[k]})
		total += sums[k]
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Amount > rows[j].Amount })
	for _, r := range rows {
		if total > 0 {
			r.PercentOfTotal = r.Amount / total * 100
		}
	}

	return &CostBreakdown{
		TotalCost: total,
		Rows:      rows,
		Chart:     breakdownChart(rows),
	}
}

// breakdownChart keeps the top five slices and lumps the rest, ICR, and
// Other Supporting Costs into "All other costs".
func breakdownChart(rows []*BreakdownRow) []PieSlice {
	var top []*BreakdownRow
	remaining := 0.0
	for _, r := range rows {
		if r.CategoryName == "ICR" || r.CategoryName == "Other Supporting Costs" || len(top) >= 5 {
			remaining += r.PercentOfTotal
			continue
		}
		top = append(top, r)
	}

	var chart []PieSlice
	for _, r := range top {
		pct := round2(r.PercentOfTotal)
		label := "< 1"
		if pct >= 1 {
			label = strconv.Itoa(int(math.Round(pct)))
		}
		chart = append(chart, PieSlice{
			Label:          fmt.Sprintf("%s (%s) %s%%", r.CategoryName, r.CostTypeName, label),
			PercentOfTotal: pct,
		})
	}
	if remaining > 0 {
		chart = append(chart, PieSlice{
			Label:          fmt.Sprintf("All other costs %d%%", int(math.Round(round2(remaining)))),
			PercentOfTotal: remaining,
		})
	}
	return chart
}

// ComparisonPoint is one bar of the cross-program comparison chart. Label
// holds one or two lines.
type ComparisonPoint struct {
	Label                []string `json:"label"`
	Grants               string   `json:"grants"`
	Description          string   `json:"description"`
	Tooltip              string   `json:"tooltip"`
	OutputCostAll        float64  `json:"output_cost_all"`
	OutputCostDirectOnly float64  `json:"output_cost_direct_only"`
	Highlight            bool     `json:"highlight"`
}

// ComparisonChartData builds the comparison bars for one metric: this
// program first (only when its results are in the default currency, so the
// numbers are comparable) followed by the curated data points, sorted by
// their worst cost per output.
func ComparisonChartData(analysis *models.Analysis, metric *outputmetric.Metric, instance *models.InterventionInstance, points []*models.InsightComparisonData, defaultCurrency string) []*ComparisonPoint {
	if len(points) == 0 {
		return nil
	}

	var data []*ComparisonPoint
	if analysis.CurrencyCode == "" || analysis.CurrencyCode == defaultCurrency {
		key := strconv.FormatInt(instance.ID, 10)
		if costs, ok := analysis.OutputCosts[key][metric.ID]; ok {
			data = append(data, &ComparisonPoint{
				Label:                []string{"This Program"},
				Grants:               strings.Join(analysis.GrantsList(), ", "),
				Description:          totalOutputDescription(metric, instance.Parameters),
				Tooltip:              analysis.Title,
				OutputCostAll:        costs.All,
				OutputCostDirectOnly: costs.DirectOnly,
				Highlight:            true,
			})
		}
	}

	for _, p := range points {
		var all, direct float64
		if costs, ok := p.OutputCosts[metric.ID]; ok {
			if v := costs["all"]; v != nil {
				all = *v
			}
			if v := costs["direct_only"]; v != nil {
				direct = *v
			}
		}
		data = append(data, &ComparisonPoint{
			Label:                chartLabelLines(p.CountryName),
			Grants:               strings.Join(splitGrants(p.Grants), ", "),
			Description:          totalOutputDescription(metric, p.Parameters),
			Tooltip:              p.Name,
			OutputCostAll:        all,
			OutputCostDirectOnly: direct,
		})
	}

	sort.SliceStable(data, func(i, j int) bool {
		a := math.Max(data[i].OutputCostAll, data[i].OutputCostDirectOnly)
		b := math.Max(data[j].OutputCostAll, data[j].OutputCostDirectOnly)
		if a != b {
			return a < b
		}
		return data[i].Grants < data[j].Grants
	})
	return data
}

func splitGrants(grants string) []string {
	var out []string
	for _, g := range strings.Split(grants, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func totalOutputDescription(metric *outputmetric.Metric, params map[string]float64) string {
	total, err := metric.TotalOutput(params)
	if err != nil {
		return fmt.Sprintf("%s: N/A", metric.OutputUnit)
	}
	if metric.OutputAsCurrency {
		return fmt.Sprintf("%s: $%s", metric.OutputUnit, formatAmount(total))
	}
	return fmt.Sprintf("%s: %s", metric.OutputUnit, formatAmount(total))
}

// chartLabelLines breaks a long country name onto two lines at the first
// space after index 20.
func chartLabelLines(s string) []string {
	if len(s) <= 25 {
		return []string{s}
	}
	from := 0
	for {
		idx := strings.Index(s[from:], " ")
		if idx < 0 {
			return []string{s}
		}
		abs := from + idx
		if abs > 20 {
			return []string{s[:abs], s[abs:]}
		}
		from = abs + 1
	}
}

// formatAmount renders a float with thousands separators and two decimals.
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.Index(s, ".")
	whole, frac := s[:dot], s[dot:]
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}

// SubcomponentBreakdownData zips the confirmed subcomponent labels with the
// cost-weighted averages, support costs included.
func SubcomponentBreakdownData(labels []string, averages []float64) map[string]float64 {
	out := map[string]float64{}
	for i, label := range labels {
		if i < len(averages) {
			out[label] = averages[i]
		}
	}
	return out
}
