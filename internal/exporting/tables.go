package exporting

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/dioptratool/dioptra-web-sub000/internal/allocation"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
	"github.com/dioptratool/dioptra-web-sub000/internal/outputmetric"
)

// build lays the sheet out top to bottom, then runs the second passes that
// rewrite placeholder cells into formulas referencing the tables below them.
func (b *sheetBuilder) build() error {
	metrics, err := b.instance.Intervention.OutputMetricObjects()
	if err != nil {
		return err
	}

	paramRows := map[string]int{}
	row := b.writeMetadataTable(1, metrics, paramRows)
	row += 2

	metricsAllCosts := map[string]string{}
	firstEfficiency := row
	row = b.writeCostEfficiencyTable(row, metrics, metricsAllCosts)
	row += 2

	firstSubcomponent, lastSubcomponent := 0, 0
	if b.in.confirmedSubcomponent() {
		firstSubcomponent = row
		lastSubcomponent = b.writeSubcomponentTable(row, metrics)
		row = lastSubcomponent + 2
	}

	var directCostRows []int
	firstBreakdown := row
	lastBreakdown := b.writeCostBreakdownTable(row, &directCostRows)
	row = lastBreakdown + 2

	firstFullCost := row
	lastFullCost := b.writeFullCostModelTable(row)
	row = lastFullCost + 2

	otherCostRows := map[models.AnalysisCostType][]int{
		models.AnalysisCostInKind:     nil,
		models.AnalysisCostClientTime: nil,
	}
	b.writeOtherCostModelTable(row, otherCostRows)

	b.fillCostBreakdownFormulas(firstBreakdown+2, lastBreakdown, firstFullCost+2, lastFullCost)
	b.fillCostEfficiencyFormulas(metrics, paramRows, directCostRows, otherCostRows,
		lastBreakdown, firstEfficiency+1)
	if b.in.confirmedSubcomponent() {
		b.fillSubcomponentFormulas(metricsAllCosts, firstSubcomponent+1, lastSubcomponent,
			firstFullCost+2, lastFullCost)
	}

	b.formattingPass()
	return b.err
}

// writeMetadataTable fills the key/value block in the upper left corner and
// records the row of each output metric parameter for the formula passes.
// Returns the first row below the table.
func (b *sheetBuilder) writeMetadataTable(startRow int, metrics []*outputmetric.Metric, paramRows map[string]int) int {
	a := b.in.Analysis

	type entry struct {
		key   string
		value any
		date  bool
		money bool
	}
	entries := []entry{
		{key: "Analysis Title", value: a.Title},
		{key: "Analysis Description", value: a.Description},
		{key: "Analysis Start Date", value: a.StartDate, date: true},
		{key: "Analysis End Date", value: a.EndDate, date: true},
		{key: "Country", value: b.in.CountryName},
		{key: orDefault(b.in.Labels.GrantCode, "Grants"), value: strings.Join(a.GrantsList(), ", ")},
		{key: "Intervention Being Analyzed", value: b.instance.DisplayName()},
	}

	seen := map[string]bool{}
	for _, m := range metrics {
		for _, p := range m.Parameters {
			v, ok := b.instance.Parameters[p.Name]
			if !ok || seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			paramRows[p.Name] = startRow + len(entries)
			money := p.Label == "Value of Cash Distributed" || p.Label == "Value of Business Grant Amount"
			entries = append(entries, entry{key: p.Label, value: v, money: money})
		}
	}

	entries = append(entries,
		entry{key: "Currency", value: CurrencyName(a.CurrencyCode)},
		entry{key: "Owner", value: a.Owner},
		entry{key: "Analysis URL", value: b.in.AnalysisURL},
	)

	row := startRow
	for _, e := range entries {
		b.set(1, row, e.key)
		b.style(1, row, b.st.metaKey)
		switch {
		case e.money:
			b.set(2, row, CurrencySymbol(a.CurrencyCode)+formatCurrencyValue(e.value.(float64)))
			b.style(2, row, b.st.metaText)
		case e.date:
			b.set(2, row, e.value)
			b.style(2, row, b.st.metaDate)
		default:
			b.set(2, row, e.value)
			b.style(2, row, b.st.metaNum)
		}
		row++
	}
	return row
}

// writeCostEfficiencyTable writes the static cost-per-output rows. The
// values are the cached calculation results; the fill pass replaces them
// with live formulas. metricsAllCosts records the cell of each metric's
// all-costs value for the subcomponent formulas. Returns the first row
// below the table.
func (b *sheetBuilder) writeCostEfficiencyTable(startRow int, metrics []*outputmetric.Metric, metricsAllCosts map[string]string) int {
	a := b.in.Analysis
	row := startRow
	b.set(1, row, "Cost Efficiency")
	b.style(1, row, b.st.bold)
	row++

	outputCosts := a.OutputCosts[strconv.FormatInt(b.instance.ID, 10)]
	for idx, m := range metrics {
		costs, ok := outputCosts[m.ID]
		if !ok {
			continue
		}
		b.set(1, row, m.MetricName+" Program Costs only")
		b.style(1, row, b.st.border)
		b.set(2, row, costs.DirectOnly)
		b.style(2, row, b.st.border)
		row++

		b.set(1, row, m.MetricName+" including Program Costs, Support Costs, Indirect Costs")
		b.style(1, row, b.st.border)
		metricsAllCosts[m.MetricName] = "B" + strconv.Itoa(row)
		b.set(2, row, costs.All)
		b.style(2, row, b.st.border)
		row++

		if a.InKindContributions {
			b.set(1, row, m.MetricName+" including Program Costs, Support Costs, Indirect Costs, In-Kind Contributions")
			b.style(1, row, b.st.border)
			b.set(2, row, costs.InKind)
			b.style(2, row, b.st.border)
			row++
		}
		if a.ClientTime && idx == len(metrics)-1 {
			b.set(1, row, "Total Cost of Client Time")
			b.style(1, row, b.st.border)
			b.set(2, row, costs.Client)
			b.style(2, row, b.st.border)
			row++
		}
	}
	return row
}

// writeSubcomponentTable writes one "Cost of Each Sub-component" block per
// output metric. Column B holds the metric name as a placeholder that the
// formula pass rewrites. Returns the first row below the table.
func (b *sheetBuilder) writeSubcomponentTable(startRow int, metrics []*outputmetric.Metric) int {
	labels := b.in.Subcomponent.SubcomponentLabels
	percentages := allocation.SubcomponentAverage(b.in.Items, b.in.TypeByID, false)

	row := startRow
	for _, m := range metrics {
		b.set(1, row, "Cost of Each Sub-component, per "+m.OutputName)
		b.style(1, row, b.st.bold)
		row++
		for idx := range percentages {
			label := ""
			if idx < len(labels) {
				label = labels[idx]
			}
			b.set(1, row, label)
			b.style(1, row, b.st.border)
			b.set(2, row, m.MetricName)
			b.style(2, row, b.st.border)
			row++
		}
	}
	return row
}

// breakdownGroup is one (cost type, category) slice of the total spend.
type breakdownGroup struct {
	costTypeName string
	categoryName string
	analysisCost models.AnalysisCostType
	costTypeType int
	sum          float64
}

func (b *sheetBuilder) breakdownGroups() []*breakdownGroup {
	type key struct {
		costType     string
		category     string
		analysisCost models.AnalysisCostType
		ctType       int
	}
	sums := map[key]*breakdownGroup{}
	var order []*breakdownGroup
	for _, cli := range b.in.Items {
		cfg := cli.Config
		if cfg == nil {
			continue
		}
		k := key{analysisCost: cfg.AnalysisCostType}
		if cfg.CostTypeID != nil {
			if ct := b.in.TypeByID[*cfg.CostTypeID]; ct != nil {
				k.costType = ct.Name
				k.ctType = ct.Type
			}
		}
		if cfg.CategoryID != nil {
			if cat := b.in.CatByID[*cfg.CategoryID]; cat != nil {
				k.category = cat.Name
			}
		}
		g, ok := sums[k]
		if !ok {
			g = &breakdownGroup{
				costTypeName: k.costType,
				categoryName: k.category,
				analysisCost: k.analysisCost,
				costTypeType: k.ctType,
			}
			sums[k] = g
			order = append(order, g)
		}
		g.sum += cli.AllocatedCost().InexactFloat64()
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].sum > order[j].sum })
	return order
}

// writeCostBreakdownTable writes the breakdown table with zero placeholders
// in the Amount columns; the fill pass turns them into SUMIFS over the cost
// model. Program cost rows are recorded in directCostRows. Returns the row
// of the trailing SUM line.
func (b *sheetBuilder) writeCostBreakdownTable(startRow int, directCostRows *[]int) int {
	row := startRow
	b.set(1, row, "Cost Breakdown")
	b.style(1, row, b.st.bold)
	row++

	b.writeHeaderRow(row, []string{
		orDefault(b.in.Labels.CostType, "Cost Type"),
		"Category",
		"Amount",
		"% Of Total Amount",
	})
	row++

	firstData := row
	for _, g := range b.breakdownGroups() {
		costTypeName := g.costTypeName
		if costTypeName == "" {
			costTypeName = "Support"
		}
		categoryName := "Other Supporting Costs"
		if g.categoryName != "" {
			categoryName = g.categoryName
		} else if g.analysisCost != models.AnalysisCostNone {
			if g.analysisCost == models.AnalysisCostClientTime || g.analysisCost == models.AnalysisCostInKind {
				continue
			}
			categoryName = g.analysisCost.PrettyName()
		}

		b.set(1, row, costTypeName)
		b.style(1, row, b.st.border)
		b.set(2, row, categoryName)
		b.style(2, row, b.st.border)
		b.set(3, row, 0)
		b.style(3, row, b.st.borderNum)
		b.set(4, row, 0)
		b.style(4, row, b.st.borderNum)

		if g.costTypeType == models.TypeProgramCost {
			*directCostRows = append(*directCostRows, row)
		}
		row++
	}
	b.formula(3, row, fmt.Sprintf("SUM(C%d:C%d)", firstData, row-1))
	b.style(3, row, b.st.borderNum)
	b.formula(4, row, fmt.Sprintf("SUM(D%d:D%d)", firstData, row-1))
	b.style(4, row, b.st.borderNum)
	return row
}

// fullCostModelItems returns every CLI except the in-kind and client time
// ones, ordered by this instance's allocated cost, largest first.
func (b *sheetBuilder) fullCostModelItems() []*models.CostLineItem {
	var out []*models.CostLineItem
	allocated := map[int64]float64{}
	for _, cli := range b.in.Items {
		cfg := cli.Config
		if cfg != nil && (cfg.AnalysisCostType == models.AnalysisCostInKind ||
			cfg.AnalysisCostType == models.AnalysisCostClientTime) {
			continue
		}
		cost := 0.0
		if cfg != nil {
			if a := cfg.AllocationFor(b.instance.ID); a != nil {
				cost = cli.TotalCost.Mul(*a).Div(decimal.NewFromInt(100)).InexactFloat64()
			}
		}
		allocated[cli.ID] = cost
		out = append(out, cli)
	}
	sort.SliceStable(out, func(i, j int) bool { return allocated[out[i].ID] > allocated[out[j].ID] })
	return out
}

// writeFullCostModelTable writes the per-line-item cost model. Item Total is
// a live formula over the Total Cost and allocation columns; when the
// subcomponent analysis is confirmed each subcomponent adds a percentage and
// a total column pair. Returns the first row below the table.
func (b *sheetBuilder) writeFullCostModelTable(startRow int) int {
	row := startRow
	b.set(1, row, "Cost Model")
	b.style(1, row, b.st.bold)
	row++

	header := []string{
		orDefault(b.in.Labels.CostType, "Cost Type"),
		"Category",
		"Cost Item",
		orDefault(b.in.Labels.GrantCode, "Grant"),
		"Sector Code",
		orDefault(b.in.Labels.SiteCode, "Site"),
		orDefault(b.in.Labels.TotalCost, "Total Cost"),
		"% to Intervention",
		"Notes",
		"Item Total",
	}
	confirmed := b.in.confirmedSubcomponent()
	if confirmed {
		for _, label := range b.in.Subcomponent.SubcomponentLabels {
			header = append(header, label, label+" Total")
		}
	}
	b.writeHeaderRow(row, header)
	row++

	hundred := decimal.NewFromInt(100)
	for _, cli := range b.fullCostModelItems() {
		cfg := cli.Config

		costTypeName := "Support"
		categoryName := "Other Supporting Costs"
		allocationPct := 0.0
		if cfg != nil {
			if cfg.CostTypeID != nil {
				if ct := b.in.TypeByID[*cfg.CostTypeID]; ct != nil {
					costTypeName = ct.Name
				}
			} else if cfg.AnalysisCostType != models.AnalysisCostNone {
				costTypeName = cfg.AnalysisCostType.PrettyName()
			}
			if cfg.CategoryID != nil {
				if cat := b.in.CatByID[*cfg.CategoryID]; cat != nil {
					categoryName = cat.Name
				}
			} else if cfg.AnalysisCostType != models.AnalysisCostNone {
				categoryName = cfg.AnalysisCostType.PrettyName()
			}
			if a := cfg.AllocationFor(b.instance.ID); a != nil {
				allocationPct = a.InexactFloat64()
			}
		}

		b.set(1, row, costTypeName)
		b.set(2, row, categoryName)
		b.set(3, row, cli.BudgetLineDescription)
		b.set(4, row, cli.GrantCode)
		b.set(5, row, cli.SectorCode)
		b.set(6, row, cli.SiteCode)
		b.set(7, row, cli.TotalCost.InexactFloat64())
		b.style(7, row, b.st.num)
		b.set(8, row, allocationPct)
		b.style(8, row, b.st.num)
		b.set(9, row, cli.Note)
		b.formula(10, row, fmt.Sprintf("(G%d * H%d)/100", row, row))
		b.style(10, row, b.st.num)

		if confirmed && cfg != nil && len(cfg.SubcomponentAnalysisAllocations) > 0 {
			for idxStr, raw := range cfg.SubcomponentAnalysisAllocations {
				idx, err := strconv.Atoi(idxStr)
				if err != nil {
					continue
				}
				pct, err := decimal.NewFromString(raw)
				if err != nil {
					pct = decimal.Zero
				}
				pctCol := 11 + idx*2
				pctColName, _ := excelize.ColumnNumberToName(pctCol)
				b.set(pctCol, row, pct.Div(hundred).InexactFloat64())
				b.style(pctCol, row, b.st.pct)
				b.formula(pctCol+1, row, fmt.Sprintf("J%d * %s%d", row, pctColName, row))
				b.style(pctCol+1, row, b.st.num)
			}
		}
		row++
	}
	return row
}

// otherCostItems returns the in-kind and client time CLIs allocated to this
// instance, ordered by kind then description.
func (b *sheetBuilder) otherCostItems() []*models.CostLineItem {
	var out []*models.CostLineItem
	for _, cli := range b.in.Items {
		cfg := cli.Config
		if cfg == nil {
			continue
		}
		if cfg.AnalysisCostType != models.AnalysisCostInKind &&
			cfg.AnalysisCostType != models.AnalysisCostClientTime {
			continue
		}
		assigned := false
		for _, a := range cfg.Allocations {
			if a.InterventionInstanceID == b.instance.ID {
				assigned = true
				break
			}
		}
		if assigned {
			out = append(out, cli)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Config.AnalysisCostType != out[j].Config.AnalysisCostType {
			return out[i].Config.AnalysisCostType < out[j].Config.AnalysisCostType
		}
		return out[i].BudgetLineDescription < out[j].BudgetLineDescription
	})
	return out
}

// writeOtherCostModelTable writes the in-kind and client time items. An
// undecided allocation counts as 100%. The rows are recorded per kind for
// the efficiency formulas. Returns the first row below the table.
func (b *sheetBuilder) writeOtherCostModelTable(startRow int, otherCostRows map[models.AnalysisCostType][]int) int {
	a := b.in.Analysis
	row := startRow
	if !a.ClientTime && !a.InKindContributions {
		return row
	}

	b.set(1, row, "Other HQ Costs")
	b.style(1, row, b.st.bold)
	row++
	b.writeHeaderRow(row, []string{
		"Category", "Cost Item", "Total Cost", "% of Intervention", "Item Total", "Notes",
	})
	row++

	for _, cli := range b.otherCostItems() {
		cfg := cli.Config
		coalesced := 100.0
		if al := cfg.AllocationFor(b.instance.ID); al != nil {
			coalesced = al.InexactFloat64()
		}
		b.set(1, row, cfg.AnalysisCostType.PrettyName())
		b.set(2, row, cli.BudgetLineDescription)
		b.set(3, row, cli.TotalCost.InexactFloat64())
		b.style(3, row, b.st.num)
		b.set(4, row, coalesced)
		b.style(4, row, b.st.num)
		b.formula(5, row, fmt.Sprintf("(C%d * D%d)/100", row, row))
		b.style(5, row, b.st.num)
		b.set(6, row, cli.Note)

		if _, ok := otherCostRows[cfg.AnalysisCostType]; ok {
			otherCostRows[cfg.AnalysisCostType] = append(otherCostRows[cfg.AnalysisCostType], row)
		}
		row++
	}
	return row
}

// fillCostBreakdownFormulas rewrites the breakdown Amount columns into
// SUMIFS over the cost model's Item Total column, matched on cost type and
// category.
func (b *sheetBuilder) fillCostBreakdownFormulas(firstData, lastData, fcmFirst, fcmLast int) {
	for row := firstData; row < lastData; row++ {
		b.formula(3, row, fmt.Sprintf(
			"SUMIFS(J%d:J%d, A%d:A%d, A%d, B%d:B%d, B%d)",
			fcmFirst, fcmLast, fcmFirst, fcmLast, row, fcmFirst, fcmLast, row))
		b.formula(4, row, fmt.Sprintf(
			"C%d/SUM(J%d:J%d) * 100", row, fcmFirst, fcmLast))
	}
}

// fillCostEfficiencyFormulas rewrites the efficiency values into each
// metric's equation over the breakdown and other-cost cells, wrapped in
// FIXED so the sheet shows two decimals.
func (b *sheetBuilder) fillCostEfficiencyFormulas(metrics []*outputmetric.Metric, paramRows map[string]int, directCostRows []int, otherCostRows map[models.AnalysisCostType][]int, fullCostRow, efficiencyRow int) {
	a := b.in.Analysis

	directCells := joinCells("C", directCostRows)
	inKindCells := joinCells("E", otherCostRows[models.AnalysisCostInKind])
	clientCells := joinCells("E", otherCostRows[models.AnalysisCostClientTime])

	for idx, m := range metrics {
		paramToCell := map[string]string{}
		for _, p := range m.Parameters {
			if r, ok := paramRows[p.Name]; ok {
				paramToCell[p.Name] = "B" + strconv.Itoa(r)
			}
		}

		paramToCell["cost_output_sum"] = "SUM(" + directCells + ")"
		eq1 := m.ExcelFormula(paramToCell)
		if eq1 != "" {
			b.formula(2, efficiencyRow, "FIXED("+eq1+", 2)")
			efficiencyRow++
		}

		paramToCell["cost_output_sum"] = "C" + strconv.Itoa(fullCostRow)
		eq2 := m.ExcelFormula(paramToCell)
		if eq2 != "" {
			b.formula(2, efficiencyRow, "FIXED("+eq2+", 2)")
			efficiencyRow++
		}

		if a.InKindContributions {
			paramToCell["cost_output_sum"] = "SUM(" + inKindCells + ")"
			eq3 := m.ExcelFormula(paramToCell)
			if eq3 != "" {
				b.formula(2, efficiencyRow, fmt.Sprintf("FIXED((%s) + (%s), 2)", eq2, eq3))
				efficiencyRow++
			}
		}

		if a.ClientTime && idx == len(metrics)-1 {
			b.formula(2, efficiencyRow, fmt.Sprintf("FIXED(SUM(%s), 2)", clientCells))
			efficiencyRow++
		}
	}
}

// fillSubcomponentFormulas rewrites the metric-name placeholders into the
// metric's all-costs value scaled by the subcomponent's share of the cost
// model's allocated total.
func (b *sheetBuilder) fillSubcomponentFormulas(metricsAllCosts map[string]string, firstData, lastData, fcmFirst, fcmLast int) {
	var headers []string
	for col := 1; ; col++ {
		v := b.value(col, fcmFirst-1)
		if v == "" {
			break
		}
		headers = append(headers, v)
	}

	for row := firstData; row < lastData; row++ {
		colIdx := -1
		want := b.value(1, row) + " Total"
		for i, h := range headers {
			if h == want {
				colIdx = i
				break
			}
		}
		if colIdx < 0 {
			// A block title row for the next output metric.
			continue
		}
		colName, err := excelize.ColumnNumberToName(colIdx + 1)
		if err != nil {
			if b.err == nil {
				b.err = err
			}
			return
		}

		if cell, ok := metricsAllCosts[b.value(2, row)]; ok {
			b.formula(2, row, fmt.Sprintf(
				"%s * SUM(%s%d:%s%d) / SUMIFS(J%d:J%d,%s%d:%s%d, \"<>\")",
				cell, colName, fcmFirst, colName, fcmLast,
				fcmFirst, fcmLast, colName, fcmFirst, colName, fcmLast))
		} else {
			b.set(2, row, "")
		}
		b.style(2, row, b.st.dollar)
	}
}

func joinCells(column string, rows []int) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = column + strconv.Itoa(r)
	}
	return strings.Join(parts, ", ")
}
