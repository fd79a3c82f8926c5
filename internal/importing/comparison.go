package importing

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

const comparisonParamSlots = 4

var comparisonRequiredHeaders = []struct {
	name        string
	displayName string
}{
	{"name", "Name"},
	{"country_code", "Country Code"},
	{"grants", "Grants"},
	{"intervention_being_analyzed", "Intervention Being Analyzed"},
}

func allCostsHeader(i int) string {
	return fmt.Sprintf("cost_per_output_(including_program_costs_support_costs_and_indirect_costs)_%d", i)
}

func directOnlyHeader(i int) string {
	return fmt.Sprintf("cost_per_output_(program_costs_only)_%d", i)
}

// comparisonParser validates comparison data rows against the intervention
// and country registries.
type comparisonParser struct {
	interventions map[string]*models.Intervention
	countries     map[string]*models.Country

	rows   []map[string]any
	errors []string
}

func (p *comparisonParser) parseRow(rowNum int, record map[string]string) {
	for _, h := range comparisonRequiredHeaders {
		if record[h.name] == "" {
			p.errors = append(p.errors, errRequiredRowColumn(rowNum, h.displayName))
		}
	}
	for _, field := range []struct{ name, displayName string }{
		{"name", "Name"}, {"grants", "Grants"},
	} {
		if len(record[field.name]) > 255 {
			p.errors = append(p.errors, errValueTooLong(rowNum, field.displayName, 255))
		}
	}

	grants := splitTrimmed(record["grants"])
	for _, g := range grants {
		if len(g) > 50 {
			p.errors = append(p.errors, errValueTooLong(rowNum, "Grants", 50))
		}
	}

	country, ok := p.countries[record["country_code"]]
	if !ok {
		p.errors = append(p.errors, errInvalidRowColumn(rowNum, "Country Code", record["country_code"], "Invalid Country"))
	}

	intervention, ok := p.interventions[record["intervention_being_analyzed"]]
	if !ok {
		p.errors = append(p.errors, errInvalidRowColumn(rowNum, "Intervention Being Analyzed",
			record["intervention_being_analyzed"], "Invalid Intervention"))
		return
	}
	metrics, err := intervention.OutputMetricObjects()
	if err != nil {
		p.errors = append(p.errors, errInvalidRowGeneric(rowNum, "Unknown output metric on intervention."))
		return
	}

	// label -> parameter name across the intervention's metrics
	validParams := map[string]string{}
	var labelOrder []string
	for _, m := range metrics {
		for _, param := range m.Parameters {
			if _, seen := validParams[param.Label]; !seen {
				labelOrder = append(labelOrder, param.Label)
			}
			validParams[param.Label] = param.Name
		}
	}

	parameters := map[string]float64{}
	var seenLabels []string
	for i := 1; i <= comparisonParamSlots; i++ {
		label := record[fmt.Sprintf("output_metric_parameter_label_%d", i)]
		raw := record[fmt.Sprintf("output_metric_parameter_value_%d", i)]
		if label == "" {
			continue
		}
		seenLabels = append(seenLabels, label)
		name, ok := validParams[label]
		if !ok {
			p.errors = append(p.errors, errInvalidRowColumn(rowNum, "Output Metric Parameter Label", label,
				fmt.Sprintf("Incorrect Output Metric Parameter Label for Intervention %s.   Expected: %s  Got: %s",
					intervention.Name, strings.Join(labelOrder, ", "), label)))
			continue
		}
		if raw == "" {
			continue
		}
		value, err := Decimal4(raw)
		if err != nil {
			p.errors = append(p.errors, errInvalidRowColumn(rowNum,
				fmt.Sprintf("Output Metric Parameter Value %d", i), raw, ""))
			continue
		}
		parameters[name], _ = value.Float64()
	}

	for _, m := range metrics {
		for _, param := range m.Parameters {
			if _, ok := parameters[param.Name]; !ok {
				p.errors = append(p.errors, errMissingParameter(rowNum, param.Label))
			}
		}
	}
	if hasDuplicates(seenLabels) {
		p.errors = append(p.errors, errInvalidRowGeneric(rowNum, "Duplicate parameter labels found."))
	}

	outputCosts := map[string]map[string]*float64{}
	for i, m := range metrics {
		all := p.parseCost(rowNum, record[allCostsHeader(i+1)],
			fmt.Sprintf("Cost per output (including program costs, support costs, and indirect costs) %d", i+1))
		direct := p.parseCost(rowNum, record[directOnlyHeader(i+1)],
			fmt.Sprintf("Cost per output (program costs only) %d", i+1))
		outputCosts[m.ID] = map[string]*float64{"all": all, "direct_only": direct}
	}

	if len(p.errors) > 0 {
		return
	}
	p.rows = append(p.rows, map[string]any{
		"name":            record["name"],
		"country_id":      country.ID,
		"grants":          strings.Join(grants, ", "),
		"intervention_id": intervention.ID,
		"parameters":      parameters,
		"output_costs":    outputCosts,
	})
}

func (p *comparisonParser) parseCost(rowNum int, raw, displayName string) *float64 {
	if raw == "" {
		return nil
	}
	d, err := Dollar4(raw)
	if err != nil {
		p.errors = append(p.errors, errInvalidRowColumn(rowNum, displayName, raw, ""))
		return nil
	}
	v, _ := d.Float64()
	return &v
}

func splitTrimmed(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

func hasDuplicates(values []string) bool {
	seen := map[string]bool{}
	for _, v := range values {
		if seen[v] {
			return true
		}
		seen[v] = true
	}
	return false
}

var comparisonTableColumns = []string{
	"id", "name", "country_id", "grants", "intervention_id", "parameters", "output_costs",
}

// LoadComparisonData replaces the insight comparison data set from an
// upload. Any row error rolls back the whole import.
func LoadComparisonData(ctx context.Context, db bulkdb.Beginner, interventions map[string]*models.Intervention, countries map[string]*models.Country, f io.Reader) (bool, *Result) {
	records, keys, err := ReadRecords(f)
	if err != nil {
		return false, &Result{Errors: []string{errErrorReadingFile()}}
	}
	if len(records) == 0 {
		return false, &Result{Errors: []string{errFileEmpty()}}
	}
	if len(records) > CostLineItemRowLimit {
		return false, &Result{Errors: []string{errFileTooLarge()}}
	}
	if missing := missingComparisonHeaders(keys); len(missing) > 0 {
		return false, &Result{Errors: []string{errIncorrectHeaders(missing)}}
	}

	parser := &comparisonParser{interventions: interventions, countries: countries}
	for rowNum, record := range records {
		parser.parseRow(rowNum+1, record)
	}
	if len(parser.errors) > 0 {
		return false, &Result{Errors: parser.errors}
	}

	imported := 0
	err = bulkdb.Atomic(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM insight_comparison_data"); err != nil {
			return err
		}
		return bulkdb.WithSequenceLock(ctx, tx, "insight_comparison_data", func(seq *bulkdb.Sequence) error {
			inserter := bulkdb.NewInserter("insight_comparison_data", comparisonTableColumns...)
			for _, row := range parser.rows {
				row["id"] = seq.NextVal()
				if err := inserter.AddRow(ctx, tx, row); err != nil {
					return err
				}
				imported++
			}
			_, err := inserter.Close(ctx, tx)
			return err
		})
	})
	if err != nil {
		return false, &Result{Errors: []string{errErrorReadingFile()}}
	}
	return true, &Result{ImportedCount: imported}
}

func missingComparisonHeaders(keys []string) []string {
	present := map[string]bool{}
	for _, k := range keys {
		present[k] = true
	}
	var missing []string
	for _, h := range comparisonRequiredHeaders {
		if !present[h.name] {
			missing = append(missing, h.displayName)
		}
	}
	return missing
}
