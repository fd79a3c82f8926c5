package outputmetric

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Param is one named numeric input of a metric, with its display label.
type Param struct {
	Name  string
	Label string
}

// Metric is one cost-per-output formula. The registry is closed: metrics are
// identified by a stable id referenced from intervention rows.
//
// Equation is the calculation over `cost_output_sum` and the parameter names.
// It is kept in source form so the spreadsheet exporter can rewrite it into a
// live Excel formula.
type Metric struct {
	ID               string
	OutputName       string
	OutputUnit       string
	OutputAsCurrency bool
	MetricName       string
	Equation         string
	Parameters       []Param

	calculate   func(cost float64, params map[string]float64) (float64, error)
	totalOutput func(params map[string]float64) (float64, error)
}

// ErrMissingParameter signals an unset or stale parameter key.
var ErrMissingParameter = errors.New("outputmetric: missing parameter")

func (m *Metric) param(params map[string]float64, name string) (float64, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s for %s", ErrMissingParameter, name, m.ID)
	}
	return v, nil
}

// Calculate evaluates the metric for one cost bucket sum.
func (m *Metric) Calculate(cost float64, params map[string]float64) (float64, error) {
	return m.calculate(cost, params)
}

// TotalOutput is the output denominator itself: the sole parameter for
// single-parameter metrics, a product for the duration metrics.
func (m *Metric) TotalOutput(params map[string]float64) (float64, error) {
	if m.totalOutput != nil {
		return m.totalOutput(params)
	}
	if len(m.Parameters) != 1 {
		return 0, fmt.Errorf("outputmetric: no total output for %s", m.ID)
	}
	return m.param(params, m.Parameters[0].Name)
}

// HasParameter reports whether the metric declares the named parameter.
func (m *Metric) HasParameter(name string) bool {
	for _, p := range m.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// ParameterLabel returns the label of the named parameter, or "".
func (m *Metric) ParameterLabel(name string) string {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p.Label
		}
	}
	return ""
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// ExcelFormula rewrites the equation into an Excel expression by
// substituting each identifier with its cell reference from paramToCell
// (which must also map "cost_output_sum"). The result is wrapped in
// IFERROR(..., 0) so an empty parameter cell degrades to zero instead of a
// #DIV/0! error. Returns "" when any identifier has no cell.
func (m *Metric) ExcelFormula(paramToCell map[string]string) string {
	incomplete := false
	expr := identifierPattern.ReplaceAllStringFunc(m.Equation, func(name string) string {
		cell, ok := paramToCell[name]
		if !ok {
			incomplete = true
			return name
		}
		return cell
	})
	if incomplete {
		return ""
	}
	return fmt.Sprintf("IFERROR(%s, 0)", expr)
}

// Slug is a URL-safe form of the output name.
func (m *Metric) Slug() string {
	s := strings.ToLower(m.OutputName)
	s = regexp.MustCompile(`[^a-z0-9]+`).ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func div(num, den float64) (float64, error) {
	if den == 0 {
		return 0, errors.New("outputmetric: division by zero")
	}
	return num / den, nil
}
