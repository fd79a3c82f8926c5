// Package exporting renders the downloadable insights workbook: one
// worksheet per intervention instance with live Excel formulas, so the
// spreadsheet keeps recalculating after users tweak it offline.
package exporting

import (
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Labels lets deployments rename the organization-specific column headers.
// Empty fields keep the defaults.
type Labels struct {
	GrantCode string
	CostType  string
	SiteCode  string
	TotalCost string
}

func orDefault(override, def string) string {
	if override != "" {
		return override
	}
	return def
}

// Input is everything the workbook needs, loaded up front so the builder
// itself never touches the database.
type Input struct {
	Analysis     *models.Analysis
	Instances    []*models.InterventionInstance
	Items        []*models.CostLineItem
	TypeByID     map[int64]*models.CostType
	CatByID      map[int64]*models.Category
	Subcomponent *models.SubcomponentCostAnalysis
	CountryName  string
	AnalysisURL  string
	Labels       Labels
	Now          time.Time
}

func (in *Input) confirmedSubcomponent() bool {
	return in.Subcomponent != nil &&
		in.Subcomponent.SubcomponentLabelsConfirmed &&
		len(in.Subcomponent.SubcomponentLabels) > 0
}

// Worksheet names cannot contain these characters and cap at 30 characters
// in the Excel spec.
var invalidSheetTitle = regexp.MustCompile(`[\\/*?:\[\]]`)

// SheetTitle sanitizes an instance display name into a legal worksheet name.
func SheetTitle(name string) string {
	s := invalidSheetTitle.ReplaceAllString(name, " ")
	runes := []rune(s)
	if len(runes) > 30 {
		runes = runes[:30]
	}
	return string(runes)
}

// Filename builds the download name from the analysis title and a timestamp.
func Filename(title string, now time.Time) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "") +
		"-insights-" + now.Format("20060102-1504") + ".xlsx"
}

// BuildWorkbook renders the full workbook, one sheet per instance.
func BuildWorkbook(in *Input) (*excelize.File, error) {
	f := excelize.NewFile()
	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}
	for _, instance := range in.Instances {
		title := SheetTitle(instance.DisplayName())
		if _, err := f.NewSheet(title); err != nil {
			return nil, err
		}
		b := &sheetBuilder{f: f, sheet: title, in: in, instance: instance, st: st}
		if err := b.build(); err != nil {
			return nil, err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Write streams the workbook to w.
func Write(f *excelize.File, w io.Writer) error {
	return f.Write(w)
}

// styles holds the style ids shared by every sheet of one workbook.
type styles struct {
	bold      int
	header    int
	metaKey   int
	metaText  int
	metaNum   int
	metaDate  int
	border    int
	borderNum int
	num       int
	pct       int
	dollar    int
}

func newStyles(f *excelize.File) (*styles, error) {
	thin := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	grayFill := excelize.Fill{Type: "pattern", Color: []string{"DADADA"}, Pattern: 1}
	darkRedFill := excelize.Fill{Type: "pattern", Color: []string{"530000"}, Pattern: 1}
	left := &excelize.Alignment{Horizontal: "left"}
	numFmt := "#,##0.00"
	dateFmt := "yyyy-mm-dd"
	pctFmt := "0.00%"
	dollarFmt := "$#,##0.00"

	st := &styles{}
	var err error
	if st.bold, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return nil, err
	}
	if st.header, err = f.NewStyle(&excelize.Style{
		Fill: darkRedFill, Font: &excelize.Font{Color: "FFFFFF"}, Border: thin,
	}); err != nil {
		return nil, err
	}
	if st.metaKey, err = f.NewStyle(&excelize.Style{
		Fill: grayFill, Font: &excelize.Font{Bold: true}, Border: thin,
	}); err != nil {
		return nil, err
	}
	if st.metaText, err = f.NewStyle(&excelize.Style{
		Fill: grayFill, Border: thin, Alignment: left,
	}); err != nil {
		return nil, err
	}
	if st.metaNum, err = f.NewStyle(&excelize.Style{
		Fill: grayFill, Border: thin, Alignment: left, CustomNumFmt: &numFmt,
	}); err != nil {
		return nil, err
	}
	if st.metaDate, err = f.NewStyle(&excelize.Style{
		Fill: grayFill, Border: thin, Alignment: left, CustomNumFmt: &dateFmt,
	}); err != nil {
		return nil, err
	}
	if st.border, err = f.NewStyle(&excelize.Style{Border: thin}); err != nil {
		return nil, err
	}
	if st.borderNum, err = f.NewStyle(&excelize.Style{Border: thin, CustomNumFmt: &numFmt}); err != nil {
		return nil, err
	}
	if st.num, err = f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt}); err != nil {
		return nil, err
	}
	if st.pct, err = f.NewStyle(&excelize.Style{CustomNumFmt: &pctFmt}); err != nil {
		return nil, err
	}
	if st.dollar, err = f.NewStyle(&excelize.Style{CustomNumFmt: &dollarFmt}); err != nil {
		return nil, err
	}
	return st, nil
}

// sheetBuilder accumulates one worksheet. Cell errors are sticky so the
// table writers can stay linear.
type sheetBuilder struct {
	f        *excelize.File
	sheet    string
	in       *Input
	instance *models.InterventionInstance
	st       *styles

	maxCol int
	err    error
}

func (b *sheetBuilder) cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil && b.err == nil {
		b.err = err
	}
	return name
}

func (b *sheetBuilder) set(col, row int, value any) {
	if col > b.maxCol {
		b.maxCol = col
	}
	if err := b.f.SetCellValue(b.sheet, b.cellName(col, row), value); err != nil && b.err == nil {
		b.err = err
	}
}

func (b *sheetBuilder) formula(col, row int, expr string) {
	if col > b.maxCol {
		b.maxCol = col
	}
	if err := b.f.SetCellFormula(b.sheet, b.cellName(col, row), expr); err != nil && b.err == nil {
		b.err = err
	}
}

func (b *sheetBuilder) style(col, row, styleID int) {
	cell := b.cellName(col, row)
	if err := b.f.SetCellStyle(b.sheet, cell, cell, styleID); err != nil && b.err == nil {
		b.err = err
	}
}

func (b *sheetBuilder) value(col, row int) string {
	v, err := b.f.GetCellValue(b.sheet, b.cellName(col, row))
	if err != nil && b.err == nil {
		b.err = err
	}
	return v
}

func (b *sheetBuilder) writeHeaderRow(row int, values []string) {
	for i, v := range values {
		b.set(i+1, row, v)
		b.style(i+1, row, b.st.header)
	}
}

func (b *sheetBuilder) formattingPass() {
	if b.maxCol == 0 {
		return
	}
	last, err := excelize.ColumnNumberToName(b.maxCol)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return
	}
	if err := b.f.SetColWidth(b.sheet, "A", last, 26); err != nil && b.err == nil {
		b.err = err
	}
}
