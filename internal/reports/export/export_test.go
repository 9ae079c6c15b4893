package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"admissions-portal/portal-backend/internal/reports/builder"
)

func tableResult() *builder.Result {
	return &builder.Result{
		Type: builder.VisualizationTable,
		Columns: []builder.Column{
			{Field: "first_name", Label: "First Name", Type: builder.FieldString},
			{Field: "score", Label: "Score", Type: builder.FieldNumber},
		},
		Rows: [][]string{
			{"Ada", "91.5"},
			{"Grace, Jr.", "-"},
		},
		RowCount: 2,
	}
}

func pieResult() *builder.Result {
	half := 50.0
	return &builder.Result{
		Type: builder.VisualizationPie,
		Series: []builder.Point{
			{Name: "web", Value: 2, Percentage: &half},
			{Name: "referral", Value: 2, Percentage: &half},
		},
		Total:    4,
		RowCount: 4,
	}
}

func TestFromResult_Table(t *testing.T) {
	table := FromResult("Leads", tableResult())

	assert.Equal(t, "Leads", table.Title)
	assert.Equal(t, []string{"First Name", "Score"}, table.Headers)
	assert.Len(t, table.Rows, 2)
	assert.False(t, table.GeneratedAt.IsZero())
}

func TestFromResult_PieAddsPercentage(t *testing.T) {
	table := FromResult("Sources", pieResult())

	assert.Equal(t, []string{"Name", "Value", "Percentage"}, table.Headers)
	assert.Equal(t, []string{"web", "2", "50.0%"}, table.Rows[0])
}

func TestFromResult_BarHasNoPercentage(t *testing.T) {
	result := &builder.Result{
		Type:   builder.VisualizationBar,
		Series: []builder.Point{{Name: "fall", Value: 3}},
	}
	table := FromResult("Terms", result)

	assert.Equal(t, []string{"Name", "Value"}, table.Headers)
	assert.Equal(t, [][]string{{"fall", "3"}}, table.Rows)
}

func TestCSVExporter_QuotesAndHeader(t *testing.T) {
	data, err := NewCSVExporter(DefaultCSVOptions()).Export(FromResult("Leads", tableResult()))
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"First Name", "Score"},
		{"Ada", "91.5"},
		{"Grace, Jr.", "-"},
	}, records)
}

func TestCSVExporter_WithoutHeader(t *testing.T) {
	opts := DefaultCSVOptions()
	opts.IncludeHeader = false
	opts.Delimiter = ';'

	data, err := NewCSVExporter(opts).Export(FromResult("Leads", tableResult()))
	require.NoError(t, err)
	assert.Equal(t, "Ada;91.5\nGrace, Jr.;-\n", string(data))
}

func TestExcelExporter_WritesSheets(t *testing.T) {
	data, err := NewExcelExporter(DefaultExcelOptions()).Export(
		FromResult("Leads: Fall/Spring", tableResult()),
		FromResult("Leads: Fall/Spring", pieResult()),
	)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Len(t, sheets, 2)
	assert.Equal(t, "Leads FallSpring", sheets[0])
	assert.NotEqual(t, sheets[0], sheets[1])

	header, err := f.GetCellValue(sheets[0], "A1")
	require.NoError(t, err)
	assert.Equal(t, "First Name", header)

	score, err := f.GetCellValue(sheets[0], "B2")
	require.NoError(t, err)
	assert.Equal(t, "91.5", score)
}

func TestExcelExporter_NoTables(t *testing.T) {
	_, err := NewExcelExporter(DefaultExcelOptions()).Export()
	assert.Error(t, err)
}

func TestUniqueSheetName_Truncates(t *testing.T) {
	used := map[string]bool{}
	name := uniqueSheetName("An extremely long report title that overflows", 0, used)
	assert.Len(t, []rune(name), maxSheetName)

	again := uniqueSheetName("An extremely long report title that overflows", 1, used)
	assert.LessOrEqual(t, len([]rune(again)), maxSheetName)
	assert.NotEqual(t, name, again)
}

func TestPDFGenerator_Export(t *testing.T) {
	data, err := NewPDFGenerator(DefaultPDFOptions()).Export(FromResult("Leads for Zoë", tableResult()))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestPDFGenerator_EmptyTable(t *testing.T) {
	data, err := NewPDFGenerator(DefaultPDFOptions()).Export(&Table{Title: "Empty"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestPDFGenerator_Paginates(t *testing.T) {
	result := tableResult()
	for i := 0; i < 200; i++ {
		result.Rows = append(result.Rows, []string{"Student", "70"})
	}
	data, err := NewPDFGenerator(DefaultPDFOptions()).Export(FromResult("Many", result))
	require.NoError(t, err)
	assert.Greater(t, bytes.Count(data, []byte("/Type /Page\n")), 1)
}
