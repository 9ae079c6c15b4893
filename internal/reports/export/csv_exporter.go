package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// CSVExporter exports tables to CSV format
type CSVExporter struct {
	options CSVOptions
}

// CSVOptions configures CSV export behavior
type CSVOptions struct {
	Delimiter     rune `json:"delimiter"`      // Field delimiter (default: comma)
	UseCRLF       bool `json:"use_crlf"`       // Use \r\n for line terminator
	IncludeHeader bool `json:"include_header"` // Include column headers
}

// DefaultCSVOptions returns default CSV export options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:     ',',
		IncludeHeader: true,
	}
}

// NewCSVExporter creates a new CSV exporter
func NewCSVExporter(options CSVOptions) *CSVExporter {
	if options.Delimiter == 0 {
		options.Delimiter = ','
	}
	return &CSVExporter{options: options}
}

// Write streams t to w
func (e *CSVExporter) Write(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	writer.Comma = e.options.Delimiter
	writer.UseCRLF = e.options.UseCRLF

	if e.options.IncludeHeader {
		if err := writer.Write(t.Headers); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Export renders t as CSV bytes
func (e *CSVExporter) Export(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
