package catalog

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r RowReader) []*RawRow {
	t.Helper()
	var rows []*RawRow
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestCSVRowReader_BasicRows(t *testing.T) {
	input := "sku,name,price\nWB-01,Backpack,36.00\nWB-02,Tote,29.50\n"

	reader, err := NewCSVRowReader(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"sku", "name", "price"}, reader.Headers())

	rows := readAll(t, reader)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "WB-01", rows[0].Get("sku"))
	assert.Equal(t, "Backpack", rows[0].Get("name"))
	assert.Equal(t, 3, rows[1].Line)
	assert.Equal(t, "Tote", rows[1].Get("name"))
}

func TestCSVRowReader_NormalizesHeaders(t *testing.T) {
	input := "SKU *, Name ,price\nWB-01,Backpack,36.00\n"

	reader, err := NewCSVRowReader(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"sku", "name", "price"}, reader.Headers())

	rows := readAll(t, reader)
	require.Len(t, rows, 1)
	assert.Equal(t, "WB-01", rows[0].Get("sku"))
}

func TestCSVRowReader_QuotedFields(t *testing.T) {
	input := `sku,name,description
WB-01,"Backpack, waxed","Line one
line two with ""quotes"""
`

	reader, err := NewCSVRowReader(strings.NewReader(input))
	require.NoError(t, err)

	rows := readAll(t, reader)
	require.Len(t, rows, 1)
	assert.Equal(t, "Backpack, waxed", rows[0].Get("name"))
	assert.Equal(t, "Line one\nline two with \"quotes\"", rows[0].Get("description"))
}

func TestCSVRowReader_ShortAndLongRows(t *testing.T) {
	input := "sku,name,price\nWB-01,Backpack\nWB-02,Tote,29.50,extra\n"

	reader, err := NewCSVRowReader(strings.NewReader(input))
	require.NoError(t, err)

	rows := readAll(t, reader)
	require.Len(t, rows, 2)
	// Missing trailing cells read as empty; extra cells are dropped.
	assert.Equal(t, "", rows[0].Get("price"))
	assert.Equal(t, "29.50", rows[1].Get("price"))
}

func TestCSVRowReader_MissingHeader(t *testing.T) {
	_, err := NewCSVRowReader(strings.NewReader(""))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Error(), "missing header row")
}

func TestCSVRowReader_UnterminatedQuote(t *testing.T) {
	input := "sku,name\nWB-01,\"Backpack\n"

	reader, err := NewCSVRowReader(strings.NewReader(input))
	require.NoError(t, err)

	_, err = reader.Next()
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 2, parseErr.Line)
}

func TestCSVRowReader_TrimsCells(t *testing.T) {
	input := "sku,name\n  WB-01 , Backpack \n"

	reader, err := NewCSVRowReader(strings.NewReader(input))
	require.NoError(t, err)

	rows := readAll(t, reader)
	require.Len(t, rows, 1)
	assert.Equal(t, "WB-01", rows[0].Get("sku"))
	assert.Equal(t, "Backpack", rows[0].Get("name"))
}

func TestCSVRowReader_LineNumbersSpanQuotedNewlines(t *testing.T) {
	input := "sku,name\nWB-01,\"Two\nline name\"\nWB-02,Solo\n"

	reader, err := NewCSVRowReader(strings.NewReader(input))
	require.NoError(t, err)

	rows := readAll(t, reader)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Line)
	// The second record starts on physical line 4, past the two-line field.
	assert.Equal(t, 4, rows[1].Line)
}

func TestCSVRowReader_ErrorLineAfterQuotedNewlines(t *testing.T) {
	input := "sku,name\nWB-01,\"Two\nline name\"\nWB-02,\"Broken\n"

	reader, err := NewCSVRowReader(strings.NewReader(input))
	require.NoError(t, err)

	_, err = reader.Next()
	require.NoError(t, err)

	_, err = reader.Next()
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 4, parseErr.Line)
}
