package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/esg-scorecard/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createTestXLSX(t *testing.T, sheet string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	s, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, rowData := range rows {
		row := s.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "facts.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"facts.csv", FormatCSV, false},
		{"FACTS.CSV", FormatCSV, false},
		{"facts.xlsx", FormatXLSX, false},
		{"facts.json", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFacts_CSV(t *testing.T) {
	path := writeFile(t, "facts.csv", `# quarterly upload
Organization ID,Reporting Period,Form Field,Field Value,Is KPI
1,2024-01-01,petrol_consumption,100,false
1,2024-01-01,scope1_emissions,500,true

1,2024-01-01,diesel_consumption,,false
2,2024-01-01, board_meetings ,12,
`)

	res, err := ReadFacts(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, res.Facts, 3)
	assert.Equal(t, 1, res.Skipped)

	assert.Equal(t, model.FactInput{
		OrganizationID: 1, Period: "2024-01-01", FieldName: "petrol_consumption",
		Value: "100", Provenance: model.ProvenanceDisclosed,
	}, res.Facts[0])
	assert.True(t, res.Facts[1].IsKPI)
	assert.Equal(t, int64(2), res.Facts[2].OrganizationID)
	assert.Equal(t, "board_meetings", res.Facts[2].FieldName)
	assert.Equal(t, "3 facts, 1 skipped", res.String())
}

func TestReadFacts_DefaultsFillMissingColumns(t *testing.T) {
	path := writeFile(t, "facts.csv", "field;value\nwater_recycled;25\n")

	res, err := ReadFacts(context.Background(), path, Options{
		Delimiter: ';', OrganizationID: 9, Period: model.MustPeriod("2023-01-01"),
	})
	require.NoError(t, err)
	require.Len(t, res.Facts, 1)
	assert.Equal(t, int64(9), res.Facts[0].OrganizationID)
	assert.Equal(t, model.Period("2023-01-01"), res.Facts[0].Period)
}

func TestReadFacts_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		opts    Options
		wantErr string
	}{
		{"missing value column", "form_field\npetrol\n", Options{}, "missing value column"},
		{"negative value", "organization_id,reporting_period,form_field,field_value\n1,2024-01-01,petrol,-3\n", Options{}, "row 2"},
		{"bad org", "organization_id,reporting_period,form_field,field_value\nacme,2024-01-01,petrol,3\n", Options{}, "not an integer"},
		{"no org anywhere", "form_field,field_value\npetrol,3\n", Options{Period: "2024-01-01"}, "organization_id"},
		{"empty file", "\n\n", Options{}, "no header row"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "facts.csv", tt.content)
			_, err := ReadFacts(context.Background(), path, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadFacts_NegativeIsValidation(t *testing.T) {
	path := writeFile(t, "facts.csv", "organization_id,reporting_period,form_field,field_value\n1,2024-01-01,petrol,-3\n")
	_, err := ReadFacts(context.Background(), path, Options{})
	assert.True(t, model.IsValidation(err))
}

func TestReadFacts_ComputedRejected(t *testing.T) {
	path := writeFile(t, "facts.csv", "organization_id,reporting_period,form_field,field_value,provenance\n"+
		"1,2024-01-01,petrol_consumption,100,disclosed\n"+
		"1,2024-01-01,scope1_emissions,999,Computed\n")

	_, err := ReadFacts(context.Background(), path, Options{})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	assert.Contains(t, err.Error(), "row 3")
}

func TestReadFacts_XLSX(t *testing.T) {
	path := createTestXLSX(t, "Submissions", [][]string{
		{"organization_id", "reporting_period", "form_field", "field_value", "provenance"},
		{"1", "2024-01-01", "electricity_consumption", "1000", "disclosed"},
		{"1", "2024-01-01", "scope2_emissions", "820", ""},
	})

	res, err := ReadFacts(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, res.Facts, 2)
	assert.Equal(t, "electricity_consumption", res.Facts[0].FieldName)
	assert.Equal(t, model.ProvenanceDisclosed, res.Facts[1].Provenance)

	_, err = ReadFacts(context.Background(), path, Options{Sheet: "Nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Nope" not found`)
}

func TestReadFacts_MissingFile(t *testing.T) {
	_, err := ReadFacts(context.Background(), "/nonexistent/facts.csv", Options{})
	assert.Error(t, err)
}
