package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-scorecard/internal/model"
)

// Options configures ReadFacts.
type Options struct {
	// Format overrides detection from the file extension.
	Format Format
	// Delimiter is the CSV field separator. Default ','.
	Delimiter rune
	// Sheet is the XLSX sheet name. Default is the first sheet.
	Sheet string
	// OrganizationID and Period fill rows whose file has no such column.
	OrganizationID int64
	Period         model.Period
}

// Result is the facts read from a file.
type Result struct {
	Facts []model.FactInput
	// Skipped counts data rows with no value.
	Skipped int
}

// column names accepted in the header row, by target.
var headerAliases = map[string]string{
	"organization_id":  "org",
	"org_id":           "org",
	"organization":     "org",
	"reporting_period": "period",
	"period":           "period",
	"form_field":       "field",
	"field_name":       "field",
	"field":            "field",
	"field_value":      "value",
	"value":            "value",
	"is_kpi":           "is_kpi",
	"provenance":       "provenance",
}

type columns map[string]int

func parseHeader(header []string) (columns, error) {
	cols := make(columns)
	for i, h := range header {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", "_"))
		if target, ok := headerAliases[key]; ok {
			if _, dup := cols[target]; !dup {
				cols[target] = i
			}
		}
	}
	var missing []string
	for _, required := range []string{"field", "value"} {
		if _, ok := cols[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("ingest: header is missing %s column", strings.Join(missing, " and "))
	}
	return cols, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// ReadFacts reads every data row of path into fact inputs. The first
// non-empty row is the header. Rows are validated before being returned;
// the first invalid row fails the whole file.
func ReadFacts(ctx context.Context, path string, opts Options) (*Result, error) {
	format := opts.Format
	if format == "" {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = f
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh, errCh, closeFn, err := openRows(ctx, path, format, opts)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	res := &Result{}
	var cols columns
	line := 0
	for row := range rowCh {
		line++
		if blank(row) {
			continue
		}
		if cols == nil {
			if cols, err = parseHeader(row); err != nil {
				return nil, err
			}
			continue
		}

		in, skip, err := rowToFact(cols, row, opts)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: row %d", line)
		}
		if skip {
			res.Skipped++
			continue
		}
		res.Facts = append(res.Facts, in)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, eris.Errorf("ingest: %s has no header row", path)
	}
	return res, nil
}

func rowToFact(cols columns, row []string, opts Options) (model.FactInput, bool, error) {
	in := model.FactInput{
		OrganizationID: opts.OrganizationID,
		Period:         opts.Period,
		FieldName:      cols.get(row, "field"),
		Value:          model.Value(cols.get(row, "value")),
		Provenance:     model.Provenance(strings.ToLower(cols.get(row, "provenance"))),
		IsKPI:          model.Value(cols.get(row, "is_kpi")).Truthy(),
	}
	if in.Value == "" {
		return in, true, nil
	}

	if s := cols.get(row, "org"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return in, false, model.NewValidationError("organization_id", "not an integer: %q", s)
		}
		in.OrganizationID = id
	}
	if s := cols.get(row, "period"); s != "" {
		in.Period = model.Period(s)
	}

	out, err := model.ValidateSubmission(in)
	if err != nil {
		return in, false, err
	}
	return out, false, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

// String summarizes the result for CLI output.
func (r *Result) String() string {
	return fmt.Sprintf("%d facts, %d skipped", len(r.Facts), r.Skipped)
}
