package reconcile

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	msgRequired       = "required field is missing"
	msgNotNumber      = "must be a number"
	msgInvalidTime    = "must be a valid date-time"
	msgNegative       = "must be >= 0"
	msgNotPositive    = "must be > 0"
	msgInvalidGeneric = "is invalid"
)

// Accepted DateTime layouts, tried in order. Slash dates are day-first.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// quantityRanges are the optional bounds of the numeric columns.
var quantityRanges = map[string]string{
	ColCement:      "gte=0",
	ColSand:        "gte=0",
	ColGravel:      "gte=0",
	ColWater:       "gte=0",
	ColAdditives:   "gte=0",
	ColTotalVolume: "gt=0",
}

// RowValidator turns raw rows into BatchRecords, collecting every error of a row.
type RowValidator struct {
	location    *time.Location
	validate    *validator.Validate
	checkRanges bool
}

func NewRowValidator(loc *time.Location) *RowValidator {
	if loc == nil {
		loc = time.UTC
	}
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	// report the CSV column name instead of the Go field name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("csv"); name != "" {
			return name
		}
		return fld.Name
	})
	return &RowValidator{location: loc, validate: v}
}

// WithQuantityRanges rejects negative quantities and a non-positive total
// volume. Off by default: a zero volume is a valid row that scores 0.
func (v *RowValidator) WithQuantityRanges(on bool) *RowValidator {
	v.checkRanges = on
	return v
}

// ParseDateTime parses a controller timestamp in the validator's location.
// Timestamps carrying their own offset are moved into that location.
func (v *RowValidator) ParseDateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, v.location); err == nil {
			return t.In(v.location), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q", value)
}

// Validate checks one row (rowNumber is 1-based). The record is nil whenever
// errs is non-empty.
func (v *RowValidator) Validate(row RawRow, rowNumber int) (*BatchRecord, []RowError) {
	var errs []RowError
	failed := make(map[string]bool)
	fail := func(field, msg string) {
		errs = append(errs, RowError{Row: rowNumber, Line: row.Line, Field: field, Message: msg})
		failed[field] = true
	}

	values := make(map[string]string, len(RequiredColumns))
	for _, col := range RequiredColumns {
		val := strings.TrimSpace(lookupField(row, col))
		if val == "" {
			fail(col, msgRequired)
			continue
		}
		values[col] = val
	}

	numbers := make(map[string]decimal.Decimal, len(NumericColumns))
	for _, col := range NumericColumns {
		if failed[col] {
			continue
		}
		d, err := utils.ParseDecimal(values[col])
		if err != nil {
			fail(col, msgNotNumber)
			continue
		}
		numbers[col] = d
		if v.checkRanges {
			if err := v.validate.Var(d, quantityRanges[col]); err != nil {
				var verrs validator.ValidationErrors
				if errors.As(err, &verrs) && len(verrs) > 0 {
					fail(col, rangeMessage(verrs[0].Tag()))
				} else {
					fail(col, msgInvalidGeneric)
				}
			}
		}
	}

	var batchTime time.Time
	if !failed[ColDateTime] {
		t, err := v.ParseDateTime(values[ColDateTime])
		if err != nil {
			fail(ColDateTime, msgInvalidTime)
		} else {
			batchTime = t
		}
	}

	record := &BatchRecord{
		RowNumber:   rowNumber,
		BatchNumber: values[ColBatchNumber],
		BatchTime:   batchTime,
		ClientName:  values[ColClient],
		FormulaCode: values[ColFormula],
		Cement:      numbers[ColCement],
		Sand:        numbers[ColSand],
		Gravel:      numbers[ColGravel],
		Water:       numbers[ColWater],
		Additives:   numbers[ColAdditives],
		TotalVolume: numbers[ColTotalVolume],
		Operator:    values[ColOperator],
		Raw:         row,
	}

	if err := v.validate.Struct(record); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			fail("", err.Error())
		}
		for _, fe := range verrs {
			if failed[fe.Field()] {
				continue
			}
			fail(fe.Field(), rangeMessage(fe.Tag()))
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return record, nil
}

func rangeMessage(tag string) string {
	switch tag {
	case "gte":
		return msgNegative
	case "gt":
		return msgNotPositive
	case "required":
		return msgRequired
	}
	return msgInvalidGeneric
}

// lookupField matches the header exactly, then case-insensitively in
// header order. Rows built without a header fall back to sorted keys.
func lookupField(row RawRow, col string) string {
	if v, ok := row.Fields[col]; ok {
		return v
	}
	headers := row.headers
	if headers == nil {
		headers = make([]string, 0, len(row.Fields))
		for k := range row.Fields {
			headers = append(headers, k)
		}
		sort.Strings(headers)
	}
	if i := headerIndex(headers, col); i >= 0 {
		return row.Fields[headers[i]]
	}
	return ""
}
