package types

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq        CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq     CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt        CommonFilterOperator = "lt"
	CommonFilterOperatorLte       CommonFilterOperator = "lte"
	CommonFilterOperatorGt        CommonFilterOperator = "gt"
	CommonFilterOperatorGte       CommonFilterOperator = "gte"
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorRange     CommonFilterOperator = "range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
)

var commonFilterOperators = []CommonFilterOperator{
	CommonFilterOperatorEq,
	CommonFilterOperatorNotEq,
	CommonFilterOperatorLt,
	CommonFilterOperatorLte,
	CommonFilterOperatorGt,
	CommonFilterOperatorGte,
	CommonFilterOperatorDateRange,
	CommonFilterOperatorRange,
	CommonFilterOperatorIn,
}

type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
	Filters  []CommonFilter       `json:"filters"`
}

// Validate rejects fields outside allowed and malformed operator arguments.
// Field names end up in SQL, so callers must always pass a whitelist.
func (f *CommonFilter) Validate(allowed []string) error {
	if !slices.Contains(allowed, f.Field) {
		return fmt.Errorf("unsupported filter field: %q", f.Field)
	}
	if !slices.Contains(commonFilterOperators, f.Operator) {
		return fmt.Errorf("unsupported filter operator: %q", f.Operator)
	}
	if len(f.Values) == 0 {
		return fmt.Errorf("filter %q has no values", f.Field)
	}
	switch f.Operator {
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return fmt.Errorf("range filter %q needs two values", f.Field)
		}
	case CommonFilterOperatorDateRange:
		if _, _, err := f.dateRange(); err != nil {
			return err
		}
	}
	return nil
}

// dateRange parses [from, to] as YYYY-MM-DD days; the range includes all of to.
func (f *CommonFilter) dateRange() (time.Time, time.Time, error) {
	if len(f.Values) < 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("date_range filter %q needs two values", f.Field)
	}
	from, err := time.Parse(time.DateOnly, fmt.Sprint(f.Values[0]))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date_range start for %q: %w", f.Field, err)
	}
	to, err := time.Parse(time.DateOnly, fmt.Sprint(f.Values[1]))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date_range end for %q: %w", f.Field, err)
	}
	return from, to.AddDate(0, 0, 1), nil
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}

	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		// Handle JSON operator fields (containing -> or ->> operators)
		if strings.Contains(f.Field, "->") {
			clause.Expr{SQL: fmt.Sprintf("%s = ?", f.Field), Vars: []interface{}{value}}.Build(builder)
		} else {
			clause.Eq{Column: f.Field, Value: value}.Build(builder)
		}
	case CommonFilterOperatorNotEq:
		clause.NotConditions{Exprs: []clause.Expression{clause.Eq{Column: f.Field, Value: value}}}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}

		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lte{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorDateRange:
		from, to, err := f.dateRange()
		if err != nil {
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: from}, clause.Lt{Column: f.Field, Value: to}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	default:
		return
	}
}

// AndFilters joins filters with AND; an empty list matches everything.
type AndFilters []*CommonFilter

func (w AndFilters) Build(builder clause.Builder) {
	if len(w) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, f := range w {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		f.Build(builder)
	}
}

// ValidateFilters validates every filter against the same whitelist.
func ValidateFilters(filters []*CommonFilter, allowed []string) error {
	for _, f := range filters {
		if f == nil {
			return fmt.Errorf("null filter")
		}
		if err := f.Validate(allowed); err != nil {
			return err
		}
	}
	return nil
}
