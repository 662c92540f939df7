package postgres

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/coachpo/perpindex/errs"
)

// numericFromDecimal converts a decimal into a pgtype.Numeric value without losing scale.
func numericFromDecimal(value decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: value.Coefficient(), Exp: value.Exponent(), Valid: true}
}

// numericFromOptional converts an optional decimal; nil becomes SQL NULL.
func numericFromOptional(ptr *decimal.Decimal) pgtype.Numeric {
	if ptr == nil {
		return pgtype.Numeric{}
	}
	return numericFromDecimal(*ptr)
}

// parseDecimal reads a NUMERIC selected as ::text.
func parseDecimal(column, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", column, raw, err)
	}
	return value, nil
}

func parseOptionalDecimal(column string, raw sql.NullString) (*decimal.Decimal, error) {
	if !raw.Valid {
		return nil, nil
	}
	value, err := parseDecimal(column, raw.String)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// parseID converts a numeric string id (clob pair, perpetual) into its BIGINT column form.
func parseID(component, field, value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id < 0 {
		return 0, errs.New(component, errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("%s must be a non-negative integer", field)),
			errs.WithField(field, value))
	}
	return id, nil
}

func parseIDs(component, field string, values []string) ([]int64, error) {
	out := make([]int64, 0, len(values))
	for _, value := range values {
		id, err := parseID(component, field, value)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
