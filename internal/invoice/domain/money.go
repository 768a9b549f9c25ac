package domain

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Money is an amount in integer cents. It serializes as a decimal number with
// two fraction digits.
type Money int64

// MoneyFromDecimal rounds d to cents using banker's rounding.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(2).RoundBank(0).IntPart())
}

// ParseMoney parses a decimal amount. Amounts with sub-cent digits are
// rejected with ErrInvalidAmount rather than rounded.
func ParseMoney(value string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", value, err)
	}
	if !d.Equal(d.Truncate(2)) {
		return 0, fmt.Errorf("parse money %q: %w", value, ErrInvalidAmount)
	}
	return MoneyFromDecimal(d), nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) Cents() int64 { return int64(m) }

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		unquoted, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("parse money: %w", err)
		}
		data = []byte(unquoted)
	}
	parsed, err := ParseMoney(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m *Money) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = 0
	case int64:
		*m = Money(v)
	case int32:
		*m = Money(v)
	case float64:
		*m = Money(decimal.NewFromFloat(v).RoundBank(0).IntPart())
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("scan money: %w", err)
		}
		*m = Money(n)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("scan money: %w", err)
		}
		*m = Money(n)
	default:
		return fmt.Errorf("scan money: unsupported type %T", value)
	}
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}
