package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		Total Money `json:"total"`
	}{Total: 10800})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":108.00}`, string(out))

	var in struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":35,"b":"12.340","c":0.4}`), &in))
	assert.Equal(t, Money(3500), in.A)
	assert.Equal(t, Money(1234), in.B)
	assert.Equal(t, Money(40), in.C)

	var bad Money
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &bad))
}

func TestMoneyRejectsSubCentDigits(t *testing.T) {
	var m Money
	err := json.Unmarshal([]byte(`50.555`), &m)
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, Money(0), m)

	_, err = ParseMoney("0.001")
	require.ErrorIs(t, err, ErrInvalidAmount)

	parsed, err := ParseMoney("50.5500")
	require.NoError(t, err)
	assert.Equal(t, Money(5055), parsed)
}

func TestMoneyFromDecimal(t *testing.T) {
	assert.Equal(t, Money(2), MoneyFromDecimal(decimal.RequireFromString("0.025")))
	assert.Equal(t, Money(4), MoneyFromDecimal(decimal.RequireFromString("0.035")))
	assert.Equal(t, Money(-150), MoneyFromDecimal(decimal.RequireFromString("-1.5")))
}

func TestMoneyScan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan(int64(4200)))
	assert.Equal(t, Money(4200), m)
	require.NoError(t, m.Scan([]byte("99")))
	assert.Equal(t, Money(99), m)
	require.NoError(t, m.Scan(nil))
	assert.Equal(t, Money(0), m)
	require.Error(t, m.Scan(true))

	v, err := Money(123).Value()
	require.NoError(t, err)
	assert.Equal(t, int64(123), v)
}
