package dvparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sharkyValues(t *testing.T) *Values {
	t.Helper()
	values, err := Parse(mustPayload(t, sharkyPayloadHex), 15)
	require.NoError(t, err)
	return values
}

func TestUint8(t *testing.T) {
	values := sharkyValues(t)

	offset, v, err := values.Uint8("01FF21")
	require.NoError(t, err)
	require.Equal(t, byte(0x00), v)
	require.Equal(t, 43, offset)

	// Wrong width for the requested type.
	_, _, err = values.Uint8("0306")
	require.ErrorIs(t, err, ErrMalformedField)

	_, _, err = values.Uint8("01FF22")
	require.ErrorIs(t, err, ErrFieldNotFound)
}

func TestDoubleNormalizesToBaseUnits(t *testing.T) {
	values := sharkyValues(t)

	offset, energy, err := values.Double("0306")
	require.NoError(t, err)
	require.InDelta(t, 44.0, energy, 1e-9)
	require.Equal(t, 19, offset)

	_, target, err := values.Double("4306")
	require.NoError(t, err)
	require.InDelta(t, 0.0, target, 1e-9)

	_, volume, err := values.Double("0314")
	require.NoError(t, err)
	require.InDelta(t, 0.99, volume, 1e-9)

	_, power, err := values.Double("022D")
	require.NoError(t, err)
	require.InDelta(t, 1.9, power, 1e-9)
}

func TestDoubleBCD(t *testing.T) {
	// 8-digit BCD energy, VIF 0x06 (kWh).
	values, err := Parse(mustPayload(t, "0C0644330000"), 0)
	require.NoError(t, err)
	_, v, err := values.Double("0C06")
	require.NoError(t, err)
	require.InDelta(t, 3344.0, v, 1e-9)
}

func TestDoubleBCDInvalidNibble(t *testing.T) {
	values, err := Parse(mustPayload(t, "0C06443A0000"), 0)
	require.NoError(t, err)
	_, _, err = values.Double("0C06")
	require.ErrorIs(t, err, ErrMalformedField)
}

func TestDoubleFloat32(t *testing.T) {
	// DIF 0x05: 32-bit real. 2.5 kW with VIF 0x2E (power 1 kW).
	values, err := Parse(mustPayload(t, "052E00002040"), 0)
	require.NoError(t, err)
	_, v, err := values.Double("052E")
	require.NoError(t, err)
	require.InDelta(t, 2.5, v, 1e-6)
}

func TestDoubleNegativeBinary(t *testing.T) {
	// Temperature difference, VIF 0x61 (10 mK), raw -10 -> -0.1 K.
	values, err := Parse(mustPayload(t, "0261F6FF"), 0)
	require.NoError(t, err)
	_, v, err := values.Double("0261")
	require.NoError(t, err)
	require.InDelta(t, -0.1, v, 1e-9)
}

func TestDoubleOnDateIsMalformed(t *testing.T) {
	values := sharkyValues(t)
	_, _, err := values.Double("426C")
	require.ErrorIs(t, err, ErrMalformedField)
}

func TestDateTypeG(t *testing.T) {
	values := sharkyValues(t)
	offset, ts, err := values.Date("426C")
	require.NoError(t, err)
	require.Equal(t, time.Date(2019, time.October, 31, 0, 0, 0, 0, time.UTC), ts)
	require.Equal(t, 34, offset)
}

func TestDateTypeF(t *testing.T) {
	values, err := Parse(mustPayload(t, "046D27287E2A"), 0)
	require.NoError(t, err)
	_, ts, err := values.Date("046D")
	require.NoError(t, err)
	require.Equal(t, time.Date(2019, time.October, 30, 8, 39, 0, 0, time.UTC), ts)
}

func TestDateWrongWidth(t *testing.T) {
	values, err := Parse(mustPayload(t, "036C7F2A00"), 0)
	require.NoError(t, err)
	_, _, err = values.Date("036C")
	require.ErrorIs(t, err, ErrMalformedField)
}

func TestDateInvalidEncoding(t *testing.T) {
	// Month 0 is not a valid type G date.
	values, err := Parse(mustPayload(t, "426C1F20"), 0)
	require.NoError(t, err)
	_, _, err = values.Date("426C")
	require.ErrorIs(t, err, ErrMalformedField)
}

func TestStringFixedWidth(t *testing.T) {
	values := sharkyValues(t)
	_, s, err := values.String("022D")
	require.NoError(t, err)
	require.Equal(t, "0013", s)
}
