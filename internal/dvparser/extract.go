package dvparser

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrFieldNotFound reports a key absent from the value store. Absence is
	// expected: meters vary which fields they transmit.
	ErrFieldNotFound = errors.New("field not found")
	// ErrMalformedField reports raw bytes that cannot be decoded as the
	// requested type or width. Callers must leave their state unchanged.
	ErrMalformedField = errors.New("malformed field")
)

func (v *Values) lookup(key string) (Entry, error) {
	if v.dups[key] {
		return Entry{}, fmt.Errorf("%w: key %s is ambiguous", ErrFieldNotFound, key)
	}
	e, ok := v.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrFieldNotFound, key)
	}
	return e, nil
}

// Uint8 decodes the entry as a single unsigned byte.
func (v *Values) Uint8(key string) (offset int, value byte, err error) {
	e, err := v.lookup(key)
	if err != nil {
		return 0, 0, err
	}
	if len(e.Data) != 1 {
		return 0, 0, fmt.Errorf("%w: %s holds %d bytes, want 1", ErrMalformedField, key, len(e.Data))
	}
	return e.Offset, e.Data[0], nil
}

// Double decodes the entry's binary, float or BCD payload and normalizes it
// to the base unit of its value-information kind (kWh, kW, m3, m3/h, C).
func (v *Values) Double(key string) (offset int, value float64, err error) {
	e, err := v.lookup(key)
	if err != nil {
		return 0, 0, err
	}
	raw, err := decodeNumeric(e)
	if err != nil {
		return 0, 0, err
	}
	scale, err := scaleToBase(e)
	if err != nil {
		return 0, 0, err
	}
	return e.Offset, raw * scale, nil
}

// Date decodes a compact binary date field: two bytes are treated as a
// type G date, four bytes as a type F date and time.
func (v *Values) Date(key string) (offset int, ts time.Time, err error) {
	e, err := v.lookup(key)
	if err != nil {
		return 0, time.Time{}, err
	}
	switch len(e.Data) {
	case 2:
		ts, err = decodeTypeGDate(e.Data)
	case 4:
		ts, err = decodeTypeFDateTime(e.Data)
	default:
		err = fmt.Errorf("%w: %s holds %d bytes, want 2 or 4", ErrMalformedField, key, len(e.Data))
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return e.Offset, ts, nil
}

// String decodes the entry as text. LVAR payloads are reversed into reading
// order; fixed-width payloads render as the hex string meters display them
// as (most significant byte first).
func (v *Values) String(key string) (offset int, value string, err error) {
	e, err := v.lookup(key)
	if err != nil {
		return 0, "", err
	}
	reversed := make([]byte, len(e.Data))
	for i, b := range e.Data {
		reversed[len(e.Data)-1-i] = b
	}
	if e.DIF&0x0F == 0x0D {
		return e.Offset, string(reversed), nil
	}
	return e.Offset, strings.ToUpper(hex.EncodeToString(reversed)), nil
}

func decodeNumeric(e Entry) (float64, error) {
	switch e.DIF & 0x0F {
	case 0x01, 0x02, 0x03, 0x04, 0x06, 0x07:
		return float64(decodeBinarySigned(e.Data)), nil
	case 0x05:
		if len(e.Data) != 4 {
			return 0, fmt.Errorf("%w: 32-bit real holds %d bytes", ErrMalformedField, len(e.Data))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(e.Data))), nil
	case 0x09, 0x0A, 0x0B, 0x0C, 0x0E:
		n, err := decodeBCDLittleEndian(e.Data)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: DIF coding 0x%02X is not numeric", ErrMalformedField, e.DIF&0x0F)
	}
}

// decodeBinarySigned interprets a little-endian binary field as two's
// complement, so negative readings (temperature difference) survive.
func decodeBinarySigned(b []byte) int64 {
	var value uint64
	for i := len(b) - 1; i >= 0; i-- {
		value = value<<8 | uint64(b[i])
	}
	bits := uint(len(b) * 8)
	if bits < 64 && value&(1<<(bits-1)) != 0 {
		value |= ^uint64(0) << bits
	}
	return int64(value)
}

func decodeBCDLittleEndian(b []byte) (int, error) {
	value := 0
	multiplier := 1
	for _, by := range b {
		low := int(by & 0x0F)
		high := int((by >> 4) & 0x0F)
		if low > 9 || high > 9 {
			return 0, fmt.Errorf("%w: invalid BCD byte 0x%02X", ErrMalformedField, by)
		}
		value += low * multiplier
		multiplier *= 10
		value += high * multiplier
		multiplier *= 10
	}
	return value, nil
}

// scaleToBase returns the factor that takes the raw integer to the kind's
// base unit, derived from the VIF scale exponent.
func scaleToBase(e Entry) (float64, error) {
	exp := int(e.VIF & 0x07)
	switch e.Kind {
	case EnergyWh:
		// 10^(nnn-3) Wh, reported in kWh.
		return math.Pow10(exp - 6), nil
	case EnergyMJ:
		// 10^nnn J, reported in kWh.
		return math.Pow10(exp) / 3.6e6, nil
	case Volume:
		return math.Pow10(exp - 6), nil
	case Mass:
		return math.Pow10(exp - 3), nil
	case PowerW:
		// 10^(nnn-3) W, reported in kW.
		return math.Pow10(exp - 6), nil
	case PowerJh:
		// 10^nnn J/h, reported in kW.
		return math.Pow10(exp) / 3.6e6, nil
	case VolumeFlow:
		return math.Pow10(exp - 6), nil
	case FlowTemperature, ReturnTemperature, TemperatureDifference, ExternalTemperature, Pressure:
		return math.Pow10(int(e.VIF&0x03) - 3), nil
	case HCA:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: no numeric scale for VIF 0x%02X", ErrMalformedField, e.VIF)
	}
}

// decodeTypeGDate decodes the two-byte type G calendar date.
func decodeTypeGDate(b []byte) (time.Time, error) {
	day := int(b[0] & 0x1F)
	month := int(b[1] & 0x0F)
	year := 2000 + int((b[0]&0xE0)>>5|(b[1]&0xF0)>>1)
	if day == 0 || day > 31 || month == 0 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: invalid type G date %02X%02X", ErrMalformedField, b[0], b[1])
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// decodeTypeFDateTime decodes the four-byte type F timestamp.
func decodeTypeFDateTime(b []byte) (time.Time, error) {
	minute := int(b[0] & 0x3F)
	hour := int(b[1] & 0x1F)
	day := int(b[2] & 0x1F)
	month := int(b[3] & 0x0F)
	yearBitsHigh := (b[3] >> 4) & 0x0F
	yearBitsLow := (b[2] >> 5) & 0x07
	year := 2000 + int(yearBitsHigh<<3|yearBitsLow)
	if minute > 59 || hour > 23 || day == 0 || day > 31 || month == 0 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: invalid type F datetime %s", ErrMalformedField, hex.EncodeToString(b))
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), nil
}
