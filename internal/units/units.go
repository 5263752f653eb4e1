package units

import "fmt"

// Quantity identifies a physical quantity family. Conversions are only
// defined between units of the same quantity.
type Quantity int

const (
	QuantityNone Quantity = iota
	Energy
	Power
	Volume
	Flow
	Temperature
	Text
)

func (q Quantity) String() string {
	switch q {
	case Energy:
		return "energy"
	case Power:
		return "power"
	case Volume:
		return "volume"
	case Flow:
		return "flow"
	case Temperature:
		return "temperature"
	case Text:
		return "text"
	default:
		return "none"
	}
}

// Unit is a concrete unit within a quantity family.
type Unit int

const (
	UnitNone Unit = iota
	KWH
	MWH
	GJ
	MJ
	KW
	W
	M3
	L
	M3H
	LH
	C
)

type unitDef struct {
	quantity Quantity
	// factor converts a value in this unit to the family base unit
	// (kWh, kW, m3, m3/h, degrees C).
	factor float64
	suffix string
}

var unitDefs = map[Unit]unitDef{
	KWH: {Energy, 1, "kwh"},
	MWH: {Energy, 1000, "mwh"},
	GJ:  {Energy, 1000.0 / 3.6, "gj"},
	MJ:  {Energy, 1.0 / 3.6, "mj"},
	KW:  {Power, 1, "kw"},
	W:   {Power, 0.001, "w"},
	M3:  {Volume, 1, "m3"},
	L:   {Volume, 0.001, "l"},
	M3H: {Flow, 1, "m3h"},
	LH:  {Flow, 0.001, "lh"},
	C:   {Temperature, 1, "c"},
}

// Quantity returns the family the unit belongs to.
func (u Unit) Quantity() Quantity {
	return unitDefs[u].quantity
}

// Suffix returns the lowercase field-name suffix for the unit ("kwh", "m3").
func (u Unit) Suffix() string {
	return unitDefs[u].suffix
}

func (u Unit) String() string {
	if def, ok := unitDefs[u]; ok {
		return def.suffix
	}
	return "none"
}

// Default returns the base unit readings are stored in for a quantity.
func Default(q Quantity) Unit {
	switch q {
	case Energy:
		return KWH
	case Power:
		return KW
	case Volume:
		return M3
	case Flow:
		return M3H
	case Temperature:
		return C
	default:
		return UnitNone
	}
}

// Convert translates value from one unit to another within the same quantity
// family. A family mismatch is reported as an error.
func Convert(value float64, from, to Unit) (float64, error) {
	fd, ok := unitDefs[from]
	if !ok {
		return 0, fmt.Errorf("unknown unit %d", from)
	}
	td, ok := unitDefs[to]
	if !ok {
		return 0, fmt.Errorf("unknown unit %d", to)
	}
	if fd.quantity != td.quantity {
		return 0, fmt.Errorf("cannot convert %s (%s) to %s (%s)", from, fd.quantity, to, td.quantity)
	}
	return value * fd.factor / td.factor, nil
}

// MustConvert is Convert for call sites where a quantity mismatch is a
// programming error. It panics instead of returning a wrong-scale number.
func MustConvert(value float64, from, to Unit) float64 {
	out, err := Convert(value, from, to)
	if err != nil {
		panic(err)
	}
	return out
}

// AssertQuantity panics unless the unit belongs to the expected family.
// Meter accessors call this before converting.
func AssertQuantity(u Unit, q Quantity) {
	if u.Quantity() != q {
		panic(fmt.Sprintf("unit %s is not a %s unit", u, q))
	}
}
