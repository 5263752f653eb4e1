package dvparser

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MeasurementType is the DIF function field: how the value was sampled.
type MeasurementType int

const (
	Unknown MeasurementType = iota
	Instantaneous
	Maximum
	Minimum
	AtError
)

func (m MeasurementType) String() string {
	switch m {
	case Instantaneous:
		return "instantaneous"
	case Maximum:
		return "maximum"
	case Minimum:
		return "minimum"
	case AtError:
		return "at_error"
	default:
		return "unknown"
	}
}

// ValueInformation classifies the physical quantity and encoding family of a
// record, derived from the primary VIF ranges of EN 13757-3.
type ValueInformation int

const (
	None ValueInformation = iota
	EnergyWh
	EnergyMJ
	Volume
	Mass
	OnTime
	OperatingTime
	PowerW
	PowerJh
	VolumeFlow
	FlowTemperature
	ReturnTemperature
	TemperatureDifference
	ExternalTemperature
	Pressure
	Date
	DateTime
	HCA
	FabricationNo
	VendorExtension
)

// Entry is one decoded data record from a telegram payload.
type Entry struct {
	Key             string
	DIF             byte
	DIFE            []byte
	VIF             byte
	VIFE            []byte
	MeasurementType MeasurementType
	Kind            ValueInformation
	Storage         int
	Tariff          int
	Subunit         int
	Data            []byte
	// Offset of the first data byte within the full telegram.
	Offset int
}

// Values is the ordered value store built from one telegram payload. Entries
// are keyed by the hex of their DIF/DIFE/VIF/VIFE chain; a key transmitted
// more than once is remembered as ambiguous and never resolved by lookups.
type Values struct {
	order   []string
	entries map[string]Entry
	dups    map[string]bool
}

// Entries returns the records in telegram order.
func (v *Values) Entries() []Entry {
	out := make([]Entry, 0, len(v.order))
	for _, key := range v.order {
		out = append(out, v.entries[key])
	}
	return out
}

// Len returns the number of stored records.
func (v *Values) Len() int { return len(v.order) }

// FindKey locates the single entry matching the filter. The measurement type
// may be wildcarded with Unknown; kind, storage and tariff match exactly.
// Zero matches, more than one match, or a duplicated key all report false:
// absence is a normal outcome and ambiguity must never silently pick a value.
func (v *Values) FindKey(mt MeasurementType, kind ValueInformation, storage, tariff int) (string, bool) {
	found := ""
	count := 0
	for _, key := range v.order {
		e := v.entries[key]
		if e.Kind != kind || e.Storage != storage || e.Tariff != tariff {
			continue
		}
		if mt != Unknown && e.MeasurementType != mt {
			continue
		}
		found = key
		count++
	}
	if count != 1 || v.dups[found] {
		return "", false
	}
	return found, true
}

// Parse walks the application payload and builds the value store.
// baseOffset is the payload's position within the full telegram so entry
// offsets can annotate the raw frame. Idle filler (0x2F) is skipped and
// a manufacturer-specific block (DIF 0x0F) terminates the walk.
func Parse(payload []byte, baseOffset int) (*Values, error) {
	values := &Values{
		entries: make(map[string]Entry),
		dups:    make(map[string]bool),
	}
	i := 0
	for i < len(payload) {
		dif := payload[i]
		i++
		if dif == 0x2F || dif == 0x00 {
			continue
		}
		if dif == 0x0F {
			break
		}
		e := Entry{
			DIF:             dif,
			MeasurementType: measurementTypeForDIF(dif),
			Storage:         int((dif >> 6) & 0x01),
		}

		difenr := 0
		hasDIFE := (dif & 0x80) != 0
		for hasDIFE {
			if i >= len(payload) {
				return nil, fmt.Errorf("unexpected end of payload while reading DIFE")
			}
			dife := payload[i]
			i++
			e.DIFE = append(e.DIFE, dife)
			e.Subunit |= int((dife>>6)&0x01) << difenr
			e.Tariff |= int((dife>>4)&0x03) << (difenr * 2)
			e.Storage |= int(dife&0x0F) << (1 + difenr*4)
			hasDIFE = (dife & 0x80) != 0
			difenr++
		}

		if i >= len(payload) {
			return nil, fmt.Errorf("unexpected end of payload before VIF")
		}
		e.VIF = payload[i]
		i++
		hasVIFE := (e.VIF & 0x80) != 0
		for hasVIFE {
			if i >= len(payload) {
				return nil, fmt.Errorf("unexpected end of payload while reading VIFE")
			}
			vife := payload[i]
			i++
			e.VIFE = append(e.VIFE, vife)
			hasVIFE = (vife & 0x80) != 0
		}
		e.Kind = kindForVIF(e.VIF)

		length, ok := lengthForDIF(dif)
		if !ok {
			// Selection-for-readout and other unsupported codings end the
			// decodable section; keep the records parsed so far.
			break
		}
		if length == lengthLVAR {
			if i >= len(payload) {
				return nil, fmt.Errorf("payload truncated before LVAR length byte")
			}
			length = int(payload[i])
			i++
		}
		if i+length > len(payload) {
			return nil, fmt.Errorf("payload truncated for DIF 0x%02X", dif)
		}
		if length > 0 {
			e.Data = append(e.Data, payload[i:i+length]...)
		}
		e.Offset = baseOffset + i
		i += length

		e.Key = entryKey(e)
		if _, exists := values.entries[e.Key]; exists {
			values.dups[e.Key] = true
			continue
		}
		values.entries[e.Key] = e
		values.order = append(values.order, e.Key)
	}
	return values, nil
}

func entryKey(e Entry) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{e.DIF})))
	b.WriteString(strings.ToUpper(hex.EncodeToString(e.DIFE)))
	b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{e.VIF})))
	b.WriteString(strings.ToUpper(hex.EncodeToString(e.VIFE)))
	return b.String()
}

func measurementTypeForDIF(dif byte) MeasurementType {
	switch (dif >> 4) & 0x03 {
	case 0x00:
		return Instantaneous
	case 0x01:
		return Maximum
	case 0x02:
		return Minimum
	default:
		return AtError
	}
}

func kindForVIF(vif byte) ValueInformation {
	if vif == 0xFF || vif == 0x7F {
		return VendorExtension
	}
	switch v := vif & 0x7F; {
	case v <= 0x07:
		return EnergyWh
	case v <= 0x0F:
		return EnergyMJ
	case v <= 0x17:
		return Volume
	case v <= 0x1F:
		return Mass
	case v <= 0x23:
		return OnTime
	case v <= 0x27:
		return OperatingTime
	case v <= 0x2F:
		return PowerW
	case v <= 0x37:
		return PowerJh
	case v <= 0x3F:
		return VolumeFlow
	case v >= 0x58 && v <= 0x5B:
		return FlowTemperature
	case v >= 0x5C && v <= 0x5F:
		return ReturnTemperature
	case v >= 0x60 && v <= 0x63:
		return TemperatureDifference
	case v >= 0x64 && v <= 0x67:
		return ExternalTemperature
	case v >= 0x68 && v <= 0x6B:
		return Pressure
	case v == 0x6C:
		return Date
	case v == 0x6D:
		return DateTime
	case v == 0x6E:
		return HCA
	case v == 0x78:
		return FabricationNo
	default:
		return None
	}
}

const lengthLVAR = -1

func lengthForDIF(dif byte) (int, bool) {
	switch dif & 0x0F {
	case 0x00:
		return 0, true
	case 0x01:
		return 1, true
	case 0x02:
		return 2, true
	case 0x03:
		return 3, true
	case 0x04:
		return 4, true
	case 0x05:
		return 4, true
	case 0x06:
		return 6, true
	case 0x07:
		return 8, true
	case 0x08:
		return 0, false // selection for readout, no data
	case 0x09:
		return 1, true
	case 0x0A:
		return 2, true
	case 0x0B:
		return 3, true
	case 0x0C:
		return 4, true
	case 0x0D:
		return lengthLVAR, true
	case 0x0E:
		return 6, true
	default:
		return 0, false
	}
}
