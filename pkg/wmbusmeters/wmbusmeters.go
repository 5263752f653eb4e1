package wmbusmeters

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/don-vip/wmbusmeters/internal/dvparser"
	"github.com/don-vip/wmbusmeters/internal/frame"
	"github.com/don-vip/wmbusmeters/internal/meter"
	_ "github.com/don-vip/wmbusmeters/internal/meter/sharky775" // register driver
	"github.com/don-vip/wmbusmeters/internal/units"
)

// Result captures the outcome of analyzing one telegram.
type Result struct {
	Driver    string
	Name      string
	RawHex    string
	ByteCount int
	Telegram  *frame.Telegram
	Fields    map[string]any
}

// String renders a human-readable representation of the result.
func (r Result) String() string {
	summary := map[string]any{
		"driver":     r.Driver,
		"byte_count": r.ByteCount,
		"raw_hex":    r.RawHex,
	}
	if r.Telegram != nil {
		summary["meter_id"] = r.Telegram.MeterIDString()
		summary["manufacturer"] = fmt.Sprintf("0x%04X", r.Telegram.Manufacturer)
		summary["ci"] = fmt.Sprintf("0x%02X", r.Telegram.CI)
	}
	if len(r.Fields) > 0 {
		summary["fields"] = r.Fields
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Sprintf("driver: %s bytes:%d raw:%s (marshal error: %v)", r.Driver, r.ByteCount, r.RawHex, err)
	}
	return string(data)
}

// Analyzer decodes telegrams and dispatches them to meter instances. One
// instance is kept per meter ID so a stream of telegrams from the same meter
// accumulates state: fields absent from a telegram keep their last known
// value. Calls to Analyze are serialized; each meter instance sees at most
// one in-flight ProcessContent at a time.
type Analyzer struct {
	mu     sync.Mutex
	known  map[string]meter.Info
	meters map[string]meter.Meter
}

// NewAnalyzer builds an analyzer. Known meter definitions supply the
// configured name for matching meter IDs.
func NewAnalyzer(known ...meter.Info) *Analyzer {
	a := &Analyzer{
		known:  make(map[string]meter.Info, len(known)),
		meters: make(map[string]meter.Meter),
	}
	for _, info := range known {
		a.known[strings.ToUpper(info.ID)] = info
	}
	return a
}

// AnalyzeHex decodes a single telegram with a throwaway analyzer.
func AnalyzeHex(raw string) (Result, error) {
	return NewAnalyzer().Analyze(raw)
}

// Analyze parses the frame, builds the value store, selects a meter driver
// and returns the decoded fields.
func (a *Analyzer) Analyze(raw string) (Result, error) {
	data, err := decodeHex(raw)
	if err != nil {
		return Result{}, err
	}
	telegram, err := frame.Parse(data)
	if err != nil {
		return Result{}, err
	}
	values, err := dvparser.Parse(telegram.Payload, telegram.PayloadOffset)
	if err != nil {
		return Result{}, fmt.Errorf("parse data records: %w", err)
	}
	telegram.Values = values

	result := Result{
		Driver:    "unknown",
		RawHex:    strings.ToUpper(stripWhitespace(raw)),
		ByteCount: len(data),
		Telegram:  &telegram,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m, err := a.meterFor(&telegram)
	if err != nil {
		return result, nil
	}
	if err := m.ProcessContent(&telegram); err != nil {
		return result, err
	}
	result.Driver = m.DriverName()
	result.Name = m.Name()
	result.Fields = renderFields(m, &telegram)
	return result, nil
}

// meterFor returns the cached instance for the telegram's meter ID, creating
// one through the driver registry on first sight.
func (a *Analyzer) meterFor(t *frame.Telegram) (meter.Meter, error) {
	id := t.MeterIDString()
	if m, ok := a.meters[id]; ok {
		return m, nil
	}
	factory, err := meter.Lookup(t)
	if err != nil {
		return nil, err
	}
	info, ok := a.known[id]
	if !ok {
		info = meter.Info{ID: id}
	}
	m := factory(info)
	a.meters[id] = m
	return m, nil
}

// renderFields builds the generic output map from the meter's published
// quantity table; no per-device logic is involved. Numeric quantities are
// reported in their base unit with the unit as field-name suffix.
func renderFields(m meter.Meter, t *frame.Telegram) map[string]any {
	fields := map[string]any{
		"_":         "telegram",
		"id":        t.MeterIDString(),
		"meter":     m.DriverName(),
		"name":      m.Name(),
		"media":     m.Media(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for _, p := range m.Prints() {
		if !p.Available {
			continue
		}
		switch {
		case p.GetText != nil:
			if s := p.GetText(); s != "" || p.Default {
				fields[p.Name] = s
			}
		case p.GetNumeric != nil:
			u := units.Default(p.Quantity)
			key := fmt.Sprintf("%s_%s", p.Name, u.Suffix())
			fields[key] = p.GetNumeric(u)
		}
	}
	return fields
}

func decodeHex(input string) ([]byte, error) {
	clean := stripWhitespace(input)
	if strings.HasPrefix(strings.ToUpper(clean), "0X") {
		clean = clean[2:]
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex telegram must contain an even number of digits, got %d", len(clean))
	}
	decoded := make([]byte, len(clean)/2)
	if _, err := hex.Decode(decoded, []byte(clean)); err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return decoded, nil
}

func stripWhitespace(s string) string {
	builder := strings.Builder{}
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '|' || r == '_' {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
