package sharky775

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/don-vip/wmbusmeters/internal/dvparser"
	"github.com/don-vip/wmbusmeters/internal/frame"
	"github.com/don-vip/wmbusmeters/internal/meter"
	"github.com/don-vip/wmbusmeters/internal/units"
)

const (
	// Worked example: 44 kWh total, 0 kWh at target date, 0.99 m3,
	// 2019-10-31 target date, 1.9 kW, info code 0x00.
	standardHex = "2B4424232560926832047A0B0000002F2F03062C000043060000000314630000426C7F2A022D130001FF2100"
	// Later telegram without the power and target-energy records:
	// 45 kWh, 1.00 m3, same target date, info code 0x01.
	noPowerHex = "224424232560926832047A0C0000002F2F03062D00000314640000426C7F2A01FF2101"
	// Same layout as standardHex but with 10 kWh in the storage-1 slot.
	targetEnergyHex = "2B4424232560926832047A0B0000002F2F03062C000043060A00000314630000426C7F2A022D130001FF2100"
	// 45 kWh total, but the storage-1 date record carries three data bytes
	// (DIF 0x43 instead of 0x42), an invalid width for a date.
	badDateHex = "2C4424232560926832047A0B0000002F2F03062D000043060000000314630000436C7F2A00022D130001FF2100"
)

func parseTelegram(t *testing.T, rawHex string) *frame.Telegram {
	t.Helper()
	raw, err := hex.DecodeString(rawHex)
	require.NoError(t, err)
	tg, err := frame.Parse(raw)
	require.NoError(t, err)
	values, err := dvparser.Parse(tg.Payload, tg.PayloadOffset)
	require.NoError(t, err)
	tg.Values = values
	return &tg
}

func TestProcessContent(t *testing.T) {
	m := New(meter.Info{ID: "68926025"})
	require.NoError(t, m.ProcessContent(parseTelegram(t, standardHex)))

	require.InDelta(t, 44.0, m.TotalEnergyConsumption(units.KWH), 1e-9)
	require.InDelta(t, 0.0, m.TargetEnergyConsumption(units.KWH), 1e-9)
	require.InDelta(t, 0.99, m.TotalVolume(units.M3), 1e-9)
	require.InDelta(t, 1.9, m.CurrentPowerConsumption(units.KW), 1e-9)
	require.Equal(t, "2019-10-31 00:00", m.targetDate)
	require.Equal(t, byte(0x00), m.infoCodes)
	require.Equal(t, "", m.Status())
}

func TestAccessorsConvertOnRead(t *testing.T) {
	m := New(meter.Info{})
	require.NoError(t, m.ProcessContent(parseTelegram(t, standardHex)))

	require.InDelta(t, 44.0*3.6/1000.0, m.TotalEnergyConsumption(units.GJ), 1e-9)
	require.InDelta(t, 1900.0, m.CurrentPowerConsumption(units.W), 1e-9)
	require.InDelta(t, 990.0, m.TotalVolume(units.L), 1e-9)
}

func TestAccessorUnitMismatchPanics(t *testing.T) {
	m := New(meter.Info{})
	require.Panics(t, func() { m.TotalEnergyConsumption(units.M3) })
	require.Panics(t, func() { m.TotalVolume(units.KWH) })
	require.Panics(t, func() { m.CurrentPowerConsumption(units.GJ) })
}

func TestAbsentFieldsKeepLastKnownValue(t *testing.T) {
	m := New(meter.Info{})
	require.NoError(t, m.ProcessContent(parseTelegram(t, targetEnergyHex)))
	require.InDelta(t, 10.0, m.TargetEnergyConsumption(units.KWH), 1e-9)
	require.InDelta(t, 1.9, m.CurrentPowerConsumption(units.KW), 1e-9)

	// The second telegram omits power and target energy: both retain the
	// first telegram's values while the transmitted fields move on.
	require.NoError(t, m.ProcessContent(parseTelegram(t, noPowerHex)))
	require.InDelta(t, 45.0, m.TotalEnergyConsumption(units.KWH), 1e-9)
	require.InDelta(t, 1.0, m.TotalVolume(units.M3), 1e-9)
	require.InDelta(t, 1.9, m.CurrentPowerConsumption(units.KW), 1e-9)
	require.InDelta(t, 10.0, m.TargetEnergyConsumption(units.KWH), 1e-9)
	require.Equal(t, byte(0x01), m.infoCodes)
}

func TestMalformedDateKeepsState(t *testing.T) {
	m := New(meter.Info{})
	require.NoError(t, m.ProcessContent(parseTelegram(t, standardHex)))
	require.Equal(t, "2019-10-31 00:00", m.targetDate)

	// The follow-up telegram's storage-1 date record has a wrong width.
	// Extraction fails, the date keeps its previous value, and the other
	// fields still update.
	require.NoError(t, m.ProcessContent(parseTelegram(t, badDateHex)))
	require.Equal(t, "2019-10-31 00:00", m.targetDate)
	require.InDelta(t, 45.0, m.TotalEnergyConsumption(units.KWH), 1e-9)
	require.InDelta(t, 1.9, m.CurrentPowerConsumption(units.KW), 1e-9)
}

func TestProcessContentAnnotates(t *testing.T) {
	m := New(meter.Info{})
	tg := parseTelegram(t, standardHex)
	require.NoError(t, m.ProcessContent(tg))

	notes := tg.Explanations()
	require.Len(t, notes, 6)
	require.Equal(t, 19, notes[0].Offset)
	require.Contains(t, notes[0].Text, "total energy consumption")
	require.Equal(t, 43, notes[5].Offset)
	require.Contains(t, notes[5].Text, "info codes")
}

func TestProcessContentWithoutValues(t *testing.T) {
	m := New(meter.Info{})
	require.Error(t, m.ProcessContent(&frame.Telegram{}))
}

func TestPublishedQuantities(t *testing.T) {
	m := New(meter.Info{Name: "apartment"})
	prints := m.Prints()
	require.Len(t, prints, 6)

	byName := map[string]meter.Print{}
	for _, p := range prints {
		byName[p.Name] = p
	}
	require.Contains(t, byName, "total_energy_consumption")
	require.Contains(t, byName, "current_power_consumption")
	require.Contains(t, byName, "total_volume")
	require.Contains(t, byName, "at_date")
	require.Contains(t, byName, "total_energy_consumption_at_date")
	require.Contains(t, byName, "current_status")

	require.True(t, byName["total_energy_consumption"].Default)
	require.False(t, byName["at_date"].Default)
	require.NotNil(t, byName["at_date"].GetText)
	require.Nil(t, byName["at_date"].GetNumeric)
	require.Equal(t, units.Energy, byName["total_energy_consumption_at_date"].Quantity)

	require.Equal(t, "apartment", m.Name())
	require.Equal(t, "sharky775", m.DriverName())
	require.Equal(t, meter.SecurityModeAESCTR, m.ExpectedSecurityMode())
	require.Equal(t, []meter.LinkMode{meter.LinkModeT1}, m.LinkModes())
}

func TestRegisteredWithDriverRegistry(t *testing.T) {
	tg := parseTelegram(t, standardHex)
	factory, err := meter.Lookup(tg)
	require.NoError(t, err)
	m := factory(meter.Info{})
	require.Equal(t, "sharky775", m.DriverName())
}
