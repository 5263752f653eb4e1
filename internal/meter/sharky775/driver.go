package sharky775

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/don-vip/wmbusmeters/internal/dvparser"
	"github.com/don-vip/wmbusmeters/internal/frame"
	"github.com/don-vip/wmbusmeters/internal/meter"
	"github.com/don-vip/wmbusmeters/internal/units"
)

const (
	manufacturerHYD = 0x2324
	deviceTypeHeat  = 0x04
	mediaHeat       = "heat"
	dateTimeFormat  = "2006-01-02 15:04"
	// Vendor extension record carrying the per-minute info-code byte.
	infoCodesKey = "01FF21"
)

func init() {
	meter.Register(meter.Detection{
		Manufacturer: manufacturerHYD,
		DeviceTypes:  []byte{deviceTypeHeat},
	}, func(info meter.Info) meter.Meter { return New(info) })
}

// Meter decodes Diehl/Hydrometer Sharky 775 heat meter telegrams. Readings
// are stored in base units (kWh, kW, m3); fields absent from a telegram keep
// their last known value, since the meter does not repeat every field in
// every transmission.
type Meter struct {
	*meter.Common

	infoCodes       byte
	totalEnergyKWh  float64
	targetEnergyKWh float64
	currentPowerKW  float64
	totalVolumeM3   float64
	targetDate      string
}

var _ meter.HeatMeter = (*Meter)(nil)

// New builds a Sharky 775 instance and registers its published quantities.
func New(info meter.Info) *Meter {
	m := &Meter{Common: meter.NewCommon(info, "sharky775", mediaHeat)}
	m.SetExpectedSecurityMode(meter.SecurityModeAESCTR)
	m.AddLinkMode(meter.LinkModeT1)

	m.AddPrint(meter.Print{
		Name:       "total_energy_consumption",
		Quantity:   units.Energy,
		GetNumeric: m.TotalEnergyConsumption,
		Help:       "The total energy consumption recorded by this meter.",
		Default:    true,
		Available:  true,
	})
	m.AddPrint(meter.Print{
		Name:       "current_power_consumption",
		Quantity:   units.Power,
		GetNumeric: m.CurrentPowerConsumption,
		Help:       "Current power consumption.",
		Default:    true,
		Available:  true,
	})
	m.AddPrint(meter.Print{
		Name:       "total_volume",
		Quantity:   units.Volume,
		GetNumeric: m.TotalVolume,
		Help:       "Total volume of heat media.",
		Default:    true,
		Available:  true,
	})
	m.AddPrint(meter.Print{
		Name:      "at_date",
		Quantity:  units.Text,
		GetText:   func() string { return m.targetDate },
		Help:      "Date when total energy consumption was recorded.",
		Default:   false,
		Available: true,
	})
	m.AddPrint(meter.Print{
		Name:       "total_energy_consumption_at_date",
		Quantity:   units.Energy,
		GetNumeric: m.TargetEnergyConsumption,
		Help:       "The total energy consumption recorded at the target date.",
		Default:    false,
		Available:  true,
	})
	m.AddPrint(meter.Print{
		Name:      "current_status",
		Quantity:  units.Text,
		GetText:   m.Status,
		Help:      "Status of meter.",
		Default:   true,
		Available: true,
	})
	return m
}

func (m *Meter) TotalEnergyConsumption(u units.Unit) float64 {
	units.AssertQuantity(u, units.Energy)
	return units.MustConvert(m.totalEnergyKWh, units.KWH, u)
}

func (m *Meter) TargetEnergyConsumption(u units.Unit) float64 {
	units.AssertQuantity(u, units.Energy)
	return units.MustConvert(m.targetEnergyKWh, units.KWH, u)
}

func (m *Meter) TotalVolume(u units.Unit) float64 {
	units.AssertQuantity(u, units.Volume)
	return units.MustConvert(m.totalVolumeM3, units.M3, u)
}

func (m *Meter) CurrentPowerConsumption(u units.Unit) float64 {
	units.AssertQuantity(u, units.Power)
	return units.MustConvert(m.currentPowerKW, units.KW, u)
}

// Status decodes the info-code byte into a human-readable string. The vendor
// has not published the bit table for this model, so it stays empty.
func (m *Meter) Status() string {
	return ""
}

// ProcessContent populates the meter state from one telegram. Each field is
// looked up independently; a field absent from this telegram leaves the
// previous value in place.
func (m *Meter) ProcessContent(t *frame.Telegram) error {
	values := t.Values
	if values == nil {
		return fmt.Errorf("sharky775: telegram has no parsed data records")
	}

	if offset, v, err := values.Uint8(infoCodesKey); err == nil {
		m.infoCodes = v
		t.AddMoreExplanation(offset, " info codes (%s)", m.Status())
	} else {
		reportMalformed(t, "info_codes", err)
	}

	if key, ok := values.FindKey(dvparser.Instantaneous, dvparser.EnergyWh, 0, 0); ok {
		if offset, v, err := values.Double(key); err == nil {
			m.totalEnergyKWh = v
			t.AddMoreExplanation(offset, " total energy consumption (%f kWh)", v)
		} else {
			reportMalformed(t, "total_energy_consumption", err)
		}
	}

	if key, ok := values.FindKey(dvparser.Instantaneous, dvparser.Volume, 0, 0); ok {
		if offset, v, err := values.Double(key); err == nil {
			m.totalVolumeM3 = v
			t.AddMoreExplanation(offset, " total volume (%f m3)", v)
		} else {
			reportMalformed(t, "total_volume", err)
		}
	}

	if key, ok := values.FindKey(dvparser.Instantaneous, dvparser.EnergyWh, 1, 0); ok {
		if offset, v, err := values.Double(key); err == nil {
			m.targetEnergyKWh = v
			t.AddMoreExplanation(offset, " target energy consumption (%f kWh)", v)
		} else {
			reportMalformed(t, "target_energy_consumption", err)
		}
	}

	if key, ok := values.FindKey(dvparser.Instantaneous, dvparser.PowerW, 0, 0); ok {
		if offset, v, err := values.Double(key); err == nil {
			m.currentPowerKW = v
			t.AddMoreExplanation(offset, " current power consumption (%f kW)", v)
		} else {
			reportMalformed(t, "current_power_consumption", err)
		}
	}

	if key, ok := values.FindKey(dvparser.Unknown, dvparser.Date, 1, 0); ok {
		if offset, ts, err := values.Date(key); err == nil {
			m.targetDate = ts.Format(dateTimeFormat)
			t.AddMoreExplanation(offset, " target date (%s)", m.targetDate)
		} else {
			reportMalformed(t, "target_date", err)
		}
	}

	return nil
}

// reportMalformed logs extraction failures that are not plain absence. The
// target field stays unchanged either way.
func reportMalformed(t *frame.Telegram, field string, err error) {
	if errors.Is(err, dvparser.ErrFieldNotFound) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"meter": "sharky775",
		"id":    t.MeterIDString(),
		"field": field,
	}).WithError(err).Warn("skipping malformed field")
}
