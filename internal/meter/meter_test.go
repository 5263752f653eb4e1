package meter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/don-vip/wmbusmeters/internal/frame"
	"github.com/don-vip/wmbusmeters/internal/units"
)

type fakeMeter struct {
	*Common
}

func (fakeMeter) ProcessContent(*frame.Telegram) error { return nil }

func TestCommonNameFallsBackToDriver(t *testing.T) {
	c := NewCommon(Info{ID: "12345678"}, "fake", "heat")
	require.Equal(t, "fake", c.Name())

	named := NewCommon(Info{Name: "basement", ID: "12345678"}, "fake", "heat")
	require.Equal(t, "basement", named.Name())
	require.Equal(t, "fake", named.DriverName())
	require.Equal(t, "heat", named.Media())
}

func TestCommonPrintsKeepRegistrationOrder(t *testing.T) {
	c := NewCommon(Info{}, "fake", "heat")
	c.AddPrint(Print{Name: "total", Quantity: units.Energy, Available: true})
	c.AddPrint(Print{Name: "status", Quantity: units.Text, Available: true})

	prints := c.Prints()
	require.Len(t, prints, 2)
	require.Equal(t, "total", prints[0].Name)
	require.Equal(t, "status", prints[1].Name)
}

func TestCommonConfiguration(t *testing.T) {
	c := NewCommon(Info{}, "fake", "heat")
	c.SetExpectedSecurityMode(SecurityModeAESCTR)
	c.AddLinkMode(LinkModeT1)
	require.Equal(t, SecurityModeAESCTR, c.ExpectedSecurityMode())
	require.Equal(t, []LinkMode{LinkModeT1}, c.LinkModes())
}

func TestRegistryLookup(t *testing.T) {
	Register(Detection{Manufacturer: 0xFFFE, DeviceTypes: []byte{0x04}}, func(info Info) Meter {
		return fakeMeter{Common: NewCommon(info, "fake", "heat")}
	})

	tg := &frame.Telegram{Manufacturer: 0xFFFE, DeviceType: 0x04}
	factory, err := Lookup(tg)
	require.NoError(t, err)
	m := factory(Info{Name: "cellar"})
	require.Equal(t, "cellar", m.Name())
	require.Equal(t, "fake", m.DriverName())

	// Device type must match, not just the manufacturer.
	_, err = Lookup(&frame.Telegram{Manufacturer: 0xFFFE, DeviceType: 0x07})
	require.Error(t, err)
	_, err = Lookup(&frame.Telegram{Manufacturer: 0xFFFD, DeviceType: 0x04})
	require.Error(t, err)
}
