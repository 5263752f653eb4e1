package meter

import (
	"fmt"
	"sync"

	"github.com/don-vip/wmbusmeters/internal/frame"
	"github.com/don-vip/wmbusmeters/internal/units"
)

// LinkMode is the radio link mode a meter transmits in.
type LinkMode int

const (
	LinkModeAny LinkMode = iota
	LinkModeT1
	LinkModeC1
	LinkModeS1
)

// SecurityMode is the link-layer encryption a meter is expected to use.
// It is static configuration declared at construction; validation happens
// in the decryption layer, not here.
type SecurityMode int

const (
	SecurityModeNone SecurityMode = iota
	SecurityModeAESCTR
	SecurityModeAESCBCIV
)

// Info carries the configuration a meter instance is created from.
type Info struct {
	Name   string
	Driver string
	ID     string
}

// Print is one published quantity: a named accessor the reporting layer can
// query without per-device logic. Exactly one of GetNumeric and GetText is
// set. Default marks always-shown fields, Available whether this device
// class publishes the field at all.
type Print struct {
	Name       string
	Quantity   units.Quantity
	GetNumeric func(units.Unit) float64
	GetText    func() string
	Help       string
	Default    bool
	Available  bool
}

// Meter is a device decoder plugin instance.
type Meter interface {
	Name() string
	DriverName() string
	Media() string
	ProcessContent(t *frame.Telegram) error
	Prints() []Print
}

// HeatMeter is the accessor set heat meter drivers publish.
type HeatMeter interface {
	Meter
	TotalEnergyConsumption(u units.Unit) float64
	TargetEnergyConsumption(u units.Unit) float64
	CurrentPowerConsumption(u units.Unit) float64
	TotalVolume(u units.Unit) float64
	Status() string
}

// Common holds the scaffolding shared by all device drivers: identity,
// link/security configuration and the published-quantity table. Drivers
// embed it and register their prints at construction.
type Common struct {
	info                 Info
	driverName           string
	media                string
	expectedSecurityMode SecurityMode
	linkModes            []LinkMode
	prints               []Print
}

// NewCommon builds the shared scaffolding for a driver instance.
func NewCommon(info Info, driverName, media string) *Common {
	return &Common{info: info, driverName: driverName, media: media}
}

// Name returns the configured meter name, falling back to the driver name.
func (c *Common) Name() string {
	if c.info.Name != "" {
		return c.info.Name
	}
	return c.driverName
}

// DriverName returns the canonical driver name.
func (c *Common) DriverName() string { return c.driverName }

// Media describes what the meter measures.
func (c *Common) Media() string { return c.media }

// Info returns the configuration the instance was created from.
func (c *Common) Info() Info { return c.info }

// SetExpectedSecurityMode declares the link-layer security the meter uses.
func (c *Common) SetExpectedSecurityMode(m SecurityMode) { c.expectedSecurityMode = m }

// ExpectedSecurityMode returns the declared link-layer security mode.
func (c *Common) ExpectedSecurityMode() SecurityMode { return c.expectedSecurityMode }

// AddLinkMode declares an accepted radio link mode.
func (c *Common) AddLinkMode(m LinkMode) { c.linkModes = append(c.linkModes, m) }

// LinkModes returns the accepted radio link modes.
func (c *Common) LinkModes() []LinkMode { return c.linkModes }

// AddPrint registers a published quantity.
func (c *Common) AddPrint(p Print) { c.prints = append(c.prints, p) }

// Prints returns the published-quantity table in registration order.
func (c *Common) Prints() []Print {
	out := make([]Print, len(c.prints))
	copy(out, c.prints)
	return out
}

// Detection contains minimal information required to identify a driver.
type Detection struct {
	Manufacturer uint16
	DeviceTypes  []byte
}

// Factory produces a new plugin instance from meter configuration. Ownership
// of the returned instance transfers fully to the caller.
type Factory func(Info) Meter

var (
	regMu    sync.RWMutex
	registry []registeredDriver
)

type registeredDriver struct {
	detect  Detection
	factory Factory
}

// Register stores a detection/factory pair in memory. Drivers call it from
// their init functions.
func Register(det Detection, factory Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry = append(registry, registeredDriver{detect: det, factory: factory})
}

// Lookup returns the factory for the first driver matching the telegram's
// manufacturer and device type.
func Lookup(t *frame.Telegram) (Factory, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	for _, rd := range registry {
		if rd.detect.Manufacturer != t.Manufacturer {
			continue
		}
		for _, dt := range rd.detect.DeviceTypes {
			if dt == t.DeviceType {
				return rd.factory, nil
			}
		}
	}
	return nil, fmt.Errorf("driver not found for manufacturer 0x%04X device type 0x%02X", t.Manufacturer, t.DeviceType)
}
