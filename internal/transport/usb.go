package transport

import (
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	// Raspberry Pi Pico running the glitcher firmware
	VendorIDRaspberryPi = 0x2E8A
	ProductIDPicoGlitch = 0x0005

	DefaultPacketSize = 64
	DefaultTimeout    = 5 * time.Second
)

// USBTransport talks to a glitcher unit over bulk endpoints.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
}

// NewUSBTransport opens the first device matching vid:pid and claims its
// vendor interface.
func NewUSBTransport(vid, pid uint16) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}

	// auto-detach matters on Linux where cdc_acm may hold the interface
	_ = dev.SetAutoDetach(true)

	t := &USBTransport{
		ctx:        ctx,
		dev:        dev,
		packetSize: DefaultPacketSize,
		timeout:    DefaultTimeout,
	}
	if err := t.claimInterface(); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return t, nil
}

func (t *USBTransport) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	vendorIntfNum := -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 {
			if intf.AltSettings[0].Class == gousb.ClassVendorSpec {
				vendorIntfNum = intf.Number
				break
			}
		}
	}
	if vendorIntfNum == -1 {
		vendorIntfNum = 0
	}

	intf, err := cfg.Interface(vendorIntfNum, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", vendorIntfNum, err)
	}
	t.intf = intf

	if err := t.findEndpoints(); err != nil {
		intf.Close()
		return err
	}
	return nil
}

func (t *USBTransport) findEndpoints() error {
	setting := t.intf.Setting

	var outAddr, inAddr int
	for _, ep := range setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if outAddr == 0 {
				outAddr = ep.Number
			}
		case gousb.EndpointDirectionIn:
			if inAddr == 0 {
				inAddr = ep.Number
				t.packetSize = ep.MaxPacketSize
			}
		}
	}
	if outAddr == 0 {
		return fmt.Errorf("bulk OUT endpoint not found")
	}
	if inAddr == 0 {
		return fmt.Errorf("bulk IN endpoint not found")
	}

	epOut, err := t.intf.OutEndpoint(outAddr)
	if err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	t.epOut = epOut

	epIn, err := t.intf.InEndpoint(inAddr)
	if err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	t.epIn = epIn
	return nil
}

// WriteRead performs one command/response transaction. Packets are fixed
// size; commands are zero padded.
func (t *USBTransport) WriteRead(cmd []byte) ([]byte, error) {
	packet := make([]byte, t.packetSize)
	copy(packet, cmd)
	if _, err := t.epOut.Write(packet); err != nil {
		return nil, fmt.Errorf("USB write failed: %w", err)
	}

	resp := make([]byte, t.packetSize)
	n, err := t.epIn.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("USB read failed: %w", err)
	}
	return resp[:n], nil
}

// PacketSize returns the negotiated packet size.
func (t *USBTransport) PacketSize() int { return t.packetSize }

// SetTimeout sets the transaction timeout.
func (t *USBTransport) SetTimeout(timeout time.Duration) { t.timeout = timeout }

// Close releases USB resources.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

// DeviceInfo describes a discovered glitcher unit.
type DeviceInfo struct {
	VID          uint16
	PID          uint16
	SerialNumber string
	Description  string
}

// EnumerateGlitchers lists connected devices running the glitcher firmware.
func EnumerateGlitchers() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == VendorIDRaspberryPi && desc.Product == ProductIDPicoGlitch
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		serial, _ := dev.SerialNumber()
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()
		devices = append(devices, DeviceInfo{
			VID:          uint16(dev.Desc.Vendor),
			PID:          uint16(dev.Desc.Product),
			SerialNumber: serial,
			Description:  fmt.Sprintf("%s %s", manufacturer, product),
		})
		dev.Close()
	}
	return devices, nil
}
