package drivers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"

	"github.com/hubertat/diokit/mqtt"
)

const mcpioBusDriverName = "mcpio_bus"

// McpBus drives cards built from MCP23017 port expanders, one expander
// per card. The expander's 16 pins map directly onto the card register
// bits, bit 0 on pin 0.
type McpBus struct {
	Devices []McpDevice

	devices map[uint8]*mcpCard
	cards   []uint8
	isReady bool
}

type McpDevice struct {
	Card  uint8
	BusNo uint8
	DevNo uint8

	// OutputMask selects which register bits are driven as outputs,
	// remaining bits are configured as pulled-up inputs.
	OutputMask uint32
}

type mcpCard struct {
	device     *mcp23017.Device
	outputMask uint32
}

func (mcp *McpBus) findDevice(card uint8) (McpDevice, bool) {
	for _, dev := range mcp.Devices {
		if dev.Card == card {
			return dev, true
		}
	}

	return McpDevice{}, false
}

func (mcp *McpBus) Setup(ctx context.Context, cards []uint8) error {
	mcp.devices = make(map[uint8]*mcpCard)

	for _, card := range cards {
		config, found := mcp.findDevice(card)
		if !found {
			return errors.Errorf("mcpio bus: card %d not present in Devices config", card)
		}

		device, err := mcp23017.Open(config.BusNo, config.DevNo)
		if err != nil {
			return errors.Wrapf(err, "mcpio bus: failed to open device for card %d", card)
		}

		for bit := uint8(0); bit < CardBits; bit++ {
			if config.OutputMask&(1<<bit) != 0 {
				err = device.PinMode(bit, mcp23017.OUTPUT)
				if err != nil {
					return errors.Wrapf(err, "mcpio bus: pin mode failed (card %d bit %d)", card, bit)
				}
				continue
			}

			err = device.PinMode(bit, mcp23017.INPUT)
			if err != nil {
				return errors.Wrapf(err, "mcpio bus: pin mode failed (card %d bit %d)", card, bit)
			}
			err = device.SetPullUp(bit, true)
			if err != nil {
				return errors.Wrapf(err, "mcpio bus: pull up failed (card %d bit %d)", card, bit)
			}
		}

		mcp.devices[card] = &mcpCard{device: device, outputMask: config.OutputMask}
		mcp.cards = append(mcp.cards, card)
	}

	mcp.isReady = true
	return nil
}

func (mcp *McpBus) SetMqtt(publisher mqtt.Publisher) []mqtt.MqttHandler {
	return nil
}

func (mcp *McpBus) String() string {
	return mcpioBusDriverName
}

func (mcp *McpBus) IsReady() bool {
	return mcp.isReady
}

func (mcp *McpBus) MaskedRead(card uint8, mask uint32) (value uint32, err error) {
	port, found := mcp.devices[card]
	if !found {
		err = fmt.Errorf("mcpio bus card %d not found", card)
		return
	}

	for bit := uint8(0); bit < CardBits; bit++ {
		if mask&(1<<bit) == 0 {
			continue
		}
		level, readErr := port.device.DigitalRead(bit)
		if readErr != nil {
			err = errors.Wrapf(readErr, "mcpio bus read failed (card %d bit %d)", card, bit)
			return
		}
		if bool(level) {
			value |= 1 << bit
		}
	}

	return
}

func (mcp *McpBus) MaskedWrite(card uint8, value uint32, mask uint32) error {
	port, found := mcp.devices[card]
	if !found {
		return fmt.Errorf("mcpio bus card %d not found", card)
	}

	for bit := uint8(0); bit < CardBits; bit++ {
		if mask&(1<<bit) == 0 {
			continue
		}
		if port.outputMask&(1<<bit) == 0 {
			return errors.Errorf("mcpio bus write to input bit (card %d bit %d)", card, bit)
		}
		level := mcp23017.PinLevel(value&(1<<bit) != 0)
		err := port.device.DigitalWrite(bit, level)
		if err != nil {
			return errors.Wrapf(err, "mcpio bus write failed (card %d bit %d)", card, bit)
		}
	}

	return nil
}

func (mcp *McpBus) RegisterScan(card uint8) (ScanHandle, error) {
	return nil, errors.New("mcpio bus does not support event scan")
}

func (mcp *McpBus) Cards() []uint8 {
	return mcp.cards
}

func (mcp *McpBus) Close() error {
	mcp.isReady = false

	var err error
	for card, port := range mcp.devices {
		closeErr := port.device.Close()
		if closeErr != nil {
			err = errors.Wrapf(closeErr, "mcpio bus close failed (card %d)", card)
		}
	}

	return err
}
