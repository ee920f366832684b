package drivers

import (
	"context"

	"github.com/hubertat/diokit/mqtt"
)

// CardBits is the register width of the digital I/O cards this layer
// supports. Signal numbers address single bits inside that register.
const CardBits = 16

// ScanHandle identifies the event scan list of a single card. The driver
// owns the send side and fires it once per hardware scan event.
type ScanHandle <-chan struct{}

// BusDriver is the low level access to digital I/O cards on a backplane
// bus. MaskedRead and MaskedWrite touch only the bits selected by mask,
// leaving the rest of the card register unaffected. Implementations must
// serialize concurrent access to the same card.
type BusDriver interface {
	Setup(ctx context.Context, cards []uint8) error
	SetMqtt(publisher mqtt.Publisher) []mqtt.MqttHandler
	Close() error
	String() string
	IsReady() bool
	MaskedRead(card uint8, mask uint32) (uint32, error)
	MaskedWrite(card uint8, value uint32, mask uint32) error
	RegisterScan(card uint8) (ScanHandle, error)
	Cards() []uint8
}

func MapAllBusDrivers() map[string]BusDriver {
	drivers := []BusDriver{
		&MockBus{},
		&GpioBus{},
		&McpBus{},
		&RemoteBus{},
	}

	mapped := make(map[string]BusDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}
