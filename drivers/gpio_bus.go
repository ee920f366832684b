package drivers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/hubertat/diokit/mqtt"
)

const gpioBusDriverName = "gpio_bus"

// GpioBus emulates card registers on Raspberry Pi pins. Each configured
// GpioPin maps one register bit of one card onto a BCM pin; bits without
// a mapping read as zero and ignore writes.
type GpioBus struct {
	Pins []GpioPin

	InvertInputs  bool
	InvertOutputs bool

	cards   []uint8
	isReady bool
}

type GpioPin struct {
	Card   uint8
	Bit    uint8
	Pin    uint8
	Output bool
}

func (gp *GpioBus) Setup(ctx context.Context, cards []uint8) error {
	err := rpio.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to Setup gpio bus for cards: %v; ", cards)
	}

	for _, mapping := range gp.Pins {
		if mapping.Bit >= CardBits {
			return errors.Errorf("gpio bus bit %d out of card range", mapping.Bit)
		}

		pin := rpio.Pin(mapping.Pin)
		if mapping.Output {
			pin.Output()
		} else {
			pin.Input()
			pin.PullUp()
		}
	}

	gp.cards = append(gp.cards, cards...)
	gp.isReady = true
	return nil
}

func (gp *GpioBus) SetMqtt(publisher mqtt.Publisher) []mqtt.MqttHandler {
	return nil
}

func (gp *GpioBus) String() string {
	return gpioBusDriverName
}

func (gp *GpioBus) IsReady() bool {
	return gp.isReady
}

func (gp *GpioBus) hasCard(card uint8) bool {
	for _, known := range gp.cards {
		if known == card {
			return true
		}
	}

	return false
}

func (gp *GpioBus) MaskedRead(card uint8, mask uint32) (value uint32, err error) {
	if !gp.hasCard(card) {
		err = fmt.Errorf("gpio bus card %d not found", card)
		return
	}

	for _, mapping := range gp.Pins {
		if mapping.Card != card || mask&(1<<mapping.Bit) == 0 {
			continue
		}

		high := rpio.Pin(mapping.Pin).Read() == rpio.High
		if !mapping.Output && gp.InvertInputs {
			high = !high
		}
		if high {
			value |= 1 << mapping.Bit
		}
	}

	return
}

func (gp *GpioBus) MaskedWrite(card uint8, value uint32, mask uint32) error {
	if !gp.hasCard(card) {
		return fmt.Errorf("gpio bus card %d not found", card)
	}

	for _, mapping := range gp.Pins {
		if mapping.Card != card || !mapping.Output || mask&(1<<mapping.Bit) == 0 {
			continue
		}

		high := value&(1<<mapping.Bit) != 0
		if gp.InvertOutputs {
			high = !high
		}
		if high {
			rpio.Pin(mapping.Pin).High()
		} else {
			rpio.Pin(mapping.Pin).Low()
		}
	}

	return nil
}

func (gp *GpioBus) RegisterScan(card uint8) (ScanHandle, error) {
	return nil, errors.New("gpio bus does not support event scan")
}

func (gp *GpioBus) Cards() []uint8 {
	return gp.cards
}

func (gp *GpioBus) Close() error {
	gp.isReady = false
	for _, mapping := range gp.Pins {
		if mapping.Output {
			rpio.Pin(mapping.Pin).Low()
		}
	}
	return rpio.Close()
}
