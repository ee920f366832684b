package drivers

import (
	"context"
	"fmt"
	"sync"

	"github.com/hubertat/diokit/mqtt"
)

const mockBusDriverName = "mock_bus"

// MaskedOp records a single masked access for later inspection.
type MaskedOp struct {
	Card  uint8
	Value uint32
	Mask  uint32
}

// MockBus keeps card registers in memory. Tests and the bench binary use
// it in place of real hardware: errors can be injected per primitive,
// every masked access is recorded, and Trigger fires a card's scan event.
type MockBus struct {
	ReadErr  error
	WriteErr error
	ScanErr  error

	// ReadFunc, when set, overrides the register lookup so tests can
	// inject arbitrary read-back values.
	ReadFunc func(card uint8, mask uint32) (uint32, error)

	Reads  []MaskedOp
	Writes []MaskedOp

	registers map[uint8]uint32
	scans     map[uint8]chan struct{}
	cards     []uint8
	ready     bool

	mu sync.Mutex
}

func (mb *MockBus) Setup(ctx context.Context, cards []uint8) error {
	mb.registers = make(map[uint8]uint32)
	mb.scans = make(map[uint8]chan struct{})

	for _, card := range cards {
		mb.registers[card] = 0
		mb.scans[card] = make(chan struct{}, 1)
		mb.cards = append(mb.cards, card)
	}

	mb.ready = true
	return nil
}

func (mb *MockBus) SetMqtt(publisher mqtt.Publisher) []mqtt.MqttHandler {
	return nil
}

func (mb *MockBus) Close() error {
	mb.ready = false
	return nil
}

func (mb *MockBus) String() string {
	return mockBusDriverName
}

func (mb *MockBus) IsReady() bool {
	return mb.ready
}

func (mb *MockBus) MaskedRead(card uint8, mask uint32) (uint32, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.Reads = append(mb.Reads, MaskedOp{Card: card, Mask: mask})

	if mb.ReadErr != nil {
		return 0, mb.ReadErr
	}

	if mb.ReadFunc != nil {
		return mb.ReadFunc(card, mask)
	}

	reg, found := mb.registers[card]
	if !found {
		return 0, fmt.Errorf("mock bus card %d not found", card)
	}

	return reg & mask, nil
}

func (mb *MockBus) MaskedWrite(card uint8, value uint32, mask uint32) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.Writes = append(mb.Writes, MaskedOp{Card: card, Value: value, Mask: mask})

	if mb.WriteErr != nil {
		return mb.WriteErr
	}

	reg, found := mb.registers[card]
	if !found {
		return fmt.Errorf("mock bus card %d not found", card)
	}

	mb.registers[card] = (reg &^ mask) | (value & mask)
	return nil
}

func (mb *MockBus) RegisterScan(card uint8) (ScanHandle, error) {
	if mb.ScanErr != nil {
		return nil, mb.ScanErr
	}

	ch, found := mb.scans[card]
	if !found {
		return nil, fmt.Errorf("mock bus card %d not found", card)
	}

	return ScanHandle(ch), nil
}

func (mb *MockBus) Cards() []uint8 {
	return mb.cards
}

// Trigger fires the scan event of a card, like a hardware interrupt would.
func (mb *MockBus) Trigger(card uint8) {
	ch, found := mb.scans[card]
	if !found {
		return
	}

	select {
	case ch <- struct{}{}:
	default:
	}
}

// SetRegister overwrites a card register directly, bypassing the masked
// write path.
func (mb *MockBus) SetRegister(card uint8, value uint32) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.registers[card] = value
}

// Register returns the current register content of a card.
func (mb *MockBus) Register(card uint8) uint32 {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	return mb.registers[card]
}
