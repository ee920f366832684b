package diokit

import (
	"errors"
	"testing"
)

func TestMultiBitInputInitShiftsWidthMask(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{
		Name: "mbbi0",
		Link: Link{Type: LinkBus, Card: 0, Signal: 4},
		Mask: 0b11,
	}

	err := MultiBitInput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	if rec.Shift != 4 {
		t.Errorf("shift got %d want 4", rec.Shift)
	}
	assertUint32(t, rec.Mask, 0b110000)
}

func TestMultiBitInputInitBadLink(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{Name: "mbbi_bad", Link: Link{Type: LinkNone}, Mask: 0b11}

	err := MultiBitInput{}.Init(rec, mb)
	if !errors.Is(err, ErrBadLink) {
		t.Errorf("expected ErrBadLink, got: %v", err)
	}
	if rec.Active() {
		t.Error("record must stay inactive after failed init")
	}
}

func TestMultiBitInputProcessKeepsShiftedPositions(t *testing.T) {
	mb := mockBus(t, 0)
	mb.SetRegister(0, 0b101100)

	rec := &Record{Name: "mbbi0", Link: Link{Type: LinkBus, Card: 0, Signal: 2}, Mask: 0b111}
	err := MultiBitInput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}
	assertUint32(t, rec.Mask, 0b11100)

	err = MultiBitInput{}.Process(rec)
	if err != nil {
		t.Fatalf("process returned err: %v", err)
	}

	// the value stays in the shifted positions, normalization is not
	// the adapter's job
	assertUint32(t, rec.Rval, 0b01100)
	assertAlarm(t, rec, StatusNoAlarm, SeverityNone)
}

func TestMultiBitInputProcessReadFailure(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{Name: "mbbi0", Link: Link{Type: LinkBus, Card: 0, Signal: 2}, Mask: 0b11}
	err := MultiBitInput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	rec.Rval = 0xBB
	injected := errors.New("bus fault")
	mb.ReadErr = injected

	err = MultiBitInput{}.Process(rec)
	if !errors.Is(err, injected) {
		t.Errorf("process must return the driver error unmodified, got: %v", err)
	}

	assertUint32(t, rec.Rval, 0xBB)
	assertAlarm(t, rec, StatusRead, SeverityInvalid)
}

func TestMultiBitInputScanInfo(t *testing.T) {
	mb := mockBus(t, 3)

	rec := &Record{Name: "mbbi0", Link: Link{Type: LinkBus, Card: 3, Signal: 0}, Mask: 0b11}
	err := MultiBitInput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	handle, err := MultiBitInput{}.ScanInfo(rec)
	if err != nil {
		t.Fatalf("scan info returned err: %v", err)
	}

	mb.Trigger(3)
	select {
	case <-handle:
	default:
		t.Error("expected scan event after trigger")
	}
}
