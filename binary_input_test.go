package diokit

import (
	"errors"
	"testing"
)

func TestBinaryInputInitMask(t *testing.T) {
	mb := mockBus(t, 2)

	rec := &Record{
		Name: "bi0",
		Link: Link{Type: LinkBus, Card: 2, Signal: 3},
	}

	err := BinaryInput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	assertUint32(t, rec.Mask, 0b1000)
	if !rec.Active() {
		t.Error("record should be active after init")
	}
}

func TestBinaryInputInitBadLink(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{Name: "bi_bad", Link: Link{Type: LinkNone, Signal: 1}}

	err := BinaryInput{}.Init(rec, mb)
	if err == nil {
		t.Fatal("expected init error for unsupported link type")
	}
	if !errors.Is(err, ErrBadLink) {
		t.Errorf("expected ErrBadLink, got: %v", err)
	}
	if rec.Active() {
		t.Error("record must stay inactive after failed init")
	}
}

func TestBinaryInputInitSignalOutOfRange(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{Name: "bi_range", Link: Link{Type: LinkBus, Card: 0, Signal: 16}}

	err := BinaryInput{}.Init(rec, mb)
	if err == nil {
		t.Fatal("expected init error for signal outside card bit width")
	}
	if rec.Active() {
		t.Error("record must stay inactive after failed init")
	}
}

func TestBinaryInputProcess(t *testing.T) {
	mb := mockBus(t, 2)
	mb.SetRegister(2, 0b1000)

	rec := &Record{Name: "bi0", Link: Link{Type: LinkBus, Card: 2, Signal: 3}}
	err := BinaryInput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	err = BinaryInput{}.Process(rec)
	if err != nil {
		t.Fatalf("process returned err: %v", err)
	}

	assertUint32(t, rec.Rval, 0b1000)
	assertAlarm(t, rec, StatusNoAlarm, SeverityNone)
}

func TestBinaryInputProcessReadFailure(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{Name: "bi0", Link: Link{Type: LinkBus, Card: 0, Signal: 1}}
	err := BinaryInput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	rec.Rval = 0xAA
	injected := errors.New("bus fault")
	mb.ReadErr = injected

	err = BinaryInput{}.Process(rec)
	if !errors.Is(err, injected) {
		t.Errorf("process must return the driver error unmodified, got: %v", err)
	}

	assertUint32(t, rec.Rval, 0xAA)
	assertAlarm(t, rec, StatusRead, SeverityInvalid)
}

func TestBinaryInputMaskStableAcrossProcessCalls(t *testing.T) {
	mb := mockBus(t, 1)

	rec := &Record{Name: "bi0", Link: Link{Type: LinkBus, Card: 1, Signal: 7}}
	err := BinaryInput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	for i := 0; i < 5; i++ {
		err = BinaryInput{}.Process(rec)
		if err != nil {
			t.Fatalf("process returned err: %v", err)
		}
	}

	if len(mb.Reads) != 5 {
		t.Fatalf("expected 5 recorded reads, got %d", len(mb.Reads))
	}
	for i, op := range mb.Reads {
		if op.Mask != 1<<7 {
			t.Errorf("read %d used mask %#x, want %#x", i, op.Mask, uint32(1<<7))
		}
	}
}

func TestBinaryInputScanInfo(t *testing.T) {
	mb := mockBus(t, 4)

	rec := &Record{Name: "bi0", Link: Link{Type: LinkBus, Card: 4, Signal: 0}}
	err := BinaryInput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	handle, err := BinaryInput{}.ScanInfo(rec)
	if err != nil {
		t.Fatalf("scan info returned err: %v", err)
	}
	if handle == nil {
		t.Fatal("expected a scan handle")
	}

	mb.Trigger(4)
	select {
	case <-handle:
	default:
		t.Error("expected scan event after trigger")
	}
}
