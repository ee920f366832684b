package diokit

import (
	"errors"
	"testing"
)

func TestBinaryOutputInitSeedsFromHardware(t *testing.T) {
	mb := mockBus(t, 0)
	mb.SetRegister(0, 0b100000)

	rec := &Record{Name: "bo0", Link: Link{Type: LinkBus, Card: 0, Signal: 5}}

	err := BinaryOutput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	assertUint32(t, rec.Mask, 0b100000)
	assertUint32(t, rec.Rval, 0b100000)
	assertUint32(t, rec.Rbv, 0b100000)
}

func TestBinaryOutputInitReadFailure(t *testing.T) {
	mb := mockBus(t, 0)
	injected := errors.New("bus fault")
	mb.ReadErr = injected

	rec := &Record{Name: "bo0", Link: Link{Type: LinkBus, Card: 0, Signal: 5}}

	err := BinaryOutput{}.Init(rec, mb)
	if !errors.Is(err, injected) {
		t.Errorf("init must fail with the driver error, got: %v", err)
	}
	if rec.Active() {
		t.Error("record must stay inactive when the initial read fails")
	}
}

func TestBinaryOutputInitBadLink(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{Name: "bo_bad", Link: Link{Type: LinkNone}}

	err := BinaryOutput{}.Init(rec, mb)
	if !errors.Is(err, ErrBadLink) {
		t.Errorf("expected ErrBadLink, got: %v", err)
	}
}

func TestBinaryOutputProcessWrites(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{Name: "bo0", Link: Link{Type: LinkBus, Card: 0, Signal: 2}}
	err := BinaryOutput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	rec.Rval = 0b100
	err = BinaryOutput{}.Process(rec)
	if err != nil {
		t.Fatalf("process returned err: %v", err)
	}

	assertUint32(t, mb.Register(0), 0b100)
	assertAlarm(t, rec, StatusNoAlarm, SeverityNone)
}

func TestBinaryOutputProcessWriteFailure(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{Name: "bo0", Link: Link{Type: LinkBus, Card: 0, Signal: 2}}
	err := BinaryOutput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	injected := errors.New("bus fault")
	mb.WriteErr = injected

	err = BinaryOutput{}.Process(rec)
	if !errors.Is(err, injected) {
		t.Errorf("process must return the driver error unmodified, got: %v", err)
	}

	assertAlarm(t, rec, StatusWrite, SeverityInvalid)
}

func TestBinaryOutputDoesNotReadBack(t *testing.T) {
	mb := mockBus(t, 0)

	rec := &Record{Name: "bo0", Link: Link{Type: LinkBus, Card: 0, Signal: 2}}
	err := BinaryOutput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	readsAfterInit := len(mb.Reads)

	rec.Rval = 0b100
	err = BinaryOutput{}.Process(rec)
	if err != nil {
		t.Fatalf("process returned err: %v", err)
	}

	if len(mb.Reads) != readsAfterInit {
		t.Errorf("binary output must not read back after write, got %d extra reads",
			len(mb.Reads)-readsAfterInit)
	}
	if len(mb.Writes) != 1 {
		t.Errorf("expected exactly 1 write, got %d", len(mb.Writes))
	}
}
