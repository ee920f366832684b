package diokit

import (
	"errors"
	"testing"
)

func TestMultiBitOutputInit(t *testing.T) {
	mb := mockBus(t, 1)
	mb.SetRegister(1, 0b010000)

	rec := &Record{
		Name: "mbbo0",
		Link: Link{Type: LinkBus, Card: 1, Signal: 4},
		Mask: 0b11,
	}

	err := MultiBitOutput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	if rec.Shift != 4 {
		t.Errorf("shift got %d want 4", rec.Shift)
	}
	assertUint32(t, rec.Mask, 0b110000)
	assertUint32(t, rec.Rval, 0b010000)
	assertUint32(t, rec.Rbv, 0b010000)
}

func TestMultiBitOutputInitReadFailure(t *testing.T) {
	mb := mockBus(t, 1)
	injected := errors.New("bus fault")
	mb.ReadErr = injected

	rec := &Record{Name: "mbbo0", Link: Link{Type: LinkBus, Card: 1, Signal: 4}, Mask: 0b11}

	err := MultiBitOutput{}.Init(rec, mb)
	if !errors.Is(err, injected) {
		t.Errorf("init must fail with the driver error, got: %v", err)
	}
	if rec.Active() {
		t.Error("record must stay inactive when the initial read fails")
	}
}

func TestMultiBitOutputWriteThenVerify(t *testing.T) {
	mb := mockBus(t, 1)

	rec := &Record{Name: "mbbo0", Link: Link{Type: LinkBus, Card: 1, Signal: 4}, Mask: 0b11}
	err := MultiBitOutput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	// hardware reports something else than what was written; the
	// readback must reflect the driver, not the written value
	mb.ReadFunc = func(card uint8, mask uint32) (uint32, error) {
		return 0b100000, nil
	}

	rec.Rval = 0b10
	err = MultiBitOutput{}.Process(rec)
	if err != nil {
		t.Fatalf("process returned err: %v", err)
	}

	assertUint32(t, rec.Rbv, 0b100000)
	assertAlarm(t, rec, StatusNoAlarm, SeverityNone)

	if len(mb.Writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(mb.Writes))
	}
	if mb.Writes[0].Value != 0b10 || mb.Writes[0].Mask != 0b110000 {
		t.Errorf("write got value %#x mask %#x, want value 0b10 mask 0b110000",
			mb.Writes[0].Value, mb.Writes[0].Mask)
	}
}

func TestMultiBitOutputWriteFailureSkipsVerify(t *testing.T) {
	mb := mockBus(t, 1)

	rec := &Record{Name: "mbbo0", Link: Link{Type: LinkBus, Card: 1, Signal: 4}, Mask: 0b11}
	err := MultiBitOutput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	readsAfterInit := len(mb.Reads)
	injected := errors.New("bus fault")
	mb.WriteErr = injected

	err = MultiBitOutput{}.Process(rec)
	if !errors.Is(err, injected) {
		t.Errorf("process must return the driver error unmodified, got: %v", err)
	}

	assertAlarm(t, rec, StatusWrite, SeverityInvalid)
	if len(mb.Reads) != readsAfterInit {
		t.Error("verify read must be skipped when the write fails")
	}
}

func TestMultiBitOutputVerifyFailureRaisesReadAlarm(t *testing.T) {
	mb := mockBus(t, 1)

	rec := &Record{Name: "mbbo0", Link: Link{Type: LinkBus, Card: 1, Signal: 4}, Mask: 0b11}
	err := MultiBitOutput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	injected := errors.New("bus fault")
	mb.ReadErr = injected
	rec.Rbv = 0xCC
	rec.Rval = 0b10

	err = MultiBitOutput{}.Process(rec)
	if !errors.Is(err, injected) {
		t.Errorf("process must return the driver error unmodified, got: %v", err)
	}

	// the write went through, only the verify read failed
	if len(mb.Writes) != 1 {
		t.Errorf("expected the write to happen, got %d writes", len(mb.Writes))
	}
	assertAlarm(t, rec, StatusRead, SeverityInvalid)
	assertUint32(t, rec.Rbv, 0xCC)
}

func TestMultiBitOutputMaskStableAcrossProcessCalls(t *testing.T) {
	mb := mockBus(t, 1)

	rec := &Record{Name: "mbbo0", Link: Link{Type: LinkBus, Card: 1, Signal: 2}, Mask: 0b111}
	err := MultiBitOutput{}.Init(rec, mb)
	if err != nil {
		t.Fatalf("init returned err: %v", err)
	}

	for i := 0; i < 4; i++ {
		err = MultiBitOutput{}.Process(rec)
		if err != nil {
			t.Fatalf("process returned err: %v", err)
		}
	}

	for i, op := range mb.Writes {
		if op.Mask != 0b11100 {
			t.Errorf("write %d used mask %#x, want %#x", i, op.Mask, uint32(0b11100))
		}
	}
}
