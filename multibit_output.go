package diokit

import (
	"github.com/pkg/errors"

	"github.com/hubertat/diokit/drivers"
)

// MultiBitOutput writes a contiguous bit field and verifies it by reading
// the register back.
type MultiBitOutput struct{}

func (MultiBitOutput) Init(rec *Record, driver drivers.BusDriver) error {
	card, signal, err := rec.busAddress()
	if err != nil {
		return errors.Wrap(err, "multibit output init")
	}

	rec.Shift = signal
	rec.Mask <<= rec.Shift

	value, err := driver.MaskedRead(card, rec.Mask)
	if err != nil {
		return err
	}
	rec.Rval = value
	rec.Rbv = value

	rec.driver = driver
	rec.active = true

	return nil
}

// Process is a two phase write then verify. A failed write raises a write
// alarm and skips the verify; a failed verify raises a read alarm even
// though the write went through, the write is not retried or rolled back.
// The readback is whatever the driver reports, not the written value.
func (MultiBitOutput) Process(rec *Record) error {
	err := rec.driver.MaskedWrite(rec.Link.Card, rec.Rval, rec.Mask)
	if err != nil {
		rec.SetAlarm(StatusWrite, SeverityInvalid)
		return err
	}

	value, err := rec.driver.MaskedRead(rec.Link.Card, rec.Mask)
	if err != nil {
		rec.SetAlarm(StatusRead, SeverityInvalid)
		return err
	}

	rec.Rbv = value
	return nil
}
