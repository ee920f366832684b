package diokit

import (
	"github.com/pkg/errors"

	"github.com/hubertat/diokit/drivers"
)

// BinaryOutput writes a single card register bit from the record raw
// value. Init reads the bit back from hardware first, so the first
// process call never pushes out a stale default.
type BinaryOutput struct{}

func (BinaryOutput) Init(rec *Record, driver drivers.BusDriver) error {
	card, signal, err := rec.busAddress()
	if err != nil {
		return errors.Wrap(err, "binary output init")
	}

	rec.Mask = 1 << signal

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

// Process writes the raw value and stops there: unlike the multi-bit
// output, the single-bit path does not read back after a write.
func (BinaryOutput) Process(rec *Record) error {
	err := rec.driver.MaskedWrite(rec.Link.Card, rec.Rval, rec.Mask)
	if err != nil {
		rec.SetAlarm(StatusWrite, SeverityInvalid)
		return err
	}

	return nil
}
