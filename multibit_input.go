package diokit

import (
	"github.com/pkg/errors"

	"github.com/hubertat/diokit/drivers"
)

// MultiBitInput reads a contiguous bit field from a card register. The
// record arrives at init with its width mask already populated; init only
// shifts it into position.
type MultiBitInput struct{}

func (MultiBitInput) Init(rec *Record, driver drivers.BusDriver) error {
	_, signal, err := rec.busAddress()
	if err != nil {
		return errors.Wrap(err, "multibit input init")
	}

	rec.Shift = signal
	rec.Mask <<= rec.Shift

	rec.driver = driver
	rec.active = true

	return nil
}

func (MultiBitInput) ScanInfo(rec *Record) (drivers.ScanHandle, error) {
	return rec.driver.RegisterScan(rec.Link.Card)
}

// Process stores the masked value as read, still in the shifted bit
// positions; normalizing by Shift is the engine's job.
func (MultiBitInput) Process(rec *Record) error {
	value, err := rec.driver.MaskedRead(rec.Link.Card, rec.Mask)
	if err != nil {
		rec.SetAlarm(StatusRead, SeverityInvalid)
		return err
	}

	rec.Rval = value
	return nil
}
