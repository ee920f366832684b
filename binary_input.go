package diokit

import (
	"github.com/pkg/errors"

	"github.com/hubertat/diokit/drivers"
)

// BinaryInput reads a single card register bit into the record raw value.
type BinaryInput struct{}

func (BinaryInput) Init(rec *Record, driver drivers.BusDriver) error {
	_, signal, err := rec.busAddress()
	if err != nil {
		return errors.Wrap(err, "binary input init")
	}

	rec.Mask = 1 << signal
	rec.driver = driver
	rec.active = true

	return nil
}

func (BinaryInput) ScanInfo(rec *Record) (drivers.ScanHandle, error) {
	return rec.driver.RegisterScan(rec.Link.Card)
}

func (BinaryInput) Process(rec *Record) error {
	value, err := rec.driver.MaskedRead(rec.Link.Card, rec.Mask)
	if err != nil {
		rec.SetAlarm(StatusRead, SeverityInvalid)
		return err
	}

	rec.Rval = value
	return nil
}
