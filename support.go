package diokit

import (
	"github.com/pkg/errors"

	"github.com/hubertat/diokit/drivers"
)

// DeviceSupport adapts one record kind to the bus driver primitives. The
// implementations are stateless singletons; everything they touch lives
// on the record itself.
type DeviceSupport interface {
	// Init validates the record link, computes the fixed bit mask and
	// binds the driver. The mask is never recomputed afterwards.
	Init(rec *Record, driver drivers.BusDriver) error

	// Process performs one read or write transaction against the
	// hardware. Driver failures are mapped to alarm state and the driver
	// error is returned unmodified, never escalated to a panic.
	Process(rec *Record) error
}

// EventScanner is the optional capability of input adapters to subscribe
// records to hardware driven scans.
type EventScanner interface {
	ScanInfo(rec *Record) (drivers.ScanHandle, error)
}

// supportTable is process wide immutable configuration: the four record
// variants are fixed, registered once, never mutated.
var supportTable = map[Kind]DeviceSupport{
	KindBinaryInput:    BinaryInput{},
	KindBinaryOutput:   BinaryOutput{},
	KindMultiBitInput:  MultiBitInput{},
	KindMultiBitOutput: MultiBitOutput{},
}

func SupportFor(kind Kind) (DeviceSupport, error) {
	support, found := supportTable[kind]
	if !found {
		return nil, errors.Errorf("no device support for record kind %d", kind)
	}

	return support, nil
}
