package diokit

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/diokit/drivers"
)

// Kind selects one of the four supported record variants.
type Kind int

const (
	KindBinaryInput Kind = iota
	KindBinaryOutput
	KindMultiBitInput
	KindMultiBitOutput
)

func (k Kind) String() string {
	switch k {
	case KindBinaryInput:
		return "binary_input"
	case KindBinaryOutput:
		return "binary_output"
	case KindMultiBitInput:
		return "multibit_input"
	case KindMultiBitOutput:
		return "multibit_output"
	}
	return "unknown"
}

// LinkType tags the hardware address descriptor of a record. Only LinkBus
// (structured card + signal address) is supported by the bus adapters.
type LinkType int

const (
	LinkNone LinkType = iota
	LinkBus
)

// Link is the hardware address attached to a record: which card on the
// bus, and which bit of the card register.
type Link struct {
	Type   LinkType
	Card   uint8
	Signal uint8
}

type AlarmStatus int

const (
	StatusNoAlarm AlarmStatus = iota
	StatusRead
	StatusWrite
)

func (as AlarmStatus) String() string {
	switch as {
	case StatusRead:
		return "READ"
	case StatusWrite:
		return "WRITE"
	}
	return "NO_ALARM"
}

type Severity int

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityMajor
	SeverityInvalid
)

// ErrBadLink rejects records configured with anything but a structured
// bus address. This can only happen at init time.
var ErrBadLink = errors.New("unsupported hardware address in link field")

// Record is a single process variable. The engine side (the kit) owns it:
// adapters only fill Mask and Shift at init and Rval and Rbv during
// process calls, they never keep record state of their own.
type Record struct {
	Name       string
	DriverName string
	Link       Link

	// Bits is the declared field width of multi-bit records; the engine
	// seeds Mask with the matching contiguous bit pattern before init.
	Bits uint8

	// EventScan subscribes an input record to hardware driven scans
	// instead of the periodic tick.
	EventScan bool

	Mask  uint32
	Shift uint8
	Rval  uint32
	Rbv   uint32

	kind          Kind
	alarmStatus   AlarmStatus
	alarmSeverity Severity

	driver       drivers.BusDriver
	active       bool
	eventScanned bool
}

// busAddress validates the record link and returns its card and signal.
func (rec *Record) busAddress() (card uint8, signal uint8, err error) {
	if rec.Link.Type != LinkBus {
		err = errors.Wrapf(ErrBadLink, "record %s", rec.Name)
		return
	}
	if rec.Link.Signal >= drivers.CardBits {
		err = errors.Errorf("record %s: signal %d outside card bit width (%d)",
			rec.Name, rec.Link.Signal, drivers.CardBits)
		return
	}

	card = rec.Link.Card
	signal = rec.Link.Signal
	return
}

// SetAlarm raises the record alarm. Like the record engine's severity
// aggregation, it only ever escalates within one processing pass; a lower
// severity never overwrites a higher one.
func (rec *Record) SetAlarm(status AlarmStatus, severity Severity) bool {
	if severity <= rec.alarmSeverity {
		return false
	}

	rec.alarmStatus = status
	rec.alarmSeverity = severity
	return true
}

// ResetAlarm starts a fresh processing pass; the engine calls it before
// every process so alarm state always reflects the latest outcome.
func (rec *Record) ResetAlarm() {
	rec.alarmStatus = StatusNoAlarm
	rec.alarmSeverity = SeverityNone
}

func (rec *Record) Alarm() (AlarmStatus, Severity) {
	return rec.alarmStatus, rec.alarmSeverity
}

func (rec *Record) Kind() Kind {
	return rec.kind
}

// Active reports whether the record passed init. Records that failed init
// stay inactive forever and are skipped by every scan.
func (rec *Record) Active() bool {
	return rec.active
}

var recordLogger = log.NewWithOptions(os.Stderr, log.Options{
	Prefix: "record: ",
	Level:  log.GetLevel(),
})

// recordError is the standard record error reporting channel: config
// failures are reported here once and the record stays inactive.
func recordError(rec *Record, err error, context string) {
	recordLogger.Error(context, "record", rec.Name, "kind", rec.kind.String(), "err", err)
}
