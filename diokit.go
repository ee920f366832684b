package diokit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"github.com/hubertat/diokit/drivers"
	"github.com/hubertat/diokit/mqtt"
)

const defaultKitName = "diokit"

// DioKit wires records to bus drivers: it plays the engine side of the
// device support contract, owning record lifecycle, periodic and event
// driven scans, and the outward plumbing (mqtt, history).
type DioKit struct {
	Name string

	BinaryInputs    []*Record
	BinaryOutputs   []*Record
	MultiBitInputs  []*Record
	MultiBitOutputs []*Record

	MqttBroker string

	Mock   *drivers.MockBus
	Gpio   *drivers.GpioBus
	Mcp    *drivers.McpBus
	Remote *drivers.RemoteBus

	Influx *History

	busDrivers map[string]drivers.BusDriver
	mqttClient *mqtt.MqttClient
	ticker     *time.Ticker
	scanLists  map[drivers.ScanHandle][]*Record
	published  map[*Record]uint32
	logger     *log.Logger

	// mu serializes record processing: the ticker, the event scan
	// goroutines and the mqtt command path all mutate record fields and
	// the published map.
	mu sync.Mutex
}

func (dk *DioKit) kitName() string {
	if len(dk.Name) > 0 {
		return dk.Name
	}
	return defaultKitName
}

func (dk *DioKit) log() *log.Logger {
	if dk.logger == nil {
		dk.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: dk.kitName() + ": ",
			Level:  log.GetLevel(),
		})
	}
	return dk.logger
}

func (dk *DioKit) recordsByKind() map[Kind][]*Record {
	return map[Kind][]*Record{
		KindBinaryInput:    dk.BinaryInputs,
		KindBinaryOutput:   dk.BinaryOutputs,
		KindMultiBitInput:  dk.MultiBitInputs,
		KindMultiBitOutput: dk.MultiBitOutputs,
	}
}

func (dk *DioKit) records() (records []*Record) {
	for _, list := range []([]*Record){dk.BinaryInputs, dk.BinaryOutputs, dk.MultiBitInputs, dk.MultiBitOutputs} {
		records = append(records, list...)
	}

	return
}

func (dk *DioKit) cardsFor(driverName string) (cards []uint8) {
	seen := map[uint8]bool{}
	for _, rec := range dk.records() {
		if !strings.EqualFold(rec.DriverName, driverName) || rec.Link.Type != LinkBus {
			continue
		}
		if seen[rec.Link.Card] {
			continue
		}
		seen[rec.Link.Card] = true
		cards = append(cards, rec.Link.Card)
	}

	return
}

func (dk *DioKit) InitDrivers(ctx context.Context) error {
	dk.busDrivers = make(map[string]drivers.BusDriver)

	if dk.Mock != nil {
		dk.busDrivers[dk.Mock.String()] = dk.Mock
	}

	if dk.Gpio != nil {
		dk.busDrivers[dk.Gpio.String()] = dk.Gpio
	}

	if dk.Mcp != nil {
		dk.busDrivers[dk.Mcp.String()] = dk.Mcp
	}

	if dk.Remote != nil {
		dk.busDrivers[dk.Remote.String()] = dk.Remote
	}

	for _, driver := range dk.busDrivers {
		err := driver.Setup(ctx, dk.cardsFor(driver.String()))
		if err != nil {
			return errors.Wrapf(err, "failed to setup %s driver", driver)
		}
	}

	for _, rec := range dk.records() {
		_, driverFound := dk.busDrivers[rec.DriverName]
		if !driverFound {
			return errors.Errorf("driver %s (record %s) not set up", rec.DriverName, rec.Name)
		}
	}

	return nil
}

func widthMask(bits uint8) uint32 {
	return (1 << bits) - 1
}

// InitRecords runs device support init on every record. A record that
// fails init is reported once and left inactive; the remaining records
// carry on.
func (dk *DioKit) InitRecords() error {
	if dk.busDrivers == nil {
		return errors.New("InitRecords called before InitDrivers")
	}

	for kind, list := range dk.recordsByKind() {
		support, err := SupportFor(kind)
		if err != nil {
			return err
		}

		for _, rec := range list {
			rec.kind = kind

			driver, found := dk.busDrivers[rec.DriverName]
			if !found {
				recordError(rec, errors.Errorf("driver %s not found", rec.DriverName), "init")
				continue
			}

			if kind == KindMultiBitInput || kind == KindMultiBitOutput {
				if rec.Bits == 0 || rec.Bits > drivers.CardBits {
					recordError(rec, errors.Errorf("bad field width %d", rec.Bits), "init")
					continue
				}
				if rec.Link.Type == LinkBus && uint16(rec.Link.Signal)+uint16(rec.Bits) > drivers.CardBits {
					recordError(rec, errors.Errorf("field width %d at signal %d reaches past the card register",
						rec.Bits, rec.Link.Signal), "init")
					continue
				}
				rec.Mask = widthMask(rec.Bits)
			}

			err = support.Init(rec, driver)
			if err != nil {
				recordError(rec, err, "init")
			}
		}
	}

	return nil
}

// RegisterEventScans asks the drivers for the scan handle of every input
// record flagged for event scan and groups the records into scan lists.
// Records whose driver cannot deliver events stay on the periodic tick.
func (dk *DioKit) RegisterEventScans() {
	dk.scanLists = make(map[drivers.ScanHandle][]*Record)

	for kind, list := range dk.recordsByKind() {
		support, _ := SupportFor(kind)
		scanner, canScan := support.(EventScanner)
		if !canScan {
			continue
		}

		for _, rec := range list {
			if !rec.Active() || !rec.EventScan {
				continue
			}

			handle, err := scanner.ScanInfo(rec)
			if err != nil {
				dk.log().Warn("event scan unavailable, record stays on periodic scan",
					"record", rec.Name, "err", err)
				continue
			}

			rec.eventScanned = true
			dk.scanLists[handle] = append(dk.scanLists[handle], rec)
		}
	}
}

// StartEventScans spawns one goroutine per scan list; each hardware scan
// event reprocesses the whole list.
func (dk *DioKit) StartEventScans(ctx context.Context) {
	for handle, list := range dk.scanLists {
		go func(handle drivers.ScanHandle, list []*Record) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-handle:
					for _, rec := range list {
						dk.processRecord(rec)
					}
				}
			}
		}(handle, list)
	}
}

func (dk *DioKit) processRecord(rec *Record) error {
	dk.mu.Lock()
	defer dk.mu.Unlock()

	return dk.processRecordLocked(rec)
}

func (dk *DioKit) processRecordLocked(rec *Record) error {
	if !rec.Active() {
		return nil
	}

	support, err := SupportFor(rec.kind)
	if err != nil {
		return err
	}

	rec.ResetAlarm()
	err = support.Process(rec)
	if err != nil {
		status, severity := rec.Alarm()
		dk.log().Debug("record process failed", "record", rec.Name,
			"alarm", status.String(), "severity", int(severity), "err", err)
	}

	dk.publishRecord(rec)
	if dk.Influx != nil {
		dk.Influx.Append(rec)
	}

	return err
}

// Sync runs one processing pass over every active record that is not
// subscribed to event scans.
func (dk *DioKit) Sync() {
	for _, rec := range dk.records() {
		if rec.eventScanned {
			continue
		}
		dk.processRecord(rec)
	}
}

func (dk *DioKit) StartTicker(interval time.Duration) {
	dk.ticker = time.NewTicker(interval)

	for range dk.ticker.C {
		dk.Sync()
	}
}

func (dk *DioKit) findRecord(name string) *Record {
	for _, rec := range dk.records() {
		if strings.EqualFold(rec.Name, name) {
			return rec
		}
	}

	return nil
}

// SetValue commands an output record: stores the raw value and processes
// the record immediately, outside the periodic tick.
func (dk *DioKit) SetValue(name string, value uint32) error {
	rec := dk.findRecord(name)
	if rec == nil {
		return errors.Errorf("record %s not found", name)
	}

	if rec.kind != KindBinaryOutput && rec.kind != KindMultiBitOutput {
		return errors.Errorf("record %s is not an output", name)
	}

	dk.mu.Lock()
	defer dk.mu.Unlock()

	rec.Rval = value
	return dk.processRecordLocked(rec)
}

type recordState struct {
	Rval     uint32
	Rbv      uint32
	Alarm    string
	Severity int
}

func (dk *DioKit) publishRecord(rec *Record) {
	if dk.mqttClient == nil {
		return
	}

	if dk.published == nil {
		dk.published = make(map[*Record]uint32)
	}
	previous, wasPublished := dk.published[rec]
	if wasPublished && previous == rec.Rval {
		return
	}

	status, severity := rec.Alarm()
	payload, err := json.Marshal(recordState{
		Rval:     rec.Rval,
		Rbv:      rec.Rbv,
		Alarm:    status.String(),
		Severity: int(severity),
	})
	if err != nil {
		return
	}

	err = dk.mqttClient.Publish(fmt.Sprintf("%s/record/%s", dk.kitName(), rec.Name), payload)
	if err != nil {
		dk.log().Debug("record publish failed", "record", rec.Name, "err", err)
		return
	}

	dk.published[rec] = rec.Rval
}

// MqttSubscribeTopic makes the kit its own mqtt handler for output set
// commands.
func (dk *DioKit) MqttSubscribeTopic() string {
	return fmt.Sprintf("%s/record/+/set", dk.kitName())
}

func (dk *DioKit) MqttHandle(pub *paho.Publish) {
	parts := strings.Split(pub.Topic, "/")
	if len(parts) < 2 {
		return
	}
	name := parts[len(parts)-2]

	value, err := strconv.ParseUint(strings.TrimSpace(string(pub.Payload)), 10, 32)
	if err != nil {
		dk.log().Warn("ignoring set command with bad payload", "record", name, "err", err)
		return
	}

	err = dk.SetValue(name, uint32(value))
	if err != nil {
		dk.log().Warn("set command failed", "record", name, "err", err)
	}
}

func (dk *DioKit) InitMqtt() (err error) {
	if len(dk.MqttBroker) == 0 {
		err = errors.New("mqtt broker not set")
		return
	}

	mc, err := mqtt.NewMqttClient(dk.MqttBroker, dk.kitName())
	if err != nil {
		err = errors.Wrap(err, "failed to create mqtt client")
		return
	}

	dk.mqttClient = mc

	mqttHandlers := []mqtt.MqttHandler{dk}
	for _, driver := range dk.busDrivers {
		mqttHandlers = append(mqttHandlers, driver.SetMqtt(mc)...)
	}

	err = mc.Connect(mqttHandlers)
	if err != nil {
		err = errors.Wrap(err, "failed to connect to mqtt broker")
	}

	return
}

func (dk *DioKit) PrintStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "=== active bus drivers ===")
	for driverName, driver := range dk.busDrivers {
		fmt.Fprintln(writer, "________")
		fmt.Fprintf(writer, "| driver: %s (ready: %v)\n", driverName, driver.IsReady())
		fmt.Fprintf(writer, "| cards: ")
		for _, card := range driver.Cards() {
			fmt.Fprintf(writer, "%d, ", card)
		}
		fmt.Fprintln(writer)
		fmt.Fprintln(writer, "--------")
	}
	fmt.Fprintln(writer, "=== records ===")
	for _, rec := range dk.records() {
		status, severity := rec.Alarm()
		fmt.Fprintf(writer, "| %s (%s) card=%d signal=%d mask=%#x active=%v alarm=%s/%d\n",
			rec.Name, rec.kind, rec.Link.Card, rec.Link.Signal, rec.Mask,
			rec.Active(), status, int(severity))
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}

func (dk *DioKit) Close() (err error) {
	if dk.ticker != nil {
		dk.ticker.Stop()
	}

	if dk.Influx != nil {
		dk.Influx.Close()
	}

	for _, driver := range dk.busDrivers {
		if driver != nil {
			closeErr := driver.Close()
			if closeErr == nil {
				continue
			}
			if err == nil {
				err = closeErr
			} else {
				err = errors.Wrap(err, closeErr.Error())
			}
		}
	}

	return
}
