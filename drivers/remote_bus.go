package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/hubertat/diokit/mqtt"
)

const remoteBusDriverName = "remote_bus"
const remoteBusNetClientTimeout = 2 * time.Second

// RemoteBus reaches cards through a register gateway (RemoteBusSlave or
// compatible) over HTTP. Scan events arrive on a websocket feed from the
// gateway, and optionally over MQTT.
type RemoteBus struct {
	Host       string
	Token      string
	DriverName string

	cards []uint8
	scans map[uint8]chan struct{}
	ws    *websocket.Conn

	// isReady is cleared by the event feed goroutine when the feed drops.
	isReady atomic.Bool
}

// ScanEvent is the gateway's websocket notification of a card interrupt.
type ScanEvent struct {
	Card uint8
}

func (rb *RemoteBus) buildUrl(path string) (string, error) {
	reqUrl, err := url.Parse(rb.Host)
	if err != nil {
		return "", errors.Wrap(err, "RemoteBus failed to parse Host url")
	}
	reqUrl, err = reqUrl.Parse(path)
	if err != nil {
		return "", errors.Wrapf(err, "RemoteBus error parsing url (%s)", path)
	}

	return reqUrl.String(), nil
}

func (rb *RemoteBus) getRemoteResponse(path string) (response *http.Response, err error) {
	var netClient = &http.Client{
		Timeout: remoteBusNetClientTimeout,
	}

	requestUrl, err := rb.buildUrl(path)
	if err != nil {
		return
	}
	req, err := http.NewRequest("GET", requestUrl, nil)
	if err != nil {
		err = errors.Wrap(err, "RemoteBus error preparing request")
		return
	}
	response, err = netClient.Do(req)
	return
}

func (rb *RemoteBus) Setup(ctx context.Context, cards []uint8) error {
	response, err := rb.getRemoteResponse("config/token/" + rb.Token)
	if err != nil {
		return errors.Wrap(err, "RemoteBus Setup: preparing net client error")
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return errors.Errorf("RemoteBus Setup failed (response code: %d)", response.StatusCode)
	}

	type RemoteConfig struct {
		Cards []uint8
	}
	remoteConfig := &RemoteConfig{}

	err = json.NewDecoder(response.Body).Decode(remoteConfig)
	if err != nil {
		return errors.Wrap(err, "RemoteBus Setup: decoding response failed")
	}

	rb.scans = make(map[uint8]chan struct{})
	for _, card := range cards {
		found := false
		for _, cardAvailable := range remoteConfig.Cards {
			if cardAvailable == card {
				found = true
			}
		}
		if !found {
			return errors.Errorf("RemoteBus Setup: card %d not found on remote!", card)
		}

		rb.cards = append(rb.cards, card)
		rb.scans[card] = make(chan struct{}, 1)
	}

	err = rb.openEventFeed()
	if err != nil {
		return errors.Wrap(err, "RemoteBus Setup: event feed failed")
	}

	rb.isReady.Store(true)
	return nil
}

func (rb *RemoteBus) openEventFeed() error {
	feedUrl, err := rb.buildUrl("events/token/" + rb.Token)
	if err != nil {
		return err
	}

	wsUrl := strings.Replace(feedUrl, "http", "ws", 1)
	conn, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	if err != nil {
		return errors.Wrapf(err, "RemoteBus failed to dial event feed (%s)", wsUrl)
	}

	rb.ws = conn
	go rb.readEventFeed(conn)

	return nil
}

func (rb *RemoteBus) readEventFeed(conn *websocket.Conn) {
	for {
		event := ScanEvent{}
		err := conn.ReadJSON(&event)
		if err != nil {
			rb.isReady.Store(false)
			return
		}
		rb.trigger(event.Card)
	}
}

func (rb *RemoteBus) trigger(card uint8) {
	ch, found := rb.scans[card]
	if !found {
		return
	}

	select {
	case ch <- struct{}{}:
	default:
	}
}

func (rb *RemoteBus) MaskedRead(card uint8, mask uint32) (value uint32, err error) {
	response, err := rb.getRemoteResponse(fmt.Sprintf("io/%d/token/%s", card, rb.Token))
	if err != nil {
		err = errors.Wrapf(err, "RemoteBus read failed (card %d)", card)
		return
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		err = errors.Errorf("RemoteBus read failed (card %d, response code: %d)", card, response.StatusCode)
		return
	}

	type RegisterValue struct {
		Value uint32
	}
	register := &RegisterValue{}

	err = json.NewDecoder(response.Body).Decode(register)
	if err != nil {
		err = errors.Wrap(err, "RemoteBus read: decoding response failed")
		return
	}

	value = register.Value & mask
	return
}

func (rb *RemoteBus) MaskedWrite(card uint8, value uint32, mask uint32) error {
	response, err := rb.getRemoteResponse(fmt.Sprintf("io/%d/set/%d/mask/%d/token/%s", card, value, mask, rb.Token))
	if err != nil {
		return errors.Wrapf(err, "RemoteBus write failed (card %d)", card)
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return errors.Errorf("RemoteBus write failed (card %d, response code: %d)", card, response.StatusCode)
	}

	return nil
}

func (rb *RemoteBus) RegisterScan(card uint8) (ScanHandle, error) {
	ch, found := rb.scans[card]
	if !found {
		return nil, errors.Errorf("RemoteBus card %d not set up", card)
	}

	return ScanHandle(ch), nil
}

func (rb *RemoteBus) SetMqtt(publisher mqtt.Publisher) []mqtt.MqttHandler {
	return []mqtt.MqttHandler{&remoteScanHandler{bus: rb}}
}

// remoteScanHandler lets a gateway raise card interrupts over MQTT as an
// alternative to the websocket feed.
type remoteScanHandler struct {
	bus *RemoteBus
}

func (rsh *remoteScanHandler) MqttSubscribeTopic() string {
	return rsh.bus.String() + "/scan/+"
}

func (rsh *remoteScanHandler) MqttHandle(pub *paho.Publish) {
	parts := strings.Split(pub.Topic, "/")
	cardNo, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || cardNo < 0 || cardNo > 255 {
		return
	}

	rsh.bus.trigger(uint8(cardNo))
}

func (rb *RemoteBus) String() string {
	if len(rb.DriverName) > 0 {
		return rb.DriverName
	}
	return remoteBusDriverName
}

func (rb *RemoteBus) IsReady() bool {
	return rb.isReady.Load()
}

func (rb *RemoteBus) Cards() []uint8 {
	return rb.cards
}

func (rb *RemoteBus) Close() (err error) {
	rb.isReady.Store(false)
	if rb.ws != nil {
		err = rb.ws.Close()
	}
	return
}
