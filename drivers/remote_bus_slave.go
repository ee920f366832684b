package drivers

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const httpTimeoutsMs = 3000

// RemoteBusSlave is the gateway side of RemoteBus: it owns the actual card
// registers, serves masked access over HTTP and pushes scan events to
// websocket subscribers. Register access is serialized behind one mutex,
// which is where the per card serialization promised by BusDriver lives
// for remote setups.
type RemoteBusSlave struct {
	Token    string
	HttpAddr string
	Cards    []uint8

	registers   map[uint8]uint32
	subscribers []*websocket.Conn
	server      *http.Server
	upgrader    websocket.Upgrader

	serverErr chan error

	mu sync.Mutex
}

func (rbs *RemoteBusSlave) Router() http.Handler {
	if rbs.registers == nil {
		rbs.registers = make(map[uint8]uint32)
		for _, card := range rbs.Cards {
			rbs.registers[card] = 0
		}
	}

	handler := httprouter.New()
	handler.GET("/config/token/:token", rbs.handleConfig)
	handler.GET("/io/:card_no/token/:token", rbs.handleRead)
	handler.GET("/io/:card_no/set/:value/mask/:mask/token/:token", rbs.handleWrite)
	handler.GET("/events/token/:token", rbs.handleEvents)

	return handler
}

func (rbs *RemoteBusSlave) Start() error {
	httpTimeout := httpTimeoutsMs * time.Millisecond

	rbs.server = &http.Server{
		Addr:              rbs.HttpAddr,
		Handler:           rbs.Router(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	rbs.serverErr = make(chan error)

	go func() {
		rbs.serverErr <- rbs.server.ListenAndServe()
	}()

	return nil
}

func (rbs *RemoteBusSlave) Err() <-chan error {
	return rbs.serverErr
}

func (rbs *RemoteBusSlave) Close() error {
	rbs.mu.Lock()
	for _, sub := range rbs.subscribers {
		sub.Close()
	}
	rbs.subscribers = nil
	rbs.mu.Unlock()

	if rbs.server == nil {
		return nil
	}
	return rbs.server.Close()
}

func (rbs *RemoteBusSlave) checkToken(w http.ResponseWriter, p httprouter.Params) bool {
	if !strings.EqualFold(p.ByName("token"), rbs.Token) {
		http.Error(w, "token mismatch", http.StatusUnauthorized)
		return false
	}

	return true
}

func (rbs *RemoteBusSlave) findCard(p httprouter.Params) (uint8, bool) {
	cardNo, err := strconv.Atoi(p.ByName("card_no"))
	if err != nil || cardNo < 0 || cardNo > 255 {
		return 0, false
	}

	rbs.mu.Lock()
	defer rbs.mu.Unlock()
	_, found := rbs.registers[uint8(cardNo)]

	return uint8(cardNo), found
}

func (rbs *RemoteBusSlave) handleConfig(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !rbs.checkToken(w, p) {
		return
	}

	w.Header().Add("Content-Type", "application/json")
	body := strings.Builder{}
	body.WriteString(`{"Cards":[`)
	for i, card := range rbs.Cards {
		if i > 0 {
			body.WriteString(",")
		}
		body.WriteString(strconv.Itoa(int(card)))
	}
	body.WriteString(`]}`)
	w.Write([]byte(body.String()))
}

func (rbs *RemoteBusSlave) handleRead(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !rbs.checkToken(w, p) {
		return
	}

	card, found := rbs.findCard(p)
	if !found {
		http.Error(w, "card not found", http.StatusNotFound)
		return
	}

	rbs.mu.Lock()
	value := rbs.registers[card]
	rbs.mu.Unlock()

	w.Header().Add("Content-Type", "application/json")
	w.Write([]byte(`{"Value":` + strconv.FormatUint(uint64(value), 10) + `}`))
}

func (rbs *RemoteBusSlave) handleWrite(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !rbs.checkToken(w, p) {
		return
	}

	card, found := rbs.findCard(p)
	if !found {
		http.Error(w, "card not found", http.StatusNotFound)
		return
	}

	value, err := strconv.ParseUint(p.ByName("value"), 10, 32)
	if err != nil {
		http.Error(w, "bad value", http.StatusBadRequest)
		return
	}
	mask, err := strconv.ParseUint(p.ByName("mask"), 10, 32)
	if err != nil {
		http.Error(w, "bad mask", http.StatusBadRequest)
		return
	}

	rbs.mu.Lock()
	reg := rbs.registers[card]
	rbs.registers[card] = (reg &^ uint32(mask)) | (uint32(value) & uint32(mask))
	rbs.mu.Unlock()
}

func (rbs *RemoteBusSlave) handleEvents(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !rbs.checkToken(w, p) {
		return
	}

	conn, err := rbs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	rbs.mu.Lock()
	rbs.subscribers = append(rbs.subscribers, conn)
	rbs.mu.Unlock()
}

// SetRegister overwrites a card register from the hardware side and pushes
// a scan event to every subscriber, like an interrupt on input change.
// The whole push runs under mu: subscribers may be added concurrently by
// handleEvents, and gorilla websocket allows only one concurrent writer
// per connection.
func (rbs *RemoteBusSlave) SetRegister(card uint8, value uint32) {
	rbs.mu.Lock()
	defer rbs.mu.Unlock()

	_, found := rbs.registers[card]
	if !found {
		return
	}
	rbs.registers[card] = value

	alive := rbs.subscribers[:0]
	for _, sub := range rbs.subscribers {
		err := sub.WriteJSON(ScanEvent{Card: card})
		if err != nil {
			sub.Close()
			continue
		}
		alive = append(alive, sub)
	}
	rbs.subscribers = alive
}

// Register returns the current register content of a card.
func (rbs *RemoteBusSlave) Register(card uint8) uint32 {
	rbs.mu.Lock()
	defer rbs.mu.Unlock()

	return rbs.registers[card]
}
