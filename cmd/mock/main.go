package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/hubertat/diokit"
	"github.com/hubertat/diokit/drivers"
)

var (
	Version string
	Build   string
)

func main() {
	log.Println("diokit started")
	log.Println("mock instance for bench testing, no hardware required")

	syncDuration := 250 * time.Millisecond
	log.Println("syncDuration is ", syncDuration)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := &drivers.MockBus{}

	dk := &diokit.DioKit{}
	dk.Mock = mock

	dk.BinaryInputs = append(dk.BinaryInputs, &diokit.Record{
		Name:       "door_contact",
		DriverName: mock.String(),
		Link:       diokit.Link{Type: diokit.LinkBus, Card: 0, Signal: 3},
		EventScan:  true,
	})
	dk.BinaryOutputs = append(dk.BinaryOutputs, &diokit.Record{
		Name:       "relay_main",
		DriverName: mock.String(),
		Link:       diokit.Link{Type: diokit.LinkBus, Card: 0, Signal: 5},
	})
	dk.MultiBitOutputs = append(dk.MultiBitOutputs, &diokit.Record{
		Name:       "valve_position",
		DriverName: mock.String(),
		Link:       diokit.Link{Type: diokit.LinkBus, Card: 1, Signal: 4},
		Bits:       2,
	})

	log.Println("will init bus drivers...")
	err := dk.InitDrivers(ctx)
	defer dk.Close()
	if err != nil {
		panic(err)
	}

	log.Println("will init records...")
	err = dk.InitRecords()
	if err != nil {
		panic(err)
	}

	dk.RegisterEventScans()
	dk.StartEventScans(ctx)

	dk.PrintStatus(os.Stdout)

	// flip the door contact bit and fire its scan event periodically
	go func() {
		state := uint32(0)
		for {
			time.Sleep(2 * time.Second)
			state ^= 1 << 3
			mock.SetRegister(0, state)
			mock.Trigger(0)
			log.Printf("mock: card 0 register set to %#x, scan event fired\n", state)
		}
	}()

	go dk.StartTicker(syncDuration)

	for {
		time.Sleep(10 * time.Second)
		dk.PrintStatus(os.Stdout)
	}
}
