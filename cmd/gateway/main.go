package main

import (
	"flag"
	"log"
	"strconv"
	"strings"

	"github.com/hubertat/diokit/drivers"
)

var (
	addr  = flag.String("addr", ":8442", "listen address")
	token = flag.String("token", "", "access token required from bus clients")
	cards = flag.String("cards", "0", "comma separated card ids to serve")
)

func main() {
	log.Println("diokit register gateway started")
	flag.Parse()

	slave := &drivers.RemoteBusSlave{
		Token:    *token,
		HttpAddr: *addr,
	}

	for _, part := range strings.Split(*cards, ",") {
		cardNo, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || cardNo < 0 || cardNo > 255 {
			log.Fatalf("bad card id: %s", part)
		}
		slave.Cards = append(slave.Cards, uint8(cardNo))
	}

	err := slave.Start()
	if err != nil {
		log.Fatal(err)
	}
	defer slave.Close()

	log.Printf("serving cards %v on %s\n", slave.Cards, *addr)
	log.Fatal(<-slave.Err())
}
