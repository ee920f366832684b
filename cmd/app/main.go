package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/hubertat/servicemaker"

	"github.com/hubertat/diokit"
)

const defaultSyncInterval = "500ms"

var (
	Version string
	Build   string

	config       = flag.String("config", "config.json", "path of the configuration file")
	flagInstall  = flag.Bool("install", false, "Install service in os")
	syncInterval = flag.String("sync", defaultSyncInterval, "periodic scan interval (time.Duration)")

	dkService = servicemaker.ServiceMaker{
		User:               "diokit",
		UserGroups:         []string{"gpio", "i2c"},
		ServicePath:        "/etc/systemd/system/diokit.service",
		ServiceDescription: "diokit service: digital I/O card record layer. github.com/hubertat/diokit",
		ExecDir:            "/srv/diokit",
		ExecName:           "diokit",
	}
)

func main() {
	log.Printf("diokit %s started\n", Version)
	flag.Parse()

	if *flagInstall {
		err := dkService.InstallService()
		if err != nil {
			panic(err)
		} else {
			log.Println("service installed!")
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncDuration, err := time.ParseDuration(*syncInterval)
	if err != nil {
		panic(err)
	}

	dk := &diokit.DioKit{}
	configFile, err := os.Open(*config)
	if err == nil {
		cBuff, err := io.ReadAll(configFile)
		if err != nil {
			log.Fatalf("failed reading config file: %v\n", err)
		}

		err = json.Unmarshal(cBuff, dk)
		if err != nil {
			log.Fatalf("failed unmarshalling json config: %v", err)
		}
	} else {
		log.Fatalf("can't find/open config file (%s), will terminate. Reason: \n%v\n", *config, err)
	}

	log.Println("will init bus drivers...")
	err = dk.InitDrivers(ctx)
	defer dk.Close()
	if err != nil {
		panic(err)
	}

	log.Println("will init records...")
	err = dk.InitRecords()
	if err != nil {
		panic(err)
	}

	if dk.Influx != nil {
		log.Println("will init influx history...")
		err = dk.Influx.Setup()
		if err != nil {
			log.Printf("influx history setup returned error: %v\n we will proceed without history...", err)
			dk.Influx = nil
		}
	}

	if len(dk.MqttBroker) > 0 {
		log.Println("will connect mqtt...")
		err = dk.InitMqtt()
		if err != nil {
			log.Printf("mqtt init returned error: %v\n we will proceed without mqtt...", err)
		}
	}

	dk.RegisterEventScans()
	dk.StartEventScans(ctx)

	dk.PrintStatus(os.Stdout)

	dk.StartTicker(syncDuration)
}
