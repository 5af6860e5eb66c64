package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ev3uart/sensor-engine/pkg/redisclient"
	"github.com/ev3uart/sensor-engine/pkg/scheduler"
	"github.com/ev3uart/sensor-engine/pkg/session"
	"github.com/ev3uart/sensor-engine/pkg/transport"
)

// Configuration flags
var (
	serialDevice = flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baudRate     = flag.Int("baud", 2400, "Initial serial baud rate, before sync")
	legacySerial = flag.Bool("legacy-serial", false, "Use tarm/serial instead of go.bug.st/serial (for ports without live SetMode support)")
	redisAddr    = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass    = flag.String("redis-pass", "", "Redis password")
	redisDB      = flag.Int("redis-db", 0, "Redis database number")
	redisPrefix  = flag.String("redis-prefix", "ev3uart", "Redis key prefix for this sensor link")
	commandList  = flag.String("command-list", "ev3uart:commands", "Redis list key command ingress watches with BRPop")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting ev3uartd")
	log.Printf("Serial device: %s", *serialDevice)
	log.Printf("Initial baud rate: %d", *baudRate)
	log.Printf("Redis address: %s", *redisAddr)
	log.Printf("Redis key prefix: %s", *redisPrefix)

	redisClient, err := redisclient.New(*redisAddr, *redisPass, *redisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("Connected to Redis")

	var t transport.Transport
	if *legacySerial {
		t, err = transport.OpenLegacySerial(*serialDevice, *baudRate)
	} else {
		t, err = transport.OpenSerial(*serialDevice, *baudRate)
	}
	if err != nil {
		log.Fatalf("Failed to open serial device %s: %v", *serialDevice, err)
	}
	log.Printf("Opened serial device %s", *serialDevice)

	pub := redisclient.NewAdapter(redisClient, *redisPrefix)
	sch := scheduler.NewRealTime()
	sess := session.New(t, sch, pub, *baudRate)

	if err := sess.Start(); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	log.Printf("Session started, waiting for sync")

	watcher := redisclient.NewCommandWatcher(redisClient, *commandList, sess)
	go watcher.Run()
	log.Printf("Watching Redis list %q for commands", *commandList)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Shutting down...")
	watcher.Stop()
	if err := sess.Close(); err != nil {
		log.Printf("Error during session close: %v", err)
	}
}
