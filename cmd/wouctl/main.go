// Command wouctl connects to a WOU-over-USB board and holds the connection
// open until SIGINT/SIGTERM, optionally publishing status counters into
// Redis. It issues no Append/Eof calls itself, so the transport engine's
// drive loop does not run while it waits.
//
// Grounded on cmd/bluetooth-service/main.go's shape: flag-based
// configuration, log.Ldate|log.Ltime|log.Lmicroseconds, an optional Redis
// connection established up front, and signal-driven shutdown — adapted
// from the teacher's nRF52/BLE service lifecycle to the WOU engine's
// init/connect/(status-publish loop)/close lifecycle, with the status
// ticker supervised by golang.org/x/sync/errgroup instead of a bare
// goroutine.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/araisrobo/wou/pkg/telemetry"
	"github.com/araisrobo/wou/pkg/wou"
)

var (
	boardType    = flag.String("board-type", "7i43u", "Board type (board table entry)")
	deviceID     = flag.Int("device-id", 0, "Board device index")
	bitfile      = flag.String("bitfile", "", "Optional bitstream path to load at connect")
	serialDevice = flag.String("serial", "/dev/ttyUSB0", "USB/serial device path")
	baudRate     = flag.Int("baud", wou.DefaultBaudRate, "Serial baud rate")

	redisAddr = flag.String("redis-addr", "", "Redis server address for telemetry (disabled if empty)")
	redisPass = flag.String("redis-pass", "", "Redis password")
	redisDB   = flag.Int("redis-db", 0, "Redis database number")
	redisKey  = flag.String("redis-key", "wou:board0", "Redis key/channel telemetry is published under")

	statusInterval = flag.Duration("status-interval", time.Second, "Status publish interval (requires -redis-addr)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting wouctl")
	log.Printf("Board type: %s, device id: %d", *boardType, *deviceID)
	log.Printf("Serial device: %s, baud: %d", *serialDevice, *baudRate)

	cfg := wou.DefaultConfig()
	cfg.BaudRate = *baudRate

	board, err := wou.Init(*boardType, *deviceID, *bitfile, cfg)
	if err != nil {
		log.Fatalf("wou.Init: %v", err)
	}

	if *redisAddr != "" {
		obs, err := telemetry.NewRedisObserver(*redisAddr, *redisPass, *redisDB, *redisKey)
		if err != nil {
			log.Fatalf("telemetry.NewRedisObserver: %v", err)
		}
		defer obs.Close()
		board.SetObserver(obs)
		log.Printf("Publishing telemetry to Redis at %s under key %s", *redisAddr, *redisKey)
	}

	if err := board.Connect(*serialDevice); err != nil {
		log.Fatalf("board.Connect: %v", err)
	}
	defer board.Close()
	log.Printf("Connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if *redisAddr != "" {
		g.Go(func() error {
			ticker := time.NewTicker(*statusInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := board.PublishStatus(); err != nil {
						log.Printf("PublishStatus: %v", err)
					}
				}
			}
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Printf("Shutting down...")
	case <-ctx.Done():
	}

	cancel()
	if err := g.Wait(); err != nil {
		log.Printf("status publisher exited with error: %v", err)
	}
}
