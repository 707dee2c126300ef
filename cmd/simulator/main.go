package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"gt06gateway/internal/logger"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7095", "gateway device address")
	imei := flag.String("imei", "86713450902015", "IMEI of the first simulated device")
	devices := flag.Int("devices", 1, "number of simulated devices; IMEIs count up from -imei")
	interval := flag.Duration("interval", 10*time.Second, "time between reports")
	reply := flag.String("reply", "Success!", "text appended to command responses; empty to stay silent")
	apiURL := flag.String("api", "", "gateway API base URL to probe, e.g. http://127.0.0.1:8000")
	token := flag.String("token", "", "bearer token for the API probe")
	debug := flag.Bool("debug", false, "log acknowledgements")
	flag.Parse()

	logrus.SetFormatter(logger.NewFormatter("text", time.Local, true))
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, err := strconv.ParseUint(*imei, 10, 64)
	if err != nil || len(*imei) > 16 {
		logrus.WithField("imei", *imei).Fatal("IMEI must be up to 16 decimal digits")
	}

	var wg sync.WaitGroup
	for i := 0; i < *devices; i++ {
		d := newDevice(fmt.Sprint(base+uint64(i)), *interval, *reply, -25.55+float64(i)*0.01, -49.17)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.run(ctx, *addr); err != nil {
				d.log.WithError(err).Error("device stopped")
			}
		}()
	}

	if *apiURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probeAPI(ctx, *apiURL, *imei, *token, 5)
		}()
	}
	wg.Wait()
}
