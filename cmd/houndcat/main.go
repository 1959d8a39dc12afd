// Command houndcat loads a schema, registers the one bundled driver
// selected by -driver (nop or file), opens one context against a single
// data_id, and prints
// decoded records to stdout until interrupted. Drivers are registered
// explicitly at startup; there is no load-time self-registration.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/behrlich/hound"
	"github.com/behrlich/hound/drivers/file"
	"github.com/behrlich/hound/drivers/nop"
	"github.com/behrlich/hound/internal/logging"
)

func main() {
	var (
		driverName = flag.String("driver", "nop", "driver to use: nop or file")
		devPath    = flag.String("path", "/dev/nop", "device path passed to the driver's Init")
		schemaPath = flag.String("schema", "", "path to the YAML schema file (required)")
		args       = flag.String("args", "", "opaque driver args (file driver: \"data_id[,period_ns]\")")
		dataIDStr  = flag.String("data", "", "data_id to subscribe to (decimal or 0x-prefixed hex; required)")
		periodNs   = flag.Uint64("period", 0, "period_ns to request (0 = on-demand)")
		queueLen   = flag.Int("queue", 64, "context queue length")
		count      = flag.Int("n", 10, "number of records to print, 0 = run until interrupted")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *schemaPath == "" || *dataIDStr == "" {
		fmt.Fprintln(os.Stderr, "houndcat: -schema and -data are required")
		flag.Usage()
		os.Exit(2)
	}
	dataID, err := parseDataID(*dataIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "houndcat: %v\n", err)
		os.Exit(2)
	}

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logCfg)
	logging.SetDefault(logger)

	metrics := hound.NewMetrics()
	engine, err := hound.New(logger, metrics)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := registerDriver(engine, *driverName); err != nil {
		logger.Error("failed to register driver", "driver", *driverName, "error", err)
		os.Exit(1)
	}

	inst, err := engine.InitDriver(*driverName, *devPath, *schemaPath, *args)
	if err != nil {
		logger.Error("failed to init driver", "path", *devPath, "error", err)
		os.Exit(1)
	}
	logger.Info("driver initialized", "name", inst.Name(), "path", inst.Path(), "dev_id", inst.DevID(), "token", inst.Token())

	printed := 0
	ctx, err := engine.AllocContext(hound.ContextRequest{
		QueueLen: *queueLen,
		Callback: func(rec hound.Record) {
			printed++
			fmt.Printf("seqno=%d data_id=%d dev_id=%d ts=%s bytes=%d\n",
				rec.Seqno, rec.DataID, rec.DevID, rec.Timestamp.Format(time.RFC3339Nano), len(rec.Payload))
		},
		DataRequests: []hound.DataRequest{{DataID: dataID, PeriodNs: *periodNs}},
	})
	if err != nil {
		logger.Error("failed to alloc context", "error", err)
		os.Exit(1)
	}
	defer ctx.Free()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *count > 0 {
		readN(ctx, *count, sigCh)
	} else {
		readN(ctx, -1, sigCh)
	}

	logger.Info("shutting down", "printed", printed)
	snap := metrics.Snapshot()
	fmt.Fprintf(os.Stderr, "records emitted=%d dropped=%d parse_errors=%d\n",
		snap.Emitted, snap.Dropped, snap.ParseErrors)
}

// readN blocks on ctx.Read one record at a time so an interrupt can
// break out between reads rather than only after a single large Read
// call completes. A negative n reads until interrupted.
func readN(ctx *hound.Context, n int, sigCh chan os.Signal) {
	for i := 0; n < 0 || i < n; i++ {
		done := make(chan error, 1)
		go func() { done <- ctx.Read(1) }()
		select {
		case err := <-done:
			if err != nil {
				fmt.Fprintf(os.Stderr, "houndcat: read: %v\n", err)
				return
			}
		case <-sigCh:
			return
		}
	}
}

func registerDriver(e *hound.Engine, name string) error {
	switch name {
	case "nop":
		return e.RegisterDriver(name, func() hound.Ops { return nop.New() })
	case "file":
		return e.RegisterDriver(name, func() hound.Ops { return file.New() })
	default:
		return fmt.Errorf("unknown driver %q", name)
	}
}

func parseDataID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid -data %q: %w", s, err)
	}
	return uint32(v), nil
}
