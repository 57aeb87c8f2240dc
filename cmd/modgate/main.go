// Command modgate starts the tag gateway core: it loads a PLC catalog
// and an optional procedure set, brings up the Connection Manager, and
// serves as the process lifecycle wrapper around it. The HTTP/API
// surface this core backs is a separate collaborator (spec.md §1) and
// is not started here; this binary is the piece the rest of a
// deployment's transport layer is wired into.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/connmgr"
	"github.com/atharvakhole/modgate/logging"
	"github.com/atharvakhole/modgate/procedure"
	"github.com/atharvakhole/modgate/tagsvc"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	catalogPath    = flag.String("catalog", "catalog.yaml", "Path to the PLC/register catalog YAML")
	proceduresPath = flag.String("procedures", "", "Path to a procedure definitions YAML (optional)")
	logPath        = flag.String("log", "modgate.log", "Path to the operational log file")
	debugLogPath   = flag.String("debug-log", "", "Path to a debug log file (optional)")
	debugFilter    = flag.String("debug-filter", "", "Comma-separated component filter for debug logging (catalog,breaker,pool,wire,connmgr,tagsvc,procedure)")
	runProcedure   = flag.String("run-procedure", "", "Run a named procedure once, print its result as JSON, and exit")
	showVersion    = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("modgate %s\n", Version)
		os.Exit(0)
	}

	fileLog, err := logging.NewFileLogger(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer fileLog.Close()

	var dbg *logging.DebugLogger
	if *debugLogPath != "" {
		dbg, err = logging.NewDebugLogger(*debugLogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening debug log file: %v\n", err)
			os.Exit(1)
		}
		dbg.SetFilter(*debugFilter)
		logging.SetGlobalDebugLogger(dbg)
		defer dbg.Close()
	}

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		fileLog.Fatal("load catalog: %v", err)
		fmt.Fprintf(os.Stderr, "Error loading catalog: %v\n", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	mgr := connmgr.New(dbg, reg)
	if err := mgr.Initialize(cat); err != nil {
		fileLog.Fatal("initialize connection manager: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing connection manager: %v\n", err)
		os.Exit(1)
	}
	for plcID, initErr := range mgr.InitErrors() {
		fileLog.PLC(plcID, "failed to initialize: %v", initErr)
	}

	svc := tagsvc.New(cat, mgr, dbg)
	fileLog.Info("modgate %s started, catalog=%s, plcs=%d", Version, *catalogPath, len(cat.PLCIDs()))

	if *runProcedure != "" {
		exitCode := runOneProcedure(cat, svc, dbg, fileLog)
		mgr.Shutdown()
		os.Exit(exitCode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	fileLog.Info("shutdown signal received, draining %d PLC(s)", len(cat.PLCIDs()))
	mgr.Shutdown()
	fileLog.Info("shutdown complete")
}

// runOneProcedure loads the configured procedure file, executes the
// named procedure once against svc, and prints its result as JSON.
// Returns the process exit code.
func runOneProcedure(cat *catalog.Catalog, svc *tagsvc.Service, dbg *logging.DebugLogger, fileLog *logging.FileLogger) int {
	if *proceduresPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -run-procedure requires -procedures")
		return 1
	}

	defs, err := procedure.LoadFile(*proceduresPath, cat)
	if err != nil {
		fileLog.Fatal("load procedures: %v", err)
		fmt.Fprintf(os.Stderr, "Error loading procedures: %v\n", err)
		return 1
	}

	def, ok := defs[*runProcedure]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: procedure %q not found in %s\n", *runProcedure, *proceduresPath)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	exec := procedure.NewExecutor(svc, dbg)
	result := exec.Execute(ctx, def)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling result: %v\n", err)
		return 1
	}
	fmt.Println(string(out))

	if result.Status != procedure.Completed {
		return 1
	}
	return 0
}
