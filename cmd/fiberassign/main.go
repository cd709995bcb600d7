// Command fiberassign runs the fiber assignment engine over a JSON
// scenario and writes the resulting plan to a SQLite file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ameisner/fiberassign/assign"
	"github.com/ameisner/fiberassign/hardware"
	"github.com/ameisner/fiberassign/internal/logging"
	"github.com/ameisner/fiberassign/internal/observability"
	"github.com/ameisner/fiberassign/internal/results"
	"github.com/ameisner/fiberassign/targets"
	"github.com/ameisner/fiberassign/tiles"
)

type runSummary struct {
	RunID      string `json:"run_id"`
	Tiles      int    `json:"tiles"`
	Targets    int    `json:"targets"`
	Assigned   int    `json:"assigned"`
	Unassigned int    `json:"unassigned"`
}

func main() {
	scenarioPath := flag.String("scenario", "configs/scenario.json", "path to the JSON run scenario")
	dbPath := flag.String("db", "fiberassign.sqlite", "path of the SQLite results database")
	metricsAddr := flag.String("metrics-addr", "", "listen address for the /metrics endpoint (empty disables)")
	standards := flag.Int("standards-per-petal", 10, "standard star quota per petal per tile")
	skies := flag.Int("skies-per-petal", 40, "sky fiber quota per petal per tile")
	threads := flag.Int("threads", 0, "worker bound for the geometry kernels (0 = GOMAXPROCS)")
	envFile := flag.String("env-file", "", "optional .env file with LOG_* and FA_TRACING_* settings")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: load %s: %v\n", *envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	ctx := context.Background()
	log := logging.NewFromEnv()

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		fatal(ctx, log, "init tracing", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdown, log)

	metrics, err := observability.NewEngineCollector(nil)
	if err != nil {
		fatal(ctx, log, "register metrics", err)
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(ctx, "metrics server failed", logging.String("error", err.Error()))
			}
		}()
		log.Info(ctx, "metrics endpoint up", logging.String("addr", *metricsAddr))
	}

	f, err := os.Open(*scenarioPath)
	if err != nil {
		fatal(ctx, log, "open scenario", err)
	}
	sc, err := LoadScenario(f)
	f.Close()
	if err != nil {
		fatal(ctx, log, "load scenario", err)
	}

	hw, err := hardware.New(ctx, log, sc.Hardware)
	if err != nil {
		fatal(ctx, log, "build focalplane", err)
	}
	tl, err := tiles.New(ctx, log, sc.TileID, sc.TileRA, sc.TileDec, sc.TileObsCond, sc.TileTheta)
	if err != nil {
		fatal(ctx, log, "build tile list", err)
	}
	mtl, err := targets.NewMTL(ctx, log, sc.Targets)
	if err != nil {
		fatal(ctx, log, "build target list", err)
	}
	index := targets.NewTree(mtl)

	metrics.SetInputSizes(mtl.Len(), tl.Len(), len(hw.Locations))

	avail := assign.Build(ctx, log, hw, tl, mtl, index, *threads)
	cells := 0
	for _, locs := range avail.TileLoc {
		for _, cands := range locs {
			if len(cands) > 0 {
				cells++
			}
		}
	}
	metrics.SetAvailabilityCells(cells)

	eng := assign.New(log, hw, tl, mtl, avail, metrics, assign.Config{
		StandardsPerPetal: *standards,
		SkiesPerPetal:     *skies,
		Threads:           *threads,
	})
	if err := eng.Run(ctx); err != nil {
		fatal(ctx, log, "run assignment", err)
	}

	store, err := results.Open(*dbPath, log)
	if err != nil {
		fatal(ctx, log, "open results store", err)
	}
	defer store.Close()

	runID, err := store.BeginRun(ctx, tl.Len(), mtl.Len())
	if err != nil {
		fatal(ctx, log, "begin run", err)
	}
	log = log.With(logging.String("run_id", runID))

	asn := eng.Assignment()
	posLocs := hw.DeviceLocations(hardware.DeviceTypePOS)
	written := 0
	unassigned := 0
	for _, tileID := range tl.ID {
		var rows []results.Row
		for _, loc := range posLocs {
			id, ok := asn.Get(tileID, loc)
			if !ok {
				if hw.State[loc] == hardware.StateOK {
					unassigned++
				}
				continue
			}
			xy := avail.XY[tileID][id]
			theta, phi, ok := hw.LocThetaPhi(loc, xy)
			if !ok {
				fatal(ctx, log, "solve positioner angles",
					fmt.Errorf("tile %d loc %d target %d has no arm solution", tileID, loc, id))
			}
			rows = append(rows, results.Row{
				Tile:   tileID,
				Loc:    loc,
				Target: id,
				Theta:  theta,
				Phi:    phi,
				X:      xy.X,
				Y:      xy.Y,
			})
		}
		if err := store.WriteTile(ctx, runID, tileID, rows); err != nil {
			fatal(ctx, log, "write tile rows", err)
		}
		written += len(rows)
	}
	metrics.AddWritten(written)

	if err := store.FinishRun(ctx, runID, written, unassigned); err != nil {
		fatal(ctx, log, "finish run", err)
	}

	summary := runSummary{
		RunID:      runID,
		Tiles:      tl.Len(),
		Targets:    mtl.Len(),
		Assigned:   written,
		Unassigned: unassigned,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fatal(ctx, log, "encode summary", err)
	}
}

func fatal(ctx context.Context, log logging.Logger, what string, err error) {
	log.Error(ctx, what+" failed", logging.String("error", err.Error()))
	os.Exit(1)
}
