// Package app is the CLI surface: flag parsing, wiring, and exit-code
// policy. Input-format and fail-fast policy errors exit 2; everything else
// that goes wrong exits 1.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fireknight/sim/internal/battle"
	"fireknight/sim/internal/battlespec"
	"fireknight/sim/internal/dataset"
	"fireknight/sim/internal/engine"
	"fireknight/sim/internal/journal"
	"fireknight/sim/internal/live"
	"fireknight/sim/internal/report"
	"fireknight/sim/internal/skills"
	"fireknight/sim/internal/stream"
	"fireknight/sim/logging"
	loggingsinks "fireknight/sim/logging/sinks"
)

// Run dispatches the CLI and returns the process exit code.
func Run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	if len(argv) == 0 {
		fmt.Fprintln(stderr, "usage: turnsim <run|serve> [flags]")
		return 2
	}
	switch argv[0] {
	case "run":
		return cmdRun(ctx, argv[1:], stdout, stderr)
	case "serve":
		return cmdServe(ctx, argv[1:], stdout, stderr)
	}
	fmt.Fprintf(stderr, "unknown command %q (want run or serve)\n", argv[0])
	return 2
}

type runFlags struct {
	demo               bool
	battle             string
	input              string
	ticks              int
	bossActor          string
	rowIndexStart      int
	rowIndexSet        bool
	stopAfterBossTurns int
	stopAfterSet       bool
	eventsOut          string
	config             string
}

func parseRunFlags(name string, argv []string, stderr io.Writer) (*runFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &runFlags{}
	fs.BoolVar(&f.demo, "demo", false, "run the built-in deterministic demo roster")
	fs.StringVar(&f.battle, "battle", "", "run a battle spec JSON file")
	fs.StringVar(&f.input, "input", "", "render an existing event stream JSON file")
	fs.IntVar(&f.ticks, "ticks", 50, "safety cap: max ticks to simulate")
	fs.StringVar(&f.bossActor, "boss-actor", "Boss", "actor name used to close frames")
	fs.IntVar(&f.rowIndexStart, "row-index-start", 0, "prefix each printed row with an incrementing index starting here")
	fs.IntVar(&f.stopAfterBossTurns, "stop-after-boss-turns", 0, "stop after the boss completes this many turns")
	fs.StringVar(&f.eventsOut, "events-out", "", "write the full event stream to this JSON path")
	fs.StringVar(&f.config, "config", "", "optional YAML runtime config")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "row-index-start":
			f.rowIndexSet = true
		case "stop-after-boss-turns":
			f.stopAfterSet = true
		}
	})
	return f, nil
}

func buildRouter(cfg FileConfig, stderr io.Writer) (*logging.Router, error) {
	routerCfg := cfg.RouterConfig()
	var named []logging.NamedSink
	for _, name := range routerCfg.EnabledSinks {
		switch name {
		case "console":
			named = append(named, logging.NamedSink{
				Name: "console",
				Sink: loggingsinks.NewConsoleSink(stderr, routerCfg.Console),
			})
		case "json":
			if routerCfg.JSON.FilePath == "" {
				return nil, fmt.Errorf("json sink enabled but logging.json_file is empty")
			}
			sink, err := loggingsinks.NewJSONFileSink(routerCfg.JSON.FilePath)
			if err != nil {
				return nil, err
			}
			named = append(named, logging.NamedSink{Name: "json", Sink: sink})
		case "memory":
			named = append(named, logging.NamedSink{Name: "memory", Sink: loggingsinks.NewMemorySink()})
		}
	}
	return logging.NewRouter(nil, routerCfg, named), nil
}

func cmdRun(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	f, err := parseRunFlags("run", argv, stderr)
	if err != nil {
		return 2
	}

	chosen := 0
	for _, on := range []bool{f.demo, f.battle != "", f.input != ""} {
		if on {
			chosen++
		}
	}
	if chosen != 1 {
		fmt.Fprintln(stderr, "ERROR: choose exactly one of -demo, -battle, or -input.")
		return 2
	}

	cfg := DefaultFileConfig()
	if f.config != "" {
		cfg, err = LoadFileConfig(f.config)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 2
		}
	}
	router, err := buildRouter(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	defer router.Close(context.Background())

	renderOpts := report.RenderOptions{}
	if f.rowIndexSet {
		start := f.rowIndexStart
		renderOpts.RowIndexStart = &start
	}

	if f.input != "" {
		events, err := stream.LoadFile(f.input)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: invalid input stream: %v\n", err)
			return 2
		}
		io.WriteString(stdout, report.RenderText(events, f.bossActor, renderOpts))
		return 0
	}

	events, code := simulate(ctx, f, router, stderr)
	if code != 0 {
		return code
	}

	if f.eventsOut != "" {
		if dir := filepath.Dir(f.eventsOut); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Fprintf(stderr, "ERROR: %v\n", err)
				return 1
			}
		}
		if err := stream.WriteFile(f.eventsOut, events); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
	}

	io.WriteString(stdout, report.RenderText(events, f.bossActor, renderOpts))
	return 0
}

func cmdServe(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	f, err := parseRunFlags("serve", argv, stderr)
	if err != nil {
		return 2
	}
	if f.battle == "" && f.input == "" && !f.demo {
		fmt.Fprintln(stderr, "ERROR: serve requires one of -demo, -battle, or -input.")
		return 2
	}

	cfg := DefaultFileConfig()
	if f.config != "" {
		cfg, err = LoadFileConfig(f.config)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 2
		}
	}
	router, err := buildRouter(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	defer router.Close(context.Background())

	var events []journal.Event
	if f.input != "" {
		events, err = stream.LoadFile(f.input)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: invalid input stream: %v\n", err)
			return 2
		}
	} else {
		var code int
		events, code = simulate(ctx, f, router, stderr)
		if code != 0 {
			return code
		}
	}

	fmt.Fprintf(stderr, "serving %d events on %s\n", len(events), cfg.Serve.Addr)
	if err := live.Serve(ctx, cfg.Serve.Addr, events, router); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}

func demoRoster() *battle.Roster {
	boss := battle.NewActor("Boss", 1500.0)
	boss.IsBoss = true
	boss.Shield = 21
	boss.ShieldMax = 21
	a1 := battle.NewActor("A1", 2000.0)
	roster, err := battle.NewRoster([]*battle.Actor{a1, boss})
	if err != nil {
		panic(err)
	}
	return roster
}

// simulate runs the battle to its stop condition and returns the recorded
// events, or a non-zero exit code on failure.
func simulate(ctx context.Context, f *runFlags, pub logging.Publisher, stderr io.Writer) ([]journal.Event, int) {
	log := journal.New()

	var roster *battle.Roster
	opts := []engine.Option{engine.WithPublisher(pub)}

	if f.battle != "" {
		doc, err := battlespec.Load(f.battle)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: invalid battle spec: %v\n", err)
			return nil, 2
		}
		roster, err = doc.BuildRoster()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: invalid battle spec: %v\n", err)
			return nil, 2
		}
		lookup, err := dataset.Default()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: cannot load champion dataset: %v\n", err)
			return nil, 2
		}
		provider := skills.NewProvider(roster, log, lookup, doc.Options.SequencePolicy, doc.HitsByActor)
		opts = append(opts, engine.WithHitProvider(provider))
		if requests, ok := doc.RequestProvider(); ok {
			opts = append(opts, engine.WithMasteryRequests(requests))
		}
		opts = append(opts, engine.WithDamagedProvider(engine.DamagedProviderFunc(
			func(boss string, step int) ([]string, bool) {
				return doc.DamagedOnStep(step)
			})))
	} else {
		roster = demoRoster()
	}

	sched := engine.New(roster, log, opts...)

	bossTurnsSeen := 0
	for i := 0; i < f.ticks; i++ {
		if err := ctx.Err(); err != nil {
			break
		}
		before := log.Len()
		if _, err := sched.Step(); err != nil {
			code := 1
			if errors.Is(err, skills.ErrSequenceExhausted) ||
				dataset.IsFormatError(err) || battlespec.IsFormatError(err) {
				code = 2
			}
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return nil, code
		}

		if f.stopAfterSet {
			stopped := false
			for _, e := range log.EventsSince(before) {
				if e.Type == journal.EventTurnEnd && e.Actor == f.bossActor {
					bossTurnsSeen++
					if bossTurnsSeen >= f.stopAfterBossTurns {
						stopped = true
						break
					}
				}
			}
			if stopped {
				break
			}
		}
	}

	return log.Events(), 0
}
