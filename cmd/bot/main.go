package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"announcebot/internal/app"
	"announcebot/internal/config"
	"announcebot/internal/model"
	"announcebot/internal/queue"
	logx "announcebot/pkg/logx"
)

const (
	modeOnce       = "once"
	modeContinuous = "continuous"
	modeHealth     = "health"
	modeStatus     = "status"
	modeClear      = "clear"
	modeAnalytics  = "analytics"
)

func main() {
	var (
		cfgPath  string
		mode     string
		debug    bool
		keepHigh bool
		days     int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json (empty: env and defaults only)")
	flag.StringVar(&mode, "mode", modeContinuous, "once|continuous|health|status|clear|analytics")
	flag.BoolVar(&debug, "debug", false, "force debug logging")
	flag.BoolVar(&keepHigh, "keep-high", false, "clear: keep posts above normal priority")
	flag.IntVar(&days, "days", 7, "analytics: window in days")
	flag.Parse()

	switch mode {
	case modeOnce, modeContinuous, modeHealth, modeStatus, modeClear, modeAnalytics:
	default:
		fmt.Fprintf(os.Stderr, "fatal: unknown mode %q\n", mode)
		os.Exit(2)
	}

	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) && !isFlagSet("config") {
			cfgPath = ""
		}
	}

	config.LoadDotEnv(logx.NewConsole("INFO").Component("env"), config.DefaultEnvFiles...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, app.Options{Debug: debug})
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	code := run(ctx, a, mode, keepHigh, days)
	_ = a.Close()
	os.Exit(code)
}

func run(ctx context.Context, a *app.App, mode string, keepHigh bool, days int) int {
	switch mode {
	case modeOnce:
		if _, err := a.Bot().RunOnce(ctx); err != nil {
			a.Log().Warn("cycle interrupted", logx.Err(err))
			return 1
		}
		printJSON(a.Bot().Stats(ctx))
	case modeContinuous:
		if err := a.Run(ctx); err != nil {
			fmt.Println("fatal:", err)
			return 1
		}
	case modeHealth:
		h := a.Bot().HealthCheck(ctx)
		printJSON(h)
		if !h.Healthy {
			return 1
		}
	case modeStatus:
		printJSON(a.Bot().Stats(ctx))
	case modeClear:
		keepAbove := queue.ClearAll
		if keepHigh {
			keepAbove = model.PriorityNormal
		}
		n := a.Queue().Clear(ctx, keepAbove)
		printJSON(map[string]int{"removed": n, "remaining": a.Queue().Len()})
	case modeAnalytics:
		printJSON(a.Queue().Analytics(ctx, days))
	}
	return 0
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
