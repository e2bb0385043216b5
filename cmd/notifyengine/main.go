// Command notifyengine is the operator entry point for the notification
// delivery engine: it serves the admission/read HTTP API, runs workers and
// the background scheduler, or performs one-shot maintenance operations,
// grounded on the flag-driven cmd/weather-cli/main.go and its
// src/client/cli.go Execute/flag.NewFlagSet/switch-on-subcommand shape,
// rather than the daemon/service-manager machinery in src/main.go, which
// this engine's scope (a notification backend, not a self-hosted service)
// does not need.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apimgr/notifyengine/internal/httpapi"
	"github.com/apimgr/notifyengine/internal/notifyengine/config"
	"github.com/apimgr/notifyengine/internal/notifyengine/engine"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/preference"
	"github.com/apimgr/notifyengine/internal/notifyengine/template"
	"github.com/apimgr/notifyengine/internal/notifyengine/worker"
)

// Exit codes: 0 ok, 1 transient failure, 2 usage/config error, 3 fatal.
const (
	exitOK        = 0
	exitTransient = 1
	exitUsage     = 2
	exitFatal     = 3
)

var (
	// Version info, set via ldflags during build.
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitUsage
	}

	command, rest := args[0], args[1:]
	switch command {
	case "serve":
		return cmdServe(rest)
	case "worker":
		return cmdWorker(rest)
	case "flush-metrics":
		return cmdFlushMetrics(rest)
	case "replay-scheduled":
		return cmdReplayScheduled(rest)
	case "init-preferences":
		return cmdInitPreferences(rest)
	case "template":
		return cmdTemplate(rest)
	case "version":
		fmt.Printf("notifyengine %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return exitOK
	case "help", "-h", "--help":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "notifyengine: unknown command %q\n", command)
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `notifyengine - durable multi-channel notification delivery engine

Usage:
  notifyengine serve [--config PATH]
  notifyengine worker [--config PATH]
  notifyengine flush-metrics [--config PATH]
  notifyengine replay-scheduled [--config PATH]
  notifyengine init-preferences --user=ID [--config PATH]
  notifyengine template {list|get|set|activate} [args...]
  notifyengine version`)
}

func loadConfig(configPath string) (*config.Config, int) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: failed to load config: %v\n", err)
		return nil, exitUsage
	}
	return cfg, exitOK
}

// cmdServe runs the full process: HTTP API, worker pool, and scheduler,
// until interrupted.
func cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "server.yml", "path to server.yml")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, code := loadConfig(*configPath)
	if cfg == nil {
		return code
	}

	eng, err := engine.New(cfg, worker.DirectResolver{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: failed to start engine: %v\n", err)
		return exitFatal
	}
	eng.Start()
	if err := eng.WatchConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: config hot-reload disabled: %v\n", err)
	}

	posture := config.NewPosture(config.DetectMode(cfg.Mode))
	router := httpapi.NewRouter(eng, posture)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "notifyengine: http server failed: %v\n", err)
		eng.Stop()
		return exitFatal
	case <-sigCh:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		eng.Stop()
		return exitOK
	}
}

// cmdWorker runs only the worker pool and scheduler, no HTTP surface, for
// operators who front the admission API with a separate process.
func cmdWorker(args []string) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	configPath := fs.String("config", "server.yml", "path to server.yml")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, code := loadConfig(*configPath)
	if cfg == nil {
		return code
	}

	eng, err := engine.New(cfg, worker.DirectResolver{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: failed to start engine: %v\n", err)
		return exitFatal
	}
	eng.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	eng.Stop()
	return exitOK
}

// cmdFlushMetrics performs one immediate buffer flush and exits, for cron
// wrappers that don't want to run the full scheduler.
func cmdFlushMetrics(args []string) int {
	fs := flag.NewFlagSet("flush-metrics", flag.ContinueOnError)
	configPath := fs.String("config", "server.yml", "path to server.yml")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, code := loadConfig(*configPath)
	if cfg == nil {
		return code
	}

	eng, err := engine.New(cfg, worker.DirectResolver{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: failed to open engine: %v\n", err)
		return exitFatal
	}
	defer eng.DB.Close()

	if err := eng.Metrics.Flush(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: flush failed: %v\n", err)
		return exitTransient
	}
	return exitOK
}

// cmdReplayScheduled runs one immediate pass of the scheduled-set sweep.
func cmdReplayScheduled(args []string) int {
	fs := flag.NewFlagSet("replay-scheduled", flag.ContinueOnError)
	configPath := fs.String("config", "server.yml", "path to server.yml")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, code := loadConfig(*configPath)
	if cfg == nil {
		return code
	}

	eng, err := engine.New(cfg, worker.DirectResolver{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: failed to open engine: %v\n", err)
		return exitFatal
	}
	defer eng.DB.Close()

	if err := eng.ReplayScheduled(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: replay failed: %v\n", err)
		return exitTransient
	}
	return exitOK
}

// cmdInitPreferences seeds a default preference row for every known
// notification type for one user, for onboarding a new account.
func cmdInitPreferences(args []string) int {
	fs := flag.NewFlagSet("init-preferences", flag.ContinueOnError)
	configPath := fs.String("config", "server.yml", "path to server.yml")
	userID := fs.String("user", "", "user id to initialize preferences for")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "notifyengine: --user is required")
		return exitUsage
	}

	cfg, code := loadConfig(*configPath)
	if cfg == nil {
		return code
	}

	eng, err := engine.New(cfg, worker.DirectResolver{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: failed to open engine: %v\n", err)
		return exitFatal
	}
	defer eng.DB.Close()

	defaultTypes := []string{"Account", "Billing", "Security", "Marketing", "System"}
	for _, t := range defaultTypes {
		p := preference.Default(*userID, t, model.ChannelEmail)
		p.Channels = []model.Channel{model.ChannelEmail, model.ChannelInApp}
		if err := eng.Preferences.Put(context.Background(), &p); err != nil {
			fmt.Fprintf(os.Stderr, "notifyengine: failed to seed preference %q: %v\n", t, err)
			return exitTransient
		}
	}
	fmt.Printf("notifyengine: initialized %d preference rows for user %s\n", len(defaultTypes), *userID)
	return exitOK
}

// cmdTemplate dispatches the template {list|get|set|activate} subcommands.
func cmdTemplate(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "notifyengine: template requires a subcommand (list, get, set, activate)")
		return exitUsage
	}

	sub, rest := args[0], args[1:]
	fs := flag.NewFlagSet("template "+sub, flag.ContinueOnError)
	configPath := fs.String("config", "server.yml", "path to server.yml")
	notifType := fs.String("type", "", "notification type")
	channelName := fs.String("channel", "", "channel")
	subject := fs.String("subject", "", "template subject")
	body := fs.String("body", "", "template body")
	templateID := fs.String("id", "", "template id")
	activate := fs.Bool("activate", false, "activate immediately on set")
	if err := fs.Parse(rest); err != nil {
		return exitUsage
	}

	cfg, code := loadConfig(*configPath)
	if cfg == nil {
		return code
	}
	eng, err := engine.New(cfg, worker.DirectResolver{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "notifyengine: failed to open engine: %v\n", err)
		return exitFatal
	}
	defer eng.DB.Close()

	ctx := context.Background()
	switch sub {
	case "list":
		list, err := eng.Templates.List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "notifyengine: %v\n", err)
			return exitTransient
		}
		for _, t := range list {
			fmt.Printf("%s\t%s\t%s\tv%d\tactive=%v\n", t.ID, t.Type, t.Channel, t.Version, t.Active)
		}
		return exitOK

	case "get":
		if *notifType == "" || *channelName == "" {
			fmt.Fprintln(os.Stderr, "notifyengine: template get requires --type and --channel")
			return exitUsage
		}
		t, schema, err := eng.Templates.GetActive(ctx, *notifType, model.Channel(*channelName))
		if err != nil {
			fmt.Fprintf(os.Stderr, "notifyengine: %v\n", err)
			return exitTransient
		}
		fmt.Printf("id=%s version=%d active=%v\nsubject: %s\nbody:\n%s\nschema: %+v\n",
			t.ID, t.Version, t.Active, t.Subject, t.Body, schema)
		return exitOK

	case "set":
		if *notifType == "" || *channelName == "" || *body == "" {
			fmt.Fprintln(os.Stderr, "notifyengine: template set requires --type, --channel, and --body")
			return exitUsage
		}
		t := &model.Template{
			Type:    *notifType,
			Channel: model.Channel(*channelName),
			Subject: *subject,
			Body:    *body,
		}
		if err := eng.Templates.Set(ctx, t, template.Schema{}, *activate); err != nil {
			fmt.Fprintf(os.Stderr, "notifyengine: %v\n", err)
			return exitTransient
		}
		fmt.Printf("notifyengine: created template %s v%d (active=%v)\n", t.ID, t.Version, t.Active)
		return exitOK

	case "activate":
		if *templateID == "" {
			fmt.Fprintln(os.Stderr, "notifyengine: template activate requires --id")
			return exitUsage
		}
		if err := eng.Templates.Activate(ctx, *templateID); err != nil {
			fmt.Fprintf(os.Stderr, "notifyengine: %v\n", err)
			return exitTransient
		}
		fmt.Printf("notifyengine: activated template %s\n", *templateID)
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "notifyengine: unknown template subcommand %q\n", sub)
		return exitUsage
	}
}
