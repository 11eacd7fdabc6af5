// Package app wires the proxy's subsystems — event bus, capability
// registry, command engine, trigger engine, timer scheduler, settings
// store, plugin loader, and the mud/client network shims — into the
// running process, and owns the single dispatcher goroutine that routes
// inbound records and lifecycle events between them.
package app

import (
	"context"
	"fmt"
	"time"

	"bastproxy/internal/basedir"
	"bastproxy/internal/capability"
	"bastproxy/internal/command"
	"bastproxy/internal/coreerr"
	"bastproxy/internal/eventbus"
	"bastproxy/internal/logging"
	"bastproxy/internal/netshim"
	"bastproxy/internal/pipeline"
	"bastproxy/internal/plugin"
	"bastproxy/internal/record"
	"bastproxy/internal/settings"
	"bastproxy/internal/settings/persistence"
	"bastproxy/internal/timer"
	"bastproxy/internal/trigger"
)

// Public-boundary lifecycle events, per the core's external event
// contract (alongside ev_plugin_* and ev_to_{mud,client}_data_* already
// raised by the plugin loader and record pipeline).
const (
	EventMudConnected       = "ev_mud_connected"
	EventMudDisconnected    = "ev_mud_disconnected"
	EventClientConnected    = "ev_client_connected"
	EventClientLoggedIn     = "ev_client_logged_in"
	EventClientDisconnected = "ev_client_disconnected"
)

// commandDispatchPriority is where the command engine hooks
// ev_to_mud_data_modify, ahead of most plugin modify callbacks (which
// default to eventbus.DefaultPriority) so a recognized command line is
// claimed and its send flag cleared before anything else inspects it.
const commandDispatchPriority = 10

// Config is the process's startup configuration, bound by cmd/bastproxy
// from cobra flags, viper-resolved environment/config-file values, or the
// huh init wizard.
type Config struct {
	// BaseDir holds the base-directory metadata file, settings database,
	// logs, and the default plugin root.
	BaseDir string

	// MudAddr is the upstream mud server's "host:port".
	MudAddr string

	// ListenAddr is the downstream listener's "host:port".
	ListenAddr string

	// Password, if non-empty, gates client login behind a preshared
	// password challenge.
	Password string

	// Banner is sent to every client immediately on connect.
	Banner string

	// EventHistorySize bounds how many past invocations the event bus
	// retains per event, for introspection commands. Zero uses the bus's
	// own default.
	EventHistorySize int

	// Ephemeral forces the in-memory settings backend even when cgo (and
	// so the embedded dolt backend) is available, for a run whose
	// settings should not survive a restart.
	Ephemeral bool
}

func (c Config) validate() error {
	if c.BaseDir == "" {
		return coreerr.NewConfigError("base_dir", fmt.Errorf("must not be empty"))
	}
	if c.MudAddr == "" {
		return coreerr.NewConfigError("mud_addr", fmt.Errorf("must not be empty"))
	}
	if c.ListenAddr == "" {
		return coreerr.NewConfigError("listen_addr", fmt.Errorf("must not be empty"))
	}
	return nil
}

// App is one running proxy instance: every subsystem plus the channels
// the dispatcher multiplexes over.
type App struct {
	cfg  Config
	meta *basedir.Metadata

	Bus          *eventbus.Bus
	Capabilities *capability.Registry
	Commands     *command.Engine
	Triggers     *trigger.Engine
	Timers       *timer.Scheduler
	Settings     *settings.Store
	Loader       *plugin.Loader
	Watcher      *plugin.Watcher
	Mud          *netshim.MudShim
	Clients      *netshim.ClientListener
	Pipeline     *pipeline.Pipeline

	provider persistence.Provider
	metrics  *instruments

	clientLines chan clientLine
	clientGone  chan string
}

type clientLine struct {
	id   string
	line string
}

// New builds an App from cfg: loads or initializes the base directory's
// metadata, opens the settings backend, and wires every subsystem
// together. It does not yet listen on any socket or load any plugin —
// call Run for that.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	meta, err := basedir.Load(cfg.BaseDir)
	if err != nil {
		return nil, coreerr.NewConfigError("base_dir", err)
	}
	if meta == nil {
		meta = basedir.Default()
		if err := meta.Save(cfg.BaseDir); err != nil {
			return nil, coreerr.NewConfigError("base_dir", err)
		}
	}

	provider, err := newProvider(ctx, meta.SettingsDBPath(cfg.BaseDir), cfg.Ephemeral)
	if err != nil {
		return nil, fmt.Errorf("app: opening settings backend: %w", err)
	}

	logging.SetLogDir(meta.LogDirPath(cfg.BaseDir))

	bus := eventbus.New(cfg.EventHistorySize)
	caps := capability.New()
	cmds := command.New(meta.Prefix())
	triggers := trigger.New()
	timers := timer.New()
	store := settings.New(provider, bus)

	pctx := &plugin.Context{
		Bus:          bus,
		Capabilities: caps,
		Commands:     cmds,
		Triggers:     triggers,
		Timers:       timers,
		Settings:     store,
	}
	loader := plugin.New(pctx, meta.ResolvedPluginRoots(cfg.BaseDir))
	watcher := plugin.NewWatcher(loader, plugin.DefaultDebounce)

	mud := netshim.NewMudShim(cfg.MudAddr)
	clients := netshim.NewClientListener(cfg.ListenAddr, cfg.Banner, cfg.Password)

	if err := mud.RegisterStatusCapability(caps); err != nil {
		return nil, fmt.Errorf("app: registering mud status capability: %w", err)
	}
	if err := clients.RegisterStatusCapability(caps); err != nil {
		return nil, fmt.Errorf("app: registering client status capability: %w", err)
	}

	_, err = bus.RegisterCallback(pipeline.EventToMudModify, "core.commands", "dispatch", commandDispatchPriority,
		func(_ context.Context, data eventbus.Data) error {
			line, ok := data["line"].(*record.LineRecord)
			if !ok || !cmds.IsCommandLine(line.Text()) {
				return nil
			}
			_, result := cmds.Dispatch(line.ClientID, line.Text())
			for _, msg := range result.Messages {
				_ = clients.Send(line.ClientID, msg)
			}
			line.Send = false
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("app: registering command dispatch: %w", err)
	}

	a := &App{
		cfg:          cfg,
		meta:         meta,
		Bus:          bus,
		Capabilities: caps,
		Commands:     cmds,
		Triggers:     triggers,
		Timers:       timers,
		Settings:     store,
		Loader:       loader,
		Watcher:      watcher,
		Mud:          mud,
		Clients:      clients,
		provider:     provider,
		metrics:      newInstruments(),
		clientLines:  make(chan clientLine, 256),
		clientGone:   make(chan string, 32),
	}

	a.Pipeline = &pipeline.Pipeline{
		Bus:              bus,
		Triggers:         triggers,
		Capabilities:     caps,
		CommandSeparator: pipeline.DefaultCommandSeparator,
		SendToMud:        func(_, formatted string) error { return mud.Send(formatted) },
		SendToClient:     func(id, formatted string) error { return clients.Send(id, formatted) },
		Recipients:       a.recipients,
	}

	return a, nil
}

// Close releases resources opened by New without starting Run — the
// settings backend, namely. cmd/bastproxy's doctor and plugins commands
// build an App to inspect its wiring without ever calling Run, and must
// still release the backend when done.
func (a *App) Close() error {
	return a.provider.Close()
}

// recipients snapshots the connected client roster as the pipeline sees
// it. ViewOnly/Excluded are left at their zero value here — flipping them
// per-client is a plugin-level concern (e.g. a snooper or afk-exclusion
// plugin calling into settings/capabilities), not something the core
// wiring decides on its own.
func (a *App) recipients() []pipeline.Recipient {
	snap := a.Clients.Snapshot()
	out := make([]pipeline.Recipient, len(snap))
	for i, cc := range snap {
		out[i] = pipeline.Recipient{ID: cc.ID, LoggedIn: cc.LoggedIn()}
	}
	return out
}

// Run starts every long-running subsystem and blocks in the dispatcher
// loop until ctx is canceled, then shuts everything down. Only this loop
// — plus the network shims' own read goroutines, which merely hand lines
// off via channels — ever calls into the bus, capability registry,
// command/trigger/timer engines, or pipeline, matching the cooperative
// scheduling model's single-writer intent. The plugin watcher and timer
// scheduler run their own independent loops; both guard their state with
// their own internal mutex rather than the dispatcher's channels, which
// the concurrency model allows as the documented fallback for a runtime
// with real parallelism.
func (a *App) Run(ctx context.Context) error {
	if err := a.Loader.LoadAll(ctx); err != nil {
		return fmt.Errorf("app: loading plugins: %w", err)
	}
	if err := a.Watcher.Start(ctx); err != nil {
		logging.Warnf("app", "plugin watcher not started: %v", err)
	}
	go a.Timers.Run(ctx)
	go a.connectMud(ctx)

	if err := a.Clients.Start(ctx); err != nil {
		return fmt.Errorf("app: starting client listener: %w", err)
	}

	a.dispatch(ctx)
	return a.shutdown()
}

func (a *App) connectMud(ctx context.Context) {
	if err := a.Mud.Connect(ctx); err != nil {
		logging.Fault("app", "mud", "connect", err)
		return
	}
	_, _ = a.Bus.Raise(ctx, EventMudConnected, eventbus.Data{"address": a.cfg.MudAddr}, "app", nil, "")
}

// dispatch is the single dispatcher loop: it multiplexes mud lines, mud
// connection errors, newly accepted clients, forwarded client lines, and
// client disconnects, running every handler to completion before
// selecting again.
func (a *App) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case line := <-a.Mud.Lines:
			start := time.Now()
			a.metrics.recordLine("mud_to_client")
			if err := a.Pipeline.ProcessMudToClient(ctx, "mud", line); err != nil {
				logging.Fault("app", "pipeline", "mud-to-client", err)
			}
			a.metrics.recordDispatch("mud_line", start)

		case err := <-a.Mud.Errors:
			logging.Fault("app", "mud", "connection", err)
			_, _ = a.Bus.Raise(ctx, EventMudDisconnected, eventbus.Data{"error": err.Error()}, "app", nil, "")
			go a.connectMud(ctx)

		case cc := <-a.Clients.Accepted:
			start := time.Now()
			_, _ = a.Bus.Raise(ctx, EventClientConnected, eventbus.Data{"client": cc.ID}, "app", nil, "")
			go a.forwardClient(cc)
			a.metrics.recordDispatch("client_connected", start)

		case cl := <-a.clientLines:
			start := time.Now()
			a.handleClientLine(ctx, cl)
			a.metrics.recordDispatch("client_line", start)

		case id := <-a.clientGone:
			start := time.Now()
			a.Clients.Remove(id)
			_, _ = a.Bus.Raise(ctx, EventClientDisconnected, eventbus.Data{"client": id}, "app", nil, "")
			a.metrics.recordDispatch("client_gone", start)
		}
	}
}

// forwardClient runs on its own goroutine per connected client, handing
// each line (and the eventual disconnect) to the dispatcher via channels
// — the only role a network-facing goroutine plays in this design.
func (a *App) forwardClient(cc *netshim.ClientConn) {
	for {
		select {
		case line := <-cc.Lines:
			a.clientLines <- clientLine{id: cc.ID, line: line}
		case <-cc.Closed:
			a.clientGone <- cc.ID
			return
		}
	}
}

func (a *App) handleClientLine(ctx context.Context, cl clientLine) {
	cc := a.findClient(cl.id)
	if cc == nil {
		return
	}

	if !cc.LoggedIn() {
		if a.Clients.CheckPassword(cl.line) {
			cc.MarkLoggedIn()
			_, _ = a.Bus.Raise(ctx, EventClientLoggedIn, eventbus.Data{"client": cl.id}, "app", nil, "")
		} else {
			_ = a.Clients.Send(cl.id, "Incorrect password.")
		}
		return
	}

	a.metrics.recordLine("client_to_mud")
	if err := a.Pipeline.ProcessClientToMud(ctx, cl.id, cl.line); err != nil {
		logging.Fault("app", "pipeline", "client-to-mud", err)
	}
}

func (a *App) findClient(id string) *netshim.ClientConn {
	for _, cc := range a.Clients.Snapshot() {
		if cc.ID == id {
			return cc
		}
	}
	return nil
}

// shutdown flushes settings and releases the network shims and settings
// backend. Each shim bounds its own drain at 1s (MudShim.Close,
// ClientConn.Close), so shutdown overall completes quickly even against a
// stuck remote.
func (a *App) shutdown() error {
	if err := a.Settings.Save(context.Background()); err != nil {
		logging.Fault("app", "settings", "shutdown save", err)
	}
	a.Watcher.Stop()
	if err := a.Clients.Stop(); err != nil {
		logging.Fault("app", "clients", "shutdown", err)
	}
	if err := a.Mud.Close(); err != nil {
		logging.Fault("app", "mud", "shutdown", err)
	}
	return a.provider.Close()
}
