// Package daemon implements the node lifecycle manager.
package daemon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/floodstack/internal/config"
	"firestige.xyz/floodstack/internal/core"
	"firestige.xyz/floodstack/internal/link"
	"firestige.xyz/floodstack/internal/log"
	"firestige.xyz/floodstack/internal/metrics"
	"firestige.xyz/floodstack/internal/stack"
)

// nodeLink is a byte link the daemon can run a stack on.
type nodeLink interface {
	stack.Transport
	Bind(r link.Receiver)
	Run(ctx context.Context) error
	Close() error
}

// Options are the per-process settings that do not belong in the config file.
type Options struct {
	PIDFile string
	In      io.Reader // Lines read here are broadcast; nil disables input
	Out     io.Writer // Received messages are printed here; nil discards
}

// Daemon runs one node: a stack on a configured link, plus metrics.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	opts       Options

	// Core components
	stack         *stack.Stack
	link          nodeLink
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	outMu        sync.Mutex
	stopOnce     sync.Once
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New loads the configuration and creates a Daemon.
func New(configPath string, opts Options) (*Daemon, error) {
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(globalConfig, configPath, opts), nil
}

// NewWithConfig creates a Daemon from an already loaded configuration.
func NewWithConfig(cfg *config.GlobalConfig, configPath string, opts Options) *Daemon {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		opts:         opts,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes and starts all components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	stackCfg, err := d.config.StackConfig()
	if err != nil {
		return err
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"address": stackCfg.Local,
		"link":    d.config.Link.Type,
		"config":  d.configPath,
	}).Info("starting floodstack node")

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Open the link and build the stack on it
	nl, err := d.openLink()
	if err != nil {
		return fmt.Errorf("failed to open link: %w", err)
	}
	st, err := stack.New(stackCfg, nl, stack.HandlerFunc(d.onMessage))
	if err != nil {
		nl.Close()
		return fmt.Errorf("failed to create stack: %w", err)
	}
	nl.Bind(st)
	d.link, d.stack = nl, st

	// 5. Start the link reader, the stack worker and the input reader
	d.goRun("link", d.link.Run)
	d.goRun("stack", d.stack.Run)
	if d.opts.In != nil {
		d.goRun("input", d.readInput)
	}

	log.GetLogger().Info("node started successfully")
	return nil
}

func (d *Daemon) goRun(name string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := fn(d.ctx); err != nil && d.ctx.Err() == nil {
			log.GetLogger().WithError(err).WithField("component", name).Error("component stopped")
			d.TriggerShutdown()
		}
	}()
}

// Send broadcasts payload from this node.
func (d *Daemon) Send(ctx context.Context, payload []byte) error {
	return d.stack.Send(ctx, core.Broadcast, payload)
}

// LinkAddr returns the local address of a UDP link, or "" for other links.
func (d *Daemon) LinkAddr() string {
	if u, ok := d.link.(*link.UDP); ok {
		return u.LocalAddr().String()
	}
	return ""
}

// Stack returns the running stack.
func (d *Daemon) Stack() *stack.Stack {
	return d.stack
}

func (d *Daemon) onMessage(src core.Address, payload []byte) {
	d.outMu.Lock()
	defer d.outMu.Unlock()
	fmt.Fprintf(d.opts.Out, "%s: %s\n", src, payload)
}

func (d *Daemon) readInput(ctx context.Context) error {
	scanner := bufio.NewScanner(d.opts.In)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := d.Send(ctx, append([]byte(nil), line...)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Stop performs graceful shutdown of all components. Safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	log.GetLogger().Info("initiating graceful shutdown")

	// 1. Cancel context to signal all goroutines
	d.cancel()

	// 2. Close the stack first so nothing more is written to the link
	if d.stack != nil {
		d.stack.Close()
	}
	if d.link != nil {
		if err := d.link.Close(); err != nil {
			log.GetLogger().WithError(err).Error("error closing link")
		}
	}
	d.waitComponents(5 * time.Second)

	// 3. Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			log.GetLogger().WithError(err).Error("error stopping metrics server")
		}
	}

	// 4. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 5. Remove PID file
	if err := d.removePIDFile(); err != nil {
		log.GetLogger().WithError(err).Error("error removing PID file")
	}

	log.GetLogger().Info("node stopped gracefully")
}

// waitComponents waits for the component goroutines. The input reader may
// stay blocked on a read that never returns, so the wait is bounded.
func (d *Daemon) waitComponents(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.GetLogger().Warn("components did not stop in time")
	}
}

// Run runs the main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. A component failing
//  3. SIGHUP triggers config reload
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.GetLogger().Info("node running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().WithField("signal", sig).Info("received shutdown signal")
				d.Stop()
				return nil

			case syscall.SIGHUP:
				log.GetLogger().Info("received reload signal")
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			log.GetLogger().Info("shutdown triggered")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload reloads the configuration.
// Hot-reloadable: logging. Everything else requires a restart.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return fmt.Errorf("no config file to reload")
	}
	log.GetLogger().WithField("path", d.configPath).Info("reloading configuration")

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	requiresRestart := []string{}
	if newConfig.Node != d.config.Node {
		requiresRestart = append(requiresRestart, "node")
	}
	if newConfig.Transport != d.config.Transport || newConfig.Fragment != d.config.Fragment || newConfig.Router != d.config.Router {
		requiresRestart = append(requiresRestart, "layers")
	}
	if newConfig.Link.Type != d.config.Link.Type {
		requiresRestart = append(requiresRestart, "link.type")
	}
	if newConfig.Metrics != d.config.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}

	d.config.Log = newConfig.Log
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	log.GetLogger().WithField("requires_restart", requiresRestart).Info("configuration reloaded")
	return nil
}

// TriggerShutdown requests a graceful shutdown of Run.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := log.Init(&d.config.Log); err != nil {
		return err
	}
	log.GetLogger().WithField("level", d.config.Log.Level).Debug("logging initialized")
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

func (d *Daemon) openLink() (nodeLink, error) {
	switch d.config.Link.Type {
	case "udp":
		u, err := link.ListenUDP(d.config.Link.UDP.Listen, d.config.Link.UDP.Peers)
		if err != nil {
			return nil, err
		}
		return u, nil
	case "serial":
		s, err := link.OpenSerial(d.config.SerialConfig())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported link type %q", d.config.Link.Type)
	}
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.opts.PIDFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.opts.PIDFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.opts.PIDFile, err)
	}

	log.GetLogger().WithField("path", d.opts.PIDFile).Debug("PID file written")
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.opts.PIDFile == "" {
		return nil
	}

	if err := os.Remove(d.opts.PIDFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.opts.PIDFile, err)
	}
	return nil
}
