// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package router holds the runtime model of one matrix switcher: its
// inputs and outputs, the per-level arbitration gates that decide when
// route requests reach the wire, and the dispatcher that applies
// switcher feedback.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"go.uber.org/zap"
)

// Errors returned at the control API boundary.
var (
	ErrInvalidRoute  = errors.New("invalid route request")
	ErrUnknownOutput = errors.New("output not configured")
	ErrClosed        = errors.New("device closed")
)

// Transport carries framed commands to the switcher.
type Transport interface {
	SendLine(text string) error
	Connected() bool
}

// Options configures a Device.
type Options struct {
	Key               string
	Name              string
	DeviceID          string
	Model             purelink.Model
	Frame             purelink.FrameFormat
	AudioFollowsVideo bool
	GateDebounce      time.Duration
	PollString        string
	PollInterval      time.Duration
	WarningTimeout    time.Duration
	ErrorTimeout      time.Duration
	Inputs            []config.EntryConfig
	Outputs           []config.EntryConfig

	// OnLine, if set, observes every decoded inbound line.
	OnLine func(*purelink.Response, error)
}

// OptionsFromConfig converts a normalized device configuration.
func OptionsFromConfig(c config.DeviceConfig) Options {
	return Options{
		Key:               c.Key,
		Name:              c.Name,
		DeviceID:          string(c.DeviceID),
		Model:             c.ModelValue(),
		Frame:             c.FrameFormat(),
		AudioFollowsVideo: c.AudioFollowsVideo,
		GateDebounce:      c.GateDebounce(),
		PollString:        c.PollString,
		PollInterval:      c.PollInterval(),
		WarningTimeout:    c.WarningTimeout(),
		ErrorTimeout:      c.ErrorTimeout(),
		Inputs:            c.Inputs,
		Outputs:           c.Outputs,
	}
}

// DeviceStatus is a snapshot of link and gate state.
type DeviceStatus struct {
	Key               string            `json:"key"`
	Name              string            `json:"name"`
	DeviceID          string            `json:"deviceId"`
	Model             int               `json:"model"`
	Connected         bool              `json:"connected"`
	Online            bool              `json:"online"`
	Monitor           string            `json:"monitor"`
	LastSeen          time.Time         `json:"lastSeen"`
	AudioFollowsVideo bool              `json:"audioFollowsVideo"`
	VideoGateOpen     bool              `json:"videoGateOpen"`
	AudioGateOpen     bool              `json:"audioGateOpen"`
	QueuedCommands    int               `json:"queuedCommands"`
	Statistics        purelink.Counters `json:"statistics"`
}

// Device is the control facade for one switcher.
type Device struct {
	log       *zap.Logger
	opts      Options
	enc       *purelink.Encoder
	registry  *Registry
	video     *Gate
	audio     *Gate
	queue     *commandQueue
	dispatch  *dispatcher
	monitor   *monitor
	stats     *purelink.Statistics
	events    *hub
	transport Transport

	afv       atomic.Bool
	connected atomic.Bool
	closed    atomic.Bool

	refreshMu sync.Mutex
	pass      *refreshPass

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New builds a device. Nothing is sent until Start is called.
func New(log *zap.Logger, opts Options, transport Transport) *Device {
	if opts.DeviceID == "" {
		opts.DeviceID = config.DefaultDeviceID
	}
	if opts.Key == "" {
		opts.Key = config.DefaultKey
	}
	if opts.WarningTimeout <= 0 {
		opts.WarningTimeout = config.DefaultWarningTimeoutMs * time.Millisecond
	}
	if opts.ErrorTimeout < opts.WarningTimeout {
		opts.ErrorTimeout = max(opts.WarningTimeout, config.DefaultErrorTimeoutMs*time.Millisecond)
	}

	log = log.Named("device").With(zap.String("device", opts.Key))
	d := &Device{
		log:       log,
		opts:      opts,
		enc:       purelink.NewEncoder(opts.DeviceID, opts.Model, opts.Frame),
		queue:     newCommandQueue(),
		stats:     purelink.NewStatistics(),
		events:    newHub(),
		transport: transport,
	}
	d.afv.Store(opts.AudioFollowsVideo)

	d.registry = NewRegistry(log, opts.Key, opts.Inputs, opts.Outputs, d.enc, d.publish)
	d.video = newGate(purelink.SignalVideo, opts.GateDebounce, d.sweepVideo)
	d.audio = newGate(purelink.SignalAudio, opts.GateDebounce, d.sweepAudio)
	d.monitor = newMonitor(log, opts.PollInterval, opts.WarningTimeout, opts.ErrorTimeout, d.Poll, d.onStatus)
	d.dispatch = newDispatcher(log, purelink.NewDecoder(opts.DeviceID), d.registry, d.stats, d.monitor.markAlive)
	d.dispatch.observe = opts.OnLine
	return d
}

// Start runs the command worker and, when a poll interval is configured,
// the communication monitor. Start is a no-op after the first call.
func (d *Device) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed.Load() {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.queue.run(ctx, d.write)
	}()

	if d.opts.PollInterval > 0 {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.monitor.run(ctx)
		}()
	}

	d.log.Info("device started",
		zap.String("deviceId", d.opts.DeviceID),
		zap.Stringer("model", d.opts.Model),
		zap.Stringer("frame", d.opts.Frame),
		zap.Int("inputs", len(d.registry.Inputs())),
		zap.Int("outputs", len(d.registry.Outputs())),
	)
}

// Close stops the gates, the monitor and the command worker. Commands that
// were not yet written are discarded. Close is safe to call more than once.
func (d *Device) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}

	d.video.Stop()
	d.audio.Stop()

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()

	if dropped := d.queue.close(); dropped > 0 {
		d.log.Info("discarded unsent commands", zap.Int("count", dropped))
	}
	d.log.Info("device closed")
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool { return d.closed.Load() }

// Key returns the configured device key.
func (d *Device) Key() string { return d.opts.Key }

// Name returns the configured display name.
func (d *Device) Name() string { return d.opts.Name }

// Encoder returns the command encoder bound to this switcher.
func (d *Device) Encoder() *purelink.Encoder { return d.enc }

// Registry returns the immutable input/output registry.
func (d *Device) Registry() *Registry { return d.registry }

// Statistics returns the live feedback counters.
func (d *Device) Statistics() *purelink.Statistics { return d.stats }

// ============================================================
// Transport callbacks
// ============================================================

// HandleLine applies one inbound line. The transport must call it from a
// single goroutine in arrival order.
func (d *Device) HandleLine(line string) {
	if d.closed.Load() {
		return
	}
	d.dispatch.handleLine(line)
}

// DropLine records a line the transport discarded for being too long.
func (d *Device) DropLine() {
	d.stats.CountDropped()
	d.log.Warn("dropped overlong feedback line")
}

// SetConnected records a transport connect state change. A new connection
// triggers a full poll so routes are refreshed after an outage.
func (d *Device) SetConnected(connected bool) {
	if d.connected.Swap(connected) == connected {
		return
	}
	d.log.Info("connection state changed", zap.Bool("connected", connected))
	d.publish(Event{Kind: EventConnected, On: connected})
	if connected && !d.closed.Load() {
		d.Poll()
	}
}

// ============================================================
// Control API
// ============================================================

// RequestRoute records a route request for an output. It reaches the wire
// when the gate for its level is open, immediately if it already is.
// Input must be 1..MaxIO or NoSource.
func (d *Device) RequestRoute(output, input int, signal purelink.SignalType) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := purelink.ValidateOutput(output); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoute, err)
	}
	if input == 0 {
		return fmt.Errorf("%w: %w: 0 (use %d to disconnect)", ErrInvalidRoute, purelink.ErrInputRange, purelink.NoSource)
	}
	if err := purelink.ValidateInput(input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoute, err)
	}

	out := d.registry.Output(output)
	if out == nil {
		return fmt.Errorf("%w: %d", ErrUnknownOutput, output)
	}
	if err := out.RequestRoute(signal, input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoute, err)
	}

	d.log.Debug("route requested",
		zap.Int("output", output),
		zap.Int("input", input),
		zap.Stringer("signal", signal),
	)

	switch signal {
	case purelink.SignalAudio:
		if d.audio.IsOpen() {
			d.commitAudio(out)
		}
	default:
		if d.video.IsOpen() {
			d.commitVideo(out)
		}
	}
	return nil
}

// SetGateOpen opens or releases the gate for a level. SignalAudioVideo
// drives both gates.
func (d *Device) SetGateOpen(signal purelink.SignalType, open bool) {
	if d.closed.Load() {
		return
	}
	for _, g := range d.gatesFor(signal) {
		if open {
			g.Open()
		} else {
			g.Close()
		}
	}
}

// GateOpen reports whether the gate for a level is open.
// SignalAudioVideo reports the video gate.
func (d *Device) GateOpen(signal purelink.SignalType) bool {
	if signal == purelink.SignalAudio {
		return d.audio.IsOpen()
	}
	return d.video.IsOpen()
}

// SetAudioFollowsVideo switches between coupled and breakaway routing.
func (d *Device) SetAudioFollowsVideo(enabled bool) {
	if d.afv.Swap(enabled) == enabled {
		return
	}
	d.log.Info("audio follows video changed", zap.Bool("enabled", enabled))
	d.publish(Event{Kind: EventAudioFollowsVideo, On: enabled})
}

// AudioFollowsVideo reports the routing mode.
func (d *Device) AudioFollowsVideo() bool {
	return d.afv.Load()
}

// Poll sends the configured heartbeat, if any, and polls every output on
// both levels.
func (d *Device) Poll() {
	if d.opts.PollString != "" {
		d.send(d.enc.Raw(d.opts.PollString))
	}
	d.PollVideoOutputs()
	d.PollAudioOutputs()
}

// PollVideoOutputs requests the video route of every configured output.
func (d *Device) PollVideoOutputs() {
	d.pollOutputs(purelink.SignalVideo)
}

// PollAudioOutputs requests the audio route of every configured output.
func (d *Device) PollAudioOutputs() {
	d.pollOutputs(purelink.SignalAudio)
}

// PollAll sends the whole-matrix status requests for both levels.
func (d *Device) PollAll() {
	d.send(d.enc.PollAll(purelink.SignalVideo))
	d.send(d.enc.PollAll(purelink.SignalAudio))
}

// CheckVersion sends the firmware version request.
func (d *Device) CheckVersion() {
	d.send(d.enc.Version())
}

// CheckRouterID sends the router ID check.
func (d *Device) CheckRouterID() {
	d.send(d.enc.RouterID())
}

// ClearVideoRoutes disconnects every video crosspoint.
func (d *Device) ClearVideoRoutes() {
	d.send(d.enc.ClearAll(purelink.SignalVideo))
}

// ClearAudioRoutes disconnects every audio crosspoint.
func (d *Device) ClearAudioRoutes() {
	d.send(d.enc.ClearAll(purelink.SignalAudio))
}

// ClearAllRoutes disconnects every crosspoint on both levels.
func (d *Device) ClearAllRoutes() {
	d.send(d.enc.ClearAll(purelink.SignalAudioVideo))
}

// Refresh polls every output and waits until each has reported both
// levels or ctx is done. Callers that arrive while a refresh is running
// join it, and each waits under its own ctx. The shared pass stops when it
// completes or its last waiter leaves.
// It returns how many outputs fully reported.
func (d *Device) Refresh(ctx context.Context) (int, error) {
	if d.closed.Load() {
		return 0, ErrClosed
	}

	p := d.joinRefresh()
	defer d.leaveRefresh(p)

	select {
	case <-p.done:
		return p.total, nil
	case <-ctx.Done():
	}
	complete := p.reported()
	return complete, fmt.Errorf("refresh: %d of %d outputs reported: %w", complete, p.total, ctx.Err())
}

// refreshPass tracks one poll of every output.
type refreshPass struct {
	done        chan struct{}
	total       int
	waiters     int // guarded by Device.refreshMu
	unsubscribe func()

	mu       sync.Mutex
	complete int
}

func (p *refreshPass) reported() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.complete
}

func (p *refreshPass) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (d *Device) joinRefresh() *refreshPass {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()
	if d.pass == nil || d.pass.finished() {
		d.pass = d.startRefresh()
	}
	d.pass.waiters++
	return d.pass
}

func (d *Device) leaveRefresh(p *refreshPass) {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()
	p.waiters--
	if p.waiters > 0 && !p.finished() {
		return
	}
	if d.pass == p {
		d.pass = nil
	}
	if p.waiters == 0 {
		p.unsubscribe()
	}
}

// startRefresh subscribes to route events and sends the polls.
func (d *Device) startRefresh() *refreshPass {
	outputs := d.registry.Outputs()
	p := &refreshPass{done: make(chan struct{}), total: len(outputs)}

	type seen struct{ video, audio bool }
	state := make(map[int]*seen, len(outputs))
	for _, out := range outputs {
		state[out.Index] = &seen{}
	}
	if len(outputs) == 0 {
		close(p.done)
		p.unsubscribe = func() {}
		return p
	}

	var doneOnce sync.Once
	p.unsubscribe = d.Subscribe(func(e Event) {
		if e.Kind != EventVideoRoute && e.Kind != EventAudioRoute {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		s := state[e.Index]
		if s == nil {
			return
		}
		wasComplete := s.video && s.audio
		if e.Kind == EventVideoRoute {
			s.video = true
		} else {
			s.audio = true
		}
		if !wasComplete && s.video && s.audio {
			p.complete++
			if p.complete == len(state) {
				doneOnce.Do(func() { close(p.done) })
			}
		}
	})

	d.PollVideoOutputs()
	d.PollAudioOutputs()
	return p
}

// Subscribe registers a change listener. The callback runs on the
// goroutine that caused the change and must not block. The returned
// function removes the listener.
func (d *Device) Subscribe(fn func(Event)) func() {
	return d.events.subscribe(fn)
}

// Announce publishes the complete current state as events, for a control
// surface that has just attached.
func (d *Device) Announce() {
	for _, e := range d.StateEvents() {
		d.events.publish(e)
	}
}

// StateEvents describes the complete current state as a list of events
// without publishing them.
func (d *Device) StateEvents() []Event {
	status := d.monitor.Status()
	events := []Event{
		{Kind: EventConnected, On: d.connected.Load()},
		{Kind: EventOnline, On: status.Online(), Status: status.String()},
		{Kind: EventAudioFollowsVideo, On: d.afv.Load()},
	}
	for _, in := range d.registry.Inputs() {
		events = append(events, Event{Kind: EventInputName, Index: in.Index, Name: in.Name})
	}
	for _, out := range d.registry.Outputs() {
		s := out.Snapshot()
		events = append(events,
			Event{Kind: EventOutputName, Index: s.Index, Name: s.Name},
			Event{Kind: EventVideoRoute, Index: s.Index, Value: s.CurrentVideo, Name: s.CurrentVideoName},
			Event{Kind: EventAudioRoute, Index: s.Index, Value: s.CurrentAudio, Name: s.CurrentAudioName},
		)
	}

	now := time.Now()
	for i := range events {
		events[i].Device = d.opts.Key
		events[i].Time = now
	}
	return events
}

// Outputs returns snapshots of all outputs in index order.
func (d *Device) Outputs() []OutputState {
	outputs := d.registry.Outputs()
	states := make([]OutputState, 0, len(outputs))
	for _, out := range outputs {
		states = append(states, out.Snapshot())
	}
	return states
}

// Output returns one output snapshot.
func (d *Device) Output(index int) (OutputState, bool) {
	out := d.registry.Output(index)
	if out == nil {
		return OutputState{}, false
	}
	return out.Snapshot(), true
}

// Inputs returns all configured inputs in index order.
func (d *Device) Inputs() []Input {
	inputs := d.registry.Inputs()
	list := make([]Input, 0, len(inputs))
	for _, in := range inputs {
		list = append(list, *in)
	}
	return list
}

// Status returns a snapshot of link, gate and counter state.
func (d *Device) Status() DeviceStatus {
	status := d.monitor.Status()
	connected := d.connected.Load()
	if d.transport != nil {
		connected = d.transport.Connected()
	}
	return DeviceStatus{
		Key:               d.opts.Key,
		Name:              d.opts.Name,
		DeviceID:          d.opts.DeviceID,
		Model:             int(d.opts.Model),
		Connected:         connected,
		Online:            status.Online(),
		Monitor:           status.String(),
		LastSeen:          d.monitor.LastSeen(),
		AudioFollowsVideo: d.afv.Load(),
		VideoGateOpen:     d.video.IsOpen(),
		AudioGateOpen:     d.audio.IsOpen(),
		QueuedCommands:    d.queue.len(),
		Statistics:        d.stats.Snapshot(),
	}
}

// ============================================================
// Internals
// ============================================================

func (d *Device) gatesFor(signal purelink.SignalType) []*Gate {
	switch signal {
	case purelink.SignalVideo:
		return []*Gate{d.video}
	case purelink.SignalAudio:
		return []*Gate{d.audio}
	default:
		return []*Gate{d.video, d.audio}
	}
}

func (d *Device) sweepVideo() {
	for _, out := range d.registry.Outputs() {
		d.commitVideo(out)
	}
}

// sweepAudio does nothing while audio follows video; audio requests are
// then carried by the video gate's combined commands.
func (d *Device) sweepAudio() {
	if d.afv.Load() {
		return
	}
	for _, out := range d.registry.Outputs() {
		d.commitAudio(out)
	}
}

func (d *Device) commitVideo(out *Output) {
	if _, err := out.commitVideo(d.afv.Load(), d.send); err != nil {
		d.log.Error("video commit failed", zap.Int("output", out.Index), zap.Error(err))
	}
}

func (d *Device) commitAudio(out *Output) {
	if d.afv.Load() {
		return
	}
	if _, err := out.commitAudio(d.send); err != nil {
		d.log.Error("audio commit failed", zap.Int("output", out.Index), zap.Error(err))
	}
}

func (d *Device) pollOutputs(signal purelink.SignalType) {
	for _, out := range d.registry.Outputs() {
		cmd, err := out.PollCommand(signal)
		if err != nil {
			d.log.Error("poll encode failed", zap.Int("output", out.Index), zap.Error(err))
			continue
		}
		d.send(cmd)
	}
}

// send queues a framed command. It never blocks.
func (d *Device) send(cmd string) {
	if d.closed.Load() {
		return
	}
	if !d.queue.push(cmd) {
		d.log.Debug("queue closed, dropping command", zap.String("command", purelink.FormatCommand(cmd)))
	}
}

// write runs on the queue worker.
func (d *Device) write(cmd string) {
	if d.transport == nil {
		return
	}
	err := d.transport.SendLine(cmd)
	d.stats.CountSent(err)
	if err != nil {
		d.log.Warn("send failed", zap.String("command", purelink.FormatCommand(cmd)), zap.Error(err))
		return
	}
	d.log.Debug("sent", zap.String("command", purelink.FormatCommand(cmd)))
}

func (d *Device) onStatus(s Status) {
	d.publish(Event{Kind: EventOnline, On: s.Online(), Status: s.String()})
}

func (d *Device) publish(e Event) {
	e.Device = d.opts.Key
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	d.events.publish(e)
}
