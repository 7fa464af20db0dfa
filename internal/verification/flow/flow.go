// Package flow drives the end-to-end verification protocol: pairing with
// the identity device, obtaining an anchored presentation request, relaying
// it to the device, and submitting the returned proof for verification.
//
// The machine is an explicit FSM whose transitions fire on message arrival
// (pairing approved, proof received, gateway reply). Long waits — pairing
// approval and proof arrival — are unbounded and cancelled only by Reset
// or context cancellation.
package flow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"agegate/internal/verification/models"
	dErrors "agegate/pkg/domain-errors"
)

// State names a position in the verification protocol.
type State string

const (
	StateIdle            State = "idle"
	StateConnecting      State = "connecting"
	StateCreatingRequest State = "creating_request"
	StateAwaitingProof   State = "awaiting_proof"
	StateVerifying       State = "verifying"
	StateVerified        State = "verified"
	StateFailed          State = "failed"
)

const (
	// resendDelayShort applies after a brief backgrounding; the relay is
	// usually still alive and the request can go out almost immediately.
	resendDelayShort = 1 * time.Second
	// resendDelayLong applies after a longer suspension, giving the
	// transport time to re-establish its socket before the resend.
	resendDelayLong = 3 * time.Second
	// hiddenThreshold separates the two.
	hiddenThreshold = 5 * time.Second
)

type proofResult struct {
	presentation json.RawMessage
	err          error
}

// PairingInfo is handed to the pairing listener so the presentation layer
// can render a scannable code or deep link.
type PairingInfo struct {
	URI      string
	DeepLink string
}

// Machine orchestrates one verification attempt at a time. It is safe for
// concurrent use: Run executes the protocol while HandleForeground, Resend
// and Reset may be called from other goroutines (UI events).
type Machine struct {
	transport Transport
	gateway   Gateway
	hints     models.PlatformHints
	logger    *slog.Logger

	onState   func(State)
	onPairing func(PairingInfo)

	delayShort  time.Duration
	delayLong   time.Duration
	hiddenLimit time.Duration

	mu             sync.Mutex
	state          State
	sessionID      string
	connectionID   string
	request        *models.PresentationRequest
	anchorHash     string
	reason         string
	autoResendUsed bool
	proofCh        chan proofResult
	runCancel      context.CancelFunc
}

// Option configures the Machine.
type Option func(*Machine)

// WithLogger sets the logger for the machine.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithHints injects platform capability detection. The machine itself is
// platform-agnostic; hints only tune the recovery behavior.
func WithHints(hints models.PlatformHints) Option {
	return func(m *Machine) {
		m.hints = hints
	}
}

// WithStateListener registers a callback invoked on every state change.
func WithStateListener(fn func(State)) Option {
	return func(m *Machine) {
		m.onState = fn
	}
}

// WithPairingListener registers a callback invoked once the pairing URI is
// available for display.
func WithPairingListener(fn func(PairingInfo)) Option {
	return func(m *Machine) {
		m.onPairing = fn
	}
}

// WithResendTiming overrides the backgrounding-recovery delays.
func WithResendTiming(short, long, hiddenLimit time.Duration) Option {
	return func(m *Machine) {
		m.delayShort = short
		m.delayLong = long
		m.hiddenLimit = hiddenLimit
	}
}

// NewMachine creates an idle machine.
func NewMachine(transport Transport, gateway Gateway, opts ...Option) *Machine {
	if transport == nil {
		panic("flow.NewMachine: transport is required")
	}
	if gateway == nil {
		panic("flow.NewMachine: gateway is required")
	}
	m := &Machine{
		transport:   transport,
		gateway:     gateway,
		state:       StateIdle,
		delayShort:  resendDelayShort,
		delayLong:   resendDelayLong,
		hiddenLimit: hiddenThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Result returns the terminal receipt: anchor hash when verified, reason
// when failed. Meaningful only after Run returns.
func (m *Machine) Result() Receipt {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := models.StatusFailed
	if m.state == StateVerified {
		status = models.StatusVerified
	}
	return Receipt{Status: status, AnchorHash: m.anchorHash, Reason: m.reason}
}

// SessionID returns the server-side session identifier for this attempt.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Run executes one verification attempt start to finish. It blocks through
// the two unbounded waits (pairing approval, proof arrival) and returns nil
// once the session is verified, or a domain error after moving to failed.
func (m *Machine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.state != StateIdle && m.state != StateFailed {
		state := m.state
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "verification already in progress in state "+string(state))
	}
	m.runCancel = cancel
	m.proofCh = make(chan proofResult, 2)
	m.sessionID = ""
	m.connectionID = ""
	m.request = nil
	m.anchorHash = ""
	m.reason = ""
	// Each attempt creates a new server session, which carries its own
	// automatic-resend allowance.
	m.autoResendUsed = false
	m.mu.Unlock()

	connectionID, err := m.connect(ctx)
	if err != nil {
		return m.fail(err)
	}

	session, err := m.createRequest(ctx, connectionID)
	if err != nil {
		return m.fail(err)
	}

	presentation, err := m.awaitProof(ctx)
	if err != nil {
		return m.fail(err)
	}

	receipt, err := m.verify(ctx, session, presentation)
	if err != nil {
		return m.fail(err)
	}

	m.mu.Lock()
	m.anchorHash = receipt.AnchorHash
	m.runCancel = nil
	m.mu.Unlock()
	m.setState(StateVerified)
	m.log().InfoContext(ctx, "verification complete",
		"session_id", session.SessionID,
		"anchor_hash", receipt.AnchorHash,
	)
	return nil
}

// connect opens a pairing, publishes its URI, and blocks until the identity
// device approves. The wait is unbounded; only ctx cancellation (Reset)
// ends it early.
func (m *Machine) connect(ctx context.Context) (string, error) {
	m.setState(StateConnecting)

	pairing, err := m.transport.OpenPairing(ctx)
	if err != nil {
		return "", err
	}
	info := PairingInfo{URI: pairing.URI, DeepLink: m.transport.DeepLink(pairing.URI)}
	if m.onPairing != nil {
		m.onPairing(info)
	}

	connectionID, err := pairing.Approval(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "pairing was not approved")
	}

	m.mu.Lock()
	m.connectionID = connectionID
	m.mu.Unlock()
	return connectionID, nil
}

// createRequest asks the gateway for a session and its anchored
// presentation request, retaining the request for possible resend.
func (m *Machine) createRequest(ctx context.Context, connectionID string) (*CreatedSession, error) {
	m.setState(StateCreatingRequest)

	session, err := m.gateway.CreateSession(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessionID = session.SessionID
	m.request = session.Request
	m.mu.Unlock()
	return session, nil
}

// awaitProof dispatches the stored request over the pairing and blocks until
// a presentation (or a dispatch error) arrives. Additional dispatches for
// the same attempt — automatic or user-triggered resends — feed the same
// channel; the first outcome wins.
func (m *Machine) awaitProof(ctx context.Context) (json.RawMessage, error) {
	m.setState(StateAwaitingProof)
	m.dispatch(ctx)

	m.mu.Lock()
	proofCh := m.proofCh
	m.mu.Unlock()

	select {
	case result := <-proofCh:
		if result.err != nil {
			return nil, result.err
		}
		return result.presentation, nil
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "verification cancelled")
	}
}

func (m *Machine) verify(ctx context.Context, session *CreatedSession, presentation json.RawMessage) (*Receipt, error) {
	m.setState(StateVerifying)

	receipt, err := m.gateway.SubmitProof(ctx, session.SessionID, presentation, session.Request)
	if err != nil {
		return nil, err
	}
	if receipt.Status != models.StatusVerified {
		reason := receipt.Reason
		if reason == "" {
			reason = "verification was rejected"
		}
		return nil, dErrors.New(dErrors.CodeRejected, reason)
	}
	return receipt, nil
}

// dispatch sends the stored request over the stored pairing in its own
// goroutine and forwards the outcome to the awaiting loop.
func (m *Machine) dispatch(ctx context.Context) {
	m.mu.Lock()
	connectionID := m.connectionID
	request := m.request
	proofCh := m.proofCh
	m.mu.Unlock()

	go func() {
		presentation, err := m.transport.Send(ctx, connectionID, request)
		select {
		case proofCh <- proofResult{presentation: presentation, err: err}:
		case <-ctx.Done():
		}
	}()
}

// HandleForeground implements the backgrounding-recovery policy. When the
// page becomes visible again while still awaiting a proof, and no automatic
// resend has happened for this session, the same stored request is resent
// over the same pairing after a delay proportional to how long the page was
// hidden. Exactly one automatic resend per session; it returns whether one
// was scheduled.
func (m *Machine) HandleForeground(ctx context.Context, hiddenFor time.Duration) bool {
	m.mu.Lock()
	if m.state != StateAwaitingProof || m.autoResendUsed {
		m.mu.Unlock()
		return false
	}
	m.autoResendUsed = true
	m.mu.Unlock()

	delay := m.delayShort
	if hiddenFor > m.hiddenLimit {
		delay = m.delayLong
	}
	m.log().InfoContext(ctx, "scheduling automatic resend",
		"hidden_for", hiddenFor,
		"delay", delay,
	)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		if m.State() != StateAwaitingProof {
			return
		}
		m.dispatch(ctx)
	}()
	return true
}

// Resend re-dispatches the stored request on explicit user request. Unlike
// the automatic path it is not rate-limited; the UI decides when to offer
// it.
func (m *Machine) Resend(ctx context.Context) error {
	m.mu.Lock()
	ok := m.state == StateAwaitingProof && m.request != nil
	m.mu.Unlock()
	if !ok {
		return dErrors.New(dErrors.CodeConflict, "no request awaiting proof")
	}
	m.dispatch(ctx)
	return nil
}

// Reset cancels any in-flight attempt, tears down the transport singleton,
// and clears all per-attempt state so the next Run starts clean.
func (m *Machine) Reset() {
	m.mu.Lock()
	cancel := m.runCancel
	m.runCancel = nil
	m.sessionID = ""
	m.connectionID = ""
	m.request = nil
	m.anchorHash = ""
	m.reason = ""
	m.autoResendUsed = false
	m.state = StateIdle
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.transport.Reset()
	if m.onState != nil {
		m.onState(StateIdle)
	}
}

func (m *Machine) fail(err error) error {
	m.mu.Lock()
	if m.runCancel == nil {
		// Reset already tore this attempt down; stay idle.
		m.mu.Unlock()
		return err
	}
	m.runCancel = nil
	m.reason = dErrors.Message(err)
	m.mu.Unlock()
	m.setState(StateFailed)
	m.log().Error("verification attempt failed", "error", err)
	return err
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	if m.onState != nil {
		m.onState(s)
	}
}

func (m *Machine) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}
