package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/animal-detection/internal/config"
	"github.com/Capitan-Parrot/animal-detection/internal/kafka"
	"github.com/Capitan-Parrot/animal-detection/internal/location"
	"github.com/Capitan-Parrot/animal-detection/internal/logging"
	"github.com/Capitan-Parrot/animal-detection/internal/metrics"
	"github.com/Capitan-Parrot/animal-detection/internal/models"
	"github.com/Capitan-Parrot/animal-detection/internal/services/alert"
	"github.com/Capitan-Parrot/animal-detection/internal/services/detection"
	"github.com/Capitan-Parrot/animal-detection/internal/simulator"
)

const (
	checkStopEventsInterval = 10 * time.Second
	// a session whose heartbeat is older than this is considered abandoned
	staleHeartbeats = 3
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionActive   = errors.New("session already running")
	ErrSessionStopped  = errors.New("session is stopped")
)

// Store persists session state.
type Store interface {
	UpsertSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, state models.SessionState) ([]models.Session, error)
	ChangeSessionState(ctx context.Context, sessionID string, state models.SessionState) error
	UpdateSessionProgress(ctx context.Context, hb models.Heartbeat) error
}

type HeartbeatSender interface {
	SendHeartbeat(msg models.Heartbeat) error
}

type CommandSource interface {
	Messages() <-chan kafka.Message
}

// Options are shared by every session the runner starts.
type Options struct {
	Simulator config.Simulator
	Location  *location.Latest
	Alerts    alert.Sink
	Render    simulator.RenderSink
	// Random builds the source for a new session; nil means time-seeded.
	Random func(sessionID string) detection.RandomSource
}

type session struct {
	sim    *simulator.Simulator
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner owns the simulators of this process and ticks each of them on its
// own goroutine.
type Runner struct {
	store    Store
	producer HeartbeatSender
	consumer CommandSource
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	sessions map[string]*session
	mu       sync.Mutex
}

func New(store Store, producer HeartbeatSender, consumer CommandSource, opts Options) *Runner {
	if opts.Location == nil {
		opts.Location = location.NewLatest()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:    store,
		producer: producer,
		consumer: consumer,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
}

// ListenAndRun handles commands from Kafka until ctx is done or the
// consumer closes its channel.
func (r *Runner) ListenAndRun(ctx context.Context) {
	logging.Info().Msg("runner: listening for Kafka commands")
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("runner: shutting down")
			return
		case msg, ok := <-r.consumer.Messages():
			if !ok {
				return
			}
			var cmd models.SessionCommand
			if err := json.Unmarshal(msg.Value, &cmd); err != nil {
				logging.Warn().Err(err).Msg("invalid command format")
				// Не подтверждаем сообщение при ошибке парсинга
				continue
			}
			logging.Info().Str("session", cmd.SessionID).Str("action", string(cmd.Action)).Msg("runner: received command")

			if err := r.handleCommand(ctx, cmd); err != nil {
				logging.Error().Err(err).Str("session", cmd.SessionID).Msg("error processing command")
				// Не подтверждаем сообщение при ошибке обработки
				continue
			}

			msg.Ack()
		}
	}
}

// handleCommand returns an error only when a retry could succeed.
func (r *Runner) handleCommand(ctx context.Context, cmd models.SessionCommand) error {
	var err error
	switch cmd.Action {
	case models.CommandStart:
		_, err = r.Start(ctx, cmd.SessionID)
	case models.CommandStop:
		err = r.Stop(ctx, cmd.SessionID)
		if errors.Is(err, ErrSessionNotFound) {
			err = r.RegisterStopEvent(ctx, cmd.SessionID)
		}
	case models.CommandSimulate:
		err = r.Simulate(cmd.SessionID)
	case models.CommandLocation:
		if cmd.Location == nil {
			logging.Warn().Msg("location command without location")
			return nil
		}
		err = r.UpdateLocation(*cmd.Location)
	default:
		logging.Warn().Str("action", string(cmd.Action)).Msg("unknown command")
		return nil
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSessionActive), errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionStopped), errors.Is(err, location.ErrInvalidFix):
		logging.Warn().Err(err).Str("session", cmd.SessionID).Msg("command ignored")
		return nil
	default:
		return err
	}
}

// Start creates a simulator for the session, or resumes the stopped one, and
// starts ticking it. An empty ID gets a generated one. A session running here,
// or heartbeating from another runner, is refused with ErrSessionActive.
func (r *Runner) Start(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	r.mu.Lock()
	if s, ok := r.sessions[sessionID]; ok && s.sim.Running() {
		r.mu.Unlock()
		return nil, ErrSessionActive
	}
	r.mu.Unlock()

	existing, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if existing != nil && existing.State == models.SessionRunning && !r.isLocal(sessionID) &&
		time.Since(existing.UpdatedAt) < r.opts.Simulator.HeartbeatInterval*staleHeartbeats {
		return nil, ErrSessionActive
	}

	rec := &models.Session{
		ID:          sessionID,
		State:       models.SessionRunning,
		FrameWidth:  int(r.opts.Simulator.FrameWidth),
		FrameHeight: int(r.opts.Simulator.FrameHeight),
	}
	if err := r.store.UpsertSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}

	childCtx, cancel := context.WithCancel(r.ctx)

	r.mu.Lock()
	prev, ok := r.sessions[sessionID]
	if ok && prev.sim.Running() {
		r.mu.Unlock()
		cancel()
		return nil, ErrSessionActive
	}
	// A stopped local simulator resumes with its history and counters.
	var sim *simulator.Simulator
	if ok {
		sim = prev.sim
	} else {
		sim = r.newSimulator(sessionID)
	}
	sim.Start()
	s := &session{sim: sim, cancel: cancel, done: make(chan struct{})}
	r.sessions[sessionID] = s
	r.updateActive()
	r.mu.Unlock()

	r.sendHeartbeat(ctx, sessionID, sim.Stats())
	logging.Info().Str("session", sessionID).Msg("session started")

	go func() {
		defer close(s.done)
		r.processSession(childCtx, s)
		logging.Info().Str("session", sessionID).Msg("session loop finished")
	}()

	return rec, nil
}

func (r *Runner) newSimulator(sessionID string) *simulator.Simulator {
	deps := simulator.Deps{
		Location: r.opts.Location,
		Alerts:   r.opts.Alerts,
		Render:   r.opts.Render,
	}
	if r.opts.Random != nil {
		deps.Random = r.opts.Random(sessionID)
	}
	return simulator.New(sessionID, simulator.ConfigFrom(r.opts.Simulator), deps)
}

func (r *Runner) isLocal(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// processSession ticks at the configured frame rate and heartbeats on its own interval.
func (r *Runner) processSession(ctx context.Context, s *session) {
	frames := time.NewTicker(time.Second / time.Duration(r.opts.Simulator.FrameRate))
	defer frames.Stop()
	heartbeat := time.NewTicker(r.opts.Simulator.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-frames.C:
			s.sim.Tick()
		case <-heartbeat.C:
			r.sendHeartbeat(ctx, s.sim.ID(), s.sim.Stats())
		}
	}
}

func (r *Runner) sendHeartbeat(ctx context.Context, sessionID string, stats models.Stats) {
	hb := models.Heartbeat{
		SessionID:  sessionID,
		State:      lo.Ternary(stats.Running, models.SessionRunning, models.SessionStopped),
		Ticks:      stats.Ticks,
		Detections: stats.TotalDetections,
		Alerts:     stats.AlertsDispatched,
		TimeStamp:  time.Now().UTC(),
	}
	if err := r.store.UpdateSessionProgress(ctx, hb); err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("error updating session progress")
	}
	if err := r.producer.SendHeartbeat(hb); err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("error sending heartbeat")
	}
}

// Stop halts a local session and waits for its loop to exit. The simulator
// is kept so its history and stats stay readable.
func (r *Runner) Stop(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || !s.sim.Running() {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	s.sim.Stop()
	s.cancel()
	r.updateActive()
	r.mu.Unlock()

	<-s.done

	if err := r.store.ChangeSessionState(ctx, sessionID, models.SessionStopped); err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("error persisting stop")
	}
	r.sendHeartbeat(ctx, sessionID, s.sim.Stats())
	logging.Info().Str("session", sessionID).Msg("session stopped")
	return nil
}

// RegisterStopEvent marks a session stopped in the store so the runner that
// owns it stops it on its next check.
func (r *Runner) RegisterStopEvent(ctx context.Context, sessionID string) error {
	if err := r.store.ChangeSessionState(ctx, sessionID, models.SessionStopped); err != nil {
		return fmt.Errorf("register stop for %s: %w", sessionID, err)
	}
	return nil
}

// ProcessStopEvents periodically stops local sessions that were marked
// stopped in the store by another runner.
func (r *Runner) ProcessStopEvents(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = checkStopEventsInterval
	}
	timer := time.NewTicker(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.checkStopEvents(ctx)
		}
	}
}

func (r *Runner) checkStopEvents(ctx context.Context) {
	stopped, err := r.store.ListSessions(ctx, models.SessionStopped)
	if err != nil {
		logging.Warn().Err(err).Msg("error getting stopped sessions")
		return
	}

	r.mu.Lock()
	ids := lo.Filter(lo.Map(stopped, func(s models.Session, _ int) string {
		return s.ID
	}), func(id string, _ int) bool {
		s, ok := r.sessions[id]
		return ok && s.sim.Running()
	})
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Stop(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			logging.Warn().Err(err).Str("session", id).Msg("error stopping session")
		}
	}
}

// Simulate forces a detection on the next tick of a running session.
func (r *Runner) Simulate(sessionID string) error {
	sim, err := r.simulator(sessionID)
	if err != nil {
		return err
	}
	if !sim.ForceDetection() {
		return ErrSessionStopped
	}
	return nil
}

func (r *Runner) UpdateLocation(fix models.LocationFix) error {
	return r.opts.Location.Update(fix)
}

func (r *Runner) History(sessionID string, f alert.Filter) ([]models.AlertRecord, error) {
	sim, err := r.simulator(sessionID)
	if err != nil {
		return nil, err
	}
	return sim.History(f), nil
}

func (r *Runner) Stats(sessionID string) (models.Stats, error) {
	sim, err := r.simulator(sessionID)
	if err != nil {
		return models.Stats{}, err
	}
	return sim.Stats(), nil
}

// Model describes the simulated network every session uses.
func (r *Runner) Model() models.ModelInfo {
	return detection.NewModel(r.opts.Simulator.ModelConfidenceThreshold).Info()
}

func (r *Runner) simulator(sessionID string) (*simulator.Simulator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.sim, nil
}

// updateActive must be called with mu held.
func (r *Runner) updateActive() {
	running := lo.CountBy(lo.Values(r.sessions), func(s *session) bool {
		return s.sim.Running()
	})
	metrics.ActiveSessions.Set(float64(running))
}

// Close stops every running session and waits for their loops.
func (r *Runner) Close(ctx context.Context) {
	r.mu.Lock()
	ids := lo.Keys(lo.PickBy(r.sessions, func(_ string, s *session) bool {
		return s.sim.Running()
	}))
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Stop(ctx, id)
	}
	r.cancel()
}
