package cook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovenlink/ovenlink-core/internal/oven"
	"github.com/ovenlink/ovenlink-core/internal/recipe"
)

// State is an executor lifecycle state.
type State string

// Executor states. Completed, Cancelled and Failed are terminal; a
// fresh Start is required to leave them.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// terminal reports whether no further transitions can occur.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Execution is a point-in-time record of a recipe run.
type Execution struct {
	// ID uniquely identifies this run.
	ID string `json:"id"`

	// DeviceID is the oven the run targets.
	DeviceID string `json:"device_id"`

	// RecipeKey identifies the recipe being executed.
	RecipeKey string `json:"recipe_key"`

	// StageIndex is the stage the executor has issued a command for.
	StageIndex int `json:"stage_index"`

	// StageCount is the total number of stages in the recipe.
	StageCount int `json:"stage_count"`

	// State is the current lifecycle state.
	State State `json:"state"`

	// Error carries the failure reason when State is failed.
	Error string `json:"error,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// EndedAt is when the run reached a terminal state.
	EndedAt time.Time `json:"ended_at,omitzero"`
}

// Submitter issues validated commands to one device.
type Submitter interface {
	Submit(ctx context.Context, cmd oven.Command) error
}

// Logger defines the logging interface for the executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Executor runs recipes on a single oven, one at a time.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Executor struct {
	deviceID  string
	submitter Submitter
	updates   *oven.Subscription
	grace     time.Duration
	logger    Logger

	onTransition func(Execution)

	mu   sync.Mutex
	exec Execution
	rec  *recipe.Recipe

	// confirmed is set once the device has been observed actively
	// cooking the stage the executor last issued. Completion and
	// timer-elapse signals are ignored until then: push frames that
	// arrive between a stage command and the device picking it up
	// still describe the previous stage.
	confirmed bool

	// stop ends the watch goroutine for the current run.
	stop chan struct{}

	// conn carries connection up/down notifications into the watch loop.
	conn chan bool
}

// NewExecutor creates an executor for one device.
//
// Parameters:
//   - deviceID: Oven to drive
//   - submitter: Command pipeline for the device
//   - updates: Subscription to the device's state change stream
//   - grace: How long the device may be unreachable mid-run before the
//     run fails
func NewExecutor(deviceID string, submitter Submitter, updates *oven.Subscription, grace time.Duration) *Executor {
	if grace <= 0 {
		grace = time.Minute
	}
	return &Executor{
		deviceID:  deviceID,
		submitter: submitter,
		updates:   updates,
		grace:     grace,
		logger:    noopLogger{},
		exec:      Execution{DeviceID: deviceID, State: StateIdle},
		conn:      make(chan bool, 1),
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// SetOnTransition registers a callback invoked after every state or
// stage transition. The callback receives a copy and must not block.
func (e *Executor) SetOnTransition(fn func(Execution)) {
	e.onTransition = fn
}

// Execution returns a copy of the current run record.
func (e *Executor) Execution() Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exec
}

// Start begins executing a recipe.
//
// Issues the command for stage 0 before returning. If that command
// fails the run transitions straight to Failed and the error is
// returned.
//
// Returns:
//   - ErrRecipeActive when a run is already Running or Paused
func (e *Executor) Start(ctx context.Context, rec *recipe.Recipe) error {
	e.mu.Lock()
	if e.exec.State == StateRunning || e.exec.State == StatePaused {
		e.mu.Unlock()
		return ErrRecipeActive
	}

	e.exec = Execution{
		ID:         uuid.NewString(),
		DeviceID:   e.deviceID,
		RecipeKey:  rec.Key,
		StageCount: len(rec.Stages),
		State:      StateRunning,
		StartedAt:  time.Now().UTC(),
	}
	e.rec = rec
	e.confirmed = false
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	e.logger.Info("recipe started",
		"device_id", e.deviceID,
		"recipe", rec.Key,
		"stages", len(rec.Stages),
	)
	e.notify()

	if err := e.submitStage(ctx, 0); err != nil {
		e.fail(err)
		return err
	}

	go e.watch(stop)
	return nil
}

// Cancel stops the active run. A stop command is always sent, even if a
// stage advance is concurrently pending; the run then becomes Cancelled
// regardless of the stop command's outcome.
//
// Returns:
//   - ErrNotRunning when no run is Running or Paused
//   - The stop command's error, if it failed (the state is still
//     Cancelled in that case)
func (e *Executor) Cancel(ctx context.Context) error {
	e.mu.Lock()
	if e.exec.State != StateRunning && e.exec.State != StatePaused {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.exec.State = StateCancelled
	e.exec.EndedAt = time.Now().UTC()
	stop := e.stop
	e.stop = nil
	e.mu.Unlock()

	e.notify()
	if stop != nil {
		close(stop)
	}

	// The stop command is always sent, even when a stage advance was
	// pending; the run is Cancelled regardless of its outcome.
	err := e.submitter.Submit(ctx, oven.Command{Type: oven.CommandStopCook})
	if err != nil {
		e.logger.Warn("stop command failed during cancel",
			"device_id", e.deviceID,
			"error", err,
		)
	}

	e.logger.Info("recipe cancelled", "device_id", e.deviceID)
	return err
}

// SetConnected informs the executor of transport connectivity. A run
// that stays disconnected longer than the grace period fails.
func (e *Executor) SetConnected(up bool) {
	select {
	case e.conn <- up:
	default:
		// Collapse bursts; only the latest state matters.
		select {
		case <-e.conn:
		default:
		}
		select {
		case e.conn <- up:
		default:
		}
	}
}

// Close stops any active watch goroutine without issuing commands.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil && !e.exec.State.terminal() && e.exec.State != StateIdle {
		close(e.stop)
		e.stop = nil
	}
}

// watch consumes state changes until the run reaches a terminal state.
func (e *Executor) watch(stop chan struct{}) {
	var graceC <-chan time.Time

	for {
		select {
		case <-stop:
			return

		case up := <-e.conn:
			if up {
				graceC = nil
			} else if graceC == nil {
				graceC = time.After(e.grace)
			}

		case <-graceC:
			e.fail(oven.ErrCommandTimeout)
			e.logger.Error("recipe failed, device offline beyond grace period",
				"device_id", e.deviceID,
				"grace", e.grace,
			)
			return

		case cs, ok := <-e.updates.Updates():
			if !ok {
				e.fail(context.Canceled)
				return
			}
			if done := e.observe(cs.Snapshot); done {
				return
			}
		}
	}
}

// observe applies one device snapshot to the state machine. Returns
// true when the run has reached a terminal state.
func (e *Executor) observe(snap oven.Snapshot) bool {
	e.mu.Lock()
	state := e.exec.State
	index := e.exec.StageIndex
	last := e.exec.StageCount - 1
	e.mu.Unlock()

	if state.terminal() || state == StateIdle {
		return true
	}

	// Pause mirrors the device's timer state.
	if state == StateRunning && snap.TimerMode == oven.TimerPaused {
		e.transition(func(exec *Execution) { exec.State = StatePaused })
		e.logger.Info("recipe paused", "device_id", e.deviceID)
		return false
	}
	if state == StatePaused {
		if snap.TimerMode == oven.TimerPaused {
			return false
		}
		e.transition(func(exec *Execution) { exec.State = StateRunning })
		e.logger.Info("recipe resumed", "device_id", e.deviceID)
		state = StateRunning
	}

	stageDone := snap.TimerMode == oven.TimerCompleted || snap.Idle()

	e.mu.Lock()
	confirmed := e.confirmed
	// The device is actively cooking at or past the issued stage. From
	// here on, completion signals belong to this stage rather than to a
	// frame queued before the stage command landed.
	if !confirmed && snap.StageIndex >= index && !stageDone {
		e.confirmed = true
		confirmed = true
	}
	e.mu.Unlock()

	// Final stage finished. The device must itself report the last
	// stage; a stale frame still describing an earlier stage cannot
	// end the run.
	if confirmed && index == last && snap.StageIndex == last && stageDone {
		e.transition(func(exec *Execution) {
			exec.State = StateCompleted
			exec.EndedAt = time.Now().UTC()
		})
		e.logger.Info("recipe completed",
			"device_id", e.deviceID,
			"stages", last+1,
		)
		return true
	}

	// Advance at most one stage per observation. The device's reported
	// index gates both paths, so the executor never runs ahead of what
	// the device has confirmed. A device that went idle mid-recipe does
	// not trigger an advance; only an elapsed timer does.
	advance := snap.StageIndex > index ||
		(confirmed && snap.TimerMode == oven.TimerCompleted && snap.StageIndex >= index)

	if advance && index < last {
		next := index + 1
		e.mu.Lock()
		// The same frame that drove an index advance may already show
		// the device cooking the new stage.
		e.confirmed = snap.StageIndex >= next && !stageDone
		e.mu.Unlock()
		e.transition(func(exec *Execution) { exec.StageIndex = next })

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := e.submitStage(ctx, next)
		cancel()
		if err != nil {
			e.fail(err)
			e.logger.Error("stage command failed",
				"device_id", e.deviceID,
				"stage", next,
				"error", err,
			)
			return true
		}
		e.logger.Info("recipe advanced",
			"device_id", e.deviceID,
			"stage", next,
		)
	}

	return false
}

// submitStage issues the cook command for one stage of the recipe.
func (e *Executor) submitStage(ctx context.Context, index int) error {
	e.mu.Lock()
	rec := e.rec
	e.mu.Unlock()

	stage := rec.Stages[index]
	return e.submitter.Submit(ctx, oven.Command{
		Type:   oven.CommandStartCook,
		Stages: []oven.Stage{stage},
	})
}

// fail moves the run to Failed with the given cause.
func (e *Executor) fail(cause error) {
	e.transition(func(exec *Execution) {
		if exec.State.terminal() {
			return
		}
		exec.State = StateFailed
		exec.Error = cause.Error()
		exec.EndedAt = time.Now().UTC()
	})
}

// transition mutates the execution under lock and notifies observers.
// Terminal states are never overwritten.
func (e *Executor) transition(mutate func(*Execution)) {
	e.mu.Lock()
	if e.exec.State.terminal() {
		e.mu.Unlock()
		return
	}
	before := e.exec
	mutate(&e.exec)
	changed := before != e.exec
	e.mu.Unlock()

	if changed {
		e.notify()
	}
}

func (e *Executor) notify() {
	if e.onTransition == nil {
		return
	}
	e.onTransition(e.Execution())
}
