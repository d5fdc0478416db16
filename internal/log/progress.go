package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ProgressIndicator reports progress through a long simulation as structured
// log lines, throttled to every Nth step.
type ProgressIndicator struct {
	mu        sync.Mutex
	name      string
	total     int
	current   int
	every     int
	startTime time.Time
	logger    zerolog.Logger
	showETA   bool
}

// ProgressConfig configures progress indicator behavior
type ProgressConfig struct {
	Every   int // log every N steps; 0 disables intermediate lines
	ShowETA bool
}

// DefaultProgressConfig logs every 50 dates with an ETA
func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{Every: 50, ShowETA: true}
}

// QuietProgressConfig only logs completion
func QuietProgressConfig() ProgressConfig {
	return ProgressConfig{}
}

// NewProgressIndicator creates a new progress indicator
func NewProgressIndicator(name string, total int, config ProgressConfig) *ProgressIndicator {
	return &ProgressIndicator{
		name:      name,
		total:     total,
		every:     config.Every,
		startTime: time.Now(),
		logger:    log.Logger,
		showETA:   config.ShowETA,
	}
}

// WithLogger replaces the destination logger
func (pi *ProgressIndicator) WithLogger(logger zerolog.Logger) *ProgressIndicator {
	pi.logger = logger
	return pi
}

// Increment advances progress by one step
func (pi *ProgressIndicator) Increment() {
	pi.mu.Lock()
	next := pi.current + 1
	pi.mu.Unlock()
	pi.UpdateWithMessage(next, "")
}

// UpdateWithMessage sets progress and logs it when the step is due
func (pi *ProgressIndicator) UpdateWithMessage(current int, message string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	pi.current = current
	if pi.every <= 0 || current%pi.every != 0 {
		return
	}

	event := pi.logger.Info().
		Str("task", pi.name).
		Int("current", current)
	if pi.total > 0 {
		event = event.Int("total", pi.total).
			Float64("percent", float64(current)/float64(pi.total)*100)
	}
	if eta, ok := pi.eta(); ok {
		event = event.Dur("eta", eta)
	}
	if message != "" {
		event = event.Str("at", message)
	}
	event.Msg("Progress")
}

// Current returns the last reported step
func (pi *ProgressIndicator) Current() int {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return pi.current
}

// Finish logs completion
func (pi *ProgressIndicator) Finish() {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	pi.logger.Info().
		Str("task", pi.name).
		Int("items", pi.current).
		Dur("duration", time.Since(pi.startTime).Round(time.Millisecond)).
		Msg("Completed")
}

// Fail logs that the task stopped early
func (pi *ProgressIndicator) Fail(reason string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	pi.logger.Error().
		Str("task", pi.name).
		Int("items", pi.current).
		Str("reason", reason).
		Dur("duration", time.Since(pi.startTime).Round(time.Millisecond)).
		Msg("Failed")
}

func (pi *ProgressIndicator) eta() (time.Duration, bool) {
	if !pi.showETA || pi.total <= 0 || pi.current <= 0 {
		return 0, false
	}
	elapsed := time.Since(pi.startTime)
	perStep := elapsed / time.Duration(pi.current)
	return perStep * time.Duration(pi.total-pi.current), true
}

// StepLogger provides step-by-step progress logging for pipelines
type StepLogger struct {
	steps       []string
	currentStep int
	stepStart   time.Time
	startTime   time.Time
	stepTimes   []time.Duration
	logger      zerolog.Logger
}

// NewStepLogger creates a new step logger for pipeline operations
func NewStepLogger(steps []string) *StepLogger {
	now := time.Now()
	return &StepLogger{
		steps:       steps,
		currentStep: -1,
		stepStart:   now,
		startTime:   now,
		stepTimes:   make([]time.Duration, len(steps)),
		logger:      log.Logger,
	}
}

// StartStep completes the running step, if any, and begins stepName
func (sl *StepLogger) StartStep(stepName string) {
	stepIndex := -1
	for i, step := range sl.steps {
		if step == stepName {
			stepIndex = i
			break
		}
	}

	if stepIndex == -1 {
		sl.logger.Warn().Str("step", stepName).Msg("Unknown pipeline step")
		return
	}

	sl.CompleteStep()
	sl.currentStep = stepIndex
	sl.stepStart = time.Now()

	sl.logger.Info().
		Str("step", stepName).
		Int("step_number", stepIndex+1).
		Int("total_steps", len(sl.steps)).
		Msg("Starting pipeline step")
}

// CompleteStep records the duration of the running step
func (sl *StepLogger) CompleteStep() {
	if sl.currentStep < 0 || sl.stepTimes[sl.currentStep] != 0 {
		return
	}
	d := time.Since(sl.stepStart)
	if d == 0 {
		d = time.Nanosecond
	}
	sl.stepTimes[sl.currentStep] = d

	sl.logger.Debug().
		Str("step", sl.steps[sl.currentStep]).
		Dur("duration", d).
		Msg("Pipeline step completed")
}

// StepDuration returns the recorded duration of a finished step
func (sl *StepLogger) StepDuration(stepName string) time.Duration {
	for i, step := range sl.steps {
		if step == stepName {
			return sl.stepTimes[i]
		}
	}
	return 0
}

// Finish completes the step logger
func (sl *StepLogger) Finish() {
	sl.CompleteStep()
	sl.logger.Info().
		Dur("total_duration", time.Since(sl.startTime)).
		Int("steps", len(sl.steps)).
		Msg("Pipeline completed")
}

// Fail marks the step logger as failed
func (sl *StepLogger) Fail(reason string) {
	sl.logger.Error().
		Str("failed_step", sl.getCurrentStepName()).
		Int("completed_steps", sl.currentStep).
		Int("total_steps", len(sl.steps)).
		Str("reason", reason).
		Msg("Pipeline failed")
}

// getCurrentStepName returns the name of the current step
func (sl *StepLogger) getCurrentStepName() string {
	if sl.currentStep >= 0 && sl.currentStep < len(sl.steps) {
		return sl.steps[sl.currentStep]
	}
	return "unknown"
}
