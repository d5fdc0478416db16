package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfoliosim/internal/exits"
	"github.com/sawpanic/portfoliosim/internal/models"
	"github.com/sawpanic/portfoliosim/internal/risk"
	"github.com/sawpanic/portfoliosim/internal/signals"
)

// Clock interface for time operations (injectable for testing)
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using real time
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithObserver attaches an event observer such as the metrics collector
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithProgress attaches a per-date progress reporter
func WithProgress(p Progress) Option {
	return func(e *Engine) {
		if p != nil {
			e.progress = p
		}
	}
}

// WithRisk wires the pre-trade checker into the loop
func WithRisk(limits risk.Limits, mode risk.Mode) Option {
	return func(e *Engine) {
		e.checker = risk.NewChecker()
		e.limits = limits
		e.mode = mode
	}
}

// WithClock replaces the wall clock used for run timestamps
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRunID fixes the run identifier instead of generating a UUID
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// Engine replays prices against target weights one date at a time.
// An Engine is not safe for concurrent use; Run resets all state on entry.
type Engine struct {
	config   Config
	exits    *exits.ExitEvaluator
	checker  *risk.Checker
	limits   risk.Limits
	mode     risk.Mode
	logger   zerolog.Logger
	observer Observer
	progress Progress
	clock    Clock
	runID    string

	// per-run state
	cash      float64
	positions map[string]*Position
	lastClose map[string]float64
	trades    []models.Trade
	curve     []models.EquityPoint
	riskState models.RiskState
	result    *Result
}

// NewEngine validates cfg and builds an engine
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config: cfg,
		exits: exits.NewExitEvaluator(&exits.ExitConfig{
			EnableHardStop:     cfg.StopLossPct > 0,
			StopLossFraction:   cfg.StopLossPct,
			EnableTrailingStop: cfg.TrailingStopPct > 0,
			TrailingFraction:   cfg.TrailingStopPct,
		}),
		limits:   risk.DefaultLimits(),
		mode:     risk.ModeAdvisory,
		logger:   log.Logger,
		observer: nopObserver{},
		progress: nopProgress{},
		clock:    RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.checker != nil {
		if err := e.limits.Validate(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// RunStrategy derives weights from history with strat and simulates them
func (e *Engine) RunStrategy(history []models.FeatureRow, strat signals.Strategy) (*Result, error) {
	weights, err := strat.TargetWeights(history)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", strat.Name(), err)
	}

	bars := make([]models.PriceBar, len(history))
	for i, r := range history {
		bars[i] = r.PriceBar
	}

	result, err := e.Run(bars, weights)
	if result != nil {
		result.Strategy = strat.Name()
		if d, ok := strat.(interface{ DegenerateDates() []time.Time }); ok {
			result.Degeneracies = append(result.Degeneracies, d.DegenerateDates()...)
		}
	}
	return result, err
}

// Run simulates bars against weights. Weights are left-joined onto bars: a
// priced (date, symbol) without a weight is flat. A weight without a matching
// bar is a data quality error.
//
// Configuration and join errors are returned before any state is built, with
// a nil Result. Errors found while stepping through dates return an incomplete
// Result that keeps the equity curve up to the failing date and no trades.
func (e *Engine) Run(bars []models.PriceBar, weights []models.TargetWeight) (*Result, error) {
	started := e.clock.Now()

	days, err := groupByDate(bars)
	if err != nil {
		return nil, err
	}
	joined, err := joinWeights(days, weights)
	if err != nil {
		return nil, err
	}

	e.reset(started)

	e.logger.Info().
		Str("run_id", e.result.RunID).
		Int("dates", len(days)).
		Int("bars", len(bars)).
		Float64("initial_capital", e.config.InitialCapital).
		Float64("commission_rate", e.config.CommissionRate).
		Float64("slippage_rate", e.config.SlippageRate).
		Msg("Starting portfolio simulation")

	for i, day := range days {
		if err := e.step(day, joined[i]); err != nil {
			return e.fail(err), err
		}
		e.progress.UpdateWithMessage(i+1, day.date.Format(models.DateLayout))
	}
	e.progress.Finish()

	res := e.result
	res.Complete = true
	res.FinishedAt = e.clock.Now()
	res.EquityCurve = e.curve
	res.Trades = e.trades
	if res.Trades == nil {
		res.Trades = []models.Trade{}
	}
	res.Summary = Summarize(e.config.InitialCapital, res.EquityCurve, res.Trades, len(res.StopEvents), len(res.Advisories))

	e.observer.RunFinished(res.Status(), res.FinishedAt.Sub(started))
	e.logger.Info().
		Str("run_id", res.RunID).
		Int("trades", len(res.Trades)).
		Int("stops", len(res.StopEvents)).
		Float64("final_equity", res.Summary.FinalEquity).
		Float64("total_return", res.Summary.TotalReturn).
		Float64("max_drawdown", res.Summary.MaxDrawdown).
		Msg("Portfolio simulation completed")

	return res, nil
}

func (e *Engine) reset(started time.Time) {
	id := e.runID
	if id == "" {
		id = uuid.NewString()
	}

	e.cash = e.config.InitialCapital
	e.positions = make(map[string]*Position)
	e.lastClose = make(map[string]float64)
	e.trades = nil
	e.curve = nil
	e.riskState = e.limits.State()
	e.result = &Result{
		RunID:           id,
		Config:          e.config,
		StartedAt:       started,
		StopEvents:      []StopEvent{},
		Advisories:      []Advisory{},
		NormalizedDates: []time.Time{},
		Degeneracies:    []time.Time{},
	}
}

func (e *Engine) fail(err error) *Result {
	res := e.result
	res.Complete = false
	res.Error = err.Error()
	res.FinishedAt = e.clock.Now()
	res.EquityCurve = e.curve
	res.Trades = nil

	e.observer.RunFinished(res.Status(), res.FinishedAt.Sub(res.StartedAt))
	e.logger.Error().
		Err(err).
		Str("run_id", res.RunID).
		Int("dates_completed", len(res.EquityCurve)).
		Msg("Portfolio simulation aborted")
	return res
}

// step processes one date in the fixed order: marks, pre-trade equity,
// normalization, per-symbol stop/trade decisions, post-trade equity.
func (e *Engine) step(day dayBars, rawWeights []float64) error {
	// 1. last known closes
	for _, bar := range day.bars {
		if err := bar.Validate(); err != nil {
			return err
		}
		e.lastClose[bar.Symbol] = bar.Close
	}

	// 2. pre-trade equity
	preEquity := e.equity()

	// 3. daily weight normalization
	weights := append([]float64(nil), rawWeights...)
	if gross, scaled := signals.NormalizeDay(weights); scaled {
		e.result.NormalizedDates = append(e.result.NormalizedDates, day.date)
		e.logger.Warn().
			Str("date", day.date.Format(models.DateLayout)).
			Float64("gross_weight", gross).
			Msg("Target weights exceed unity, rescaling")
	}

	// 4. symbols in lexical order
	for i, bar := range day.bars {
		e.decide(day.date, bar, weights[i], preEquity)
	}

	// 5. post-trade equity and drawdown feedback
	postEquity := e.equity()
	e.curve = append(e.curve, models.EquityPoint{Date: day.date, Equity: postEquity})
	dd := risk.Drawdown(e.curve)
	e.riskState = e.riskState.WithDrawdown(dd)
	e.observer.DateClosed(day.date, postEquity, dd)

	return nil
}

func (e *Engine) decide(date time.Time, bar models.PriceBar, weight, preEquity float64) {
	symbol := bar.Symbol
	price := bar.Close

	// a. target quantity
	target := 0.0
	if math.Abs(weight) > models.Epsilon {
		target = preEquity * weight / price
	}

	current := 0.0
	pos := e.positions[symbol]
	if pos != nil {
		current = pos.Quantity
	}

	// b. stops on the existing position
	stopDriven := false
	if pos != nil && math.Abs(current) > models.Epsilon {
		res := e.exits.EvaluateExit(exits.ExitInputs{
			Symbol:       symbol,
			EntryPrice:   pos.EntryPrice,
			PeakPrice:    pos.PeakPrice,
			CurrentPrice: price,
		})
		pos.PeakPrice = res.PeakPrice
		if res.ShouldExit {
			stopDriven = true
			target = 0
			reason := res.ExitReason.String()
			e.result.StopEvents = append(e.result.StopEvents, StopEvent{
				Date: date, Symbol: symbol, Reason: reason,
				Close: price, EntryPrice: pos.EntryPrice, PeakPrice: pos.PeakPrice,
			})
			e.observer.StopTriggered(symbol, reason)
			e.logger.Warn().
				Str("date", date.Format(models.DateLayout)).
				Str("symbol", symbol).
				Str("reason", reason).
				Float64("close", price).
				Float64("entry_price", pos.EntryPrice).
				Float64("peak_price", pos.PeakPrice).
				Msg(res.TriggeredBy)
		}
	}

	// c. trade necessity
	targetFlat := math.Abs(target) <= models.Epsilon
	currentFlat := math.Abs(current) <= models.Epsilon
	necessary := stopDriven ||
		(!targetFlat && currentFlat) ||
		(targetFlat && !currentFlat) ||
		(!targetFlat && !currentFlat && sign(target) != sign(current)) ||
		math.Abs(target-current) > models.Epsilon
	if !necessary {
		return
	}

	delta := target - current
	execPrice := price * (1 - e.config.SlippageRate)
	if target > current {
		execPrice = price * (1 + e.config.SlippageRate)
	}

	// pre-trade checks gate only trades that add exposure
	if e.checker != nil && !stopDriven && math.Abs(target) > math.Abs(current) {
		decision := e.checker.Approve(risk.Request{
			Symbol:           symbol,
			Quantity:         delta,
			Price:            execPrice,
			TotalCapital:     preEquity,
			PositionNotional: e.notionals(),
		}, e.riskState)
		if !decision.Approved {
			enforced := e.mode == risk.ModeEnforce
			e.result.Advisories = append(e.result.Advisories, Advisory{
				Date: date, Symbol: symbol, Check: decision.Check, Reason: decision.Reason, Enforced: enforced,
			})
			e.observer.RiskRejected(decision.Check, enforced)
			e.logger.Warn().
				Str("date", date.Format(models.DateLayout)).
				Str("symbol", symbol).
				Str("check", decision.Check).
				Bool("enforced", enforced).
				Msg(decision.Reason)
			if enforced {
				return
			}
		}
	}

	// d. execute
	gross := math.Abs(delta) * execPrice
	commission := gross * e.config.CommissionRate
	e.cash -= delta*execPrice + commission

	kind := tradeKind(current, target, stopDriven)
	switch {
	case targetFlat:
		target = 0
		delete(e.positions, symbol)
	case currentFlat || sign(target) != sign(current):
		e.positions[symbol] = &Position{Quantity: target, EntryPrice: execPrice, PeakPrice: execPrice}
	default:
		pos.Quantity = target
	}

	trade := models.Trade{
		Date:           date,
		Symbol:         symbol,
		QuantityDelta:  delta,
		ExecutionPrice: execPrice,
		GrossCost:      gross,
		Commission:     commission,
		StopDriven:     stopDriven,
	}
	e.trades = append(e.trades, trade)
	e.observer.TradeExecuted(kind, trade)

	e.logger.Debug().
		Str("date", date.Format(models.DateLayout)).
		Str("symbol", symbol).
		Str("kind", kind).
		Float64("quantity_delta", delta).
		Float64("execution_price", execPrice).
		Float64("commission", commission).
		Msg("Trade executed")
}

// equity marks cash plus every open position at its last known close.
// Symbols are visited in sorted order so the sum is reproducible.
func (e *Engine) equity() float64 {
	total := e.cash
	for _, symbol := range e.openSymbols() {
		total += e.positions[symbol].Quantity * e.lastClose[symbol]
	}
	return total
}

func (e *Engine) notionals() map[string]float64 {
	out := make(map[string]float64, len(e.positions))
	for symbol, pos := range e.positions {
		out[symbol] = pos.Quantity * e.lastClose[symbol]
	}
	return out
}

func (e *Engine) openSymbols() []string {
	symbols := make([]string, 0, len(e.positions))
	for s := range e.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Positions returns a snapshot of the open positions
func (e *Engine) Positions() map[string]Position {
	out := make(map[string]Position, len(e.positions))
	for s, p := range e.positions {
		out[s] = *p
	}
	return out
}

// Cash returns the current cash balance
func (e *Engine) Cash() float64 {
	return e.cash
}

func tradeKind(current, target float64, stopDriven bool) string {
	switch {
	case stopDriven:
		return KindStop
	case math.Abs(current) <= models.Epsilon:
		return KindEntry
	case math.Abs(target) <= models.Epsilon:
		return KindExit
	case sign(target) != sign(current):
		return KindFlip
	default:
		return KindRebalance
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

type dayBars struct {
	date time.Time
	bars []models.PriceBar
}

// groupByDate sorts a copy of bars by date then symbol and splits it into
// days. Duplicate (date, symbol) keys are rejected.
func groupByDate(bars []models.PriceBar) ([]dayBars, error) {
	sorted := make([]models.PriceBar, len(bars))
	for i, b := range bars {
		b.Date = models.NormalizeDate(b.Date)
		sorted[i] = b
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	var days []dayBars
	for i, b := range sorted {
		if i > 0 && b.Date.Equal(sorted[i-1].Date) && b.Symbol == sorted[i-1].Symbol {
			return nil, &models.DataQualityError{Date: b.Date, Symbol: b.Symbol, Reason: "duplicate bar"}
		}
		if len(days) == 0 || !days[len(days)-1].date.Equal(b.Date) {
			days = append(days, dayBars{date: b.Date})
		}
		last := &days[len(days)-1]
		last.bars = append(last.bars, b)
	}
	return days, nil
}

// joinWeights aligns weights with each day's bars. Missing weights are zero.
func joinWeights(days []dayBars, weights []models.TargetWeight) ([][]float64, error) {
	index := make(map[models.Key]float64, len(weights))
	for _, w := range weights {
		if math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) {
			return nil, &models.DataQualityError{Date: w.Date, Symbol: w.Symbol, Reason: fmt.Sprintf("non-finite target weight %v", w.Weight)}
		}
		key := models.KeyOf(w.Date, w.Symbol)
		if _, dup := index[key]; dup {
			return nil, &models.DataQualityError{Date: w.Date, Symbol: w.Symbol, Reason: "duplicate target weight"}
		}
		index[key] = w.Weight
	}

	out := make([][]float64, len(days))
	matched := 0
	for i, day := range days {
		out[i] = make([]float64, len(day.bars))
		for j, bar := range day.bars {
			if w, ok := index[models.KeyOf(day.date, bar.Symbol)]; ok {
				out[i][j] = w
				matched++
			}
		}
	}

	if matched != len(index) {
		priced := make(map[models.Key]struct{})
		for _, day := range days {
			for _, bar := range day.bars {
				priced[models.KeyOf(day.date, bar.Symbol)] = struct{}{}
			}
		}
		for _, w := range weights {
			if _, ok := priced[models.KeyOf(w.Date, w.Symbol)]; !ok {
				return nil, &models.DataQualityError{Date: w.Date, Symbol: w.Symbol, Reason: "target weight has no matching price bar"}
			}
		}
	}
	return out, nil
}
