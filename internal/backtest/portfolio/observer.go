package portfolio

import (
	"time"

	"github.com/sawpanic/portfoliosim/internal/models"
)

// Observer receives engine events as they happen. Implementations must not
// block; the engine calls them inline on the simulation path.
type Observer interface {
	TradeExecuted(kind string, trade models.Trade)
	StopTriggered(symbol, reason string)
	RiskRejected(check string, enforced bool)
	DateClosed(date time.Time, equity, drawdown float64)
	RunFinished(status string, elapsed time.Duration)
}

// Progress reports how many dates have been simulated
type Progress interface {
	UpdateWithMessage(current int, message string)
	Finish()
}

type nopObserver struct{}

func (nopObserver) TradeExecuted(string, models.Trade) {}
func (nopObserver) StopTriggered(string, string) {}
func (nopObserver) RiskRejected(string, bool) {}
func (nopObserver) DateClosed(time.Time, float64, float64) {}
func (nopObserver) RunFinished(string, time.Duration) {}

type nopProgress struct{}

func (nopProgress) UpdateWithMessage(int, string) {}
func (nopProgress) Finish() {}
