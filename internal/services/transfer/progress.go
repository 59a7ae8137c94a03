package transfer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/telefile/telefile/internal/models"
	"github.com/telefile/telefile/internal/utils"
)

// Sink receives progress snapshots. A sink may be slow or unreliable; its
// errors are logged and never abort the transfer.
type Sink func(models.ProgressSnapshot) error

// Aggregator converts the high-frequency snapshot stream of a single
// transfer into a bounded-rate stream suitable for editing a chat message.
// Snapshots inside the minimum interval are dropped, except the one that
// carries a phase transition, which is always forwarded. One aggregator per
// logical transfer; no state is shared across concurrent requests.
type Aggregator struct {
	sink    Sink
	limiter *rate.Limiter

	mu        sync.Mutex
	lastPhase models.Phase
}

func NewAggregator(sink Sink, minInterval time.Duration) *Aggregator {
	if minInterval <= 0 {
		minInterval = 2500 * time.Millisecond
	}
	return &Aggregator{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Emit forwards or drops a snapshot. It never blocks the producer.
func (a *Aggregator) Emit(snap models.ProgressSnapshot) {
	if a.sink == nil {
		return
	}

	a.mu.Lock()
	phaseChanged := snap.Phase != a.lastPhase
	if phaseChanged {
		a.lastPhase = snap.Phase
	}
	a.mu.Unlock()

	if !phaseChanged && !a.limiter.Allow() {
		return
	}

	if err := a.sink(snap); err != nil {
		utils.LogWarn(context.Background(), "Progress sink failed, continuing", utils.Fields{
			"phase": string(snap.Phase),
			"error": err.Error(),
		})
	}
}

// Sink adapts the aggregator to the pipeline's Sink signature.
func (a *Aggregator) Sink() Sink {
	return func(snap models.ProgressSnapshot) error {
		a.Emit(snap)
		return nil
	}
}
