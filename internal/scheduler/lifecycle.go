package scheduler

import (
	"time"

	"github.com/sentineltrading/execution-core/internal/domain"
	"github.com/sentineltrading/execution-core/internal/eventbus"
)

// Enable transitions a bot to active, taking effect at the next cycle
// boundary since the cycle snapshots status at the start of runCycle.
func (s *Scheduler) Enable(botID string) {
	s.setStatus(botID, domain.BotStatusActive, "enabled")
}

// Disable pauses a bot without archiving its configuration.
func (s *Scheduler) Disable(botID string) {
	s.setStatus(botID, domain.BotStatusPaused, "disabled")
}

// Pause is an alias for Disable, kept separate per the lifecycle command
// vocabulary (enable/disable/pause/resume/update_config).
func (s *Scheduler) Pause(botID string) {
	s.setStatus(botID, domain.BotStatusPaused, "paused")
}

// Resume is an alias for Enable.
func (s *Scheduler) Resume(botID string) {
	s.setStatus(botID, domain.BotStatusActive, "resumed")
}

func (s *Scheduler) setStatus(botID string, status domain.BotStatus, reason string) {
	s.mu.Lock()
	st, ok := s.states[botID]
	if ok {
		st.Status = status
	}
	s.mu.Unlock()

	if ok && s.bus != nil {
		s.bus.BotStateChanged.Publish(eventbus.BotStateChangedEvent{BotID: botID, Status: status, Reason: reason})
	}
}

// UpdateConfig applies mutate to a copy of a bot's configuration and swaps
// the copy in under the scheduler's lock; the running cycle's tasks keep
// the old pointer, so in-flight tasks are unaffected, and the next cycle
// picks up the change.
func (s *Scheduler) UpdateConfig(botID string, mutate func(*domain.Bot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bot, ok := s.bots[botID]; ok {
		updated := *bot
		mutate(&updated)
		s.bots[botID] = &updated
	}
}

// checkDailyTrip pauses every bot still active when the aggregate daily
// P&L across all bots breaches -dailyLossLimit, and re-arms automatically
// once the UTC day rolls over, resuming only the bots it tripped (not
// ones a user had independently paused).
func (s *Scheduler) checkDailyTrip(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := now.Format("2006-01-02")

	for id, st := range s.states {
		if st.TripPaused && st.TripDay != today {
			st.TripPaused = false
			st.Status = domain.BotStatusActive
			if s.bus != nil {
				s.bus.BotStateChanged.Publish(eventbus.BotStateChangedEvent{BotID: id, Status: domain.BotStatusActive, Reason: "daily_trip_rearmed"})
			}
		}
	}

	if s.dailyLossLimit.IsZero() {
		return
	}

	var aggregate float64
	for _, st := range s.states {
		pnl, _ := st.DailyPnL.Float64()
		aggregate += pnl
	}
	limit, _ := s.dailyLossLimit.Float64()
	if aggregate > -limit {
		return
	}

	for id, st := range s.states {
		if st.Status != domain.BotStatusActive {
			continue
		}
		st.Status = domain.BotStatusPaused
		st.TripPaused = true
		st.TripDay = today
		if s.bus != nil {
			s.bus.BotStateChanged.Publish(eventbus.BotStateChangedEvent{BotID: id, Status: domain.BotStatusPaused, Reason: "daily_trip"})
		}
	}
}
