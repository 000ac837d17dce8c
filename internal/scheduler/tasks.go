package scheduler

import (
	"github.com/sentineltrading/execution-core/internal/domain"
)

// buildTasks snapshots the active, non-paused bots and interleaves their
// per-(symbol, timeframe) evaluation tasks round-robin — column by column
// across bots rather than grouped bot by bot — so one bot with many
// symbols cannot push another bot's tasks to the back of the cycle.
func (s *Scheduler) buildTasks() []task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bots []string
	pairsByBot := make(map[string][][2]string)

	for id, bot := range s.bots {
		st, ok := s.states[id]
		if !ok || st.Status != domain.BotStatusActive {
			continue
		}
		var pairs [][2]string
		for _, symbol := range bot.Symbols {
			for _, tf := range bot.Timeframes {
				pairs = append(pairs, [2]string{symbol, tf})
			}
		}
		if len(pairs) == 0 {
			continue
		}
		bots = append(bots, id)
		pairsByBot[id] = pairs
	}

	var tasks []task
	for col := 0; ; col++ {
		added := false
		for _, id := range bots {
			pairs := pairsByBot[id]
			if col >= len(pairs) {
				continue
			}
			added = true
			tasks = append(tasks, task{
				bot:       s.bots[id],
				state:     s.states[id],
				symbol:    pairs[col][0],
				timeframe: pairs[col][1],
			})
		}
		if !added {
			break
		}
	}
	return tasks
}
