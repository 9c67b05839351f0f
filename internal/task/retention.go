package task

import (
	"slices"
	"time"
)

// Sweep evicts terminal tasks that finished more than olderThan ago and
// returns how many were removed.
func (m *Manager) Sweep(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	touched := make(map[string]bool)
	for id, t := range m.tasks {
		if !t.Status.Terminal() || t.CompletedAt == nil || !t.CompletedAt.Before(cutoff) {
			continue
		}
		delete(m.tasks, id)
		if t.CorrelationID != "" {
			touched[t.CorrelationID] = true
		}
		removed++
	}

	for corr := range touched {
		ids := slices.DeleteFunc(m.correlations[corr], func(id string) bool {
			_, ok := m.tasks[id]
			return !ok
		})
		if len(ids) == 0 {
			delete(m.correlations, corr)
			continue
		}
		m.correlations[corr] = ids
	}

	if removed > 0 {
		m.logger.Debug("swept finished tasks", "count", removed, "older_than", olderThan)
	}
	return removed
}

func (m *Manager) sweeper() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(m.retention)
		case <-m.ctx.Done():
			return
		}
	}
}
