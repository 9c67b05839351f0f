package task

import "context"

// Summary counts the tasks of one correlation group by status.
type Summary struct {
	CorrelationID string `json:"correlation_id"`
	Total         int    `json:"total"`
	Pending       int    `json:"pending"`
	Running       int    `json:"running"`
	Retry         int    `json:"retry"`
	Completed     int    `json:"completed"`
	Failed        int    `json:"failed"`
	Cancelled     int    `json:"cancelled"`
	// Done is set when every task in the group is terminal.
	Done bool `json:"done"`
}

// ByCorrelation returns the group's tasks in creation order.
func (m *Manager) ByCorrelation(correlationID string) []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.correlations[correlationID]
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := m.tasks[id]; ok {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// Correlation summarises the group. An unknown id yields a zero Summary
// with Total 0.
func (m *Manager) Correlation(correlationID string) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaryLocked(correlationID)
}

func (m *Manager) summaryLocked(correlationID string) Summary {
	s := Summary{CorrelationID: correlationID}
	for _, id := range m.correlations[correlationID] {
		t, ok := m.tasks[id]
		if !ok {
			continue
		}
		s.Total++
		switch t.Status {
		case StatusPending:
			s.Pending++
		case StatusRunning:
			s.Running++
		case StatusRetry:
			s.Retry++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	s.Done = s.Total > 0 && s.Completed+s.Failed+s.Cancelled == s.Total
	return s
}

// WaitCorrelation blocks until every task in the group is terminal or ctx
// is done. It returns ErrCorrelationNotFound for an unknown group.
func (m *Manager) WaitCorrelation(ctx context.Context, correlationID string) (Summary, error) {
	m.mu.Lock()
	s := m.summaryLocked(correlationID)
	if s.Total == 0 {
		m.mu.Unlock()
		return s, ErrCorrelationNotFound
	}
	if s.Done {
		m.mu.Unlock()
		return s, nil
	}
	ch := make(chan struct{})
	m.waiters[correlationID] = append(m.waiters[correlationID], ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return m.Correlation(correlationID), nil
	case <-ctx.Done():
		return m.Correlation(correlationID), ctx.Err()
	}
}
