package voice

import (
	"sync"
	"time"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeOK                 Outcome = "ok"
	OutcomeTranscriptionError Outcome = "transcription_error"
	OutcomeGenerationError    Outcome = "generation_error"
	OutcomeSynthesisError     Outcome = "synthesis_error"
)

// Observer receives pipeline events for metrics. Methods are called from
// session actor goroutines and must not block.
type Observer interface {
	SessionOpened()
	SessionClosed(turns int)
	StageDone(stage Stage, elapsed time.Duration, err error)
	TurnDone(outcome Outcome, elapsed time.Duration)
	SegmentDropped(reason string)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) SessionOpened() {}
func (NopObserver) SessionClosed(int) {}
func (NopObserver) StageDone(Stage, time.Duration, error) {}
func (NopObserver) TurnDone(Outcome, time.Duration) {}
func (NopObserver) SegmentDropped(string) {}

// TurnMetrics tracks latency at each stage of one turn.
// All latencies are measured from the moment the segment ended.
type TurnMetrics struct {
	// Timestamps for key events
	SpeechEndTime  time.Time // When the segment was finalized
	StartTime      time.Time // When transcription started (later if queued)
	TranscriptTime time.Time // When transcription completed
	ReplyTime      time.Time // When the reply text was available
	AudioTime      time.Time // When reply audio was sent

	// Computed latencies (from speech end)
	QueueLatency      time.Duration // Time spent waiting behind another turn
	TranscribeLatency time.Duration
	ReplyLatency      time.Duration
	TotalLatency      time.Duration

	Outcome Outcome
}

// MetricsCollector collects latency metrics for a session's turns.
// The actor writes; the HTTP listing reads.
type MetricsCollector struct {
	mu      sync.Mutex
	current TurnMetrics
	history []TurnMetrics // Recent turns for averaging
}

const metricsHistory = 100

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]TurnMetrics, 0, metricsHistory),
	}
}

// MarkStart begins a turn whose segment ended at speechEnd.
func (m *MetricsCollector) MarkStart(speechEnd time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.current = TurnMetrics{SpeechEndTime: speechEnd, StartTime: now, QueueLatency: now.Sub(speechEnd)}
}

// MarkTranscript records when transcription completed.
func (m *MetricsCollector) MarkTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptTime = time.Now()
	m.current.TranscribeLatency = m.current.TranscriptTime.Sub(m.current.SpeechEndTime)
}

// MarkReply records when the reply text was available.
func (m *MetricsCollector) MarkReply() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ReplyTime = time.Now()
	m.current.ReplyLatency = m.current.ReplyTime.Sub(m.current.SpeechEndTime)
}

// MarkDone closes the turn with outcome and archives it.
func (m *MetricsCollector) MarkDone(outcome Outcome) TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioTime = time.Now()
	m.current.TotalLatency = m.current.AudioTime.Sub(m.current.SpeechEndTime)
	m.current.Outcome = outcome

	m.history = append(m.history, m.current)
	if len(m.history) > metricsHistory {
		m.history = m.history[1:]
	}
	return m.current
}

// Average returns average latencies over recent successful turns.
func (m *MetricsCollector) Average() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg TurnMetrics
	n := 0
	for _, h := range m.history {
		if h.Outcome != OutcomeOK {
			continue
		}
		avg.QueueLatency += h.QueueLatency
		avg.TranscribeLatency += h.TranscribeLatency
		avg.ReplyLatency += h.ReplyLatency
		avg.TotalLatency += h.TotalLatency
		n++
	}
	if n == 0 {
		return TurnMetrics{}
	}

	d := time.Duration(n)
	avg.QueueLatency /= d
	avg.TranscribeLatency /= d
	avg.ReplyLatency /= d
	avg.TotalLatency /= d
	return avg
}

// FormatLatency returns a formatted string of the turn's latencies.
func (m *TurnMetrics) FormatLatency() string {
	return formatDuration(m.QueueLatency) + " QUEUE | " +
		formatDuration(m.TranscribeLatency) + " STT | " +
		formatDuration(m.ReplyLatency) + " LLM | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
