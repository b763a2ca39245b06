package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/kitchen-buddy/internal/log"
	"github.com/teslashibe/kitchen-buddy/pkg/conversation"
	"github.com/teslashibe/kitchen-buddy/pkg/inference"
	"github.com/teslashibe/kitchen-buddy/pkg/protocol"
	"github.com/teslashibe/kitchen-buddy/pkg/stt"
	"github.com/teslashibe/kitchen-buddy/pkg/tts"
)

// Transport writes events and reply audio to the client. Only the session
// actor calls it, so implementations need not serialize writes.
type Transport interface {
	SendEvent(msg *protocol.Message) error
	SendAudio(audio []byte) error
}

// Services are the three external collaborators of a turn.
type Services struct {
	STT stt.Provider
	LLM inference.Provider
	TTS tts.Provider
}

// Info is a point-in-time view of a session.
type Info struct {
	ID             string    `json:"id"`
	State          State     `json:"state"`
	Turns          int       `json:"turns"`
	HistoryLen     int       `json:"history_len"`
	QueuedSegments int       `json:"queued_segments"`
	ConnectedAt    time.Time `json:"connected_at"`
	AvgLatencyMs   int64     `json:"avg_latency_ms"`
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session's parent logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) SessionOption {
	return func(s *Session) { s.obs = o }
}

// WithID overrides the generated session id.
func WithID(id string) SessionOption {
	return func(s *Session) { s.id = id }
}

const inboxSize = 64

type inboundKind int

const (
	inFrame inboundKind = iota
	inEndSpeech
	inPing
)

type inbound struct {
	kind  inboundKind
	audio []byte
}

type segment struct {
	seq   uint64
	audio []byte
	ended time.Time
}

type stageResult struct {
	seq     uint64
	stage   Stage
	text    string
	audio   []byte
	elapsed time.Duration
	err     error
}

// Session is the turn-taking pipeline of one connection.
type Session struct {
	id          string
	cfg         Config
	svc         Services
	out         Transport
	obs         Observer
	logger      *slog.Logger
	metrics     *MetricsCollector
	connectedAt time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	inbox     chan inbound
	results   chan stageResult
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once

	// Owned by the actor goroutine.
	state     State
	history   *conversation.History
	capture   []byte
	truncated bool
	seq       uint64
	queue     []segment
	inflight  *segment
	seg       *Segmenter
	dirty     bool

	mu       sync.Mutex
	info     Info
	snapshot []conversation.Entry
}

// NewSession creates a session seeded with cfg.Preamble. Call Start to run it.
func NewSession(cfg Config, svc Services, out Transport, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if svc.STT == nil || svc.LLM == nil || svc.TTS == nil {
		return nil, ErrMissingService
	}
	if out == nil {
		return nil, ErrMissingOutput
	}

	s := &Session{
		id:          uuid.NewString(),
		cfg:         cfg,
		svc:         svc,
		out:         out,
		obs:         NopObserver{},
		logger:      log.L(),
		metrics:     NewMetricsCollector(),
		connectedAt: time.Now(),
		inbox:       make(chan inbound, inboxSize),
		results:     make(chan stageResult),
		done:        make(chan struct{}),
		state:       StateIdle,
		history:     conversation.NewHistory(cfg.Preamble),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "voice.session", "session", s.id)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if cfg.Segmentation == SegmentServer {
		s.seg = NewSegmenter(cfg.SilenceThreshold)
	}

	s.snapshot = s.history.Snapshot()
	s.info = Info{ID: s.id, State: s.state, HistoryLen: len(s.snapshot), ConnectedAt: s.connectedAt}
	return s, nil
}

// Start runs the session actor. The session closes when ctx is done or
// Close is called.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	stop := context.AfterFunc(ctx, s.cancel)
	go func() {
		defer stop()
		s.run()
	}()
	return nil
}

// Close cancels in-flight stage calls, discards buffers and waits for the
// actor to exit. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(s.cancel)
	if s.started.Load() {
		<-s.done
	}
	return nil
}

// Done is closed when the actor has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// HandleAudio appends a binary frame to the capture buffer. The session
// takes ownership of data.
func (s *Session) HandleAudio(data []byte) error {
	return s.post(inbound{kind: inFrame, audio: data})
}

// HandleControl applies a client control message.
func (s *Session) HandleControl(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeEndSpeech:
		return s.post(inbound{kind: inEndSpeech})
	case protocol.TypePing:
		return s.post(inbound{kind: inPing})
	case protocol.TypeStop:
		return s.Close()
	default:
		return fmt.Errorf("%w: %q", protocol.ErrUnknownType, msg.Type)
	}
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	info := s.info
	s.mu.Unlock()
	info.AvgLatencyMs = s.metrics.Average().TotalLatency.Milliseconds()
	return info
}

// History returns a copy of the conversation history.
func (s *Session) History() []conversation.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.Entry, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// Metrics returns average latencies over recent successful turns.
func (s *Session) Metrics() TurnMetrics {
	return s.metrics.Average()
}

func (s *Session) post(in inbound) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.inbox <- in:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (s *Session) run() {
	defer close(s.done)

	s.obs.SessionOpened()
	s.logger.Info("session started", "segmentation", s.cfg.Segmentation)
	s.send(protocol.NewReady(s.id))

	var tick <-chan time.Time
	if s.seg != nil {
		t := time.NewTicker(s.cfg.SilenceWindow)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case in := <-s.inbox:
			s.handleInbound(in)
		case r := <-s.results:
			s.handleResult(r)
		case <-tick:
			s.handleTick()
		}
		s.publish()
	}
}

func (s *Session) shutdown() {
	s.apply(EventClose)
	if s.inflight != nil {
		s.logger.Debug("abandoning turn", "seq", s.inflight.seq, "queued", len(s.queue))
	}
	s.inflight, s.queue, s.capture = nil, nil, nil
	s.publish()

	turns := s.history.Turns()
	s.obs.SessionClosed(turns)
	s.logger.Info("session closed", "turns", turns, "history_len", s.history.Len())
}

// apply advances the state machine. An invalid transition is a bug in the
// actor and leaves the state unchanged.
func (s *Session) apply(e Event) {
	next, err := Transition(s.state, e)
	if err != nil {
		s.logger.Error("state machine", "error", err)
		return
	}
	if next != s.state {
		s.logger.Debug("state", "from", s.state, "to", next, "event", e)
	}
	s.state = next
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		s.snapshot = s.history.Snapshot()
		s.dirty = false
	}
	s.info.State = s.state
	s.info.Turns = s.history.Turns()
	s.info.HistoryLen = s.history.Len()
	s.info.QueuedSegments = len(s.queue)
}

func (s *Session) handleInbound(in inbound) {
	switch in.kind {
	case inFrame:
		s.onFrame(in.audio)
	case inEndSpeech:
		s.endSpeech("client")
	case inPing:
		s.send(protocol.NewPong())
	}
}

func (s *Session) onFrame(data []byte) {
	if len(data) == 0 {
		return
	}
	if len(s.capture)+len(data) > s.cfg.MaxSegmentBytes {
		if !s.truncated {
			s.truncated = true
			s.logger.Warn("segment too large, dropping audio", "bytes", len(s.capture), "limit", s.cfg.MaxSegmentBytes)
			s.obs.SegmentDropped("oversize")
			s.send(protocol.NewError("segment too large: audio truncated"))
		}
		return
	}

	s.capture = append(s.capture, data...)
	if s.seg != nil {
		s.seg.Write(data)
	}
	s.apply(EventAudio)
}

func (s *Session) handleTick() {
	rms, silent := s.seg.Tick()
	if !silent || len(s.capture) == 0 {
		return
	}

	if !s.seg.Voiced() {
		s.logger.Debug("discarding silent segment", "bytes", len(s.capture), "rms", rms)
		s.capture, s.truncated = nil, false
		if !s.state.Busy() {
			s.apply(EventDiscard)
		}
		return
	}
	s.endSpeech("silence")
}

// endSpeech finalizes the capture buffer into a segment. The segment starts
// a turn if none is in flight and is queued otherwise.
func (s *Session) endSpeech(source string) {
	if len(s.capture) == 0 {
		return
	}

	s.seq++
	seg := segment{seq: s.seq, audio: s.capture, ended: time.Now()}
	s.capture, s.truncated = nil, false
	if s.seg != nil {
		s.seg.Reset()
	}
	s.logger.Debug("segment ended", "seq", seg.seq, "bytes", len(seg.audio), "source", source)

	s.apply(EventEndSpeech)
	if s.inflight == nil {
		s.startTurn(seg)
		return
	}

	if len(s.queue) >= s.cfg.MaxQueuedSegments {
		s.logger.Warn("busy, dropping segment", "seq", seg.seq, "in_flight", s.inflight.seq, "queued", len(s.queue))
		s.obs.SegmentDropped("busy")
		s.send(protocol.NewError("busy: segment dropped"))
		return
	}
	s.queue = append(s.queue, seg)
}

func (s *Session) startTurn(seg segment) {
	s.inflight = &seg
	s.metrics.MarkStart(seg.ended)

	audio := seg.audio
	s.launch(seg.seq, StageTranscribe, func(ctx context.Context) stageResult {
		tr, err := s.svc.STT.Transcribe(ctx, audio)
		if err != nil {
			return stageResult{err: err}
		}
		return stageResult{text: tr.Text}
	})
}

// launch runs one stage call in its own goroutine and posts the result to
// the actor. Results that arrive after the session closed are dropped.
func (s *Session) launch(seq uint64, stage Stage, call func(ctx context.Context) stageResult) {
	timeout := s.cfg.timeout(stage)
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		start := time.Now()
		r := call(ctx)
		r.seq, r.stage, r.elapsed = seq, stage, time.Since(start)

		select {
		case s.results <- r:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) handleResult(r stageResult) {
	if s.inflight == nil || r.seq != s.inflight.seq {
		s.logger.Debug("dropping stale result", "seq", r.seq, "stage", r.stage)
		return
	}
	s.obs.StageDone(r.stage, r.elapsed, r.err)

	switch r.stage {
	case StageTranscribe:
		s.onTranscript(r)
	case StageGenerate:
		s.onReply(r)
	case StageSynthesize:
		s.onSpeech(r)
	}
}

func (s *Session) onTranscript(r stageResult) {
	text := strings.TrimSpace(r.text)
	if r.err == nil && text == "" {
		r.err = stt.ErrEmptyTranscript
	}
	if r.err != nil {
		s.fail(StageTranscribe, EventTranscribeFailed, OutcomeTranscriptionError, r.err)
		return
	}

	if err := s.history.Append(conversation.RoleUser, text); err != nil {
		s.fail(StageTranscribe, EventTranscribeFailed, OutcomeTranscriptionError, err)
		return
	}
	s.dirty = true
	s.apply(EventTranscript)
	s.metrics.MarkTranscript()
	s.logger.Info("transcript", "seq", r.seq, "text", text, "latency_ms", r.elapsed.Milliseconds())

	if !s.send(protocol.NewTranscript(text)) {
		return
	}

	history := s.history.Snapshot()
	s.launch(r.seq, StageGenerate, func(ctx context.Context) stageResult {
		resp, err := s.svc.LLM.Chat(ctx, &inference.ChatRequest{History: history})
		if err != nil {
			return stageResult{err: err}
		}
		return stageResult{text: resp.Text}
	})
}

func (s *Session) onReply(r stageResult) {
	text := strings.TrimSpace(r.text)
	if r.err == nil && text == "" {
		r.err = inference.ErrEmptyReply
	}
	if r.err != nil {
		// The user entry stays in history without a reply; the next turn's
		// mapping merges it with the following user entry.
		s.history.MarkOrphaned()
		s.dirty = true
		s.fail(StageGenerate, EventGenerateFailed, OutcomeGenerationError, r.err)
		return
	}

	if err := s.history.Append(conversation.RoleAssistant, text); err != nil {
		s.fail(StageGenerate, EventGenerateFailed, OutcomeGenerationError, err)
		return
	}
	s.dirty = true
	s.apply(EventReply)
	s.metrics.MarkReply()
	s.logger.Info("reply", "seq", r.seq, "chars", len(text), "latency_ms", r.elapsed.Milliseconds())

	if !s.send(protocol.NewLLM(text)) {
		return
	}

	s.launch(r.seq, StageSynthesize, func(ctx context.Context) stageResult {
		res, err := s.svc.TTS.Synthesize(ctx, text)
		if err != nil {
			return stageResult{err: err}
		}
		return stageResult{audio: res.Audio}
	})
}

func (s *Session) onSpeech(r stageResult) {
	if r.err == nil && len(r.audio) == 0 {
		r.err = tts.ErrEmptyAudio
	}
	if r.err != nil {
		s.fail(StageSynthesize, EventSynthesizeFailed, OutcomeSynthesisError, r.err)
		return
	}

	s.apply(EventAudioReady)
	if err := s.out.SendAudio(r.audio); err != nil {
		s.transportFailed(err)
		return
	}
	s.finishTurn(OutcomeOK)
}

// fail reports a stage error as one error event and returns to idle.
func (s *Session) fail(stage Stage, e Event, outcome Outcome, err error) {
	serr := &StageError{Stage: stage, Seq: s.inflight.seq, Err: err}
	s.apply(e)
	s.logger.Warn("turn failed", "seq", serr.Seq, "stage", stage, "error", err)

	sent := s.send(protocol.NewError(serr.ClientMessage()))
	s.apply(EventRecover)
	if sent {
		s.finishTurn(outcome)
	}
}

func (s *Session) finishTurn(outcome Outcome) {
	m := s.metrics.MarkDone(outcome)
	s.obs.TurnDone(outcome, m.TotalLatency)
	s.logger.Info("turn done", "seq", s.inflight.seq, "outcome", outcome, "latency", m.FormatLatency())
	s.inflight = nil

	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.apply(EventDequeue)
		s.startTurn(next)
		return
	}
	if len(s.capture) > 0 {
		s.apply(EventAudio)
	}
}

// send writes an event. A write failure closes the session.
func (s *Session) send(msg *protocol.Message) bool {
	if s.ctx.Err() != nil {
		return false
	}
	if err := s.out.SendEvent(msg); err != nil {
		s.transportFailed(err)
		return false
	}
	return true
}

func (s *Session) transportFailed(err error) {
	serr := &StageError{Stage: StageTransport, Err: err}
	if s.inflight != nil {
		serr.Seq = s.inflight.seq
	}
	s.logger.Warn("transport failed, closing session", "error", serr)
	s.cancel()
}
