package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"plstudy/internal/models"
	"plstudy/internal/study"
)

// SessionState is the per-login working memory that is deliberately not
// persisted: question navigation, running timers, and unsaved answer drafts.
// Losing it on logout or expiry loses at most the in-progress answers of the
// current question screen.
type SessionState struct {
	mu sync.Mutex

	ParticipantID string

	questionIndex     int
	questionStartedAt time.Time
	questionElapsed   map[string]float64

	comparisonStartedAt time.Time

	drafts     map[string]string
	sataDrafts map[string][]string

	lastSeen time.Time
}

func newSessionState(participantID string) *SessionState {
	return &SessionState{
		ParticipantID:   participantID,
		questionElapsed: make(map[string]float64),
		drafts:          make(map[string]string),
		sataDrafts:      make(map[string][]string),
		lastSeen:        time.Now(),
	}
}

// NavigateTo accumulates elapsed time for the question being left and starts
// the clock for the one being entered.
func (st *SessionState) NavigateTo(fromKey string, toIndex int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now()
	if fromKey != "" && !st.questionStartedAt.IsZero() {
		st.questionElapsed[fromKey] += now.Sub(st.questionStartedAt).Seconds()
	}
	st.questionIndex = toIndex
	st.questionStartedAt = now
	st.lastSeen = now
}

// SaveDraft keeps an unsaved free-text answer across navigation.
func (st *SessionState) SaveDraft(key, text string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.drafts[key] = text
	st.lastSeen = time.Now()
}

// SaveSataDraft keeps an unsaved multi-select answer across navigation.
func (st *SessionState) SaveSataDraft(key string, selected []string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sataDrafts[key] = selected
	st.lastSeen = time.Now()
}

// Drafts returns a copy of the saved free-text drafts.
func (st *SessionState) Drafts() map[string]string {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[string]string, len(st.drafts))
	for k, v := range st.drafts {
		out[k] = v
	}
	return out
}

// SataDrafts returns a copy of the saved multi-select drafts.
func (st *SessionState) SataDrafts() map[string][]string {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[string][]string, len(st.sataDrafts))
	for k, v := range st.sataDrafts {
		out[k] = append([]string{}, v...)
	}
	return out
}

// QuestionIndex returns the current question position.
func (st *SessionState) QuestionIndex() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.questionIndex
}

// FlushTimes folds the still-running clock for currentKey into the elapsed
// map and returns a copy for submission.
func (st *SessionState) FlushTimes(currentKey string) map[string]float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now()
	if currentKey != "" && !st.questionStartedAt.IsZero() {
		st.questionElapsed[currentKey] += now.Sub(st.questionStartedAt).Seconds()
		st.questionStartedAt = now
	}
	out := make(map[string]float64, len(st.questionElapsed))
	for k, v := range st.questionElapsed {
		out[k] = v
	}
	return out
}

// StartComparison stamps the comparison screen's entry time.
func (st *SessionState) StartComparison() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.comparisonStartedAt = time.Now()
	st.lastSeen = time.Now()
}

// ComparisonSeconds returns the time spent on the comparison screen so far.
func (st *SessionState) ComparisonSeconds() float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.comparisonStartedAt.IsZero() {
		return 0
	}
	return time.Since(st.comparisonStartedAt).Seconds()
}

// ResetUnit clears all per-unit working memory when the participant moves to
// the next abstract.
func (st *SessionState) ResetUnit() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.questionIndex = 0
	st.questionStartedAt = time.Time{}
	st.questionElapsed = make(map[string]float64)
	st.comparisonStartedAt = time.Time{}
	st.drafts = make(map[string]string)
	st.sataDrafts = make(map[string][]string)
	st.lastSeen = time.Now()
}

// Touch refreshes the expiry clock.
func (st *SessionState) Touch() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastSeen = time.Now()
}

func (st *SessionState) idleSince() time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastSeen
}

// EntryPoint describes where a participant lands after login or refresh: the
// scheduled batch and, when the batch is unlocked, the concrete unit to show.
type EntryPoint struct {
	Record *models.ParticipantRecord
	// Work is nil when the whole study is complete.
	Work *WorkItem
	// Unit is nil when Work is nil, the batch is still locked, or the
	// participant has not yet confirmed the batch's instructions.
	Unit    *models.Unit
	Locator models.UnitLocator
}

// SessionService owns login sessions and the resume model: determine the
// participant's place in the study from the persistent record, bias toward
// the saved pointer when it still refers to unfinished work, and flush the
// pointer on logout.
type SessionService struct {
	store     ParticipantStore
	scheduler *SchedulerService
	cfg       *study.Config

	mu       sync.Mutex
	sessions map[string]*SessionState
	maxIdle  time.Duration
}

// NewSessionService creates a new session service.
func NewSessionService(store ParticipantStore, scheduler *SchedulerService, cfg *study.Config, maxIdle time.Duration) *SessionService {
	return &SessionService{
		store:     store,
		scheduler: scheduler,
		cfg:       cfg,
		sessions:  make(map[string]*SessionState),
		maxIdle:   maxIdle,
	}
}

// Create registers a new session and returns its identifier.
func (s *SessionService) Create(participantID string) string {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = newSessionState(participantID)
	return id
}

// Get returns the state for a session ID, or nil if unknown or expired.
func (s *SessionService) Get(sessionID string) *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

// Delete removes a session.
func (s *SessionService) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// CleanupExpired drops sessions idle longer than the configured maximum.
// Persistent state is untouched; the participant simply logs in again.
func (s *SessionService) CleanupExpired() {
	cutoff := time.Now().Add(-s.maxIdle)
	s.mu.Lock()
	stale := make([]string, 0)
	for id, st := range s.sessions {
		if st.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if len(stale) > 0 {
		log.Printf("Cleaned up %d expired sessions", len(stale))
	}
}

// Enter computes the participant's current place in the study. The saved
// resume pointer wins when it still names an incomplete unit inside the
// scheduled batch; otherwise the first incomplete unit of that batch is
// chosen.
func (s *SessionService) Enter(ctx context.Context, participantID string) (*EntryPoint, error) {
	rec, err := s.store.Find(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, invalid("participant_id", "unknown participant %q", participantID)
	}

	ep := &EntryPoint{Record: rec}
	work := s.scheduler.NextUnitOfWork(rec)
	if work == nil {
		return ep, nil
	}
	ep.Work = work
	if !work.Unlocked {
		return ep, nil
	}

	batch := rec.Batch(work.Phase, work.BatchID)
	if batch == nil {
		return nil, integrity("scheduled batch %s missing for %s", work.FullType, participantID)
	}
	if !batch.SeenInstructions {
		return ep, nil
	}

	unitID := ""
	if rec.LastUnitID != nil && rec.LastBatch != nil && *rec.LastBatch == work.FullType {
		if u, ok := batch.Abstracts[*rec.LastUnitID]; ok && !u.Completed {
			unitID = *rec.LastUnitID
		}
	}
	if unitID == "" {
		unitID, _ = batch.NextIncompleteUnit()
	}
	if unitID == "" {
		// Every unit is done but the batch flag lags; let the scheduler
		// cascade catch up on the next completion call.
		return ep, nil
	}

	unit := batch.Abstracts[unitID]
	if _, err := models.ParseStage(string(unit.Stage)); err != nil {
		return nil, integrity("participant %s unit %s/%s: %v", participantID, work.FullType, unitID, err)
	}
	ep.Unit = unit
	ep.Locator = models.UnitLocator{Phase: work.Phase, BatchID: work.BatchID, UnitID: unitID}
	return ep, nil
}

// Leave persists the resume pointer so the next login lands where this one
// left off.
func (s *SessionService) Leave(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator, stage models.Stage) error {
	page := string(stage)
	fullType := loc.FullType()
	return s.store.SetResumePointer(ctx, rec.ParticipantID, &page, &fullType, &loc.UnitID)
}

// MarkInstructionsSeen records that the batch's instruction screen was
// acknowledged, so refreshes go straight to the first unit.
func (s *SessionService) MarkInstructionsSeen(ctx context.Context, rec *models.ParticipantRecord, phase, batchID string) error {
	batch := rec.Batch(phase, batchID)
	if batch == nil {
		return integrity("participant %s has no batch %s_%s", rec.ParticipantID, phase, batchID)
	}
	if batch.SeenInstructions {
		return nil
	}
	if err := s.store.SetSeenInstructions(ctx, rec.ParticipantID, phase, batchID); err != nil {
		return err
	}
	batch.SeenInstructions = true
	return nil
}

// RecordBatchReport stores the participant's per-batch completion report and
// marks the confirmation dialog outcome.
func (s *SessionService) RecordBatchReport(ctx context.Context, rec *models.ParticipantRecord, phase, batchID string, report *models.BatchTimeReport) error {
	batch := rec.Batch(phase, batchID)
	if batch == nil {
		return integrity("participant %s has no batch %s_%s", rec.ParticipantID, phase, batchID)
	}
	if !batch.Completed {
		return invalid("batch", "batch %s_%s is not completed yet", phase, batchID)
	}
	if err := s.store.SetBatchTimeReport(ctx, rec.ParticipantID, phase, batchID, report); err != nil {
		return err
	}
	batch.TimeCompletion = report
	return nil
}

// ConfirmBatchCompletion records the participant's answer to the completion
// confirmation dialog for a finished batch.
func (s *SessionService) ConfirmBatchCompletion(ctx context.Context, rec *models.ParticipantRecord, phase, batchID string, confirmed bool) error {
	batch := rec.Batch(phase, batchID)
	if batch == nil {
		return integrity("participant %s has no batch %s_%s", rec.ParticipantID, phase, batchID)
	}
	if !batch.Completed {
		return invalid("batch", "batch %s_%s is not completed yet", phase, batchID)
	}
	if err := s.store.SetConfirmedCompletion(ctx, rec.ParticipantID, phase, batchID, confirmed); err != nil {
		return err
	}
	batch.ConfirmedCompletion = &confirmed
	return nil
}
