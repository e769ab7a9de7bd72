package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"plstudy/internal/models"
	"plstudy/internal/service"
	"plstudy/internal/study"
)

// StudyHandler serves every in-study endpoint. Each request resolves the
// participant's place in the study from the persistent record, so a refresh
// or a second device always sees the same screen.
type StudyHandler struct {
	sessions  *service.SessionService
	scheduler *service.SchedulerService
	pipeline  *service.PipelineService
	cfg       *study.Config
}

// NewStudyHandler creates a new study handler
func NewStudyHandler(sessions *service.SessionService, scheduler *service.SchedulerService, pipeline *service.PipelineService, cfg *study.Config) *StudyHandler {
	return &StudyHandler{
		sessions:  sessions,
		scheduler: scheduler,
		pipeline:  pipeline,
		cfg:       cfg,
	}
}

// enter resolves the participant's entry point or writes the error.
func (h *StudyHandler) enter(w http.ResponseWriter, r *http.Request) (*service.EntryPoint, bool) {
	participantID := ParticipantFromContext(r.Context())
	ep, err := h.sessions.Enter(r.Context(), participantID)
	if err != nil {
		respondWithServiceError(w, "resolving study state", err)
		return nil, false
	}
	return ep, true
}

// requireUnit narrows an entry point to an active unit, rejecting requests
// made while the study is done, the batch locked, or instructions unseen.
func (h *StudyHandler) requireUnit(w http.ResponseWriter, ep *service.EntryPoint) bool {
	if ep.Work == nil {
		respondWithServiceError(w, "", service.ErrStudyCompleted)
		return false
	}
	if !ep.Work.Unlocked {
		respondWithServiceError(w, "", service.ErrBatchLocked)
		return false
	}
	if ep.Unit == nil {
		respondWithError(w, http.StatusConflict, "Please read the batch instructions first.", "", nil)
		return false
	}
	return true
}

func (h *StudyHandler) stateView(ep *service.EntryPoint, state *service.SessionState) *StateView {
	view := &StateView{
		ParticipantID:  ep.Record.ParticipantID,
		StudyCompleted: ep.Work == nil,
	}
	if ep.Work != nil {
		needsPasscode := h.cfg.PasscodeFor(ep.Work.FullType) != nil
		view.Batch = newBatchView(ep.Record, ep.Work, needsPasscode)
		view.ComparisonScales = h.cfg.ScalesFor(ep.Work.Phase)
	}
	if ep.Unit != nil {
		view.Unit = newUnitView(ep.Unit, ep.Locator.UnitID, state)
	}
	return view
}

// State answers GET /study/state.
func (h *StudyHandler) State(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.stateView(ep, SessionFromContext(r.Context())))
}

type unlockRequest struct {
	Passcode string `json:"passcode"`
}

// Unlock answers POST /study/unlock for the currently scheduled batch.
func (h *StudyHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok {
		return
	}
	if ep.Work == nil {
		respondWithServiceError(w, "", service.ErrStudyCompleted)
		return
	}

	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding unlock request", err)
		return
	}

	if _, err := h.scheduler.AttemptUnlock(r.Context(), ep.Record, ep.Work.FullType, req.Passcode); err != nil {
		respondWithServiceError(w, "unlocking batch", err)
		return
	}

	// Re-resolve so the response carries the now-visible unit.
	ep, ok = h.enter(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.stateView(ep, SessionFromContext(r.Context())))
}

// Instructions answers POST /study/instructions.
func (h *StudyHandler) Instructions(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok {
		return
	}
	if ep.Work == nil {
		respondWithServiceError(w, "", service.ErrStudyCompleted)
		return
	}
	if !ep.Work.Unlocked {
		respondWithServiceError(w, "", service.ErrBatchLocked)
		return
	}

	if err := h.sessions.MarkInstructionsSeen(r.Context(), ep.Record, ep.Work.Phase, ep.Work.BatchID); err != nil {
		respondWithServiceError(w, "recording instructions", err)
		return
	}

	ep, ok = h.enter(w, r)
	if !ok {
		return
	}
	if state := SessionFromContext(r.Context()); state != nil {
		state.ResetUnit()
	}
	writeJSON(w, http.StatusOK, h.stateView(ep, SessionFromContext(r.Context())))
}

type familiarityRequest struct {
	Scores map[string]int `json:"scores"`
}

// Familiarity answers POST /study/familiarity.
func (h *StudyHandler) Familiarity(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok || !h.requireUnit(w, ep) {
		return
	}

	var req familiarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding familiarity request", err)
		return
	}

	if err := h.pipeline.SubmitFamiliarity(r.Context(), ep.Record, ep.Locator, req.Scores); err != nil {
		respondWithServiceError(w, "submitting familiarity", err)
		return
	}
	writeJSON(w, http.StatusOK, h.stateView(ep, SessionFromContext(r.Context())))
}

type extraInfoRequest struct {
	Info           map[string][]string `json:"info"`
	ElapsedSeconds float64             `json:"elapsed_seconds"`
}

// ExtraInfo answers POST /study/extra-info.
func (h *StudyHandler) ExtraInfo(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok || !h.requireUnit(w, ep) {
		return
	}

	var req extraInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding extra-info request", err)
		return
	}

	if err := h.pipeline.SubmitExtraInfo(r.Context(), ep.Record, ep.Locator, req.Info, req.ElapsedSeconds); err != nil {
		respondWithServiceError(w, "submitting extra info", err)
		return
	}
	writeJSON(w, http.StatusOK, h.stateView(ep, SessionFromContext(r.Context())))
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	UserTurns int    `json:"user_turns"`
	CanFinish bool   `json:"can_finish"`
}

// Chat answers POST /study/chat.
func (h *StudyHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok || !h.requireUnit(w, ep) {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding chat request", err)
		return
	}

	reply, err := h.pipeline.AppendChatTurn(r.Context(), ep.Record, ep.Locator, req.Message)
	if err != nil {
		respondWithServiceError(w, "handling chat turn", err)
		return
	}

	turns := ep.Unit.UserTurnCount()
	writeJSON(w, http.StatusOK, chatResponse{
		Reply:     reply,
		UserTurns: turns,
		CanFinish: turns >= h.cfg.MinUserTurns,
	})
}

// Generate answers POST /study/generate.
func (h *StudyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok || !h.requireUnit(w, ep) {
		return
	}

	if _, err := h.pipeline.GenerateSummary(r.Context(), ep.Record, ep.Locator); err != nil {
		respondWithServiceError(w, "generating summary", err)
		return
	}
	writeJSON(w, http.StatusOK, h.stateView(ep, SessionFromContext(r.Context())))
}

type navigateRequest struct {
	FromKey   string   `json:"from_key"`
	ToIndex   int      `json:"to_index"`
	Draft     *string  `json:"draft,omitempty"`
	SataDraft []string `json:"sata_draft,omitempty"`
}

// Navigate answers POST /study/questions/navigate: it moves the ephemeral
// question cursor and banks the outgoing question's draft and elapsed time.
func (h *StudyHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	state := SessionFromContext(r.Context())
	if state == nil {
		respondWithError(w, http.StatusUnauthorized, "Please log in to continue.", "", nil)
		return
	}

	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding navigate request", err)
		return
	}

	if req.FromKey != "" {
		if req.Draft != nil {
			state.SaveDraft(req.FromKey, *req.Draft)
		}
		if req.SataDraft != nil {
			state.SaveSataDraft(req.FromKey, req.SataDraft)
		}
	}
	state.NavigateTo(req.FromKey, req.ToIndex)
	writeJSON(w, http.StatusOK, map[string]int{"question_index": req.ToIndex})
}

type questionsRequest struct {
	CurrentKey string              `json:"current_key"`
	Answers    map[string]string   `json:"answers,omitempty"`
	Selections map[string][]string `json:"selections,omitempty"`
}

// Questions answers POST /study/questions with either the three free-text
// answers or the select-many selections, depending on the unit.
func (h *StudyHandler) Questions(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok || !h.requireUnit(w, ep) {
		return
	}
	state := SessionFromContext(r.Context())

	var req questionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding questions request", err)
		return
	}

	times := map[string]float64{}
	if state != nil {
		times = state.FlushTimes(req.CurrentKey)
	}

	var err error
	if ep.Unit.UsesSata() {
		err = h.pipeline.SubmitSataAnswers(r.Context(), ep.Record, ep.Locator, req.Selections, times)
	} else {
		err = h.pipeline.SubmitShortAnswers(r.Context(), ep.Record, ep.Locator, req.Answers, times)
	}
	if err != nil {
		respondWithServiceError(w, "submitting answers", err)
		return
	}

	if state != nil {
		state.StartComparison()
	}
	writeJSON(w, http.StatusOK, h.stateView(ep, state))
}

// Back answers POST /study/back, the lone backward transition.
func (h *StudyHandler) Back(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok || !h.requireUnit(w, ep) {
		return
	}

	if err := h.pipeline.StepBack(r.Context(), ep.Record, ep.Locator); err != nil {
		respondWithServiceError(w, "stepping back", err)
		return
	}
	writeJSON(w, http.StatusOK, h.stateView(ep, SessionFromContext(r.Context())))
}

type comparisonRequest struct {
	Responses map[string]int `json:"responses"`
	Confirmed bool           `json:"confirmed"`
}

type comparisonResponse struct {
	UnitCompleted  bool   `json:"unit_completed"`
	BatchCompleted bool   `json:"batch_completed"`
	StudyCompleted bool   `json:"study_completed"`
	NextUnitID     string `json:"next_unit_id,omitempty"`
}

// Comparison answers POST /study/comparison: the irreversible unit commit.
func (h *StudyHandler) Comparison(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok || !h.requireUnit(w, ep) {
		return
	}
	state := SessionFromContext(r.Context())

	var req comparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding comparison request", err)
		return
	}

	timeSpent := 0.0
	if state != nil {
		timeSpent = state.ComparisonSeconds()
	}

	studyDone, err := h.pipeline.SubmitComparison(r.Context(), ep.Record, ep.Locator, req.Responses, timeSpent, req.Confirmed)
	if err != nil {
		respondWithServiceError(w, "submitting comparison", err)
		return
	}
	if state != nil {
		state.ResetUnit()
	}

	resp := comparisonResponse{UnitCompleted: true, StudyCompleted: studyDone}
	if batch := ep.Record.Batch(ep.Locator.Phase, ep.Locator.BatchID); batch != nil {
		resp.BatchCompleted = batch.Completed
		if !batch.Completed {
			resp.NextUnitID, _ = batch.NextIncompleteUnit()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchReportRequest struct {
	FullType         string  `json:"full_type"`
	BatchTimeSeconds float64 `json:"batch_time_seconds"`
	SataTimeSeconds  float64 `json:"sata_time_seconds"`
	Feedback         string  `json:"feedback"`
}

// BatchReport answers POST /study/batch/report for a just-finished batch.
func (h *StudyHandler) BatchReport(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok {
		return
	}

	var req batchReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding batch report", err)
		return
	}

	phase, batchID, err := models.SplitFullType(req.FullType)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Unknown batch.", "parsing batch report full_type", err)
		return
	}

	report := &models.BatchTimeReport{
		BatchTimeSeconds: req.BatchTimeSeconds,
		SataTimeSeconds:  req.SataTimeSeconds,
		Feedback:         req.Feedback,
		Timestamp:        time.Now().UTC(),
	}
	if err := h.sessions.RecordBatchReport(r.Context(), ep.Record, phase, batchID, report); err != nil {
		respondWithServiceError(w, "recording batch report", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

type batchConfirmRequest struct {
	FullType  string `json:"full_type"`
	Confirmed bool   `json:"confirmed"`
}

// BatchConfirm answers POST /study/batch/confirm.
func (h *StudyHandler) BatchConfirm(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.enter(w, r)
	if !ok {
		return
	}

	var req batchConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding batch confirmation", err)
		return
	}

	phase, batchID, err := models.SplitFullType(req.FullType)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Unknown batch.", "parsing batch confirmation full_type", err)
		return
	}

	if err := h.sessions.ConfirmBatchCompletion(r.Context(), ep.Record, phase, batchID, req.Confirmed); err != nil {
		respondWithServiceError(w, "confirming batch completion", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}
