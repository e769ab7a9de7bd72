package service

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"plstudy/internal/generation"
	"plstudy/internal/models"
	"plstudy/internal/study"
)

// PipelineService is the finite-state machine governing one unit's journey
// from presentation through generation to scored responses. Every transition
// is guarded; a guard rejection is a ValidationError and nothing advances.
// Persistence happens before the in-memory record is mutated, so a failed
// write blocks the transition.
type PipelineService struct {
	store     ParticipantStore
	generator Generator
	scheduler *SchedulerService
	cfg       *study.Config
	notifier  CompletionNotifier
}

// NewPipelineService creates a new pipeline service. notifier may be nil.
func NewPipelineService(store ParticipantStore, generator Generator, scheduler *SchedulerService, cfg *study.Config, notifier CompletionNotifier) *PipelineService {
	return &PipelineService{
		store:     store,
		generator: generator,
		scheduler: scheduler,
		cfg:       cfg,
		notifier:  notifier,
	}
}

// unitAt resolves the unit or reports an integrity failure.
func (s *PipelineService) unitAt(rec *models.ParticipantRecord, loc models.UnitLocator) (*models.Unit, error) {
	unit := rec.Unit(loc.Phase, loc.BatchID, loc.UnitID)
	if unit == nil {
		return nil, integrity("participant %s has no unit %s in batch %s", rec.ParticipantID, loc.UnitID, loc.FullType())
	}
	return unit, nil
}

// requireStage guards a transition's entry state.
func requireStage(unit *models.Unit, want models.Stage) error {
	if unit.Completed {
		return invalid("unit", "this abstract is already completed and cannot be revisited")
	}
	if unit.Stage != want {
		return invalid("stage", "expected stage %s, unit is in %s", want, unit.Stage)
	}
	return nil
}

// SubmitFamiliarity applies familiarity scores keyed by term and, when every
// term is rated, advances familiarity -> extra_info. A single unrated term
// rejects the whole submission.
func (s *PipelineService) SubmitFamiliarity(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator, scores map[string]int) error {
	unit, err := s.unitAt(rec, loc)
	if err != nil {
		return err
	}
	if err := requireStage(unit, models.StageFamiliarity); err != nil {
		return err
	}

	updated := make([]models.TermEntry, len(unit.TermFamiliarity))
	copy(updated, unit.TermFamiliarity)
	for i := range updated {
		score, ok := scores[updated[i].Term]
		if !ok {
			if updated[i].FamiliarityScore == nil {
				return invalid("familiarity", "term %q has not been rated", updated[i].Term)
			}
			continue
		}
		if score < 1 || score > 5 {
			return invalid("familiarity", "score for %q must be between 1 and 5", updated[i].Term)
		}
		v := score
		updated[i].FamiliarityScore = &v
	}
	for i := range updated {
		if updated[i].FamiliarityScore == nil {
			return invalid("familiarity", "term %q has not been rated", updated[i].Term)
		}
	}

	if err := s.store.SetTermFamiliarity(ctx, rec.ParticipantID, loc, updated); err != nil {
		return err
	}
	if err := s.store.SetStage(ctx, rec.ParticipantID, loc, models.StageExtraInfo); err != nil {
		return err
	}
	unit.TermFamiliarity = updated
	unit.Stage = models.StageExtraInfo
	return s.flushResumePointer(ctx, rec, loc, unit.Stage)
}

// SubmitExtraInfo records each term's requested extra-information set and
// advances extra_info -> questions, persisting the final term records and the
// stage's elapsed time.
func (s *PipelineService) SubmitExtraInfo(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator, info map[string][]string, elapsedSeconds float64) error {
	unit, err := s.unitAt(rec, loc)
	if err != nil {
		return err
	}
	if err := requireStage(unit, models.StageExtraInfo); err != nil {
		return err
	}

	updated := make([]models.TermEntry, len(unit.TermFamiliarity))
	copy(updated, unit.TermFamiliarity)
	for i := range updated {
		selections, ok := info[updated[i].Term]
		if !ok || len(selections) == 0 {
			return invalid("extra_information", "term %q needs at least one selection", updated[i].Term)
		}
		for _, sel := range selections {
			switch sel {
			case models.ExtraInfoDefinition, models.ExtraInfoExample, models.ExtraInfoBackground, models.ExtraInfoNone:
			default:
				return invalid("extra_information", "unknown option %q for term %q", sel, updated[i].Term)
			}
		}
		updated[i].ExtraInformation = selections
	}

	if err := s.store.SetTermFamiliarity(ctx, rec.ParticipantID, loc, updated); err != nil {
		return err
	}
	if err := s.store.SetStageSeconds(ctx, rec.ParticipantID, loc, models.StageExtraInfo, elapsedSeconds); err != nil {
		return err
	}
	if err := s.store.SetStage(ctx, rec.ParticipantID, loc, models.StageQuestions); err != nil {
		return err
	}
	unit.TermFamiliarity = updated
	unit.Stage = models.StageQuestions
	return s.flushResumePointer(ctx, rec, loc, unit.Stage)
}

// AppendChatTurn handles one live conversation exchange: the participant's
// question is answered by the generation service, and both turns are
// appended to the immutable conversation log.
func (s *PipelineService) AppendChatTurn(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator, content string) (string, error) {
	unit, err := s.unitAt(rec, loc)
	if err != nil {
		return "", err
	}
	if err := requireStage(unit, models.StageConversation); err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid("message", "please type a question")
	}

	userTurn := models.ChatTurn{Role: "user", Content: content, Timestamp: time.Now().UTC()}
	history := append(append([]models.ChatTurn{}, unit.ConversationLog...), userTurn)

	answer, err := s.generator.Respond(ctx, unit.AbstractText, history)
	if err != nil {
		return "", &ExternalError{Op: "chat", Err: err}
	}
	assistantTurn := models.ChatTurn{Role: "assistant", Content: answer, Timestamp: time.Now().UTC()}

	if err := s.store.AppendConversationTurn(ctx, rec.ParticipantID, loc, userTurn); err != nil {
		return "", err
	}
	if err := s.store.AppendConversationTurn(ctx, rec.ParticipantID, loc, assistantTurn); err != nil {
		return "", err
	}
	unit.ConversationLog = append(unit.ConversationLog, userTurn, assistantTurn)
	return answer, nil
}

// GenerateSummary drives conversation -> generating -> questions. The guard
// requires the configured minimum of user turns; the conversation log is
// already fully persisted before the request reads it. On generation failure
// the unit stays in generating and the call may be repeated without
// re-collecting the conversation.
func (s *PipelineService) GenerateSummary(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator) (string, error) {
	unit, err := s.unitAt(rec, loc)
	if err != nil {
		return "", err
	}
	if unit.Completed {
		return "", invalid("unit", "this abstract is already completed and cannot be revisited")
	}
	// A unit stranded in generating by an earlier failure may re-attempt.
	if unit.Stage != models.StageConversation && unit.Stage != models.StageGenerating {
		return "", invalid("stage", "expected stage %s, unit is in %s", models.StageConversation, unit.Stage)
	}
	if n := unit.UserTurnCount(); n < s.cfg.MinUserTurns {
		return "", invalid("conversation", "ask at least %d questions before finishing (you asked %d)", s.cfg.MinUserTurns, n)
	}

	if unit.Stage == models.StageConversation {
		if err := s.store.SetStage(ctx, rec.ParticipantID, loc, models.StageGenerating); err != nil {
			return "", err
		}
		unit.Stage = models.StageGenerating
	}

	summary, err := s.generator.Summarize(ctx, generation.SummaryRequest{
		Source:    unit.AbstractText,
		UserTurns: unit.UserTurns(),
		Questions: unit.SataQuestions,
	})
	if err != nil {
		return "", &ExternalError{Op: "summary", Err: err}
	}

	if err := s.store.SetGeneratedSummary(ctx, rec.ParticipantID, loc, summary); err != nil {
		return "", err
	}
	if err := s.store.SetStage(ctx, rec.ParticipantID, loc, models.StageQuestions); err != nil {
		return "", err
	}
	unit.GeneratedSummary = &summary
	unit.Stage = models.StageQuestions
	if err := s.flushResumePointer(ctx, rec, loc, unit.Stage); err != nil {
		return "", err
	}
	return summary, nil
}

// SubmitShortAnswers validates the three free-text answers against the
// minimum length and advances questions -> comparison. times carries the
// per-question seconds accumulated across navigation.
func (s *PipelineService) SubmitShortAnswers(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator, answers map[string]string, times map[string]float64) error {
	unit, err := s.unitAt(rec, loc)
	if err != nil {
		return err
	}
	if err := requireStage(unit, models.StageQuestions); err != nil {
		return err
	}
	if unit.UsesSata() {
		return invalid("answers", "this abstract uses select-all-that-apply questions")
	}

	for _, key := range models.ShortAnswerKeys {
		if utf8.RuneCountInString(strings.TrimSpace(answers[key])) < s.cfg.MinAnswerChars {
			return invalid(key, "each response must be at least %d characters", s.cfg.MinAnswerChars)
		}
	}

	set := &models.ShortAnswerSet{
		MainIdea:     strings.TrimSpace(answers["main_idea"]),
		Method:       strings.TrimSpace(answers["method"]),
		Result:       strings.TrimSpace(answers["result"]),
		SubmittedAt:  time.Now().UTC(),
		TimeMainIdea: times["main_idea"],
		TimeMethod:   times["method"],
		TimeResult:   times["result"],
	}

	if err := s.store.SetShortAnswers(ctx, rec.ParticipantID, loc, set); err != nil {
		return err
	}
	if err := s.store.SetStage(ctx, rec.ParticipantID, loc, models.StageComparison); err != nil {
		return err
	}
	unit.ShortAnswers = set
	unit.Stage = models.StageComparison
	return s.flushResumePointer(ctx, rec, loc, unit.Stage)
}

// SubmitSataAnswers validates that every select-many question has at least
// one selection drawn from its choices and advances questions -> comparison.
func (s *PipelineService) SubmitSataAnswers(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator, selections map[string][]string, times map[string]float64) error {
	unit, err := s.unitAt(rec, loc)
	if err != nil {
		return err
	}
	if err := requireStage(unit, models.StageQuestions); err != nil {
		return err
	}
	if !unit.UsesSata() {
		return invalid("answers", "this abstract uses short-answer questions")
	}

	answers := make(map[string]*models.SataAnswer, len(unit.SataQuestions))
	for _, q := range unit.SataQuestions {
		selected := selections[q.Key]
		if len(selected) == 0 {
			return invalid(q.Key, "select at least one option")
		}
		for _, sel := range selected {
			if !containsString(q.Choices, sel) {
				return invalid(q.Key, "option %q is not among the choices", sel)
			}
		}
		answers[q.Key] = &models.SataAnswer{Selected: selected, TimeSeconds: times[q.Key]}
	}

	if err := s.store.SetSataAnswers(ctx, rec.ParticipantID, loc, answers); err != nil {
		return err
	}
	if err := s.store.SetStage(ctx, rec.ParticipantID, loc, models.StageComparison); err != nil {
		return err
	}
	unit.SataAnswers = answers
	unit.Stage = models.StageComparison
	return s.flushResumePointer(ctx, rec, loc, unit.Stage)
}

// StepBack is the only permitted backward move: comparison -> questions,
// before the completion commit. Entered answers are preserved.
func (s *PipelineService) StepBack(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator) error {
	unit, err := s.unitAt(rec, loc)
	if err != nil {
		return err
	}
	if err := requireStage(unit, models.StageComparison); err != nil {
		return err
	}
	if err := s.store.SetStage(ctx, rec.ParticipantID, loc, models.StageQuestions); err != nil {
		return err
	}
	unit.Stage = models.StageQuestions
	return s.flushResumePointer(ctx, rec, loc, unit.Stage)
}

// SubmitComparison validates every required rating scale and, only with the
// explicit confirmation flag, runs the irreversible comparison -> completed
// commit. The completed flag is set exactly once and never reverts.
func (s *PipelineService) SubmitComparison(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator, responses map[string]int, timeSpentSeconds float64, confirmed bool) (studyDone bool, err error) {
	unit, err := s.unitAt(rec, loc)
	if err != nil {
		return false, err
	}
	if err := requireStage(unit, models.StageComparison); err != nil {
		return false, err
	}

	for _, scale := range s.cfg.ScalesFor(loc.Phase) {
		score, ok := responses[scale]
		if !ok {
			return false, invalid(scale, "please answer every rating question")
		}
		if score < 1 || score > 5 {
			return false, invalid(scale, "ratings must be between 1 and 5")
		}
	}
	if !confirmed {
		return false, invalid("confirm", "you will not be able to return to this abstract; please confirm to continue")
	}

	report := &models.LikertReport{
		Timestamp:        time.Now().UTC(),
		TimeSpentSeconds: timeSpentSeconds,
		Responses:        responses,
	}
	if err := s.store.SetLikert(ctx, rec.ParticipantID, loc, report); err != nil {
		return false, err
	}
	if err := s.store.SetUnitCompleted(ctx, rec.ParticipantID, loc); err != nil {
		return false, err
	}
	unit.Likert = report
	unit.Completed = true
	unit.Stage = models.StageCompleted

	done, err := s.scheduler.OnUnitCompleted(ctx, rec, loc)
	if err != nil {
		return false, err
	}
	if done && s.notifier != nil {
		// A notification failure is logged, not surfaced: the commit has
		// already happened.
		if nerr := s.notifier.NotifyStudyCompleted(ctx, rec.ParticipantID); nerr != nil {
			log.Printf("Failed to send completion notification for %s: %v", rec.ParticipantID, nerr)
		}
	}
	return done, nil
}

// flushResumePointer records the stage transition in the resumption pointer.
func (s *PipelineService) flushResumePointer(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator, stage models.Stage) error {
	page := string(stage)
	fullType := loc.FullType()
	if err := s.store.SetResumePointer(ctx, rec.ParticipantID, &page, &fullType, &loc.UnitID); err != nil {
		return err
	}
	rec.LastPage = &page
	rec.LastBatch = &fullType
	rec.LastUnitID = &loc.UnitID
	return nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
