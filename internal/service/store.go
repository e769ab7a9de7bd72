package service

import (
	"context"
	"time"

	"plstudy/internal/generation"
	"plstudy/internal/models"
)

// ParticipantStore is the persistence boundary for participant records. The
// production implementation is repository.ParticipantRepository; tests supply
// an in-memory fake. Every Set method is a partial-field update: a failed
// write must block the stage transition that requested it.
type ParticipantStore interface {
	Find(ctx context.Context, participantID string) (*models.ParticipantRecord, error)
	Insert(ctx context.Context, rec *models.ParticipantRecord) error

	SetStage(ctx context.Context, participantID string, loc models.UnitLocator, stage models.Stage) error
	SetTermFamiliarity(ctx context.Context, participantID string, loc models.UnitLocator, terms []models.TermEntry) error
	SetStageSeconds(ctx context.Context, participantID string, loc models.UnitLocator, stage models.Stage, seconds float64) error
	AppendConversationTurn(ctx context.Context, participantID string, loc models.UnitLocator, turn models.ChatTurn) error
	SetGeneratedSummary(ctx context.Context, participantID string, loc models.UnitLocator, summary string) error
	SetShortAnswers(ctx context.Context, participantID string, loc models.UnitLocator, answers *models.ShortAnswerSet) error
	SetSataAnswers(ctx context.Context, participantID string, loc models.UnitLocator, answers map[string]*models.SataAnswer) error
	SetLikert(ctx context.Context, participantID string, loc models.UnitLocator, report *models.LikertReport) error
	SetUnitCompleted(ctx context.Context, participantID string, loc models.UnitLocator) error

	SetBatchCompleted(ctx context.Context, participantID, phase, batchID string) error
	SetPhaseCompleted(ctx context.Context, participantID, phase string) error
	SetBatchUnlocked(ctx context.Context, participantID, phase, batchID string) error
	SetSeenInstructions(ctx context.Context, participantID, phase, batchID string) error
	SetBatchTimeReport(ctx context.Context, participantID, phase, batchID string, report *models.BatchTimeReport) error
	SetConfirmedCompletion(ctx context.Context, participantID, phase, batchID string, confirmed bool) error

	SetResumePointer(ctx context.Context, participantID string, page, batch, unitID *string) error
	SetStudyCompleted(ctx context.Context, participantID string, at time.Time) error

	ListAll(ctx context.Context) ([]models.ParticipantRecord, error)
}

// Generator is the text-generation collaborator: a stateless
// request/response service. Calls are synchronous and are not retried here.
type Generator interface {
	Respond(ctx context.Context, abstract string, history []models.ChatTurn) (string, error)
	Summarize(ctx context.Context, req generation.SummaryRequest) (string, error)
}

// CompletionNotifier is told when a participant finishes the whole study.
type CompletionNotifier interface {
	NotifyStudyCompleted(ctx context.Context, participantID string) error
}
