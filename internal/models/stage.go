package models

import "fmt"

// Stage identifies a unit's position in the task pipeline.
type Stage string

const (
	StageFamiliarity  Stage = "familiarity"
	StageExtraInfo    Stage = "extra_info"
	StageConversation Stage = "conversation"
	StageGenerating   Stage = "generating"
	StageQuestions    Stage = "questions"
	StageComparison   Stage = "comparison"
	StageCompleted    Stage = "completed"
)

// PipelineVariant selects which stage sequence a phase uses.
type PipelineVariant string

const (
	// VariantVocabulary runs the term-familiarity pipeline (static, finetuned).
	VariantVocabulary PipelineVariant = "vocabulary"
	// VariantConversational runs the chat-and-generate pipeline (interactive).
	VariantConversational PipelineVariant = "conversational"
)

// Stages returns the ordered stage sequence for the variant.
func (v PipelineVariant) Stages() []Stage {
	switch v {
	case VariantConversational:
		return []Stage{StageConversation, StageGenerating, StageQuestions, StageComparison, StageCompleted}
	default:
		return []Stage{StageFamiliarity, StageExtraInfo, StageQuestions, StageComparison, StageCompleted}
	}
}

// Initial returns the first stage of the variant.
func (v PipelineVariant) Initial() Stage {
	return v.Stages()[0]
}

// Contains reports whether the stage belongs to the variant's sequence.
func (v PipelineVariant) Contains(s Stage) bool {
	for _, st := range v.Stages() {
		if st == s {
			return true
		}
	}
	return false
}

// NextStage returns the stage that follows s in the variant's sequence.
func NextStage(v PipelineVariant, s Stage) (Stage, error) {
	stages := v.Stages()
	for i, st := range stages {
		if st == s {
			if i == len(stages)-1 {
				return "", fmt.Errorf("stage %q is terminal", s)
			}
			return stages[i+1], nil
		}
	}
	return "", fmt.Errorf("stage %q not in %s pipeline", s, v)
}

// Terminal reports whether the stage is the end of the pipeline.
func (s Stage) Terminal() bool {
	return s == StageCompleted
}

// ParseStage validates a persisted stage name.
func ParseStage(raw string) (Stage, error) {
	switch Stage(raw) {
	case StageFamiliarity, StageExtraInfo, StageConversation, StageGenerating,
		StageQuestions, StageComparison, StageCompleted:
		return Stage(raw), nil
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}
