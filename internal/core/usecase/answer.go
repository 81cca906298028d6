package usecase

import (
	"context"
	"log/slog"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
	"github.com/ajones1923/cart-intelligence-agent/internal/core/ports"
)

// Answer modes reported alongside each generated answer.
const (
	ModeEvidence    = "evidence"
	ModeComparative = "comparative"
)

// Default number of prior turns folded into follow-up questions.
const defaultSessionContextTurns = 3

// AnswerUseCase turns a question into a grounded answer: retrieve
// evidence (comparative when the question pits two entities against
// each other), assemble the prompt and generate. A nil session store
// disables conversation memory.
type AnswerUseCase struct {
	retriever    ports.EvidenceRetriever
	generator    ports.AnswerGenerator
	sessions     ports.SessionStore
	logger       *slog.Logger
	contextTurns int
}

// SetContextTurns overrides how many prior turns feed a follow-up
// question. Non-positive values keep the default.
func (uc *AnswerUseCase) SetContextTurns(n int) {
	if n > 0 {
		uc.contextTurns = n
	}
}

func NewAnswerUseCase(
	retriever ports.EvidenceRetriever,
	generator ports.AnswerGenerator,
	sessions ports.SessionStore,
	logger *slog.Logger,
) *AnswerUseCase {
	return &AnswerUseCase{
		retriever:    retriever,
		generator:    generator,
		sessions:     sessions,
		logger:       logger,
		contextTurns: defaultSessionContextTurns,
	}
}

// Answer runs the full pipeline and blocks until the answer is complete.
func (uc *AnswerUseCase) Answer(ctx context.Context, question string, opts domain.RetrieveOptions) (*domain.AgentAnswer, error) {
	return uc.answer(ctx, question, opts, nil, nil)
}

// AnswerStream runs the full pipeline, delivering the assembled evidence
// through onEvidence as soon as retrieval completes and token deltas
// through onToken as the answer is generated. The returned answer carries
// the complete text.
func (uc *AnswerUseCase) AnswerStream(ctx context.Context, question string, opts domain.RetrieveOptions, onEvidence func(*domain.AgentAnswer), onToken func(string)) (*domain.AgentAnswer, error) {
	return uc.answer(ctx, question, opts, onEvidence, onToken)
}

func (uc *AnswerUseCase) answer(ctx context.Context, question string, opts domain.RetrieveOptions, onEvidence func(*domain.AgentAnswer), onToken func(string)) (*domain.AgentAnswer, error) {
	opts.PriorContext = uc.priorContext(ctx, opts.SessionID)

	result, err := uc.assemble(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	if onEvidence != nil {
		onEvidence(&domain.AgentAnswer{
			Mode:        result.mode,
			Evidence:    result.evidence,
			Comparative: result.comparative,
		})
	}

	var answer string
	if onToken != nil {
		answer, err = uc.generator.StreamFromPrompt(ctx, cartSystemPrompt, result.prompt, onToken)
	} else {
		answer, err = uc.generator.GenerateFromPrompt(ctx, cartSystemPrompt, result.prompt)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrGenerationFailed, "generate answer", err)
	}

	uc.recordTurn(ctx, opts.SessionID, question, answer)

	return &domain.AgentAnswer{
		Answer:      answer,
		Mode:        result.mode,
		Evidence:    result.evidence,
		Comparative: result.comparative,
	}, nil
}

type assembled struct {
	mode        string
	prompt      string
	evidence    *domain.CrossCollectionResult
	comparative *domain.ComparativeResult
}

func (uc *AnswerUseCase) assemble(ctx context.Context, question string, opts domain.RetrieveOptions) (*assembled, error) {
	comp, ok, err := uc.retriever.RetrieveComparative(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	if ok {
		return &assembled{
			mode:        ModeComparative,
			prompt:      buildComparativePrompt(question, comp),
			comparative: comp,
		}, nil
	}

	evidence, err := uc.retriever.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	return &assembled{
		mode:     ModeEvidence,
		prompt:   buildEvidencePrompt(question, evidence),
		evidence: evidence,
	}, nil
}

// priorContext loads rendered recent turns for a session. Session
// storage failures never block answering.
func (uc *AnswerUseCase) priorContext(ctx context.Context, sessionID string) string {
	if uc.sessions == nil || sessionID == "" {
		return ""
	}
	prior, err := uc.sessions.RecentContext(ctx, sessionID, uc.contextTurns)
	if err != nil {
		uc.logger.Warn("loading session context failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return ""
	}
	return prior
}

func (uc *AnswerUseCase) recordTurn(ctx context.Context, sessionID, question, answer string) {
	if uc.sessions == nil || sessionID == "" {
		return
	}
	if err := uc.sessions.AppendTurn(ctx, sessionID, question, answer); err != nil {
		uc.logger.Warn("recording session turn failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
}
