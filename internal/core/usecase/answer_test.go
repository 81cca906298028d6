package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

type fakeRetriever struct {
	evidence    *domain.CrossCollectionResult
	comparative *domain.ComparativeResult
	lastOpts    domain.RetrieveOptions
	err         error
}

func (f *fakeRetriever) Retrieve(_ context.Context, question string, opts domain.RetrieveOptions) (*domain.CrossCollectionResult, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.evidence != nil {
		return f.evidence, nil
	}
	return &domain.CrossCollectionResult{Query: question}, nil
}

func (f *fakeRetriever) RetrieveComparative(_ context.Context, _ string, opts domain.RetrieveOptions) (*domain.ComparativeResult, bool, error) {
	f.lastOpts = opts
	if f.comparative == nil {
		return nil, false, nil
	}
	return f.comparative, true, nil
}

func (f *fakeRetriever) FindRelated(context.Context, string, int) (map[string][]domain.SearchHit, error) {
	return nil, nil
}

type fakeGenerator struct {
	answer  string
	err     error
	prompts []string
	systems []string
}

func (f *fakeGenerator) GenerateFromPrompt(_ context.Context, system, prompt string) (string, error) {
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func (f *fakeGenerator) StreamFromPrompt(_ context.Context, system, prompt string, onToken func(string)) (string, error) {
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	for _, tok := range strings.SplitAfter(f.answer, " ") {
		onToken(tok)
	}
	return f.answer, nil
}

type fakeSessions struct {
	context   string
	ctxErr    error
	turns     [][3]string
	appendErr error
}

func (f *fakeSessions) AppendTurn(_ context.Context, sessionID, question, answer string) error {
	f.turns = append(f.turns, [3]string{sessionID, question, answer})
	return f.appendErr
}

func (f *fakeSessions) RecentContext(context.Context, string, int) (string, error) {
	return f.context, f.ctxErr
}

func TestAnswerEvidenceMode(t *testing.T) {
	retriever := &fakeRetriever{evidence: &domain.CrossCollectionResult{
		Query: "q",
		Hits:  []domain.SearchHit{{Collection: "Literature", ID: "9", Text: "evidence"}},
	}}
	gen := &fakeGenerator{answer: "grounded answer"}
	uc := NewAnswerUseCase(retriever, gen, nil, testLogger())

	got, err := uc.Answer(context.Background(), "what causes CRS?", domain.RetrieveOptions{})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Mode != ModeEvidence {
		t.Fatalf("mode = %s", got.Mode)
	}
	if got.Answer != "grounded answer" {
		t.Fatalf("answer = %q", got.Answer)
	}
	if got.Evidence == nil || got.Comparative != nil {
		t.Fatal("evidence mode must carry evidence only")
	}
	if len(gen.systems) != 1 || !strings.Contains(gen.systems[0], "CAR-T cell therapy intelligence agent") {
		t.Error("system prompt not passed to generator")
	}
	if !strings.Contains(gen.systems[0], "**Include regulatory context** when discussing products or approvals") {
		t.Error("regulatory guidance missing from system prompt")
	}
	if !strings.Contains(gen.prompts[0], "## Retrieved Evidence") {
		t.Error("evidence prompt not assembled")
	}
}

func TestAnswerComparativeMode(t *testing.T) {
	retriever := &fakeRetriever{comparative: &domain.ComparativeResult{
		Query:   "CD19 vs BCMA",
		EntityA: domain.ResolvedEntity{Kind: domain.EntityTarget, Name: "CD19", Canonical: "CD19"},
		EntityB: domain.ResolvedEntity{Kind: domain.EntityTarget, Name: "BCMA", Canonical: "BCMA"},
	}}
	gen := &fakeGenerator{answer: "comparison"}
	uc := NewAnswerUseCase(retriever, gen, nil, testLogger())

	got, err := uc.Answer(context.Background(), "CD19 vs BCMA", domain.RetrieveOptions{})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Mode != ModeComparative {
		t.Fatalf("mode = %s", got.Mode)
	}
	if got.Comparative == nil || got.Evidence != nil {
		t.Fatal("comparative mode must carry comparative result only")
	}
	if !strings.Contains(gen.prompts[0], "## Comparative Analysis Evidence") {
		t.Error("comparative prompt not assembled")
	}
}

func TestAnswerStreamDeliversTokens(t *testing.T) {
	retriever := &fakeRetriever{}
	gen := &fakeGenerator{answer: "one two three"}
	uc := NewAnswerUseCase(retriever, gen, nil, testLogger())

	var streamed strings.Builder
	got, err := uc.AnswerStream(context.Background(), "q", domain.RetrieveOptions{}, nil, func(tok string) {
		streamed.WriteString(tok)
	})
	if err != nil {
		t.Fatalf("AnswerStream: %v", err)
	}
	if streamed.String() != "one two three" {
		t.Fatalf("streamed %q", streamed.String())
	}
	if got.Answer != "one two three" {
		t.Fatalf("answer = %q", got.Answer)
	}
}

func TestAnswerStreamDeliversEvidenceBeforeTokens(t *testing.T) {
	retriever := &fakeRetriever{}
	gen := &fakeGenerator{answer: "one two"}
	uc := NewAnswerUseCase(retriever, gen, nil, testLogger())

	var events []string
	var preview *domain.AgentAnswer
	_, err := uc.AnswerStream(context.Background(), "q", domain.RetrieveOptions{}, func(ev *domain.AgentAnswer) {
		events = append(events, "evidence")
		preview = ev
	}, func(string) {
		events = append(events, "token")
	})
	if err != nil {
		t.Fatalf("AnswerStream: %v", err)
	}
	if len(events) == 0 || events[0] != "evidence" {
		t.Fatalf("events = %v, want evidence before any token", events)
	}
	if preview.Mode != ModeEvidence || preview.Evidence == nil {
		t.Fatal("evidence preview must carry the retrieval result")
	}
	if preview.Answer != "" {
		t.Fatalf("preview answer = %q, want empty before generation", preview.Answer)
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	uc := NewAnswerUseCase(&fakeRetriever{}, &fakeGenerator{err: errors.New("model overloaded")}, nil, testLogger())

	_, err := uc.Answer(context.Background(), "q", domain.RetrieveOptions{})
	if !domain.IsKind(err, domain.ErrGenerationFailed) {
		t.Fatalf("error = %v, want generation failure", err)
	}
}

func TestAnswerSessionRoundTrip(t *testing.T) {
	sessions := &fakeSessions{context: "Q: earlier question\nA: earlier answer"}
	retriever := &fakeRetriever{}
	gen := &fakeGenerator{answer: "follow-up answer"}
	uc := NewAnswerUseCase(retriever, gen, sessions, testLogger())

	_, err := uc.Answer(context.Background(), "and then?", domain.RetrieveOptions{SessionID: "s-1"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if retriever.lastOpts.PriorContext != "Q: earlier question\nA: earlier answer" {
		t.Errorf("prior context not forwarded: %q", retriever.lastOpts.PriorContext)
	}
	if len(sessions.turns) != 1 {
		t.Fatalf("recorded %d turns, want 1", len(sessions.turns))
	}
	turn := sessions.turns[0]
	if turn[0] != "s-1" || turn[1] != "and then?" || turn[2] != "follow-up answer" {
		t.Errorf("recorded turn = %v", turn)
	}
}

func TestAnswerSessionFailuresDegrade(t *testing.T) {
	sessions := &fakeSessions{ctxErr: errors.New("db down"), appendErr: errors.New("db down")}
	uc := NewAnswerUseCase(&fakeRetriever{}, &fakeGenerator{answer: "a"}, sessions, testLogger())

	got, err := uc.Answer(context.Background(), "q", domain.RetrieveOptions{SessionID: "s-1"})
	if err != nil {
		t.Fatalf("session failures must not block answering: %v", err)
	}
	if got.Answer != "a" {
		t.Fatalf("answer = %q", got.Answer)
	}
}
