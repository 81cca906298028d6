package usecase

import (
	"strings"
	"testing"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

func TestFormatCitation(t *testing.T) {
	cases := []struct {
		collection string
		id         string
		want       string
	}{
		{"Literature", "34891234", "[Literature:PMID 34891234](https://pubmed.ncbi.nlm.nih.gov/34891234/)"},
		{"Literature", "doi:10.1/x", "[Literature:doi:10.1/x]"},
		{"Trial", "NCT02445248", "[Trial:NCT02445248](https://clinicaltrials.gov/study/NCT02445248)"},
		{"Trial", "nct02445248", "[Trial:nct02445248](https://clinicaltrials.gov/study/nct02445248)"},
		{"Trial", "EUDRA-1", "[Trial:EUDRA-1]"},
		{"Construct", "c-104", "[Construct:c-104]"},
		{"Literature", "", "[Literature:]"},
	}
	for _, tc := range cases {
		if got := formatCitation(tc.collection, tc.id); got != tc.want {
			t.Errorf("formatCitation(%q, %q) = %q, want %q", tc.collection, tc.id, got, tc.want)
		}
	}
}

func TestBuildEvidencePrompt(t *testing.T) {
	evidence := &domain.CrossCollectionResult{
		Query: "CD19 relapse",
		Hits: []domain.SearchHit{
			{Collection: "Literature", ID: "123", Score: 0.9, WeightedScore: 1.17, Relevance: domain.RelevanceHigh, Text: "Antigen loss drives relapse."},
			{Collection: "Trial", ID: "NCT1", Score: 0.6, WeightedScore: 0.75, Relevance: domain.RelevanceMedium, Text: "ELIANA long-term follow-up."},
		},
		KnowledgeContext: "## Target Antigen: CD19",
	}

	prompt := buildEvidencePrompt("CD19 relapse", evidence)

	for _, want := range []string{
		"## Retrieved Evidence",
		"### Evidence from Literature",
		"### Evidence from Trial",
		"[Literature:PMID 123](https://pubmed.ncbi.nlm.nih.gov/123/)",
		"[high relevance]",
		"[medium relevance]",
		"(score=1.170)",
		"### Knowledge Graph Context",
		"## Target Antigen: CD19",
		"## Question\n\nCD19 relapse",
		"Prioritize [high relevance] citations.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildEvidencePromptTruncatesAndLimits(t *testing.T) {
	long := strings.Repeat("x", 600)
	var hits []domain.SearchHit
	for i := 0; i < 8; i++ {
		hits = append(hits, domain.SearchHit{
			Collection: "Literature",
			ID:         string(rune('a' + i)),
			Text:       long,
			Relevance:  domain.RelevanceLow,
		})
	}
	prompt := buildEvidencePrompt("q", &domain.CrossCollectionResult{Hits: hits})

	if got := strings.Count(prompt, "[Literature:"); got != evidenceHitsPerCollection {
		t.Errorf("rendered %d hits, want %d", got, evidenceHitsPerCollection)
	}
	if strings.Contains(prompt, strings.Repeat("x", evidenceSnippetLen+1)) {
		t.Error("hit text not truncated")
	}
}

func TestBuildEvidencePromptNoEvidence(t *testing.T) {
	prompt := buildEvidencePrompt("anything", &domain.CrossCollectionResult{})
	if !strings.Contains(prompt, "No evidence found.") {
		t.Error("empty evidence should say so")
	}
}

func TestBuildComparativePrompt(t *testing.T) {
	comp := &domain.ComparativeResult{
		Query:   "CD19 vs BCMA",
		EntityA: domain.ResolvedEntity{Kind: domain.EntityTarget, Name: "CD19", Canonical: "CD19"},
		EntityB: domain.ResolvedEntity{Kind: domain.EntityTarget, Name: "BCMA", Canonical: "BCMA"},
		HitsA: []domain.SearchHit{
			{Collection: "Literature", ID: "1", WeightedScore: 1.1, Text: "CD19 evidence"},
		},
		ComparisonContext: "### CD19\n...",
	}

	prompt := buildComparativePrompt("CD19 vs BCMA", comp)

	for _, want := range []string{
		"## Comparative Analysis Evidence",
		"### Evidence for CD19",
		"#### Literature",
		"### Evidence for BCMA\nNo evidence found.",
		"### Knowledge Graph Comparison Data",
		"**CD19** vs **BCMA**",
		"comparison table",
		"clinical context",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
