package usecase

import (
	"fmt"
	"strings"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

const cartSystemPrompt = `You are a CAR-T cell therapy intelligence agent with deep expertise in:

1. **Target Identification** — antigen biology, expression profiling, tumor specificity
2. **CAR Design** — scFv selection, costimulatory domains (CD28 vs 4-1BB), signaling architecture
3. **Vector Engineering** — lentiviral/retroviral production, transduction efficiency, VCN optimization
4. **In Vitro & In Vivo Testing** — cytotoxicity assays, cytokine profiling, mouse models, persistence
5. **Clinical Development** — trial design, response rates, toxicity management (CRS, ICANS)
6. **Manufacturing** — leukapheresis, T-cell expansion, cryopreservation, release testing, CMC
7. **Safety & Pharmacovigilance** — post-market safety signals, REMS, long-term follow-up, FAERS
8. **Biomarkers** — CRS prediction (ferritin, CRP, IL-6), response biomarkers, MRD monitoring, exhaustion markers
9. **Regulatory Intelligence** — FDA approval pathways, BLA timelines, breakthrough therapy, RMAT, EMA
10. **Molecular Design** — scFv binding affinity, CDR sequences, humanization, nanobodies, structural data
11. **Real-World Evidence** — registry outcomes (CIBMTR), community vs academic, special populations, disparities
12. **Genomic Evidence** — patient variant data, clinical significance (ClinVar), AlphaMissense pathogenicity, gene-level variant analysis

You have access to evidence from MULTIPLE data sources spanning the entire CAR-T development lifecycle,
from patient genomics and molecular design through post-market pharmacovigilance.

When answering questions:
- **Cite evidence using clickable markdown links** provided in the evidence. Use the exact
  link format from the evidence, e.g. [Literature:PMID 12345678](https://pubmed.ncbi.nlm.nih.gov/12345678/)
  or [Trial:NCT12345678](https://clinicaltrials.gov/study/NCT12345678). For Assay, Construct,
  Manufacturing, Safety, Biomarker, Regulatory, Sequence, and RealWorld sources, use the
  format [Collection:record-id] (no URL needed).
- **Think cross-functionally** — connect insights across development stages
  (e.g., how manufacturing choices affect clinical outcomes, how biomarkers predict safety)
- **Highlight failure modes** and resistance mechanisms when relevant
- **Suggest optimization strategies** based on historical data and published results
- **Be specific** — cite trial names (ELIANA, ZUMA-1), products (Kymriah, Yescarta),
  and quantitative data when available
- **Include regulatory context** when discussing products or approvals
- **Reference real-world evidence** to complement clinical trial data
- **Acknowledge uncertainty** — distinguish established facts from emerging data

Your goal is to break down data silos and provide unified intelligence that accelerates
CAR-T development from target to clinical candidate.`

const (
	evidenceHitsPerCollection    = 5
	evidenceSnippetLen           = 500
	comparativeHitsPerCollection = 4
	comparativeSnippetLen        = 400
)

// formatCitation renders one hit's citation. Literature and trial
// records get clickable source links; everything else stays a plain
// bracketed reference.
func formatCitation(collection, id string) string {
	if collection == "Literature" && isAllDigits(id) {
		return fmt.Sprintf("[Literature:PMID %s](https://pubmed.ncbi.nlm.nih.gov/%s/)", id, id)
	}
	if collection == "Trial" && strings.HasPrefix(strings.ToUpper(id), "NCT") {
		return fmt.Sprintf("[Trial:%s](https://clinicaltrials.gov/study/%s)", id, id)
	}
	return fmt.Sprintf("[%s:%s]", collection, id)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// groupHits splits hits into per-collection groups, keeping rank order
// inside each group and the order collections first appear in overall.
func groupHits(hits []domain.SearchHit) (order []string, grouped map[string][]domain.SearchHit) {
	grouped = make(map[string][]domain.SearchHit)
	for _, h := range hits {
		if _, seen := grouped[h.Collection]; !seen {
			order = append(order, h.Collection)
		}
		grouped[h.Collection] = append(grouped[h.Collection], h)
	}
	return order, grouped
}

func buildEvidencePrompt(question string, evidence *domain.CrossCollectionResult) string {
	order, grouped := groupHits(evidence.Hits)

	var sections []string
	for _, coll := range order {
		lines := []string{fmt.Sprintf("### Evidence from %s", coll)}
		for i, hit := range grouped[coll] {
			if i >= evidenceHitsPerCollection {
				break
			}
			lines = append(lines, fmt.Sprintf(
				"%d. %s [%s relevance] (score=%.3f) %s",
				i+1,
				formatCitation(hit.Collection, hit.ID),
				hit.Relevance,
				hit.WeightedScore,
				truncateText(hit.Text, evidenceSnippetLen),
			))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	evidenceText := "No evidence found."
	if len(sections) > 0 {
		evidenceText = strings.Join(sections, "\n\n")
	}

	knowledgeText := ""
	if evidence.KnowledgeContext != "" {
		knowledgeText = fmt.Sprintf("\n\n### Knowledge Graph Context\n%s", evidence.KnowledgeContext)
	}

	return fmt.Sprintf(
		"## Retrieved Evidence\n\n%s%s\n\n---\n\n## Question\n\n%s\n\n"+
			"Please provide a comprehensive answer grounded in the evidence above. "+
			"Cite sources using the clickable markdown links provided in each evidence item. "+
			"Prioritize [high relevance] citations. "+
			"Consider cross-functional insights across all stages of CAR-T development.",
		evidenceText, knowledgeText, question,
	)
}

func buildComparativePrompt(question string, comp *domain.ComparativeResult) string {
	sideA := formatComparativeSide(comp.EntityA.Name, comp.HitsA)
	sideB := formatComparativeSide(comp.EntityB.Name, comp.HitsB)

	knowledgeText := ""
	if comp.ComparisonContext != "" {
		knowledgeText = fmt.Sprintf("\n\n### Knowledge Graph Comparison Data\n%s", comp.ComparisonContext)
	}

	return fmt.Sprintf(
		"## Comparative Analysis Evidence\n\n%s\n\n---\n\n%s%s\n\n---\n\n"+
			"## Question\n\n%s\n\n## Instructions\n\n"+
			"Provide a structured comparison of **%s** vs **%s**. Your response MUST include:\n\n"+
			"1. A **comparison table** in markdown format with key dimensions as rows and the two entities as columns.\n"+
			"2. **Advantages** of each entity (bulleted list).\n"+
			"3. **Limitations** of each entity (bulleted list).\n"+
			"4. A **clinical context** paragraph explaining when each might be preferred.\n\n"+
			"Cite sources using the clickable markdown links provided in the evidence above.",
		sideA, sideB, knowledgeText, question, comp.EntityA.Name, comp.EntityB.Name,
	)
}

func formatComparativeSide(label string, hits []domain.SearchHit) string {
	order, grouped := groupHits(hits)
	if len(order) == 0 {
		return fmt.Sprintf("### Evidence for %s\nNo evidence found.", label)
	}

	var sections []string
	for _, coll := range order {
		lines := []string{fmt.Sprintf("#### %s", coll)}
		for i, hit := range grouped[coll] {
			if i >= comparativeHitsPerCollection {
				break
			}
			lines = append(lines, fmt.Sprintf(
				"%d. %s (score=%.3f) %s",
				i+1,
				formatCitation(hit.Collection, hit.ID),
				hit.WeightedScore,
				truncateText(hit.Text, comparativeSnippetLen),
			))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return fmt.Sprintf("### Evidence for %s\n\n%s", label, strings.Join(sections, "\n\n"))
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
