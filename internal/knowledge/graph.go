// Package knowledge is the static CAR-T domain graph: target antigens,
// toxicity profiles, manufacturing processes, biomarkers, regulatory
// products and immunogenicity topics, plus the alias table used for
// entity resolution. All lookups are total: a miss renders as an empty
// string, never an error.
package knowledge

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var knowledgeYAML []byte

type labeledValue struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

type target struct {
	Name             string         `yaml:"name"`
	Protein          string         `yaml:"protein"`
	Expression       string         `yaml:"expression"`
	Diseases         []string       `yaml:"diseases"`
	ApprovedProducts []string       `yaml:"approved_products"`
	KeyTrials        []string       `yaml:"key_trials"`
	KnownResistance  []string       `yaml:"known_resistance"`
	ToxicityProfile  []labeledValue `yaml:"toxicity_profile"`
	NormalTissue     string         `yaml:"normal_tissue"`
}

type toxicity struct {
	Name        string   `yaml:"name"`
	FullName    string   `yaml:"full_name"`
	Mechanism   string   `yaml:"mechanism"`
	Incidence   string   `yaml:"incidence"`
	Timing      string   `yaml:"timing"`
	Management  []string `yaml:"management"`
	Biomarkers  []string `yaml:"biomarkers"`
	RiskFactors []string `yaml:"risk_factors"`
	Aliases     []string `yaml:"aliases"`
}

type process struct {
	Name               string         `yaml:"name"`
	Label              string         `yaml:"label"`
	Description        string         `yaml:"description"`
	Facts              []labeledValue `yaml:"facts"`
	CriticalParameters []string       `yaml:"critical_parameters"`
	FailureModes       []string       `yaml:"failure_modes"`
	Keywords           []string       `yaml:"keywords"`
}

type biomarker struct {
	Name              string `yaml:"name"`
	FullName          string `yaml:"full_name"`
	Type              string `yaml:"type"`
	AssayMethod       string `yaml:"assay_method"`
	ClinicalCutoff    string `yaml:"clinical_cutoff"`
	PredictiveValue   string `yaml:"predictive_value"`
	AssociatedOutcome string `yaml:"associated_outcome"`
	EvidenceLevel     string `yaml:"evidence_level"`
}

type approval struct {
	Date       string `yaml:"date"`
	Indication string `yaml:"indication"`
	Trial      string `yaml:"trial"`
}

type product struct {
	Name                string     `yaml:"name"`
	GenericName         string     `yaml:"generic_name"`
	Manufacturer        string     `yaml:"manufacturer"`
	InitialApproval     string     `yaml:"initial_approval"`
	InitialIndication   string     `yaml:"initial_indication"`
	PivotalTrial        string     `yaml:"pivotal_trial"`
	Designations        []string   `yaml:"designations"`
	REMS                string     `yaml:"rems"`
	SubsequentApprovals []approval `yaml:"subsequent_approvals"`
	EMAApproval         string     `yaml:"ema_approval"`
}

type immunogenicityTopic struct {
	Name        string         `yaml:"name"`
	Topic       string         `yaml:"topic"`
	Description string         `yaml:"description"`
	Facts       []labeledValue `yaml:"facts"`
	Keywords    []string       `yaml:"keywords"`
}

type aliasEntry struct {
	Alias     string `yaml:"alias"`
	Kind      string `yaml:"kind"`
	Canonical string `yaml:"canonical"`
	Target    string `yaml:"target"`
}

// Graph is the parsed knowledge base. Tables keep declaration order so
// rendered context is deterministic.
type Graph struct {
	targets        []target
	toxicities     []toxicity
	manufacturing  []process
	biomarkers     []biomarker
	regulatory     []product
	immunogenicity []immunogenicityTopic
	aliases        []aliasEntry

	targetByName    map[string]*target
	toxicityByName  map[string]*toxicity
	processByName   map[string]*process
	biomarkerByName map[string]*biomarker
	productByName   map[string]*product
	topicByName     map[string]*immunogenicityTopic
	aliasByName     map[string]*aliasEntry
}

// NewGraph parses the embedded knowledge tables.
func NewGraph() (*Graph, error) {
	return newGraphFrom(knowledgeYAML)
}

func newGraphFrom(raw []byte) (*Graph, error) {
	var doc struct {
		Targets        []target              `yaml:"targets"`
		Toxicities     []toxicity            `yaml:"toxicities"`
		Manufacturing  []process             `yaml:"manufacturing"`
		Biomarkers     []biomarker           `yaml:"biomarkers"`
		Regulatory     []product             `yaml:"regulatory"`
		Immunogenicity []immunogenicityTopic `yaml:"immunogenicity"`
		Aliases        []aliasEntry          `yaml:"aliases"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge graph: %w", err)
	}
	if len(doc.Targets) == 0 || len(doc.Toxicities) == 0 {
		return nil, fmt.Errorf("parse knowledge graph: core tables missing")
	}
	g := &Graph{
		targets:        doc.Targets,
		toxicities:     doc.Toxicities,
		manufacturing:  doc.Manufacturing,
		biomarkers:     doc.Biomarkers,
		regulatory:     doc.Regulatory,
		immunogenicity: doc.Immunogenicity,
		aliases:        doc.Aliases,

		targetByName:    make(map[string]*target, len(doc.Targets)),
		toxicityByName:  make(map[string]*toxicity, len(doc.Toxicities)),
		processByName:   make(map[string]*process, len(doc.Manufacturing)),
		biomarkerByName: make(map[string]*biomarker, len(doc.Biomarkers)),
		productByName:   make(map[string]*product, len(doc.Regulatory)),
		topicByName:     make(map[string]*immunogenicityTopic, len(doc.Immunogenicity)),
		aliasByName:     make(map[string]*aliasEntry, len(doc.Aliases)),
	}
	for i := range g.targets {
		g.targetByName[strings.ToUpper(g.targets[i].Name)] = &g.targets[i]
	}
	for i := range g.toxicities {
		g.toxicityByName[strings.ToUpper(g.toxicities[i].Name)] = &g.toxicities[i]
	}
	for i := range g.manufacturing {
		g.processByName[strings.ToLower(g.manufacturing[i].Name)] = &g.manufacturing[i]
	}
	for i := range g.biomarkers {
		g.biomarkerByName[strings.ToLower(g.biomarkers[i].Name)] = &g.biomarkers[i]
	}
	for i := range g.regulatory {
		g.productByName[strings.ToLower(g.regulatory[i].Name)] = &g.regulatory[i]
	}
	for i := range g.immunogenicity {
		g.topicByName[strings.ToLower(g.immunogenicity[i].Name)] = &g.immunogenicity[i]
	}
	for i := range g.aliases {
		g.aliasByName[strings.ToUpper(g.aliases[i].Alias)] = &g.aliases[i]
	}
	return g, nil
}

// TargetContext renders the knowledge block for a target antigen, or ""
// when the antigen is unknown.
func (g *Graph) TargetContext(antigen string) string {
	t, ok := g.targetByName[strings.ToUpper(strings.TrimSpace(antigen))]
	if !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Target Antigen: %s\n", t.Name)
	fmt.Fprintf(&b, "- **Protein:** %s\n", t.Protein)
	fmt.Fprintf(&b, "- **Expression:** %s\n", t.Expression)
	fmt.Fprintf(&b, "- **Diseases:** %s", strings.Join(t.Diseases, ", "))
	if len(t.ApprovedProducts) > 0 {
		fmt.Fprintf(&b, "\n- **Approved Products:** %s", strings.Join(t.ApprovedProducts, "; "))
	}
	if len(t.KeyTrials) > 0 {
		fmt.Fprintf(&b, "\n- **Key Trials:** %s", strings.Join(t.KeyTrials, ", "))
	}
	if len(t.KnownResistance) > 0 {
		fmt.Fprintf(&b, "\n- **Resistance Mechanisms:** %s", strings.Join(t.KnownResistance, "; "))
	}
	if len(t.ToxicityProfile) > 0 {
		pairs := make([]string, len(t.ToxicityProfile))
		for i, p := range t.ToxicityProfile {
			pairs[i] = fmt.Sprintf("%s: %s", p.Label, p.Value)
		}
		fmt.Fprintf(&b, "\n- **Toxicity Profile:** %s", strings.Join(pairs, ", "))
	}
	if t.NormalTissue != "" {
		fmt.Fprintf(&b, "\n- **Normal Tissue Expression:** %s", t.NormalTissue)
	}
	return b.String()
}

// ToxicityContext renders the knowledge block for a toxicity profile.
// Lookups normalize spaces to underscores, so "HLH MAS" finds HLH_MAS.
func (g *Graph) ToxicityContext(name string) string {
	key := strings.ToUpper(strings.TrimSpace(name))
	t, ok := g.toxicityByName[key]
	if !ok {
		t, ok = g.toxicityByName[strings.ReplaceAll(key, " ", "_")]
		if !ok {
			return ""
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Toxicity: %s (%s)\n", t.FullName, t.Name)
	fmt.Fprintf(&b, "- **Mechanism:** %s\n", t.Mechanism)
	fmt.Fprintf(&b, "- **Incidence:** %s\n", t.Incidence)
	fmt.Fprintf(&b, "- **Timing:** %s", t.Timing)
	if len(t.Management) > 0 {
		b.WriteString("\n- **Management:**")
		for _, m := range t.Management {
			fmt.Fprintf(&b, "\n  - %s", m)
		}
	}
	if len(t.Biomarkers) > 0 {
		fmt.Fprintf(&b, "\n- **Biomarkers:** %s", strings.Join(t.Biomarkers, ", "))
	}
	if len(t.RiskFactors) > 0 {
		fmt.Fprintf(&b, "\n- **Risk Factors:** %s", strings.Join(t.RiskFactors, "; "))
	}
	return b.String()
}

// ManufacturingContext renders the knowledge block for a process. The
// lookup is fuzzy: an exact key match wins, otherwise the first process
// whose key contains the normalized query is used.
func (g *Graph) ManufacturingContext(name string) string {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	p, ok := g.processByName[key]
	if !ok {
		for i := range g.manufacturing {
			if strings.Contains(strings.ToLower(g.manufacturing[i].Name), key) {
				p = &g.manufacturing[i]
				ok = true
				break
			}
		}
		if !ok {
			return ""
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Manufacturing: %s\n", p.Label)
	fmt.Fprintf(&b, "- **Description:** %s", p.Description)
	for _, f := range p.Facts {
		fmt.Fprintf(&b, "\n- **%s:** %s", f.Label, f.Value)
	}
	if len(p.CriticalParameters) > 0 {
		b.WriteString("\n- **Critical Parameters:**")
		for _, c := range p.CriticalParameters {
			fmt.Fprintf(&b, "\n  - %s", c)
		}
	}
	if len(p.FailureModes) > 0 {
		b.WriteString("\n- **Failure Modes:**")
		for _, f := range p.FailureModes {
			fmt.Fprintf(&b, "\n  - %s", f)
		}
	}
	return b.String()
}

// BiomarkerContext renders the knowledge block for a biomarker key such
// as "ferritin" or "il6".
func (g *Graph) BiomarkerContext(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, " ", "_")
	m, ok := g.biomarkerByName[key]
	if !ok {
		return ""
	}
	return strings.Join([]string{
		fmt.Sprintf("Biomarker: %s", m.FullName),
		fmt.Sprintf("  Type: %s", m.Type),
		fmt.Sprintf("  Assay Method: %s", m.AssayMethod),
		fmt.Sprintf("  Clinical Cutoff: %s", m.ClinicalCutoff),
		fmt.Sprintf("  Predictive Value: %s", m.PredictiveValue),
		fmt.Sprintf("  Associated Outcome: %s", m.AssociatedOutcome),
		fmt.Sprintf("  Evidence Level: %s", m.EvidenceLevel),
	}, "\n")
}

// RegulatoryContext renders the approval history for a product, matched
// by brand or generic name.
func (g *Graph) RegulatoryContext(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	p, ok := g.productByName[lowered]
	if !ok {
		for i := range g.regulatory {
			brand := strings.ToLower(g.regulatory[i].Name)
			generic := strings.ToLower(g.regulatory[i].GenericName)
			if strings.Contains(lowered, generic) || strings.Contains(brand, lowered) {
				p = &g.regulatory[i]
				ok = true
				break
			}
		}
		if !ok {
			return ""
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Regulatory Profile: %s\n", p.Name)
	fmt.Fprintf(&b, "  Generic Name: %s\n", p.GenericName)
	fmt.Fprintf(&b, "  Manufacturer: %s\n", p.Manufacturer)
	fmt.Fprintf(&b, "  Initial FDA Approval: %s\n", p.InitialApproval)
	fmt.Fprintf(&b, "  Initial Indication: %s\n", p.InitialIndication)
	fmt.Fprintf(&b, "  Pivotal Trial: %s\n", p.PivotalTrial)
	fmt.Fprintf(&b, "  Designations: %s\n", strings.Join(p.Designations, ", "))
	fmt.Fprintf(&b, "  REMS: %s", p.REMS)
	if len(p.SubsequentApprovals) > 0 {
		b.WriteString("\n  Subsequent Approvals:")
		for _, sa := range p.SubsequentApprovals {
			fmt.Fprintf(&b, "\n    - %s: %s (%s)", sa.Date, sa.Indication, sa.Trial)
		}
	}
	if p.EMAApproval != "" {
		fmt.Fprintf(&b, "\n  EMA Approval: %s", p.EMAApproval)
	}
	return b.String()
}

// ImmunogenicityContext renders the knowledge block for an
// immunogenicity topic key, with partial-key fallback.
func (g *Graph) ImmunogenicityContext(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	t, ok := g.topicByName[key]
	if !ok {
		for i := range g.immunogenicity {
			if strings.Contains(strings.ToLower(g.immunogenicity[i].Name), key) {
				t = &g.immunogenicity[i]
				ok = true
				break
			}
		}
		if !ok {
			return ""
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Immunogenicity: %s\n", t.Topic)
	fmt.Fprintf(&b, "- %s", t.Description)
	for _, f := range t.Facts {
		fmt.Fprintf(&b, "\n- **%s:** %s", f.Label, f.Value)
	}
	return b.String()
}

// AllContextForQuery scans the query for known targets, toxicity
// aliases, manufacturing keywords, biomarkers, product names and
// immunogenicity keywords, concatenating every matched context block.
func (g *Graph) AllContextForQuery(query string) string {
	upper := strings.ToUpper(query)
	lower := strings.ToLower(query)
	var sections []string

	for _, t := range g.targets {
		if strings.Contains(upper, strings.ToUpper(t.Name)) {
			sections = append(sections, g.TargetContext(t.Name))
		}
	}
	for _, t := range g.toxicities {
		for _, alias := range t.Aliases {
			if strings.Contains(upper, alias) {
				sections = append(sections, g.ToxicityContext(t.Name))
				break
			}
		}
	}
	for _, p := range g.manufacturing {
		for _, kw := range p.Keywords {
			if strings.Contains(upper, kw) {
				sections = append(sections, g.ManufacturingContext(p.Name))
				break
			}
		}
	}
	for _, m := range g.biomarkers {
		if strings.Contains(lower, m.Name) || strings.Contains(lower, strings.ToLower(m.FullName)) {
			sections = append(sections, g.BiomarkerContext(m.Name))
		}
	}
	for _, p := range g.regulatory {
		if strings.Contains(lower, strings.ToLower(p.Name)) || strings.Contains(lower, strings.ToLower(p.GenericName)) {
			sections = append(sections, g.RegulatoryContext(p.Name))
		}
	}
	for _, t := range g.immunogenicity {
		for _, kw := range t.Keywords {
			if strings.Contains(upper, kw) {
				sections = append(sections, g.ImmunogenicityContext(t.Name))
				break
			}
		}
	}
	return strings.Join(sections, "\n\n")
}

// Stats counts every knowledge table.
func (g *Graph) Stats() map[string]int {
	withProducts := 0
	for _, t := range g.targets {
		if len(t.ApprovedProducts) > 0 {
			withProducts++
		}
	}
	return map[string]int{
		"target_antigens":                len(g.targets),
		"targets_with_approved_products": withProducts,
		"toxicity_profiles":              len(g.toxicities),
		"manufacturing_processes":        len(g.manufacturing),
		"biomarkers":                     len(g.biomarkers),
		"regulatory_products":            len(g.regulatory),
		"immunogenicity_topics":          len(g.immunogenicity),
	}
}
