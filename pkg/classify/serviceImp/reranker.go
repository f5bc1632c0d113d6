package serviceImp

import (
	"encoding/json"
	"fmt"
	"strings"

	"triage/pkg/classify/service"
	fsservice "triage/pkg/fewshot/service"
)

const (
	classifierSystemPrompt = "You are an expert IT service desk classifier. Always respond with valid JSON only."

	llmTemperature = 0.1
	llmMaxTokens   = 500

	maxGlobalExamples    = 5
	maxCandidateExamples = 2

	noExamplesMarker = "No specific examples available for this category."
)

// rerankDecision is the structured object the completion capability is
// instructed to return. Anything that doesn't parse into it maps to the
// "no suitable classification" outcome.
type rerankDecision struct {
	SelectedID    *uint   `json:"selected_id"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
}

// rerank asks the LLM to pick among the ranked candidates. Call-level errors
// and parse failures degrade to a null decision so the pipeline proceeds to
// the confidence gate instead of aborting.
func (s *Svc) rerank(ticketText string, candidates []service.Candidate) rerankDecision {
	prompt := s.buildRerankPrompt(ticketText, candidates)

	raw, err := s.llm.Complete(classifierSystemPrompt, prompt, llmTemperature, llmMaxTokens)
	if err != nil {
		s.log.Error("llm classification failed", "err", err)
		return rerankDecision{Justification: fmt.Sprintf("Error: %v", err)}
	}

	decision, err := parseRerankDecision(raw)
	if err != nil {
		s.log.Error("llm response did not parse", "err", err, "raw", raw)
		return rerankDecision{Justification: fmt.Sprintf("Error: %v", err)}
	}
	return decision
}

func parseRerankDecision(raw string) (rerankDecision, error) {
	var d rerankDecision
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &d); err != nil {
		return rerankDecision{}, fmt.Errorf("parse rerank decision: %w", err)
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	return d, nil
}

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language tag, before structural parsing.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

func (s *Svc) buildRerankPrompt(ticketText string, candidates []service.Candidate) string {
	var b strings.Builder

	b.WriteString("You are an expert IT service desk classifier. Your task is to classify a support ticket into the most appropriate category from the given candidates.\n\n")
	b.WriteString("GENERAL CLASSIFICATION EXAMPLES:\n")
	b.WriteString(s.globalExamplesSection())
	b.WriteString("\nNow classify this ticket:\nTICKET: ")
	b.WriteString(ticketText)
	b.WriteString("\n\nCANDIDATE CATEGORIES (each with real ticket examples):\n")

	for _, cand := range candidates {
		cti := cand.CTI
		fmt.Fprintf(&b, "\nID: %d\nCategory: %s\nType: %s\nItem: %s\nResolver Group: %s\nRequest Type: %s\nSLA: %s\nSimilarity Score: %.3f\n\nREAL TICKET EXAMPLES FOR THIS CATEGORY:\n%s\n---\n",
			cti.ID, cti.Category, cti.Type, cti.Item,
			cti.ResolverGroup, cti.RequestType, cti.SLA, cand.Score,
			s.candidateExamplesSection(cand))
	}

	b.WriteString(`
Analyze the ticket content and select the MOST APPROPRIATE category ID. Consider:
1. The specific technical issue described
2. The type of request (incident vs request)
3. The service area involved
4. The appropriate resolver group
5. How similar the ticket is to the REAL EXAMPLES shown for each candidate
6. The quality and quantity of examples available for each candidate

Pay special attention to the "REAL TICKET EXAMPLES" for each candidate - these show you exactly what types of tickets belong to each category.

Respond with EXACTLY this JSON format:
{
    "selected_id": <ID_NUMBER>,
    "confidence": <0.0_to_1.0>,
    "justification": "<brief explanation of why this category was selected>"
}

If none of the candidates are appropriate, respond with:
{
    "selected_id": null,
    "confidence": 0.0,
    "justification": "No suitable category found among candidates"
}`)

	return b.String()
}

// globalExamplesSection formats the highest-weighted training examples.
// A repository failure degrades to an empty section.
func (s *Svc) globalExamplesSection() string {
	examples, err := s.learningRepo.TopWeighted(maxGlobalExamples)
	if err != nil {
		s.log.Error("failed to load global training examples", "err", err)
		return ""
	}
	var b strings.Builder
	for _, ex := range examples {
		cti := ex.CorrectCTI
		if cti == nil {
			continue
		}
		fmt.Fprintf(&b, "\nTICKET: %s\nCORRECT CLASSIFICATION:\n- BU: %s\n- Category: %s\n- Type: %s\n- Item: %s\n- Resolver Group: %s\n- Resolver Group Description: %s\n- Request Type: %s\n- SLA: %s\n- Service Description: %s\n- BU Description: %s\n\n",
			ex.TicketContent,
			cti.BUNumber, cti.Category, cti.Type, cti.Item,
			cti.ResolverGroup, cti.ResolverGroupDescription,
			cti.RequestType, cti.SLA,
			cti.ServiceDescription, cti.BUDescription)
	}
	return b.String()
}

// candidateExamplesSection is best-effort: a failure fetching one candidate's
// examples degrades to the no-examples marker and never aborts the rerank.
func (s *Svc) candidateExamplesSection(cand service.Candidate) string {
	examples, err := s.fewShot.GetExamplesForPrompt(cand.CTI, maxCandidateExamples)
	if err != nil {
		s.log.Error("failed to load candidate examples", "cti_id", cand.CTI.ID, "err", err)
		return noExamplesMarker
	}
	return formatCandidateExamples(examples)
}

func formatCandidateExamples(examples []fsservice.PromptExample) string {
	if len(examples) == 0 {
		return noExamplesMarker
	}
	var b strings.Builder
	for i, ex := range examples {
		fmt.Fprintf(&b, "\nExample %d:\n- Summary: %s\n- Source: %s\n- Confidence: %.2f\n- Department: %s\n- Date: %s\n",
			i+1, ex.Summary, ex.Source, ex.Confidence, ex.Department, ex.Date)
	}
	return b.String()
}
