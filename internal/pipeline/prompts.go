// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"strings"

	"github.com/danpilot/dialogos/pkg/types"
)

const findingsInstruction = `Respond with JSON only, matching {"summary": string, "evidence": [{"source_url","source_name","reliability","extracted_text","relevance"}], "gaps_identified": [string]}.`

func contextHeader(rc types.ResearchContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "query: %s\n", rc.UserQuery)
	fmt.Fprintf(&b, "mode: %s\n", rc.Mode)
	for factor, weight := range rc.PriorityFactors {
		fmt.Fprintf(&b, "priority %s weight=%.2f\n", factor, weight)
	}
	for _, gap := range rc.InformationGaps {
		fmt.Fprintf(&b, "open gap: %s\n", gap)
	}
	return b.String()
}

// priorSummary renders the prior stages' findings, treating a FALLBACK
// stage's findings as empty so later stages degrade gracefully instead
// of propagating a stub summary as if it were real content.
func priorSummary(prior []types.StageResult) string {
	var b strings.Builder
	for _, r := range prior {
		if r.Status == types.StageFallback {
			fmt.Fprintf(&b, "stage %d (%s): unavailable\n", r.StageIndex, r.StageName)
			continue
		}
		fmt.Fprintf(&b, "stage %d (%s): %s\n", r.StageIndex, r.StageName, r.Findings.Summary)
		for _, g := range r.Findings.GapsIdentified {
			fmt.Fprintf(&b, "  gap: %s\n", g)
		}
	}
	return b.String()
}

func informationGatheringPrompt(rc types.ResearchContext, prior []types.StageResult) string {
	var b strings.Builder
	b.WriteString("Stage 1/6: Information Gathering. Broadly ground the query with reliable sources.\n")
	b.WriteString(contextHeader(rc))
	b.WriteString(findingsInstruction)
	return b.String()
}

func validationPrompt(rc types.ResearchContext, prior []types.StageResult) string {
	var b strings.Builder
	b.WriteString("Stage 2/6: Validation & Fact-Checking. Review stage 1's evidence, flag inconsistencies and unreliable sources, and lower reliability scores accordingly.\n")
	b.WriteString(contextHeader(rc))
	b.WriteString("prior findings:\n")
	b.WriteString(priorSummary(prior))
	b.WriteString(findingsInstruction)
	return b.String()
}

func clarificationPrompt(rc types.ResearchContext, prior []types.StageResult) string {
	var b strings.Builder
	b.WriteString("Stage 3/6: Clarification & Follow-up. Target the gaps_identified from stages 1-2 with a focused re-query; do not repeat settled findings.\n")
	b.WriteString(contextHeader(rc))
	b.WriteString("prior findings:\n")
	b.WriteString(priorSummary(prior))
	b.WriteString(findingsInstruction)
	return b.String()
}

func comparativePrompt(rc types.ResearchContext, prior []types.StageResult) string {
	var b strings.Builder
	b.WriteString("Stage 4/6: Comparative Analysis. Enumerate at least two concrete options and score each against the detected priority factors. Encode the comparison as one evidence entry per option: source_name is the option's name, extracted_text lists its pros/cons, relevance is its overall numeric score in [0,1].\n")
	b.WriteString(contextHeader(rc))
	b.WriteString("prior findings:\n")
	b.WriteString(priorSummary(prior))
	b.WriteString(findingsInstruction)
	return b.String()
}

func synthesisPrompt(rc types.ResearchContext, prior []types.StageResult) string {
	var b strings.Builder
	b.WriteString("Stage 5/6: Synthesis & Integration. Merge stages 1-4 into key insights. No new external lookups are required; reuse the evidence already gathered.\n")
	b.WriteString(contextHeader(rc))
	b.WriteString("prior findings:\n")
	b.WriteString(priorSummary(prior))
	b.WriteString(findingsInstruction)
	return b.String()
}

func conclusionsPrompt(rc types.ResearchContext, prior []types.StageResult) string {
	var b strings.Builder
	b.WriteString("Stage 6/6: Final Conclusions. Produce actionable recommendations, an implementation plan, a risk assessment, and success metrics, grounded in the synthesis above.\n")
	b.WriteString(contextHeader(rc))
	b.WriteString("prior findings:\n")
	b.WriteString(priorSummary(prior))
	b.WriteString(findingsInstruction)
	return b.String()
}
