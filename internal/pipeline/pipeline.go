// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline implements the Research Pipeline (C8): six fixed
// sequential stages, each handed the prior stages' StageResults,
// retried with backoff through internal/airetry, and degraded to a
// FALLBACK StageResult when the LLM cannot produce usable findings.
// Implements: RESEARCH PIPELINE C8.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danpilot/dialogos/internal/airetry"
	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/types"
	"github.com/danpilot/dialogos/pkg/ui"
)

// stageSpec names one of the six fixed stages and builds its prompt
// from the research context and whatever prior stages have produced
// so far.
type stageSpec struct {
	name   string
	prompt func(rc types.ResearchContext, prior []types.StageResult) string
}

// stages is fixed at six entries in this order; research.stage_count
// must equal 6 and any other value is rejected at config load
// (pkg/types.Settings.Validate).
var stages = []stageSpec{
	{"information_gathering", informationGatheringPrompt},
	{"validation_fact_checking", validationPrompt},
	{"clarification_follow_up", clarificationPrompt},
	{"comparative_analysis", comparativePrompt},
	{"synthesis_integration", synthesisPrompt},
	{"final_conclusions", conclusionsPrompt},
}

// Pipeline runs the six research stages for one frozen ResearchContext.
type Pipeline struct {
	Client   llm.Client
	Settings types.Settings
	Progress ui.ProgressSink
	Logger   *zap.Logger

	// Clock is overridden by tests for deterministic StageResult
	// timestamps.
	Clock func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Pipeline) reportProgress(idx int, name string) {
	if p.Progress == nil {
		return
	}
	p.Progress.ReportProgress(idx, name, float64(idx)/float64(len(stages))*100)
}

// Run executes all six stages sequentially. It never returns an error:
// every failure mode degrades to a FALLBACK StageResult so the bundle
// is always complete. Once ctx is
// cancelled, every remaining stage is recorded as FALLBACK(reason=
// "cancelled") without calling the LLM.
func (p *Pipeline) Run(ctx context.Context, sessionID string, rc types.ResearchContext) types.ResearchBundle {
	results := make([]types.StageResult, 0, len(stages))
	cancelled := false

	for i, spec := range stages {
		idx := i + 1
		p.reportProgress(idx, spec.name)

		if !cancelled {
			select {
			case <-ctx.Done():
				cancelled = true
				p.logger().Sugar().Infow("research pipeline cancelled", "next_stage", idx)
			default:
			}
		}

		correlationID := uuid.New().String()
		started := p.now()
		var result types.StageResult
		if cancelled {
			result = fallbackResult(idx, spec.name, started, p.now(), "cancelled", p.Settings.Research.MaxGapsPerStage)
		} else {
			result = p.runStage(ctx, idx, spec, rc, results, started)
			if !cancelled {
				select {
				case <-ctx.Done():
					cancelled = true
				default:
				}
			}
		}
		result.CorrelationID = correlationID
		p.logger().Sugar().Debugw("research stage completed", "stage_index", idx, "stage_name", spec.name, "correlation_id", correlationID, "status", result.Status)
		results = append(results, result)
	}

	return types.ResearchBundle{
		SessionID:        sessionID,
		Query:            rc.UserQuery,
		Stages:           results,
		KnowledgeBase:    knowledgeBase(results),
		FinalConclusions: finalConclusions(results),
		ConfidenceScore:  aggregateConfidence(results, rc.CompletionConfidence, p.Settings.Research.MinConfidenceFallback),
	}
}

// findingsResponse is the JSON shape every stage prompt asks the LLM
// to emit.
type findingsResponse struct {
	Summary        string         `json:"summary"`
	Evidence       []evidenceJSON `json:"evidence"`
	GapsIdentified []string       `json:"gaps_identified"`
}

type evidenceJSON struct {
	SourceURL     string  `json:"source_url"`
	SourceName    string  `json:"source_name"`
	Reliability   float64 `json:"reliability"`
	ExtractedText string  `json:"extracted_text"`
	Relevance     float64 `json:"relevance"`
}

func (p *Pipeline) runStage(ctx context.Context, idx int, spec stageSpec, rc types.ResearchContext, prior []types.StageResult, started time.Time) types.StageResult {
	if p.Client == nil {
		return fallbackResult(idx, spec.name, started, p.now(), "no LLM client configured", p.Settings.Research.MaxGapsPerStage)
	}

	prompt := spec.prompt(rc, prior)
	opts := llm.Options{
		Temperature:     0.4,
		TopP:            0.9,
		MaxTokens:       1024,
		EnableGrounding: true,
	}

	var parsed findingsResponse
	err := airetry.GenerateAndParse(ctx, p.Client, prompt, opts, p.Settings.AI, func(text string) error {
		return parseFindings(text, &parsed)
	})
	completed := p.now()
	if err != nil {
		reason := reasonFor(err)
		p.logger().Sugar().Warnw("research stage fell back", "stage_index", idx, "stage_name", spec.name, "reason", reason)
		return fallbackResult(idx, spec.name, started, completed, reason, p.Settings.Research.MaxGapsPerStage)
	}

	findings := types.Findings{
		Summary:        strings.TrimSpace(parsed.Summary),
		Evidence:       toEvidence(parsed.Evidence),
		GapsIdentified: capGaps(parsed.GapsIdentified, p.Settings.Research.MaxGapsPerStage),
	}
	if findings.Summary == "" {
		return fallbackResult(idx, spec.name, started, completed, "empty summary", p.Settings.Research.MaxGapsPerStage)
	}

	status := types.StageOK
	if len(findings.Evidence) == 0 && idx != 5 && idx != 6 {
		// Stages 5 and 6 (synthesis, conclusions) are not required to
		// cite fresh evidence; earlier stages with no
		// evidence at all are only partially useful.
		status = types.StagePartial
	}

	return types.StageResult{
		StageIndex:  idx,
		StageName:   spec.name,
		Findings:    findings,
		Status:      status,
		StartedAt:   started,
		CompletedAt: completed,
	}
}

func reasonFor(err error) string {
	switch e := err.(type) {
	case *types.LLMTransientError:
		return fmt.Sprintf("transient failure: %v", e.Err)
	case *types.LLMResponseError:
		return fmt.Sprintf("response error: %v", e.Err)
	case *types.CancellationError:
		return "cancelled"
	default:
		if err == context.Canceled || err == context.DeadlineExceeded {
			return "cancelled"
		}
		return err.Error()
	}
}

func fallbackResult(idx int, name string, started, completed time.Time, reason string, maxGaps int) types.StageResult {
	return types.StageResult{
		StageIndex:  idx,
		StageName:   name,
		Findings:    types.Findings{Summary: fmt.Sprintf("stage %d (%s) unavailable", idx, name), GapsIdentified: capGaps([]string{fmt.Sprintf("stage %d unavailable: %s", idx, reason)}, maxGaps)},
		Status:      types.StageFallback,
		ErrorReason: reason,
		StartedAt:   started,
		CompletedAt: completed,
	}
}

func parseFindings(text string, out *findingsResponse) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return &types.LLMResponseError{Op: "parse_findings", Err: errNoJSONObject}
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return &types.LLMResponseError{Op: "parse_findings", Err: err}
	}
	return nil
}

type findingsParseError string

func (e findingsParseError) Error() string { return string(e) }

var errNoJSONObject = findingsParseError("no JSON object found in response")

func toEvidence(in []evidenceJSON) []types.Evidence {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.Evidence, 0, len(in))
	for _, e := range in {
		out = append(out, types.Evidence{
			SourceURL:     e.SourceURL,
			SourceName:    e.SourceName,
			Reliability:   clamp01(e.Reliability),
			ExtractedText: e.ExtractedText,
			Relevance:     clamp01(e.Relevance),
		})
	}
	return out
}

func capGaps(gaps []string, max int) []string {
	if max <= 0 {
		max = 10
	}
	if len(gaps) <= max {
		return gaps
	}
	return gaps[:max]
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// knowledgeBase collects every distinct evidence source name or URL
// surfaced across non-fallback stages into a flat, deduplicated list.
func knowledgeBase(results []types.StageResult) []string {
	seen := make(map[string]bool)
	var kb []string
	for _, r := range results {
		for _, e := range r.Findings.Evidence {
			key := e.SourceName
			if key == "" {
				key = e.SourceURL
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			kb = append(kb, key)
		}
	}
	return kb
}

// finalConclusions is stage 6's summary when it produced one, or a
// degraded placeholder noting which stages fell back.
func finalConclusions(results []types.StageResult) string {
	if len(results) == len(stages) {
		last := results[len(results)-1]
		if last.Status != types.StageFallback && last.Findings.Summary != "" {
			return last.Findings.Summary
		}
	}

	var fallen []string
	for _, r := range results {
		if r.Status == types.StageFallback {
			fallen = append(fallen, fmt.Sprintf("%d", r.StageIndex))
		}
	}
	if len(fallen) == 0 {
		return "no conclusions reached"
	}
	return fmt.Sprintf("conclusions unavailable: stage(s) %s fell back", strings.Join(fallen, ", "))
}

// aggregateConfidence blends mean evidence reliability (weighted by
// relevance) with the session's completion_confidence, scaled by the
// share of stages that completed OK, and floors the result at
// minFallback. Scaling by okShare rather than adding it as
// an independent term means a complete outage (okShare == 0) collapses
// the blend to zero before the floor applies, so a total outage
// (every stage falls back) produces a confidence exactly equal to
// minFallback rather than something merely close to it.
func aggregateConfidence(results []types.StageResult, completionConfidence, minFallback float64) float64 {
	var relSum, weightSum float64
	okCount := 0
	for _, r := range results {
		if r.Status == types.StageOK {
			okCount++
		}
		for _, e := range r.Findings.Evidence {
			relSum += e.Reliability * e.Relevance
			weightSum += e.Relevance
		}
	}

	evidenceQuality := 0.0
	if weightSum > 0 {
		evidenceQuality = relSum / weightSum
	}
	okShare := 0.0
	if len(results) > 0 {
		okShare = float64(okCount) / float64(len(results))
	}

	confidence := okShare * (0.5*evidenceQuality + 0.5*clamp01(completionConfidence))
	confidence = clamp01(confidence)
	if confidence < minFallback {
		confidence = minFallback
	}
	return confidence
}
