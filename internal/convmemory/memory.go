// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convmemory implements Conversation Memory (C2): question
// deduplication, per-question effectiveness scoring, and response
// pattern derivation, shared safely across sessions in one process.
// Implements: DYNAMIC PERSONALIZATION ENGINE C2.
package convmemory

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/danpilot/dialogos/pkg/types"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "with": true, "and": true, "or": true, "but": true,
	"do": true, "does": true, "did": true, "you": true, "your": true, "i": true,
	"it": true, "that": true, "this": true, "what": true, "how": true, "would": true,
}

// domainTerms approximates a curated relevance vocabulary for the
// domain-term hit ratio: words that mark an answer as substantive
// rather than filler, regardless of which conversation domain
// produced them.
var domainTerms = map[string]bool{
	"budget": true, "cost": true, "price": true, "timeline": true, "deadline": true,
	"quality": true, "risk": true, "requirement": true, "feature": true,
	"constraint": true, "preference": true, "experience": true, "goal": true,
	"need": true, "want": true, "must": true, "should": true, "prefer": true,
}

var uncertaintyMarkers = []string{"maybe", "not sure", "i think", "possibly", "i guess", "kind of", "sort of"}

// ResponsePattern summarizes communication behavior across a session's
// answers.
type ResponsePattern struct {
	CommunicationStyle      string
	QuestionAskingFrequency float64
	AvgResponseLength       float64
	UncertaintyRatio        float64
}

// sessionHistory tracks the normalized token sets of a session's prior
// answers (for information-gain-via-novelty) and prior questions (for
// Jaccard-based duplicate detection).
type sessionHistory struct {
	answerTokens   [][]string
	questionTokens [][]string
}

// Memory tracks asked-question fingerprints, per-question effectiveness,
// and per-session response history. Safe for concurrent readers with
// serialized writers.
type Memory struct {
	mu       sync.RWMutex
	metrics  map[string]*types.QuestionMetrics
	sessions map[string]*sessionHistory
	asked    map[string]map[string]bool // sessionID -> set of fingerprints asked
}

// New creates an empty, in-process Conversation Memory.
func New() *Memory {
	return &Memory{
		metrics:  map[string]*types.QuestionMetrics{},
		sessions: map[string]*sessionHistory{},
		asked:    map[string]map[string]bool{},
	}
}

// Fingerprint computes the stable hash of a question's normalized text
// used for deduplication.
func Fingerprint(questionText string) string {
	norm := normalize(questionText)
	sum := sha256.Sum256([]byte(norm))
	return fmt.Sprintf("%x", sum)[:16]
}

// TrackAsked records that questionText was asked in sessionID and
// returns its fingerprint.
func (m *Memory) TrackAsked(questionText, sessionID string) string {
	fp := Fingerprint(questionText)

	m.mu.Lock()
	defer m.mu.Unlock()

	qm, ok := m.metrics[fp]
	if !ok {
		qm = &types.QuestionMetrics{QuestionFingerprint: fp}
		m.metrics[fp] = qm
	}
	qm.TimesAsked++
	qm.LastSessionID = sessionID

	if m.asked[sessionID] == nil {
		m.asked[sessionID] = map[string]bool{}
	}
	m.asked[sessionID][fp] = true

	h := m.sessions[sessionID]
	if h == nil {
		h = &sessionHistory{}
		m.sessions[sessionID] = h
	}
	h.questionTokens = append(h.questionTokens, tokenSet(normalize(questionText)))

	return fp
}

// IsDuplicate reports whether questionText duplicates a question
// already asked in sessionID: exact normalized-text equality, or
// token Jaccard similarity at or above similarityThreshold (default
// 0.85) against any previously asked question in the session.
func (m *Memory) IsDuplicate(questionText, sessionID string, similarityThreshold float64) bool {
	if similarityThreshold <= 0 {
		similarityThreshold = 0.85
	}

	norm := normalize(questionText)
	tokens := tokenSet(norm)

	m.mu.RLock()
	defer m.mu.RUnlock()

	askedFPs := m.asked[sessionID]
	if len(askedFPs) == 0 {
		return false
	}

	if askedFPs[Fingerprint(questionText)] {
		return true
	}

	h := m.sessions[sessionID]
	if h == nil {
		return false
	}
	for _, prior := range h.questionTokens {
		if jaccard(tokens, prior) >= similarityThreshold {
			return true
		}
	}

	return false
}

// normalize lower-cases, strips punctuation, and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokenSet splits normalized text into a deduplicated, stop-word-stripped
// token set.
func tokenSet(normalized string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range strings.Fields(normalized) {
		if stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setB := map[string]bool{}
	for _, t := range b {
		setB[t] = true
	}
	intersection := 0
	union := map[string]bool{}
	for _, t := range a {
		union[t] = true
		if setB[t] {
			intersection++
		}
	}
	for _, t := range b {
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

// RecordAnswer scores the effectiveness of an answer and folds it into
// the fingerprint's running metrics. Effectiveness blends engagement
// (0.4), information gain via token novelty (0.4), and domain-term
// relevance (0.2).
func (m *Memory) RecordAnswer(fingerprint, sessionID, answerText string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.sessions[sessionID]
	if h == nil {
		h = &sessionHistory{}
		m.sessions[sessionID] = h
	}

	answerNorm := normalize(answerText)
	answerTokens := tokenSet(answerNorm)

	engagement := math.Min(1, float64(len(answerText))/150.0)
	novelty := noveltyScore(answerTokens, h.answerTokens)
	relevance := domainHitRatio(answerTokens)

	effectiveness := clamp01(0.4*engagement + 0.4*novelty + 0.2*relevance)

	h.answerTokens = append(h.answerTokens, answerTokens)

	qm := m.metrics[fingerprint]
	if qm == nil {
		qm = &types.QuestionMetrics{QuestionFingerprint: fingerprint}
		m.metrics[fingerprint] = qm
	}
	n := float64(qm.TimesAsked)
	if n <= 0 {
		n = 1
	}
	qm.AverageResponseLength = runningAverage(qm.AverageResponseLength, n, float64(len(answerText)))
	qm.InformationGainEstimate = runningAverage(qm.InformationGainEstimate, n, novelty)
	qm.EffectivenessScore = runningAverage(qm.EffectivenessScore, n, effectiveness)
	qm.LastSessionID = sessionID

	return effectiveness
}

func runningAverage(prevAvg, priorCount, newValue float64) float64 {
	if priorCount <= 0 {
		return newValue
	}
	return (prevAvg*priorCount + newValue) / (priorCount + 1)
}

// noveltyScore measures the fraction of tokens in current that were
// not seen in any prior answer this session (information gain).
func noveltyScore(current []string, prior [][]string) float64 {
	if len(current) == 0 {
		return 0
	}
	seen := map[string]bool{}
	for _, toks := range prior {
		for _, t := range toks {
			seen[t] = true
		}
	}
	novel := 0
	for _, t := range current {
		if !seen[t] {
			novel++
		}
	}
	return float64(novel) / float64(len(current))
}

func domainHitRatio(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, t := range tokens {
		if domainTerms[t] {
			hits++
		}
	}
	return math.Min(1, float64(hits)/float64(len(tokens)))
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

// DeriveResponsePattern computes communication style and engagement
// signals for a session from its question history.
func DeriveResponsePattern(session *types.ConversationState) ResponsePattern {
	n := len(session.QuestionHistory)
	if n == 0 {
		return ResponsePattern{CommunicationStyle: "uncertain"}
	}

	var totalLen, questionMarks, uncertainCount float64
	for _, qa := range session.QuestionHistory {
		totalLen += float64(len(qa.AnswerText))
		if strings.Contains(qa.AnswerText, "?") {
			questionMarks++
		}
		lower := strings.ToLower(qa.AnswerText)
		for _, marker := range uncertaintyMarkers {
			if strings.Contains(lower, marker) {
				uncertainCount++
				break
			}
		}
	}

	avgLen := totalLen / float64(n)
	questionRatio := questionMarks / float64(n)
	uncertaintyRatio := uncertainCount / float64(n)

	style := "direct"
	switch {
	case uncertaintyRatio > 0.3:
		style = "uncertain"
	case questionRatio > 0.25:
		style = "questioning"
	case avgLen > 120:
		style = "detailed"
	case avgLen < 40 && questionMarks == 0:
		style = "direct"
	default:
		style = "direct"
	}

	return ResponsePattern{
		CommunicationStyle:      style,
		QuestionAskingFrequency: questionRatio,
		AvgResponseLength:       avgLen,
		UncertaintyRatio:        uncertaintyRatio,
	}
}

// MetricsStore is the optional persistence collaborator for
// cross-session learning. Disabled by
// default; internal/memorystore provides a SQLite-backed
// implementation.
type MetricsStore interface {
	SaveMetrics(metrics []*types.QuestionMetrics) error
	LoadMetrics() ([]*types.QuestionMetrics, error)
}

// Persist writes all tracked QuestionMetrics to store. Failures
// degrade gracefully: Memory stays in-memory and the error is
// returned for the caller to log, never panicking or losing data
// already tracked in process.
func (m *Memory) Persist(store MetricsStore) error {
	if store == nil {
		return nil
	}
	m.mu.RLock()
	snapshot := make([]*types.QuestionMetrics, 0, len(m.metrics))
	for _, qm := range m.metrics {
		copied := *qm
		snapshot = append(snapshot, &copied)
	}
	m.mu.RUnlock()

	return store.SaveMetrics(snapshot)
}

// Load reads previously persisted QuestionMetrics from store and
// merges them in. A failing or empty store leaves Memory unchanged
//.
func (m *Memory) Load(store MetricsStore) error {
	if store == nil {
		return nil
	}
	loaded, err := store.LoadMetrics()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, qm := range loaded {
		if qm == nil || qm.QuestionFingerprint == "" {
			continue
		}
		m.metrics[qm.QuestionFingerprint] = qm
	}
	return nil
}
