// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator implements the Personalization Orchestrator
// (C7): the INIT/ASKING/ASSESSING/FINALIZING/ABORTED state machine that
// binds Conversation State, Conversation Memory, the Context Analyzer,
// the Question Generator, the Completion Assessor, and Mode
// Intelligence into one dialogue.
// Implements: DYNAMIC PERSONALIZATION ENGINE C7.
package orchestrator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danpilot/dialogos/internal/completion"
	"github.com/danpilot/dialogos/internal/convmemory"
	"github.com/danpilot/dialogos/internal/convstate"
	"github.com/danpilot/dialogos/internal/ctxanalyzer"
	"github.com/danpilot/dialogos/internal/modeintel"
	"github.com/danpilot/dialogos/internal/qgen"
	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/session"
	"github.com/danpilot/dialogos/pkg/types"
	"github.com/danpilot/dialogos/pkg/ui"
)

// Phase names the orchestrator's current state.
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseAsking     Phase = "asking"
	PhaseAssessing  Phase = "assessing"
	PhaseFinalizing Phase = "finalizing"
	PhaseAborted    Phase = "aborted"
)

// Orchestrator binds every Dynamic Personalization Engine component
// into one session lifecycle.
type Orchestrator struct {
	Settings types.Settings
	Client   llm.Client
	Memory   *convmemory.Memory
	Sink     ui.QuestionSink
	Store    session.Store // optional; nil disables transition-time persistence
	Logger   *zap.Logger

	// Clock and SessionSuffix are overridden by tests for determinism.
	Clock        func() time.Time
	SessionSuffix int
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Result is the outcome of one orchestrated dialogue.
type Result struct {
	State *types.ConversationState
	Phase Phase
}

// Run drives the full state machine for one user query to completion
// or abort. It returns the frozen (or partial, on abort)
// Conversation State alongside the phase it stopped in.
func (o *Orchestrator) Run(ctx context.Context, userQuery string) (Result, error) {
	now := o.now()

	sessionID := convstate.NewSessionID(now, o.sessionSuffix())
	state, err := convstate.New(sessionID, userQuery, now)
	if err != nil {
		return Result{Phase: PhaseAborted}, err
	}

	mode := modeintel.SelectInitialMode(userQuery)
	convstate.SetMode(state, mode, now)
	o.persist(ctx, state)

	phase := PhaseAsking
	for {
		select {
		case <-ctx.Done():
			return o.abort(ctx, state, ctx.Err())
		default:
		}

		switch phase {
		case PhaseAsking:
			nextPhase, exhausted, err := o.ask(ctx, state)
			if err != nil {
				return o.abort(ctx, state, err)
			}
			if exhausted {
				// The question generator has no non-duplicate candidate
				// left to offer. Looping back through Asking would just
				// hit this same case forever, so run one last assessment
				// to record final confidence and stop.
				if _, err := o.assess(ctx, state); err != nil {
					return o.abort(ctx, state, err)
				}
				return Result{State: state, Phase: PhaseFinalizing}, nil
			}
			phase = nextPhase

		case PhaseAssessing:
			nextPhase, err := o.assess(ctx, state)
			if err != nil {
				return o.abort(ctx, state, err)
			}
			phase = nextPhase

		case PhaseFinalizing:
			o.persist(ctx, state)
			return Result{State: state, Phase: PhaseFinalizing}, nil

		default:
			return Result{State: state, Phase: phase}, fmt.Errorf("orchestrator: unreachable phase %s", phase)
		}
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now()
}

// sessionSuffix returns the caller-supplied SessionSuffix when tests set
// one for deterministic IDs, or a UUID-derived microsecond suffix
// otherwise. A fixed zero default would collide whenever two sessions
// start in the same wall-clock second.
func (o *Orchestrator) sessionSuffix() int {
	if o.SessionSuffix != 0 {
		return o.SessionSuffix
	}
	id := uuid.New()
	return int(binary.BigEndian.Uint32(id[:4]) % 1000000)
}

func (o *Orchestrator) persist(ctx context.Context, state *types.ConversationState) {
	if o.Store == nil {
		return
	}
	data, err := convstate.Serialize(state)
	if err != nil {
		return
	}
	_ = o.Store.Save(ctx, state.SessionID, data)
}

// ask implements the ASKING state: request the next
// question, present it, fold the answer back into context and memory,
// and consider a mid-dialogue mode switch. The second return value
// reports whether the question generator had no non-duplicate
// candidate left to offer, telling the caller to stop driving this
// state rather than reassess an unchanged state forever.
func (o *Orchestrator) ask(ctx context.Context, state *types.ConversationState) (Phase, bool, error) {
	mode := o.Settings.ModeConfig(state.ConversationMode)
	if len(state.QuestionHistory) >= mode.MaxQuestions {
		return PhaseAssessing, false, nil
	}

	qa, err := qgen.Generate(ctx, o.Client, state, o.Memory, o.Settings.AI, "")
	if err != nil {
		return PhaseAborted, false, err
	}
	if qa == nil {
		return PhaseAssessing, true, nil
	}

	if o.Memory != nil {
		o.Memory.TrackAsked(qa.QuestionText, state.SessionID)
	}

	now := o.now()
	qa.QuestionID = convmemory.Fingerprint(qa.QuestionText)
	qa.AskedAt = now

	shell := ui.QuestionShell{
		QuestionID:    qa.QuestionID,
		QuestionText:  qa.QuestionText,
		QuestionType:  string(qa.QuestionType),
		Category:      qa.Category,
		PriorityScore: qa.PriorityScore,
	}

	answer, err := o.Sink.PresentQuestion(ctx, shell)
	if err != nil {
		var cancelled *ui.CancelledError
		if errors.As(err, &cancelled) {
			return PhaseAborted, false, &types.CancellationError{}
		}
		return PhaseAborted, false, err
	}

	now = o.now()
	qa.AnswerText = answer
	qa.AnsweredAt = now
	convstate.AddQA(state, *qa, now)

	if o.Memory != nil {
		o.Memory.RecordAnswer(qa.QuestionID, state.SessionID, answer)
	}

	analysis := ctxanalyzer.Analyze(ctx, o.Client, state, o.Settings.ContextAnalysis.PriorityAnalysis, o.Settings.AI)
	if err := ctxanalyzer.Apply(state, analysis,
		func(factor string, weight float64) error { return convstate.SetPriority(state, factor, weight, now) },
		func(text string) bool { return convstate.AddGap(state, text, now) },
	); err != nil {
		return PhaseAborted, false, err
	}

	if len(state.QuestionHistory) >= 2 {
		if next := modeintel.NextMode(state.ConversationMode, state); next != state.ConversationMode {
			o.logger().Sugar().Infow("conversation mode switch", "session_id", state.SessionID, "from", state.ConversationMode, "to", next)
			convstate.SetMode(state, next, now)
		}
	}

	o.persist(ctx, state)
	return PhaseAssessing, false, nil
}

// assess implements the ASSESSING state.
func (o *Orchestrator) assess(ctx context.Context, state *types.ConversationState) (Phase, error) {
	mode := o.Settings.ModeConfig(state.ConversationMode)
	result, err := completion.Assess(ctx, o.Client, state, mode, o.Settings.AI)
	if err != nil {
		return PhaseAborted, err
	}

	now := o.now()
	convstate.SetCompletionConfidence(state, result.Confidence, now)
	_ = convstate.SetConfidence(state, "breadth", result.Breadth, now)
	_ = convstate.SetConfidence(state, "depth", result.Depth, now)
	_ = convstate.SetConfidence(state, "progress", result.Progress, now)

	o.persist(ctx, state)

	switch result.Verdict {
	case completion.VerdictSufficient:
		return PhaseFinalizing, nil
	case completion.VerdictMinimalSufficient:
		return PhaseFinalizing, nil
	default:
		if len(state.QuestionHistory) >= mode.MaxQuestions {
			return PhaseFinalizing, nil
		}
		return PhaseAsking, nil
	}
}

func (o *Orchestrator) abort(ctx context.Context, state *types.ConversationState, cause error) (Result, error) {
	o.logger().Sugar().Warnw("orchestrator aborted", "session_id", state.SessionID, "cause", cause)
	o.persist(ctx, state)
	return Result{State: state, Phase: PhaseAborted}, cause
}
