// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ModeConfig holds the question budget and sensitivity thresholds for one
// conversation mode.
type ModeConfig struct {
	MinQuestions           int     `json:"min_questions" yaml:"min_questions"`
	MaxQuestions           int     `json:"max_questions" yaml:"max_questions"`
	TimeSensitivityThreshold float64 `json:"time_sensitivity_threshold" yaml:"time_sensitivity_threshold"`
	QuestionDepth          string  `json:"question_depth" yaml:"question_depth"`
}

// ConversationModesConfig groups the four fixed mode configurations
//.
type ConversationModesConfig struct {
	Quick    ModeConfig `json:"quick" yaml:"quick"`
	Standard ModeConfig `json:"standard" yaml:"standard"`
	Deep     ModeConfig `json:"deep" yaml:"deep"`
	Adaptive ModeConfig `json:"adaptive" yaml:"adaptive"`
}

// DynamicPersonalizationConfig is the settings namespace for C1-C7.
type DynamicPersonalizationConfig struct {
	ConversationModes ConversationModesConfig `json:"conversation_modes" yaml:"conversation_modes"`
}

// AIQuestionGenerationConfig holds C4's generation parameters.
type AIQuestionGenerationConfig struct {
	Temperature         float64 `json:"temperature" yaml:"temperature"`
	TopP                float64 `json:"top_p" yaml:"top_p"`
	MaxTokens           int     `json:"max_tokens" yaml:"max_tokens"`
	RelevanceThreshold  float64 `json:"relevance_threshold" yaml:"relevance_threshold"`
	DuplicateDetection  bool    `json:"duplicate_detection" yaml:"duplicate_detection"`
}

// PriorityAnalysisConfig holds the per-factor keyword weights C3 uses
// to score detected priorities.
type PriorityAnalysisConfig struct {
	BudgetWeight      float64 `json:"budget_weight" yaml:"budget_weight"`
	TimelineWeight    float64 `json:"timeline_weight" yaml:"timeline_weight"`
	QualityWeight     float64 `json:"quality_weight" yaml:"quality_weight"`
	ConvenienceWeight float64 `json:"convenience_weight" yaml:"convenience_weight"`
	RiskWeight        float64 `json:"risk_weight" yaml:"risk_weight"`
	SocialWeight      float64 `json:"social_weight" yaml:"social_weight"`
	LearningWeight    float64 `json:"learning_weight" yaml:"learning_weight"`
}

// ContextAnalysisConfig is the settings namespace for C3.
type ContextAnalysisConfig struct {
	PriorityAnalysis PriorityAnalysisConfig `json:"priority_analysis" yaml:"priority_analysis"`
}

// ResearchConfig holds the fixed-shape research pipeline settings.
type ResearchConfig struct {
	StageCount           int     `json:"stage_count" yaml:"stage_count"`
	MaxGapsPerStage      int     `json:"max_gaps_per_stage" yaml:"max_gaps_per_stage"`
	MinConfidenceFallback float64 `json:"min_confidence_fallback" yaml:"min_confidence_fallback"`
}

// AIConfig holds the shared LLM call parameters used by C3, C4, C5, C8
//.
type AIConfig struct {
	MaxRetries             int     `json:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds      float64 `json:"retry_delay" yaml:"retry_delay"`
	RateLimitDelaySeconds  float64 `json:"rate_limit_delay" yaml:"rate_limit_delay"`
	ExponentialBackoffBase float64 `json:"exponential_backoff_base" yaml:"exponential_backoff_base"`
	ResponseTimeoutSeconds float64 `json:"response_timeout" yaml:"response_timeout"`
}

// ValidationConfig bounds string and record sizes accepted by the core
//.
type ValidationConfig struct {
	QueryMinLength             int `json:"query_min_length" yaml:"query_min_length"`
	QueryMaxLength             int `json:"query_max_length" yaml:"query_max_length"`
	StringMaxLength            int `json:"string_max_length" yaml:"string_max_length"`
	PersonalizationMaxGaps     int `json:"personalization_max_gaps" yaml:"personalization_max_gaps"`
	PersonalizationMaxProfileKeys int `json:"personalization_max_profile_keys" yaml:"personalization_max_profile_keys"`
}

// MemoryConfig governs the optional cross-session persistence
// supplement to Conversation Memory. CrossSessionLearning defaults to
// false, matching the source's default.
type MemoryConfig struct {
	CrossSessionLearning bool   `json:"cross_session_learning" yaml:"cross_session_learning"`
	DatabasePath          string `json:"database_path,omitempty" yaml:"database_path,omitempty"`
}

// Settings is the typed settings record the core reads. A
// caller-owned loader (viper, env, flags) populates it; the core only
// validates and consumes it. Unknown keys are ignored because they have
// no corresponding field.
type Settings struct {
	Research                ResearchConfig               `json:"research" yaml:"research"`
	AI                       AIConfig                     `json:"ai" yaml:"ai"`
	DynamicPersonalization   DynamicPersonalizationConfig `json:"dynamic_personalization" yaml:"dynamic_personalization"`
	AIQuestionGeneration     AIQuestionGenerationConfig   `json:"ai_question_generation" yaml:"ai_question_generation"`
	ContextAnalysis          ContextAnalysisConfig        `json:"context_analysis" yaml:"context_analysis"`
	Validation               ValidationConfig             `json:"validation" yaml:"validation"`
	Memory                   MemoryConfig                 `json:"memory" yaml:"memory"`
}

// DefaultSettings returns the documented default configuration.
func DefaultSettings() Settings {
	return Settings{
		Research: ResearchConfig{
			StageCount:            6,
			MaxGapsPerStage:       10,
			MinConfidenceFallback: 0.1,
		},
		AI: AIConfig{
			MaxRetries:             3,
			RetryDelaySeconds:      1.0,
			RateLimitDelaySeconds:  2.0,
			ExponentialBackoffBase: 2,
			ResponseTimeoutSeconds: 15,
		},
		DynamicPersonalization: DynamicPersonalizationConfig{
			ConversationModes: ConversationModesConfig{
				Quick:    ModeConfig{MinQuestions: 1, MaxQuestions: 3, TimeSensitivityThreshold: 0.8, QuestionDepth: "surface"},
				Standard: ModeConfig{MinQuestions: 3, MaxQuestions: 6, TimeSensitivityThreshold: 0.5, QuestionDepth: "moderate"},
				Deep:     ModeConfig{MinQuestions: 4, MaxQuestions: 12, TimeSensitivityThreshold: 0.2, QuestionDepth: "comprehensive"},
				Adaptive: ModeConfig{MinQuestions: 3, MaxQuestions: 8, TimeSensitivityThreshold: 0.5, QuestionDepth: "moderate"},
			},
		},
		AIQuestionGeneration: AIQuestionGenerationConfig{
			Temperature:        0.7,
			TopP:               0.9,
			MaxTokens:          512,
			RelevanceThreshold: 0.5,
			DuplicateDetection: true,
		},
		ContextAnalysis: ContextAnalysisConfig{
			PriorityAnalysis: PriorityAnalysisConfig{
				BudgetWeight:      0.8,
				TimelineWeight:    0.9,
				QualityWeight:     0.7,
				ConvenienceWeight: 0.6,
				RiskWeight:        0.75,
				SocialWeight:      0.5,
				LearningWeight:    0.5,
			},
		},
		Validation: ValidationConfig{
			QueryMinLength:                1,
			QueryMaxLength:                2000,
			StringMaxLength:               4000,
			PersonalizationMaxGaps:        50,
			PersonalizationMaxProfileKeys: 100,
		},
		Memory: MemoryConfig{
			CrossSessionLearning: false,
		},
	}
}

// ModeConfig looks up the ModeConfig for a ConversationMode.
func (s Settings) ModeConfig(mode ConversationMode) ModeConfig {
	switch mode {
	case ModeQuick:
		return s.DynamicPersonalization.ConversationModes.Quick
	case ModeDeep:
		return s.DynamicPersonalization.ConversationModes.Deep
	case ModeAdaptive:
		return s.DynamicPersonalization.ConversationModes.Adaptive
	default:
		return s.DynamicPersonalization.ConversationModes.Standard
	}
}

// Validate checks the settings against the documented ranges
// and returns a ConfigError aggregating every violation found, or nil.
func (s Settings) Validate() error {
	var err *ConfigError

	if s.Research.StageCount != 6 {
		err = err.add("research.stage_count must be 6, got %d", s.Research.StageCount)
	}
	if s.Research.MaxGapsPerStage <= 0 {
		err = err.add("research.max_gaps_per_stage must be positive, got %d", s.Research.MaxGapsPerStage)
	}
	if s.Research.MinConfidenceFallback < 0 || s.Research.MinConfidenceFallback > 1 {
		err = err.add("research.min_confidence_fallback must be in [0,1], got %v", s.Research.MinConfidenceFallback)
	}
	if s.AI.MaxRetries < 0 {
		err = err.add("ai.max_retries must be non-negative, got %d", s.AI.MaxRetries)
	}
	if s.AI.RetryDelaySeconds < 0 {
		err = err.add("ai.retry_delay must be non-negative, got %v", s.AI.RetryDelaySeconds)
	}
	if s.AI.RateLimitDelaySeconds < 0 {
		err = err.add("ai.rate_limit_delay must be non-negative, got %v", s.AI.RateLimitDelaySeconds)
	}
	if s.AI.ExponentialBackoffBase <= 1 {
		err = err.add("ai.exponential_backoff_base must be greater than 1, got %v", s.AI.ExponentialBackoffBase)
	}

	for name, mc := range map[string]ModeConfig{
		"quick":    s.DynamicPersonalization.ConversationModes.Quick,
		"standard": s.DynamicPersonalization.ConversationModes.Standard,
		"deep":     s.DynamicPersonalization.ConversationModes.Deep,
		"adaptive": s.DynamicPersonalization.ConversationModes.Adaptive,
	} {
		if mc.MinQuestions < 0 || mc.MaxQuestions < mc.MinQuestions {
			err = err.add("dynamic_personalization.conversation_modes.%s: min_questions/max_questions out of order", name)
		}
		if mc.TimeSensitivityThreshold < 0 || mc.TimeSensitivityThreshold > 1 {
			err = err.add("dynamic_personalization.conversation_modes.%s.time_sensitivity_threshold must be in [0,1]", name)
		}
	}

	if s.AIQuestionGeneration.Temperature < 0 || s.AIQuestionGeneration.Temperature > 2 {
		err = err.add("ai_question_generation.temperature out of range")
	}
	if s.AIQuestionGeneration.TopP < 0 || s.AIQuestionGeneration.TopP > 1 {
		err = err.add("ai_question_generation.top_p must be in [0,1]")
	}
	if s.AIQuestionGeneration.RelevanceThreshold < 0 || s.AIQuestionGeneration.RelevanceThreshold > 1 {
		err = err.add("ai_question_generation.relevance_threshold must be in [0,1]")
	}

	if s.Validation.QueryMinLength < 0 || s.Validation.QueryMaxLength < s.Validation.QueryMinLength {
		err = err.add("validation.query_min_length/query_max_length out of order")
	}
	if s.Validation.StringMaxLength <= 0 {
		err = err.add("validation.string_max_length must be positive")
	}

	if err == nil {
		return nil
	}
	return err
}
