package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"horse.fit/tickerbrief/schema"
)

// Completer produces a raw model completion for a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ClassifierConfig bounds the relevance-classification stage.
type ClassifierConfig struct {
	PoolWidth int
	Timeout   time.Duration
	// RequestsPerSecond throttles upstream calls across all workers.
	RequestsPerSecond float64
}

func (c ClassifierConfig) withDefaults() ClassifierConfig {
	if c.PoolWidth <= 0 {
		c.PoolWidth = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	return c
}

// Classifier judges candidate relevance for one entity at a time. Fails
// closed: any completion, parse, or validation error yields a negative
// verdict rather than an admitted candidate.
type Classifier struct {
	completer Completer
	limiter   *rate.Limiter
	cfg       ClassifierConfig
	logger    zerolog.Logger
}

func NewClassifier(completer Completer, cfg ClassifierConfig, logger zerolog.Logger) *Classifier {
	cfg = cfg.withDefaults()
	return &Classifier{
		completer: completer,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cfg:       cfg,
		logger:    logger.With().Str("component", "classifier").Logger(),
	}
}

const classifySystemPrompt = "你是台股新聞分析師。判斷一則新聞對指定公司的投資人是否有參考價值。" +
	"只輸出一個 JSON 物件,鍵為 is_relevant (布林)、reason (字串)、summary (繁體中文,100 字以內)、importance (1 到 5 的整數)。" +
	"不要輸出任何其他文字。"

// Classify returns the verdict for one candidate against one entity, plus
// the stage counters. Under ModeRelaxed a clean negative verdict is flipped
// positive when the headline carries a delayed-value signal.
func (cl *Classifier) Classify(ctx context.Context, candidate Candidate, entityID, entityName string, mode Mode) (Verdict, Stats) {
	stats := Stats{}

	verdict, err := cl.complete(ctx, candidate, entityID, entityName, mode)
	if err != nil {
		stats.Add(StatClassifyFailure, 1)
		cl.logger.Warn().Err(err).
			Str("entity", entityID).
			Str("title", candidate.Title).
			Msg("classification failed; treating as irrelevant")
		return Verdict{IsRelevant: false, Reason: "classification unavailable"}, stats
	}

	if !verdict.IsRelevant && mode == ModeRelaxed {
		if reason, ok := delayedValueReason(candidate.Text()); ok {
			verdict.IsRelevant = true
			verdict.Reason = "delayed value signal " + reason
			if verdict.Importance < 2 {
				verdict.Importance = 2
			}
			cl.logger.Debug().
				Str("entity", entityID).
				Str("signal", reason).
				Msg("negative verdict rescued by delayed-value rule")
		}
	}
	return verdict, stats
}

func (cl *Classifier) complete(ctx context.Context, candidate Candidate, entityID, entityName string, mode Mode) (Verdict, error) {
	if err := cl.limiter.Wait(ctx); err != nil {
		return Verdict{}, fmt.Errorf("rate limit wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cl.cfg.Timeout)
	defer cancel()

	raw, err := cl.completer.Complete(callCtx, classifySystemPrompt, cl.userPrompt(candidate, entityID, entityName, mode))
	if err != nil {
		return Verdict{}, fmt.Errorf("completion: %w", err)
	}

	body, ok := extractJSONObject(raw)
	if !ok {
		return Verdict{}, fmt.Errorf("no JSON object in completion %q", truncateRunes(raw, 80))
	}

	payload, err := payloadschema.ValidateVerdictPayload([]byte(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("verdict payload: %w", err)
	}

	return Verdict{
		IsRelevant: payload.IsRelevant,
		Reason:     payload.Reason,
		Summary:    payload.Summary,
		Importance: payload.Importance,
	}, nil
}

func (cl *Classifier) userPrompt(candidate Candidate, entityID, entityName string, mode Mode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "公司: %s (%s)\n", entityName, entityID)
	fmt.Fprintf(&b, "標題: %s\n", candidate.Title)
	if candidate.Summary != "" {
		fmt.Fprintf(&b, "摘要: %s\n", candidate.Summary)
	}
	if candidate.Publisher != "" {
		fmt.Fprintf(&b, "來源: %s\n", candidate.Publisher)
	}
	if !candidate.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "發布: %s\n", candidate.PublishedAt.UTC().Format("2006-01-02"))
	}
	if mode == ModeRelaxed {
		b.WriteString("這是回補較舊新聞的寬鬆審查:若新聞對該公司仍有延續性的參考價值,即視為相關。\n")
	} else {
		b.WriteString("這是嚴格審查:只有與該公司直接相關且具投資參考價值的新聞才視為相關。\n")
	}
	return b.String()
}

// extractJSONObject pulls the outermost {...} span out of a completion that
// may carry prose or fences around it.
func extractJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
