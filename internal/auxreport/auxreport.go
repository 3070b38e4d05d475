// Package auxreport derives a short per-entity situation report from the
// headlines a run accepted. Reports are cached by entity and aged out
// independently of the raw item cache.
package auxreport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/tickerbrief/internal/cache"
)

// Completer produces a raw model completion for a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Report is the derived per-entity analysis.
type Report struct {
	Phase         string `json:"phase"`
	ChangeSummary string `json:"change_summary"`
	NewsRelation  string `json:"news_relation"`
	Caution       string `json:"caution"`
	Degraded      bool   `json:"degraded,omitempty"`
}

const maxReportHeadlines = 10

const reportSystemPrompt = "你是台股新聞分析師。根據提供的新聞摘要,輸出一個 JSON 物件,鍵為 " +
	"phase (目前處於的階段,例如 上升、整理、回檔)、change_summary (近期變化摘要)、" +
	"news_relation (新聞與股價的關聯)、caution (投資人應注意的風險)。不要輸出任何其他文字。"

// Service generates and caches situation reports.
type Service struct {
	completer Completer
	store     *cache.Store
	logger    zerolog.Logger
}

func NewService(completer Completer, store *cache.Store, logger zerolog.Logger) *Service {
	return &Service{
		completer: completer,
		store:     store,
		logger:    logger.With().Str("component", "auxreport").Logger(),
	}
}

// Generate returns the situation report for an entity, serving a cached one
// when present. Generation failures yield a degraded placeholder report, not
// an error; the run must finish regardless.
func (s *Service) Generate(ctx context.Context, entityID, entityName string, headlines []string) Report {
	if record, ok := s.store.GetAnalysis(entityID); ok {
		var cached Report
		if err := json.Unmarshal(record.Payload, &cached); err == nil {
			s.logger.Debug().Str("entity", entityID).Msg("analysis served from cache")
			return cached
		}
		s.logger.Warn().Str("entity", entityID).Msg("cached analysis unreadable; regenerating")
	}

	report, err := s.generate(ctx, entityID, entityName, headlines)
	if err != nil {
		s.logger.Warn().Err(err).Str("entity", entityID).Msg("analysis generation failed; degrading")
		return Report{
			Phase:         "unknown",
			ChangeSummary: "分析暫時無法產生",
			NewsRelation:  "",
			Caution:       "本次未能取得分析,請自行查證",
			Degraded:      true,
		}
	}

	payload, marshalErr := json.Marshal(report)
	if marshalErr == nil {
		s.store.PutAnalysis(cache.AnalysisRecord{EntityID: entityID, Payload: payload})
	}
	return report
}

func (s *Service) generate(ctx context.Context, entityID, entityName string, headlines []string) (Report, error) {
	if len(headlines) == 0 {
		return Report{}, fmt.Errorf("no headlines for %s", entityID)
	}
	if len(headlines) > maxReportHeadlines {
		headlines = headlines[:maxReportHeadlines]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "公司: %s (%s)\n近期新聞:\n", entityName, entityID)
	for i, headline := range headlines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, headline)
	}

	raw, err := s.completer.Complete(ctx, reportSystemPrompt, b.String())
	if err != nil {
		return Report{}, fmt.Errorf("completion: %w", err)
	}

	body, ok := extractJSONObject(raw)
	if !ok {
		return Report{}, fmt.Errorf("no JSON object in completion")
	}

	var report Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	if strings.TrimSpace(report.Phase) == "" || strings.TrimSpace(report.ChangeSummary) == "" {
		return Report{}, fmt.Errorf("report missing required fields")
	}
	return report, nil
}

func extractJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
