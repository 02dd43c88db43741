package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"mediq/internal/healthtwin"
	"mediq/internal/model"
	"mediq/pkg/llm"
)

// Assessor turns an anomalous sample into a working diagnosis.
type Assessor interface {
	Assess(ctx context.Context, sample model.VitalSample, recent []model.VitalSample,
		anomalies []healthtwin.Anomaly, flags []string) (model.DiagnosisResult, error)
}

const escalationSystemPrompt = `You are an emergency medicine decision-support assistant reviewing ` +
	`continuous vitals from a remote patient. Given baseline deviations and recent readings, respond ` +
	`with strict JSON only, no prose: {"diagnosis": string, "confidence": number between 0 and 1, ` +
	`"risk_level": one of "LOW"|"MODERATE"|"HIGH"|"CRITICAL", "reasoning": string}`

// LLMAssessor asks the configured language model to interpret the
// anomaly in context. Every call carries a hard deadline: realtime
// monitoring cannot wait on a slow provider.
type LLMAssessor struct {
	provider llm.Provider
	timeout  time.Duration
}

func NewLLMAssessor(provider llm.Provider, timeout time.Duration) *LLMAssessor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLMAssessor{provider: provider, timeout: timeout}
}

func (a *LLMAssessor) Assess(ctx context.Context, sample model.VitalSample, recent []model.VitalSample,
	anomalies []healthtwin.Anomaly, flags []string) (model.DiagnosisResult, error) {
	if a == nil || a.provider == nil {
		return model.DiagnosisResult{}, errors.New("llm provider unavailable")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	messages := []llm.Message{
		{Role: "system", Content: escalationSystemPrompt},
		{Role: "user", Content: buildEscalationPrompt(sample, recent, anomalies, flags)},
	}
	stream, err := a.provider.Complete(ctx, messages, nil)
	if err != nil {
		return model.DiagnosisResult{}, fmt.Errorf("llm complete: %w", err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.DiagnosisResult{}, fmt.Errorf("llm stream: %w", err)
		}
		b.WriteString(chunk.Content)
	}

	return parseEscalation(b.String())
}

func buildEscalationPrompt(sample model.VitalSample, recent []model.VitalSample,
	anomalies []healthtwin.Anomaly, flags []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s\nSample time: %s\n",
		sample.PatientID, sample.Timestamp.UTC().Format(time.RFC3339))

	if len(anomalies) > 0 {
		b.WriteString("\nBaseline Deviations:\n")
		for _, a := range anomalies {
			fmt.Fprintf(&b, "- %s\n", a.String())
		}
	}
	if len(flags) > 0 {
		b.WriteString("\nHard Safety Flags:\n")
		for _, f := range flags {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	b.WriteString("\nCurrent Reading:\n")
	for name, v := range sample.Metrics() {
		fmt.Fprintf(&b, "- %s: %.1f\n", name, v)
	}

	if n := len(recent); n > 1 {
		b.WriteString("\nRecent Window:\n")
		for _, s := range recent {
			fmt.Fprintf(&b, "- %s:", s.Timestamp.UTC().Format(time.RFC3339))
			for name, v := range s.Metrics() {
				fmt.Fprintf(&b, " %s=%.1f", name, v)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nAssess the most likely cardiac or respiratory explanation and the risk level.")
	return b.String()
}

type escalationPayload struct {
	Diagnosis  string  `json:"diagnosis"`
	Confidence float64 `json:"confidence"`
	RiskLevel  string  `json:"risk_level"`
	Reasoning  string  `json:"reasoning"`
}

var validRisks = map[model.RiskLevel]bool{
	model.RiskLow:      true,
	model.RiskModerate: true,
	model.RiskHigh:     true,
	model.RiskCritical: true,
}

func parseEscalation(content string) (model.DiagnosisResult, error) {
	if content == "" {
		return model.DiagnosisResult{}, errors.New("empty llm response")
	}
	raw := extractJSON(content)
	var payload escalationPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return model.DiagnosisResult{}, fmt.Errorf("decode llm response: %w", err)
	}
	risk := model.RiskLevel(strings.ToUpper(strings.TrimSpace(payload.RiskLevel)))
	if !validRisks[risk] {
		return model.DiagnosisResult{}, fmt.Errorf("invalid risk level %q", payload.RiskLevel)
	}
	if payload.Diagnosis == "" {
		return model.DiagnosisResult{}, errors.New("missing diagnosis")
	}
	conf := payload.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return model.DiagnosisResult{
		Diagnosis:  model.Diagnosis(payload.Diagnosis),
		Confidence: conf,
		Risk:       risk,
		Reasoning:  payload.Reasoning,
		AgentName:  "realtime_llm",
	}, nil
}

func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
