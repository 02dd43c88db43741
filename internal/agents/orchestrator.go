package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mediq/internal/model"
)

// ProgressEvent is a coarse-grained milestone in one assessment run,
// published to interested observers (the websocket hub, tests).
type ProgressEvent struct {
	PatientID string    `json:"patient_id"`
	Stage     string    `json:"stage"`
	Agent     string    `json:"agent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressSink receives progress events. Publish must not block.
type ProgressSink interface {
	Publish(event ProgressEvent)
}

// Orchestrator fans a patient record out to every registered specialty
// concurrently and consolidates their results. Registration order is
// fixed at construction and is the tiebreaker everywhere, so repeated
// runs over the same record produce identical output.
type Orchestrator struct {
	agents   []Agent
	logger   *logrus.Logger
	progress ProgressSink
}

// NewOrchestrator registers the agents in the given order.
func NewOrchestrator(logger *logrus.Logger, agents ...Agent) *Orchestrator {
	return &Orchestrator{agents: agents, logger: logger}
}

// NewDefaultOrchestrator wires the standard five-specialty panel.
func NewDefaultOrchestrator(logger *logrus.Logger, params Params) *Orchestrator {
	return NewOrchestrator(logger,
		NewSafetyAgent(),
		NewCardiologyAgent(params),
		NewGastroAgent(params),
		NewMSKAgent(params),
		NewPulmonaryAgent(params),
	)
}

// SetProgressSink attaches an observer for assessment milestones.
func (o *Orchestrator) SetProgressSink(sink ProgressSink) { o.progress = sink }

func (o *Orchestrator) publish(patientID, stage, agent, detail string) {
	if o.progress == nil {
		return
	}
	o.progress.Publish(ProgressEvent{
		PatientID: patientID,
		Stage:     stage,
		Agent:     agent,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// Assess runs the full panel over one record. A panicking or failing
// agent is dropped from the results and surfaced as a safety alert; the
// remaining agents still consolidate normally.
func (o *Orchestrator) Assess(ctx context.Context, rec model.PatientRecord) (model.AssessmentState, error) {
	if err := ctx.Err(); err != nil {
		return model.AssessmentState{}, err
	}

	start := time.Now()
	o.publish(rec.PatientID, "assessment_started", "", "")

	type outcome struct {
		result model.DiagnosisResult
		err    error
	}
	outcomes := make([]outcome, len(o.agents))

	var wg sync.WaitGroup
	for i, agent := range o.agents {
		wg.Add(1)
		go func(i int, agent Agent) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i].err = fmt.Errorf("agent panicked: %v", r)
				}
			}()
			o.publish(rec.PatientID, "agent_started", agent.Name(), "")
			res, err := agent.Analyze(ctx, rec)
			if err != nil {
				outcomes[i].err = err
				return
			}
			outcomes[i].result = res
			o.publish(rec.PatientID, "agent_completed", agent.Name(),
				fmt.Sprintf("%s (%.2f)", res.Diagnosis, res.Confidence))
		}(i, agent)
	}
	wg.Wait()

	state := model.AssessmentState{Record: rec}
	for i, oc := range outcomes {
		if oc.err != nil {
			name := o.agents[i].Name()
			state.SafetyAlerts = append(state.SafetyAlerts, "AGENT_ERROR:"+name)
			o.logger.WithFields(logrus.Fields{
				"agent":      name,
				"patient_id": rec.PatientID,
			}).WithError(oc.err).Error("Agent failed during assessment")
			continue
		}
		state.AgentResults = append(state.AgentResults, oc.result)
	}

	o.consolidate(&state)
	o.publish(rec.PatientID, "assessment_completed", "", string(state.Primary.Diagnosis))

	o.logger.WithFields(logrus.Fields{
		"patient_id": rec.PatientID,
		"diagnosis":  state.Primary.Diagnosis,
		"risk_level": state.Primary.Risk,
		"confidence": state.Primary.Confidence,
		"duration":   time.Since(start).String(),
	}).Info("Assessment consolidated")

	return state, nil
}

// consolidate picks the primary diagnosis. Any life-threatening result
// outranks every non-emergent one regardless of confidence; within each
// partition the sort is stable so registration order breaks ties.
func (o *Orchestrator) consolidate(state *model.AssessmentState) {
	var emergent, routine []*model.DiagnosisResult
	for i := range state.AgentResults {
		r := &state.AgentResults[i]
		if r.Confidence <= 0 && r.Diagnosis == model.DxUnknown {
			continue // sentinel from a clean safety screen
		}
		if r.Risk.LifeThreatening() {
			emergent = append(emergent, r)
		} else {
			routine = append(routine, r)
		}
		if r.Risk == model.RiskCritical {
			state.SafetyAlerts = append(state.SafetyAlerts,
				fmt.Sprintf("CRITICAL: %s: %s", r.Diagnosis, r.Reasoning))
		}
	}

	sort.SliceStable(emergent, func(i, j int) bool {
		if emergent[i].Risk.Priority() != emergent[j].Risk.Priority() {
			return emergent[i].Risk.Priority() > emergent[j].Risk.Priority()
		}
		return emergent[i].Confidence > emergent[j].Confidence
	})
	sort.SliceStable(routine, func(i, j int) bool {
		return routine[i].Confidence > routine[j].Confidence
	})

	switch {
	case len(emergent) > 0:
		state.Primary = emergent[0]
	case len(routine) > 0:
		state.Primary = routine[0]
	default:
		state.AgentResults = append(state.AgentResults, model.DiagnosisResult{
			Diagnosis:  model.DxUnknown,
			Confidence: 0,
			Risk:       model.RiskLow,
			Reasoning:  "No agent produced a usable result",
			AgentName:  "orchestrator",
		})
		state.Primary = &state.AgentResults[len(state.AgentResults)-1]
	}
	state.Confidence = state.Primary.Confidence
}
