package flow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/chatreview/core"
	internalutil "github.com/hupe1980/chatreview/internal/util"
	"github.com/hupe1980/chatreview/model"
)

// InstructionsProcessor renders the system prompt.
type InstructionsProcessor struct {
	template string
}

// NewInstructionsProcessor creates an instructions processor. An empty
// template selects DefaultInstructions.
func NewInstructionsProcessor(template string) *InstructionsProcessor {
	if strings.TrimSpace(template) == "" {
		template = DefaultInstructions
	}
	return &InstructionsProcessor{template: template}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets req.Instructions.
func (p *InstructionsProcessor) ProcessRequest(turn *core.TurnContext, in *TurnInput, req *model.Request) error {
	tools := make([]any, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, t.Function.Name)
	}
	state := map[string]any{
		"role":          in.Role,
		"scenario":      in.Scenario,
		"tasks":         in.Scenario.Tasks,
		"tools":         tools,
		"rag_available": in.RAGAvailable,
	}
	instructions, err := internalutil.RenderTemplate(p.template, state)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	turn.LogDebug("flow.instructions.resolved", "length", len(instructions))
	req.Instructions = instructions
	return nil
}

// SnapshotProcessor adds a short system message describing the interview
// state so the model does not repeat itself.
type SnapshotProcessor struct{}

// NewSnapshotProcessor creates a snapshot processor.
func NewSnapshotProcessor() *SnapshotProcessor { return &SnapshotProcessor{} }

// Name returns the processor's identifier.
func (p *SnapshotProcessor) Name() string { return "snapshot" }

// ProcessRequest appends the rendered Memory as a system content.
func (p *SnapshotProcessor) ProcessRequest(_ *core.TurnContext, in *TurnInput, req *model.Request) error {
	req.Contents = append(req.Contents, core.NewTextContent("system", Remember(in).Render()))
	return nil
}

// HistoryProcessor converts the dialogue into model contents.
type HistoryProcessor struct {
	limit int
}

// NewHistoryProcessor keeps at most limit recent messages; 0 keeps all.
func NewHistoryProcessor(limit int) *HistoryProcessor { return &HistoryProcessor{limit: limit} }

// Name returns the processor's identifier.
func (p *HistoryProcessor) Name() string { return "history" }

// ProcessRequest appends the most recent messages to req.Contents.
func (p *HistoryProcessor) ProcessRequest(_ *core.TurnContext, in *TurnInput, req *model.Request) error {
	msgs := in.Messages
	if p.limit > 0 && len(msgs) > p.limit {
		msgs = msgs[len(msgs)-p.limit:]
	}
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		req.Contents = append(req.Contents, m.Content())
	}
	return nil
}

// Memory is the interview state derived from a session.
type Memory struct {
	IntroDone     bool
	CurrentTaskID string
	AwaitingNext  bool // current task already scored
	TaskStatus    map[string]string
	Strengths     []string
	Weaknesses    []string
	Episodes      []string
	LastCandidate string
	LastModel     string
}

// Remember derives the Memory of a turn input. Topics of tasks scored at
// 80% or more count as strengths, 50% or less as weaknesses.
func Remember(in *TurnInput) Memory {
	m := Memory{TaskStatus: map[string]string{}}

	latest := map[string]core.Score{}
	for _, sc := range in.Scores {
		latest[sc.TaskID] = sc
		m.TaskStatus[sc.TaskID] = "scored"
	}

	m.CurrentTaskID = in.CurrentTaskID
	if m.CurrentTaskID == "" && len(in.Scenario.Tasks) > 0 {
		m.CurrentTaskID = in.Scenario.Tasks[0].ID
	}
	_, m.AwaitingNext = latest[m.CurrentTaskID]

	strengths, weaknesses := map[string]bool{}, map[string]bool{}
	for _, task := range in.Scenario.Tasks {
		sc, ok := latest[task.ID]
		if !ok {
			continue
		}
		switch r := sc.Ratio(); {
		case r >= 0.8:
			for _, t := range task.RelatedTopics {
				strengths[t] = true
			}
		case r <= 0.5:
			for _, t := range task.RelatedTopics {
				weaknesses[t] = true
			}
		}
	}
	m.Strengths = sortedKeys(strengths)
	m.Weaknesses = sortedKeys(weaknesses)

	msgs := in.Messages
	if len(msgs) > 60 {
		msgs = msgs[len(msgs)-60:]
	}
	for _, msg := range msgs {
		switch msg.Sender {
		case core.SenderModel:
			m.IntroDone = true
		case core.SenderSystem:
			if strings.HasPrefix(msg.Text, "tool ") || strings.Contains(msg.Text, "result") {
				m.Episodes = append(m.Episodes, clipRunes(msg.Text, 120))
			}
		}
	}
	if len(m.Episodes) > 30 {
		m.Episodes = m.Episodes[len(m.Episodes)-30:]
	}
	for i := len(in.Messages) - 1; i >= 0; i-- {
		msg := in.Messages[i]
		if m.LastCandidate == "" && msg.Sender == core.SenderCandidate {
			m.LastCandidate = clipRunes(msg.Text, 200)
		}
		if m.LastModel == "" && msg.Sender == core.SenderModel {
			m.LastModel = clipRunes(msg.Text, 200)
		}
	}
	return m
}

// Render formats the memory as tagged text for the model.
func (m Memory) Render() string {
	status, _ := json.Marshal(m.TaskStatus)
	episodes := m.Episodes
	if episodes == nil {
		episodes = []string{}
	}
	ep, _ := json.Marshal(episodes)
	current := m.CurrentTaskID
	if current == "" {
		current = "none"
	}
	lastCandidate := m.LastCandidate
	if lastCandidate == "" {
		lastCandidate = "none"
	}
	lastModel := m.LastModel
	if lastModel == "" {
		lastModel = "none"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<CONTROL_STATE><INTRO_DONE>%t</INTRO_DONE><CURRENT_TASK_ID>%s</CURRENT_TASK_ID>", m.IntroDone, current)
	fmt.Fprintf(&sb, "<AWAITING_NEXT>%t</AWAITING_NEXT><TASK_STATUS>%s</TASK_STATUS></CONTROL_STATE>", m.AwaitingNext, status)
	fmt.Fprintf(&sb, "<SEMANTIC_MEMORY><STRENGTHS>%s</STRENGTHS><WEAKNESSES>%s</WEAKNESSES></SEMANTIC_MEMORY>",
		strings.Join(m.Strengths, ", "), strings.Join(m.Weaknesses, ", "))
	fmt.Fprintf(&sb, "<EPISODIC_MEMORY>%s</EPISODIC_MEMORY>", ep)
	fmt.Fprintf(&sb, "<LAST_USER>%s</LAST_USER><LAST_MODEL>%s</LAST_MODEL>", lastCandidate, lastModel)
	sb.WriteString("Do not repeat what was already said; continue the dialogue and do not start a new task without an explicit transition.")
	return sb.String()
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
