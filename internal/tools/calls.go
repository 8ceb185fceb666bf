package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/marketresearch/internal/planner"
	"github.com/mohammad-safakhou/marketresearch/internal/trace"
)

// Kind names a tool. The set is closed.
type Kind string

const (
	KindSearch  Kind = planner.ToolWebSearch
	KindCompute Kind = planner.ToolCalculator
	KindPersist Kind = planner.ToolSaveFindings
)

// ParseKind maps a tool name (or its short alias) to a Kind.
func ParseKind(name string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(KindSearch), "search":
		return KindSearch, true
	case string(KindCompute), "compute":
		return KindCompute, true
	case string(KindPersist), "persist":
		return KindPersist, true
	}
	return "", false
}

// Call is one of SearchCall, ComputeCall or PersistCall.
type Call interface {
	Kind() Kind
	traceArgs() map[string]any
}

type SearchCall struct {
	Query string
}

type ComputeCall struct {
	Expression string
}

type PersistCall struct {
	Filename string
	Content  string
}

func (SearchCall) Kind() Kind  { return KindSearch }
func (ComputeCall) Kind() Kind { return KindCompute }
func (PersistCall) Kind() Kind { return KindPersist }

func (c SearchCall) traceArgs() map[string]any  { return map[string]any{"query": c.Query} }
func (c ComputeCall) traceArgs() map[string]any { return map[string]any{"expression": c.Expression} }
func (c PersistCall) traceArgs() map[string]any {
	return map[string]any{
		"filename": c.Filename,
		"content":  trace.Preview(c.Content, trace.DefaultPreviewLimit),
	}
}

// CallForStep builds the typed call a plan step asks for. A persist step takes
// either {"filename": ..., "content": ...} or plain text saved as <id>.md.
func CallForStep(step planner.Step) (Call, error) {
	kind, ok := ParseKind(step.Tool)
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnsupportedTool, strings.TrimSpace(step.Tool))
	}
	input := strings.TrimSpace(step.Input)
	switch kind {
	case KindSearch:
		return SearchCall{Query: input}, nil
	case KindCompute:
		return ComputeCall{Expression: input}, nil
	default:
		var doc struct {
			Filename string `json:"filename"`
			Content  string `json:"content"`
		}
		if strings.HasPrefix(input, "{") && json.Unmarshal([]byte(input), &doc) == nil && doc.Filename != "" {
			return PersistCall{Filename: doc.Filename, Content: doc.Content}, nil
		}
		return PersistCall{Filename: step.ID, Content: step.Input}, nil
	}
}
