package models

// Result is one search hit as handed to the model. Knowledge-panel entries
// carry Type "knowledge_graph" and the Description/Source/Attributes fields.
type Result struct {
	Type        string            `json:"type,omitempty"`
	Title       string            `json:"title"`
	Snippet     string            `json:"snippet,omitempty"`
	Link        string            `json:"link"`
	Position    int               `json:"position"`
	Provider    string            `json:"provider,omitempty"`
	Description string            `json:"description,omitempty"`
	Source      string            `json:"source,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// TypeKnowledgeGraph marks a knowledge-panel result.
const TypeKnowledgeGraph = "knowledge_graph"
