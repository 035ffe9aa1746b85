// Package assembler turns gathered source data into the context block of
// the generation prompt.
package assembler

import (
	"strings"

	"github.com/ziadkadry99/lanne/internal/executor"
)

// Section headers that introduce each source in the assembled context. The
// agent block carries its own header.
const (
	KnowledgeBaseHeader = "[BASE DE CONHECIMENTO]"
	WebHeader           = "[PESQUISA WEB]"
)

// Assemble joins agent data, knowledge-base data and web data, in that
// order, separated by one blank line. A context with no data yields "".
func Assemble(c *executor.Context) string {
	if !c.HasData() {
		return ""
	}
	parts := make([]string, 0, 3)
	if c.AgentData != "" {
		parts = append(parts, c.AgentData)
	}
	if c.RetrievalData != "" {
		parts = append(parts, KnowledgeBaseHeader+"\n"+c.RetrievalData)
	}
	if c.WebData != "" {
		parts = append(parts, WebHeader+"\n"+c.WebData)
	}
	return strings.Join(parts, "\n\n")
}
