package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/orchestrator"
	"github.com/ziadkadry99/lanne/internal/vectordb"
)

const defaultSearchLimit = 5

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	res, err := s.pipeline.Handle(ctx, orchestrator.Query{
		ConversationID: request.GetString("conversation_id", ""),
		UserID:         s.userID,
		Text:           question,
	})
	switch {
	case errors.Is(err, orchestrator.ErrForbidden):
		return mcp.NewToolResultError("conversation belongs to another user"), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}

	s.logger.Debug("answered", zap.String("conversation", res.ConversationID), zap.Strings("sources", res.Sources))
	return mcp.NewToolResultText(formatAnswer(res)), nil
}

func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	if s.store == nil || s.store.Count() == 0 {
		return mcp.NewToolResultText("The knowledge base is empty. Run `lanne ingest <dir>` to index documents."), nil
	}

	results, err := s.store.Search(ctx, query, limit, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

func (s *Server) handlePlanQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	p := s.pipeline.Plan(ctx, question)
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode plan: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// formatAnswer renders the answer followed by the metadata an MCP client
// needs to continue the conversation.
func formatAnswer(res *orchestrator.Result) string {
	var sb strings.Builder
	sb.WriteString(res.Answer)
	sb.WriteString("\n\n---\n")
	sb.WriteString(fmt.Sprintf("conversation_id: %s\n", res.ConversationID))
	if len(res.Sources) > 0 {
		sb.WriteString(fmt.Sprintf("sources: %s\n", strings.Join(res.Sources, ", ")))
	}
	for _, w := range res.Warnings {
		sb.WriteString(fmt.Sprintf("warning: %s\n", w))
	}
	return sb.String()
}
