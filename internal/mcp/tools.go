package mcp

import "github.com/mark3labs/mcp-go/mcp"

var askTool = mcp.NewTool("ask",
	mcp.WithDescription("Ask the Linux support assistant a question. It may inspect the user's machine through the agent, search the knowledge base and the web before answering."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question, in natural language"),
	),
	mcp.WithString("conversation_id",
		mcp.Description("Continue an earlier conversation. Omit to start a new one."),
	),
)

var searchKnowledgeTool = mcp.NewTool("search_knowledge",
	mcp.WithDescription("Search the Linux knowledge base semantically and return the matching passages."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
)

var planQueryTool = mcp.NewTool("plan_query",
	mcp.WithDescription("Show which sources the assistant would consult for a question, without answering it."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question to plan"),
	),
)
