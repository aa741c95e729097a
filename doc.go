// Package agent101 is a toolkit of LLM agents built on a small state graph
// engine.
//
// # Packages
//
//   - graph: generic state graph with conditional edges, listeners and a
//     recursion limit
//   - llm, embedding: chat and embedding clients over langchaingo and
//     go-openai
//   - tool: function-calling tools (evaluate_expression, web_search,
//     web_fetch) and their registry
//   - memory: token-bounded short-term history and vector long-term memory
//   - qa: ReAct question answering with optional vector memory
//   - planner, executor: plan a task as JSON steps and execute it as a graph,
//     checkpointing every step through store
//   - research: arXiv and Semantic Scholar search, PDF summaries and
//     literature reviews
//   - web: scripted headless browser sessions (go-rod)
//   - file: file classification, extraction and entity detection
//   - rag: retrieval-augmented answers over ingested text files
//   - parallel: bounded fan-out of independent branches
//   - report: markdown to sanitized HTML
//   - server: the HTTP API
//
// The agent101 command in cmd/agent101 exposes each agent as a subcommand
// and serves the HTTP API:
//
//	agent101 serve --port 8000
//	agent101 plan -q "Compute (12+5)*3 and search for background"
//	agent101 research -t "LLM agents" --pdf paper.pdf --html review.html
//	agent101 file report.xlsx --max-rows 10
package agent101
