package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/smallnest/agent101/embedding"
	"github.com/smallnest/agent101/executor"
	"github.com/smallnest/agent101/file"
	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/log"
	"github.com/smallnest/agent101/memory"
	"github.com/smallnest/agent101/qa"
	"github.com/smallnest/agent101/rag"
	"github.com/smallnest/agent101/report"
	"github.com/smallnest/agent101/research"
	"github.com/smallnest/agent101/server"
	"github.com/smallnest/agent101/tool"
	"github.com/smallnest/agent101/web"
	"github.com/spf13/cobra"
)

func openVectors() (memory.VectorMemory, error) {
	embedder, err := embedding.NewOpenAI(settings)
	if err != nil {
		return nil, err
	}
	return memory.Open(settings, embedder)
}

func qaCmd() *cobra.Command {
	var (
		question string
		noMemory bool
	)
	cmd := &cobra.Command{
		Use:   "qa",
		Short: "Ask the tool-using QA agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := llm.New(settings)
			if err != nil {
				return err
			}
			var opts []qa.Option
			if !noMemory {
				if v, err := openVectors(); err != nil {
					log.Warn("vector memory disabled: %v", err)
				} else {
					opts = append(opts, qa.WithVectorMemory(v))
				}
			}

			answer, err := qa.New(client, tool.Default(settings), opts...).Ask(cmd.Context(), question)
			if err != nil {
				return err
			}
			printSection("Final answer", "")
			printAnswer(answer)
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "Compute 1+2*3 first, then run a simple web search.", "question to answer")
	cmd.Flags().BoolVar(&noMemory, "no-memory", false, "disable long-term vector memory")
	return cmd
}

func chatCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the QA agent keeping session history",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := llm.New(settings)
			if err != nil {
				return err
			}
			sessions := memory.NewSessions(settings.MaxContextTokens, memory.NewTokenCounter(settings.ChatModel))
			agent := qa.New(client, tool.Default(settings), qa.WithSessions(sessions))

			fmt.Println(mutedStyle.Render("session " + session + ", empty line or \"exit\" quits"))
			in := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print(labelStyle.Render("you> "))
				if !in.Scan() {
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				if line == "" || line == "exit" {
					return nil
				}
				answer, err := agent.AskSession(cmd.Context(), session, line)
				if err != nil {
					printError(err.Error())
					continue
				}
				printAnswer(answer)
			}
		},
	}
	cmd.Flags().StringVar(&session, "session", "u1", "session ID")
	return cmd
}

func planCmd() *cobra.Command {
	var (
		question string
		mermaid  bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan and execute a task step by step",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := llm.New(settings)
			if err != nil {
				return err
			}
			checkpoints, closeStore, err := server.OpenCheckpointStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer closeStore()

			app, err := executor.New(client, tool.Default(settings), executor.WithCheckpointStore(checkpoints))
			if err != nil {
				return err
			}
			if mermaid {
				fmt.Println(app.Mermaid())
				return nil
			}
			res, err := app.Run(cmd.Context(), question)
			if err != nil {
				return err
			}

			fmt.Println(mutedStyle.Render("run " + res.RunID))
			printJSON("Plan", res.Plan)
			printJSON("Tool outputs", res.ToolOutputs)
			printSection("Final answer", "")
			printAnswer(res.FinalAnswer)
			if res.Error != "" {
				printError(res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q",
		"Plan and execute: compute (12+5)*3, fetch the text of https://example.com, run one web search, then summarize.",
		"task to plan and execute")
	cmd.Flags().BoolVar(&mermaid, "mermaid", false, "print the executor graph as Mermaid and exit")
	return cmd
}

func researchCmd() *cobra.Command {
	var (
		topic      string
		maxResults int
		pdfs       []string
		htmlOut    string
	)
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Search papers, summarize PDFs and write a literature review",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := llm.New(settings)
			if err != nil {
				return err
			}
			review, err := research.New(client, settings).Review(cmd.Context(), research.Request{
				Topic:      topic,
				MaxResults: maxResults,
				PDFPaths:   pdfs,
			})
			if err != nil {
				return err
			}

			printSection("Review", review.Markdown)
			if htmlOut != "" {
				page, err := report.Page(topic, review.Markdown)
				if err != nil {
					return err
				}
				if err := os.WriteFile(htmlOut, []byte(page), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", htmlOut, err)
				}
				fmt.Println(mutedStyle.Render("HTML written to " + htmlOut))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "LLM agents planning", "review topic or search keywords")
	cmd.Flags().IntVar(&maxResults, "max-results", research.DefaultMaxResults, "results per source (1-20)")
	cmd.Flags().StringSliceVar(&pdfs, "pdf", nil, "local PDF to summarize (repeatable)")
	cmd.Flags().StringVar(&htmlOut, "html", "", "also write the review as an HTML page")
	return cmd
}

func webCmd() *cobra.Command {
	var (
		script   string
		headless bool
	)
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Run a scripted browser session",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := []web.Action{
				{Type: web.ActionGoto, URL: "https://example.com"},
				{Type: web.ActionWaitForSelector, Selector: "h1"},
				{Type: web.ActionExtractText, Selector: "h1"},
				{Type: web.ActionScreenshot, Name: "example"},
			}
			if script != "" {
				data, err := os.ReadFile(script)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &steps); err != nil {
					return fmt.Errorf("parse %s: %w", script, err)
				}
			}

			browser := web.NewRodBrowser(
				web.WithHeadless(headless),
				web.WithArtifactsDir(settings.ArtifactsDir),
			)
			res, err := web.NewAgent(browser).Run(cmd.Context(), steps)
			if err != nil {
				return err
			}
			printJSON("Results", res.Results)
			for _, e := range res.Errors {
				printError(e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&script, "script", "", "JSON file with an array of actions")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser without a window")
	return cmd
}

func fileCmd() *cobra.Command {
	var maxRows int
	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Classify a local file and write an analysis report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := llm.New(settings)
			if err != nil {
				return err
			}
			agent := file.New(client)
			analysis := agent.Analyze(cmd.Context(), args[0], maxRows)
			printJSON("Analysis", analysis)

			md, err := agent.Markdown(cmd.Context(), analysis)
			if err != nil {
				return err
			}
			printSection("Report", md)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxRows, "max-rows", file.DefaultPreviewRows, "spreadsheet rows to preview per sheet")
	return cmd
}

func ragCmd() *cobra.Command {
	var question, doc string
	cmd := &cobra.Command{
		Use:   "rag",
		Short: "Answer a question from a text document",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := llm.New(settings)
			if err != nil {
				return err
			}
			vectors, err := openVectors()
			if err != nil {
				return err
			}
			p, err := rag.New(client, vectors, rag.Config{})
			if err != nil {
				return err
			}
			if _, err := p.Ingest(cmd.Context(), doc); err != nil {
				return err
			}
			state, err := p.Answer(cmd.Context(), question)
			if err != nil {
				return err
			}
			printSection("RAG answer", "")
			printAnswer(state.Answer)
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "What is LangChain?", "question")
	cmd.Flags().StringVar(&doc, "doc", "docs/sample.txt", "knowledge base text file")
	return cmd
}
