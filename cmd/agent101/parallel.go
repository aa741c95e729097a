package main

import (
	"context"

	"github.com/smallnest/agent101/parallel"
	"github.com/smallnest/agent101/research"
	"github.com/smallnest/agent101/tool"
	"github.com/spf13/cobra"
)

// gatherTopic looks up news and papers on topic concurrently and returns the
// titles keyed by source.
func gatherTopic(ctx context.Context, topic string, news *tool.WebSearch, papers *research.ArxivClient, maxConcurrency int) (map[string][]string, error) {
	return parallel.Run(ctx, map[string]parallel.Branch[[]string]{
		"news": func(ctx context.Context) ([]string, error) {
			results, err := news.Search(ctx, topic, 2)
			if err != nil {
				return nil, err
			}
			titles := make([]string, len(results))
			for i, r := range results {
				titles[i] = r.Title
			}
			return titles, nil
		},
		"papers": func(ctx context.Context) ([]string, error) {
			found := papers.Search(ctx, topic, 2)
			titles := make([]string, len(found))
			for i, p := range found {
				titles[i] = p.Title
			}
			return titles, nil
		},
	}, maxConcurrency)
}

func parallelCmd() *cobra.Command {
	var (
		topic       string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "parallel",
		Short: "Search news and papers on a topic in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := gatherTopic(cmd.Context(), topic,
				tool.NewWebSearch(tool.SearchProvidersFor(settings)...),
				research.NewArxivClient(),
				concurrency)
			if err != nil {
				return err
			}
			printJSON("Parallel results", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "LangChain", "topic")
	cmd.Flags().IntVar(&concurrency, "max-concurrency", parallel.DefaultMaxConcurrency, "branch limit")
	return cmd
}
