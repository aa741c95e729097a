package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallnest/agent101/log"
	"github.com/smallnest/agent101/research"
	"github.com/smallnest/agent101/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "qa", "chat", "plan", "research", "web", "file", "rag", "parallel"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-file"))
}

func TestSetupLoggingToFile(t *testing.T) {
	prev := log.GetDefaultLogger()
	defer log.SetDefaultLogger(prev)

	path := filepath.Join(t.TempDir(), "agent101.log")
	closer, err := setupLogging("warn", path)
	require.NoError(t, err)
	log.Info("skipped")
	log.Warn("disk %d%% full", 91)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[WARN] disk 91% full")
	assert.NotContains(t, string(data), "skipped")
}

func TestSetupLoggingRejectsUnknownLevel(t *testing.T) {
	_, err := setupLogging("loud", "")
	assert.Error(t, err)
}

func TestGatherTopic(t *testing.T) {
	ddg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a class="result__a" href="https://a.example">Agents ship</a>
			<a class="result__a" href="https://b.example">Agents scale</a>
			<a class="result__a" href="https://c.example">ignored</a>
		</body></html>`))
	}))
	defer ddg.Close()

	arxiv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry><id>http://arxiv.org/abs/1</id><title>ReAct</title><summary>s</summary></entry>
</feed>`))
	}))
	defer arxiv.Close()

	provider := tool.NewDuckDuckGo()
	provider.BaseURL = ddg.URL
	papers := research.NewArxivClient()
	papers.BaseURL = arxiv.URL

	out, err := gatherTopic(context.Background(), "agents", tool.NewWebSearch(provider), papers, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Agents ship", "Agents scale"}, out["news"])
	assert.Equal(t, []string{"ReAct"}, out["papers"])
}

func TestGatherTopicFailsWhenSearchFails(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	provider := tool.NewDuckDuckGo()
	provider.BaseURL = down.URL
	papers := research.NewArxivClient()
	papers.BaseURL = down.URL

	out, err := gatherTopic(context.Background(), "agents", tool.NewWebSearch(provider), papers, 2)
	assert.Error(t, err)
	assert.Nil(t, out)
}
