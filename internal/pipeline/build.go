package pipeline

import (
	"errors"
	"log/slog"

	"github.com/TobiSchelling/NewsTopics/internal/collect"
	"github.com/TobiSchelling/NewsTopics/internal/config"
	"github.com/TobiSchelling/NewsTopics/internal/fetch"
	"github.com/TobiSchelling/NewsTopics/internal/llm"
	"github.com/TobiSchelling/NewsTopics/internal/textproc"
	"github.com/TobiSchelling/NewsTopics/internal/topic"
)

// ErrNoSources is returned when no search source is enabled and configured.
var ErrNoSources = errors.New("no search source is enabled and configured")

// FromConfig wires a pipeline from configuration.
func FromConfig(cfg *config.Config, store Store, logger *slog.Logger) (*Pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	searchers := Searchers(cfg, logger)
	if len(searchers) == 0 {
		return nil, ErrNoSources
	}

	c := cfg.Collector
	collector := collect.NewCollector(searchers, collect.Options{
		Window:      cfg.Window(),
		Location:    loc,
		PageSize:    c.PageSize,
		MaxPages:    c.MaxPages,
		PageDelay:   c.PageDelay,
		Concurrency: c.Concurrency,
	}, logger.With("component", "collect"))

	deps := Deps{
		Collector:    collector,
		Preprocessor: textproc.NewNormalizer(cfg.Preprocess.MinTokenLength, cfg.Preprocess.Stopwords),
		Analyzer:     newTopicClient(cfg, logger),
		Store:        store,
		Terms:        c.Terms,
		Location:     loc,
	}
	if cfg.Fetch.Enabled {
		deps.Enricher = fetch.NewContentFetcher(cfg.Fetch.Timeout, logger.With("component", "fetch"))
	}
	return New(deps, logger), nil
}

// Searchers returns the enabled search sources that have credentials.
func Searchers(cfg *config.Config, logger *slog.Logger) []collect.Searcher {
	src := cfg.Sources
	var out []collect.Searcher

	if src.Naver.Enabled {
		n := collect.NewNaverClient(src.Naver.BaseURL, src.Naver.ClientIDEnv, src.Naver.ClientSecretEnv)
		if n.IsConfigured() {
			out = append(out, n)
		} else {
			logger.Warn("naver source enabled but credentials are missing",
				"id_env", src.Naver.ClientIDEnv, "secret_env", src.Naver.ClientSecretEnv)
		}
	}
	if src.NewsAPI.Enabled {
		n := collect.NewNewsAPIClient(src.NewsAPI.BaseURL, src.NewsAPI.APIKeyEnv, src.NewsAPI.Language)
		if n.IsConfigured() {
			out = append(out, n)
		} else {
			logger.Warn("newsapi source enabled but key is missing", "env", src.NewsAPI.APIKeyEnv)
		}
	}
	if src.Feed.Enabled && src.Feed.URLTemplate != "" {
		out = append(out, collect.NewFeedSearcher(src.Feed.URLTemplate))
	}
	return out
}

func newTopicClient(cfg *config.Config, logger *slog.Logger) *topic.Client {
	m := cfg.Modeling
	embedder := llm.CreateEmbedder(m.EmbeddingProvider, m.EmbeddingModel, m.OllamaURL, cfg.Summarization.APIKeyEnv)

	var model topic.Model
	if m.Provider == "remote" {
		model = topic.NewRemoteModel(m.RemoteURL, m.RemoteAPIKeyEnv)
	} else {
		model = topic.NewWardModel(topic.WardOptions{
			DistanceThreshold: m.DistanceThreshold,
			MinTopicSize:      m.MinTopicSize,
			TopNWords:         m.TopNWords,
			RefineThreshold:   m.RefineThreshold,
		})
	}

	var labeler topic.Labeler
	if m.LLMLabels {
		s := cfg.Summarization
		if provider := llm.CreateProvider(s.Provider, s.Model, s.OllamaURL, s.OpenAIModel, s.APIKeyEnv, logger); provider != nil {
			labeler = topic.NewLLMLabeler(provider, s.MaxTokens)
		}
	}

	return topic.NewClient(embedder, model, labeler, topic.ClientOptions{Refine: m.Refine}, logger.With("component", "topic"))
}
