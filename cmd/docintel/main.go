// Command docintel runs the document intelligence assistant: an HTTP
// server by default, the ingestion pipeline with -ingest, or an
// interactive terminal chat with -chat.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/agent"
	"github.com/docintel/docintel/config"
	"github.com/docintel/docintel/extract"
	"github.com/docintel/docintel/graph"
	"github.com/docintel/docintel/ingest"
	"github.com/docintel/docintel/llm"
	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/server"
	"github.com/docintel/docintel/session"
	pgstore "github.com/docintel/docintel/session/postgres"
	redisstore "github.com/docintel/docintel/session/redis"
	"github.com/docintel/docintel/sqlstore"
	"github.com/docintel/docintel/tool"
	"github.com/docintel/docintel/vector"
)

func main() {
	var (
		runIngest = flag.Bool("ingest", false, "run the ingestion pipeline and exit")
		runChat   = flag.Bool("chat", false, "start an interactive terminal chat")
		port      = flag.Int("port", 0, "override the listen port")
	)
	flag.Parse()

	logger := log.Default()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration: %v", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	if err := run(cfg, logger, *runIngest, *runChat); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger log.Logger, runIngest, runChat bool) error {
	models, err := llm.New(cfg.OpenAIKey)
	if err != nil {
		return err
	}

	vectors, err := vector.New(vector.Options{
		PersistPath: filepath.Join(cfg.DataDir, "vectors"),
		Embedding:   models.Embedding,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer vectors.Close()

	db, err := sqlstore.Open(filepath.Join(cfg.DataDir, "structured.db"), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if runIngest {
		analyzer := ingest.NewAnalyzer(models.Reasoning, models.SQL, logger)
		pipeline := ingest.NewPipeline(analyzer, db, vectors, logger)
		return pipeline.Run(context.Background(), cfg.DocumentDir)
	}

	registry := tool.NewRegistry(
		vectors,
		sqlstore.NewQuerier(db, models.SQL, logger),
		extract.Text,
		tool.WithLogger(logger),
	)

	a, err := agent.New(agent.Config{
		PlannerModel: models.Planner,
		FinalModel:   models.Final,
		Registry:     registry,
		BaseURL:      cfg.BaseURL,
		MaxCycles:    cfg.MaxCycles,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	sessions, cleanup, err := newSessionManager(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if runChat {
		return chat(a, sessions, logger)
	}

	srv, err := server.New(server.Config{
		Agent:       a,
		Sessions:    sessions,
		APIKey:      cfg.APIKey,
		DocumentDir: cfg.DocumentDir,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(cfg.Port)
}

func newSessionManager(cfg *config.Config) (*session.Manager, func(), error) {
	switch cfg.SessionBackend {
	case "redis":
		store := redisstore.New(redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return session.NewManager(store), func() { store.Close() }, nil
	case "postgres":
		store, err := pgstore.New(context.Background(), pgstore.Options{
			ConnString: cfg.PostgresURL,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.InitSchema(context.Background()); err != nil {
			return nil, nil, err
		}
		return session.NewManager(store), store.Close, nil
	default:
		return session.NewManager(session.NewMemoryStore()), func() {}, nil
	}
}

// chatStyles holds the terminal styling for interactive mode.
type chatStyles struct {
	header lipgloss.Style
	user   lipgloss.Style
	status lipgloss.Style
	answer lipgloss.Style
	fault  lipgloss.Style
}

func defaultChatStyles() chatStyles {
	return chatStyles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		user:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		status: lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		answer: lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
		fault:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// chat runs the interactive terminal loop against a fresh session.
func chat(a *agent.Agent, sessions *session.Manager, logger log.Logger) error {
	styles := defaultChatStyles()
	sessionID := uuid.NewString()

	fmt.Println(styles.header.Render("Document Intelligence Assistant"))
	fmt.Println(styles.status.Render("session " + sessionID + " - type 'exit' to quit"))

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	for {
		fmt.Print(styles.user.Render("You> "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			return nil
		}

		final, err := sessions.Update(ctx, sessionID, func(state agent.State) (agent.State, error) {
			state.Messages = append(state.Messages, llms.TextParts(llms.ChatMessageTypeHuman, query))

			stream := a.Stream(ctx, state)
			defer stream.Cancel()

			for event := range stream.Events {
				if event.Type == graph.EventToolStart {
					fmt.Println(styles.status.Render("Running: " + event.Tool))
				}
			}

			select {
			case out := <-stream.Result:
				return out, nil
			case err := <-stream.Errors:
				return agent.State{}, err
			}
		})
		if err != nil {
			fmt.Println(styles.fault.Render("error: " + err.Error()))
			continue
		}

		fmt.Println(styles.answer.Render(final.FinalAnswer()))
		fmt.Println()
	}
}
