package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngoclaw/toolorch/internal/agent"
	"github.com/ngoclaw/toolorch/internal/config"
	"github.com/ngoclaw/toolorch/internal/docstore"
	"github.com/ngoclaw/toolorch/internal/externaltool"
	"github.com/ngoclaw/toolorch/internal/llm"
	"github.com/ngoclaw/toolorch/internal/logging"
	"github.com/ngoclaw/toolorch/internal/protocolserver"
	"github.com/ngoclaw/toolorch/internal/session"
	"github.com/ngoclaw/toolorch/internal/tool"
)

const (
	appVersion = "0.1.0"
	appName    = "toolorch"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Agentic tool-orchestration server",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the tool server (stdio, and optionally HTTP/WebSocket)",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and report how many external tool servers are configured (no connection is attempted)",
		RunE:  runDoctor,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(logging.Config{
		Level:          cfg.LogLevel,
		Format:         cfg.LogFormat,
		LogDir:         cfg.LogDir,
		DisableLogging: cfg.DisableLogging,
		LogToStderr:    cfg.LogToStderr,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("starting tool server", zap.String("version", appVersion))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := tool.New("")
	registry.Register(tool.NewWebFetchTool(log))
	cache := docstore.New()

	llmClient := &llm.StaticClient{}
	registry.Register(tool.NewSearchTool(llmClient, cache, cfg.Model))
	registry.Register(tool.NewFetchTool(cache))

	extClient := externaltool.New(log)
	extClient.Initialize(ctx, cfg.MCPServers)
	for _, t := range extClient.Discover(ctx) {
		registry.Register(t)
	}
	defer extClient.Shutdown()

	var sessions *session.Store
	if cfg.EnableConversations {
		sessions = session.New(cfg.MaxHistory, time.Duration(cfg.SessionTimeout)*time.Second, log)
		defer sessions.Close()
	}

	executor := tool.NewExecutor(registry, log, 8)
	loop := agent.New(llmClient, registry, executor, sessions, log, agent.Config{
		MaxIterations:       cfg.MaxReasoningSteps,
		EnableReasoning:     cfg.EnableReasoning,
		EnableConversations: cfg.EnableConversations,
	})

	dispatcher := protocolserver.New(loop, registry, sessions, cache, llmClient, log)

	var httpSrv *protocolserver.HTTPServer
	if cfg.HTTPAddr != "" {
		var wsHandler *protocolserver.WSHandler
		if cfg.WSAddr != "" {
			wsHandler = protocolserver.NewWSHandler(dispatcher, log)
		}
		httpSrv = protocolserver.NewHTTPServer(cfg.HTTPAddr, dispatcher, wsHandler, log)
		httpSrv.Start()
	}

	stdioDone := make(chan error, 1)
	go func() {
		stdioDone <- protocolserver.ServeStdio(ctx, dispatcher, os.Stdin, os.Stdout, log)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-stdioDone:
		if err != nil {
			log.Error("stdio transport exited with error", zap.Error(err))
		}
	}

	cancel()
	if httpSrv != nil {
		if err := httpSrv.Stop(); err != nil {
			log.Error("error stopping HTTP server", zap.Error(err))
		}
	}

	log.Info("tool server stopped")
	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("toolorch doctor v%s\n\n", appVersion)

	checks := []struct {
		name  string
		check func(*config.Config) (string, bool)
	}{
		{"configuration", checkConfig},
		{"project id", checkProjectID},
		{"external tool servers", checkMCPServers},
	}

	cfg, cfgErr := config.Load()
	allOK := cfgErr == nil
	for _, c := range checks {
		var val string
		var ok bool
		if cfgErr != nil {
			val, ok = cfgErr.Error(), false
		} else {
			val, ok = c.check(cfg)
		}
		icon := "OK "
		if !ok {
			icon = "FAIL"
			allOK = false
		}
		fmt.Printf("  [%s] %s: %s\n", icon, c.name, val)
	}

	fmt.Println()
	if allOK {
		fmt.Println("all checks passed")
		return nil
	}
	fmt.Println("one or more checks failed")
	return fmt.Errorf("doctor checks failed")
}

func checkConfig(cfg *config.Config) (string, bool) {
	return "loaded", true
}

func checkProjectID(cfg *config.Config) (string, bool) {
	if cfg.ProjectID == "" {
		return "not set", false
	}
	return cfg.ProjectID, true
}

func checkMCPServers(cfg *config.Config) (string, bool) {
	if len(cfg.MCPServers) == 0 {
		return "none configured", true
	}
	return fmt.Sprintf("%d configured", len(cfg.MCPServers)), true
}
