package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/byggpilot/byggpilot/internal/agent"
	"github.com/byggpilot/byggpilot/internal/briefing"
	"github.com/byggpilot/byggpilot/internal/config"
	"github.com/byggpilot/byggpilot/internal/gworkspace"
	"github.com/byggpilot/byggpilot/internal/httpapi"
	"github.com/byggpilot/byggpilot/internal/jobs"
	"github.com/byggpilot/byggpilot/internal/knowledge"
	"github.com/byggpilot/byggpilot/internal/llm"
	"github.com/byggpilot/byggpilot/internal/service"
	"github.com/byggpilot/byggpilot/internal/store"
	"github.com/byggpilot/byggpilot/internal/tools"
	"github.com/byggpilot/byggpilot/internal/workflow"
	"github.com/byggpilot/byggpilot/pkg/icron"
	"github.com/byggpilot/byggpilot/pkg/log"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	// A missing .env file is fine; env vars may come from the environment
	_ = godotenv.Load()

	var opts []config.Option
	approveATA := true
	settingsPath := config.RuntimeSettingsFilePath()
	if loaded, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithRuntimeSettings(loaded))
		approveATA = loaded.ApproveATAOnInvoice
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("Failed to open store at %s: %v", cfg.Storage.DBPath, err)
	}
	defer st.Close()

	llmClient, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	})
	if err != nil {
		log.Fatal("Failed to create LLM client: %v", err)
	}

	bridge := gworkspace.NewClient(cfg.Workspace.APIURL, time.Duration(cfg.Workspace.Timeout)*time.Second)
	retriever := knowledge.NewRetriever(st)

	invoiceFlow := workflow.NewInvoiceFlow(st, bridge)
	invoiceFlow.ApproveChangeOrdersOnInvoice = approveATA
	changeOrderFlow := workflow.NewChangeOrderFlow(st, bridge)

	registry, err := buildRegistry(st, bridge, retriever, invoiceFlow, changeOrderFlow, cfg.Weather.APIURL)
	if err != nil {
		log.Fatal("Failed to build tool registry: %v", err)
	}

	policy := agent.NewSafetyPolicy(agent.NewKeywordClassifier())
	llmAgent := agent.NewLLMAgent(llmClient, registry, policy, cfg.Agent.MaxTurns, cfg.Agent.HistoryWindow)
	defer llmAgent.Close()

	assembler := briefing.NewAssembler(st, retriever)

	queue := jobs.NewQueue(cfg.Jobs.Workers, st)
	defer queue.Stop()

	// svc and the dispatcher reference each other; the closure resolves
	// svc at call time, after both are constructed.
	var svc *service.AssistantService
	executor := func(ctx context.Context, job *jobs.GenerationJob) error {
		return svc.ExecuteGenerationJob(ctx, job)
	}
	dispatcher, err := jobs.NewDispatcher(cfg.Jobs.Mode, queue, executor)
	if err != nil {
		log.Fatal("Failed to create job dispatcher: %v", err)
	}

	svc = service.NewAssistantService(cfg, llmAgent, assembler, policy, invoiceFlow, changeOrderFlow, dispatcher, st)

	if cfg.Jobs.Mode == config.JobsModeQueued {
		queue.Start(executor)
	}

	initialSettings := cfg.RuntimeSettings()
	initialSettings.ApproveATAOnInvoice = approveATA
	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, initialSettings)
	if err != nil {
		log.Fatal("Failed to initialize runtime settings: %v", err)
	}

	cronEngine := cron.New()
	reminders := reminderScheduler{
		svc:  svc,
		cron: cronEngine,
		expr: cfg.Reminder.CronExpr,
	}

	server := httpapi.NewServer(svc, queue,
		httpapi.WithUI(cfg.HTTP.StaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			invoiceFlow.ApproveChangeOrdersOnInvoice = next.ApproveATAOnInvoice
			cfg.Reminder.StaleDraftAgeDays = next.StaleDraftAgeDays
			// LLM and cron changes take effect on the next restart
			return nil
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runWithComponents(ctx, cfg, reminders, cronEngine, server); err != nil {
		log.Fatal("Server exited with error: %v", err)
	}
}

func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cronEngine cronRunner, server httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	cronEngine.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed: %v", err)
	}
	<-cronEngine.Stop().Done()
	return runErr
}

// reminderScheduler registers the stale-draft sweep on the shared cron.
type reminderScheduler struct {
	svc  *service.AssistantService
	cron *cron.Cron
	expr string
}

func (s reminderScheduler) Schedule(ctx context.Context) error {
	if info, err := icron.GetTriggerInfo(s.expr, time.Now()); err == nil {
		log.Info("Stale draft sweep scheduled (%s), next run %s", s.expr, info.Next.Format(time.RFC3339))
	}
	_, err := s.cron.AddFunc(s.expr, func() {
		if err := s.svc.RemindStaleDrafts(ctx); err != nil {
			log.Error("Stale draft sweep failed: %v", err)
		}
	})
	return err
}

func buildRegistry(
	st *store.SQLiteStore,
	bridge *gworkspace.Client,
	retriever *knowledge.Retriever,
	invoiceFlow *workflow.InvoiceFlow,
	changeOrderFlow *workflow.ChangeOrderFlow,
	weatherURL string,
) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewCreateCustomerTool(st),
		tools.NewStartProjectTool(st),
		tools.NewListProjectsTool(st),
		tools.NewCreateOfferTool(st),
		tools.NewRecordExpenseTool(st),
		tools.NewSearchKnowledgeTool(retriever),
		tools.NewCheckWeatherTool(weatherURL),
		tools.NewCreateTaskTool(bridge),
		tools.NewSendEmailTool(bridge),
		tools.NewBookCalendarEventTool(bridge),
		tools.NewDraftInvoiceTool(invoiceFlow),
		tools.NewFinalizeInvoiceTool(invoiceFlow),
		tools.NewDraftChangeOrderTool(st, changeOrderFlow),
		tools.NewSendChangeOrderTool(changeOrderFlow),
	} {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
