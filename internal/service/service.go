package service

import (
	"context"
	"fmt"
	"time"

	"github.com/byggpilot/byggpilot/internal/agent"
	"github.com/byggpilot/byggpilot/internal/config"
	"github.com/byggpilot/byggpilot/internal/jobs"
	"github.com/byggpilot/byggpilot/internal/llm"
	"github.com/byggpilot/byggpilot/internal/store"
	"github.com/byggpilot/byggpilot/internal/tools"
	"github.com/byggpilot/byggpilot/internal/workflow"
	"github.com/byggpilot/byggpilot/pkg/log"
)

// SystemPrompt frames every agent turn. Replies are in Swedish because
// the users are; the prompt also reminds the model that outbound actions
// need an explicit go-ahead, which the safety policy enforces regardless.
const SystemPrompt = `Du är ByggPilot, en digital kollega för små svenska byggföretag.
Du hjälper hantverkare med offerter, projekt, ÄTA-hantering och fakturering.

Regler:
- Svara alltid på svenska, kort och konkret.
- Använd verktygen för att läsa och ändra affärsdata; gissa aldrig siffror.
- Åtgärder som skickar något till en kund (e-post, kalenderbokning, fakturautskick)
  kräver att användaren uttryckligen bekräftar först. Beskriv vad du tänker göra
  och vänta på ett ja.
- Belopp anges i kronor exklusive moms om inget annat sägs.
- Om något saknas för att slutföra en uppgift, fråga i stället för att anta.`

// AgentRunner is the slice of the agent the service drives.
type AgentRunner interface {
	Execute(ctx context.Context, req agent.AgentRequest) (*agent.AgentResult, error)
}

// Briefer assembles the context block for one turn.
type Briefer interface {
	Build(ctx context.Context, companyID, userMessage string) (string, error)
}

// PendingActions exposes the safety policy's held proposal, read after a
// turn so the reply can surface what is awaiting confirmation.
type PendingActions interface {
	Pending(conversationID string) (agent.GatedActionRecord, bool)
}

// InvoiceFlow is the invoice workflow surface the service forwards to.
type InvoiceFlow interface {
	PrepareDraft(ctx context.Context, token, projectID string) (workflow.DraftResult, error)
	SetChecklistItem(ctx context.Context, projectID, item string, done bool) (store.WorkflowInstance, error)
	Finalize(ctx context.Context, token string, req workflow.FinalizeRequest) (workflow.FinalizeResult, error)
}

// ChangeOrderFlow is the ÄTA workflow surface used by background jobs.
type ChangeOrderFlow interface {
	PrepareDraft(ctx context.Context, token, projectID, changeOrderID string) (workflow.DraftResult, error)
}

// JobDispatcher runs or enqueues a generation job depending on mode.
type JobDispatcher interface {
	DispatchOrRun(ctx context.Context, req jobs.EnqueueRequest) (*jobs.GenerationJob, error)
}

// Store is the persistence slice the service itself reads.
type Store interface {
	ListStaleWorkflowInstances(ctx context.Context, cutoff time.Time) ([]store.WorkflowInstance, error)
	ListSnippets(ctx context.Context) ([]store.KnowledgeSnippet, error)
}

// AssistantService ties the agent loop, the briefing assembler, the
// invoice workflow and the job machinery together behind one API surface.
type AssistantService struct {
	cfg          *config.Config
	agent        AgentRunner
	briefer      Briefer
	pending      PendingActions
	invoices     InvoiceFlow
	changeOrders ChangeOrderFlow
	dispatcher   JobDispatcher
	store        Store
}

func NewAssistantService(
	cfg *config.Config,
	runner AgentRunner,
	briefer Briefer,
	pending PendingActions,
	invoices InvoiceFlow,
	changeOrders ChangeOrderFlow,
	dispatcher JobDispatcher,
	st Store,
) *AssistantService {
	return &AssistantService{
		cfg:          cfg,
		agent:        runner,
		briefer:      briefer,
		pending:      pending,
		invoices:     invoices,
		changeOrders: changeOrders,
		dispatcher:   dispatcher,
		store:        st,
	}
}

// RunAgentTurn executes one conversational turn: assemble the briefing,
// run the bounded agent loop, and report any action still waiting on a
// confirmation. A policy refusal or an exhausted loop is a normal reply,
// not an error.
func (s *AssistantService) RunAgentTurn(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if req.ConversationID == "" || req.UserID == "" || req.CompanyID == "" {
		return nil, NewError(ErrValidation, "conversation_id, user_id and company_id are required")
	}
	if req.Message == "" {
		return nil, NewError(ErrValidation, "message is empty")
	}

	contextBlock, err := s.briefer.Build(ctx, req.CompanyID, req.Message)
	if err != nil {
		return nil, WrapError(err, ErrStorage, "failed to assemble briefing").
			WithContext("company_id", req.CompanyID)
	}

	history := append(append([]llm.Message{}, req.History...), llm.Message{
		Role:    "user",
		Content: req.Message,
	})

	result, err := s.agent.Execute(ctx, agent.AgentRequest{
		SystemPrompt: SystemPrompt,
		ContextBlock: contextBlock,
		History:      history,
		ExecContext: tools.ExecutionContext{
			UserID:         req.UserID,
			CompanyID:      req.CompanyID,
			ConversationID: req.ConversationID,
			DelegatedToken: req.DelegatedToken,
		},
	})
	if err != nil {
		return nil, WrapError(err, ErrExternalService, "agent turn failed").
			WithContext("conversation_id", req.ConversationID)
	}

	reply := &ChatReply{
		ConversationID: req.ConversationID,
		Reply:          result.Content,
		ToolCalls:      result.ToolCalls,
		Turns:          result.Turns,
		Exhausted:      result.Exhausted,
	}
	if pending, ok := s.pending.Pending(req.ConversationID); ok {
		reply.PendingAction = &pending
	}
	return reply, nil
}

// PrepareInvoiceDraft runs the draft step synchronously so the caller
// gets the document link and warnings back in one round trip.
func (s *AssistantService) PrepareInvoiceDraft(ctx context.Context, token, projectID string) (workflow.DraftResult, error) {
	if projectID == "" {
		return workflow.DraftResult{}, NewError(ErrValidation, "project_id is required")
	}
	if token == "" {
		return workflow.DraftResult{}, NewError(ErrAuthorization, "a delegated Workspace token is required to create documents")
	}
	ret, err := s.invoices.PrepareDraft(ctx, token, projectID)
	if err != nil {
		return workflow.DraftResult{}, WrapError(err, ErrExternalService, "invoice draft failed").
			WithContext("project_id", projectID)
	}
	return ret, nil
}

func (s *AssistantService) SetInvoiceChecklist(ctx context.Context, projectID, item string, done bool) (store.WorkflowInstance, error) {
	if projectID == "" || item == "" {
		return store.WorkflowInstance{}, NewError(ErrValidation, "project_id and item are required")
	}
	instance, err := s.invoices.SetChecklistItem(ctx, projectID, item, done)
	if err != nil {
		return store.WorkflowInstance{}, WrapError(err, ErrStorage, "checklist update failed").
			WithContext("project_id", projectID).
			WithContext("item", item)
	}
	return instance, nil
}

func (s *AssistantService) FinalizeInvoice(ctx context.Context, token string, req workflow.FinalizeRequest) (workflow.FinalizeResult, error) {
	if req.SubjectID == "" {
		return workflow.FinalizeResult{}, NewError(ErrValidation, "subject_id is required")
	}
	if token == "" {
		return workflow.FinalizeResult{}, NewError(ErrAuthorization, "a delegated Workspace token is required to send invoices")
	}
	ret, err := s.invoices.Finalize(ctx, token, req)
	if err != nil {
		return workflow.FinalizeResult{}, WrapError(err, ErrStorage, "invoice finalize failed").
			WithContext("project_id", req.SubjectID)
	}
	return ret, nil
}

// RequestInvoiceDraftRefresh regenerates a project's invoice draft in the
// background using the service token, so a stale document can be brought
// current without a user session.
func (s *AssistantService) RequestInvoiceDraftRefresh(ctx context.Context, projectID, requestedBy string) (*jobs.GenerationJob, error) {
	if projectID == "" {
		return nil, NewError(ErrValidation, "project_id is required")
	}
	job, err := s.dispatcher.DispatchOrRun(ctx, jobs.EnqueueRequest{
		Source: "api",
		Payload: jobs.JobPayload{
			Kind:        jobs.KindInvoiceDraft,
			SubjectID:   projectID,
			RequestedBy: requestedBy,
		},
	})
	if err != nil {
		return nil, WrapError(err, ErrUnknown, "failed to dispatch invoice draft job").
			WithContext("project_id", projectID)
	}
	return job, nil
}

// RemindStaleDrafts sweeps workflow instances that have sat untouched
// past the configured age. Invoice drafts get a background refresh so the
// numbers are current when the user comes back; other kinds are only
// logged, there is nothing safe to regenerate unattended.
func (s *AssistantService) RemindStaleDrafts(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.Reminder.StaleDraftAgeDays)
	stale, err := s.store.ListStaleWorkflowInstances(ctx, cutoff)
	if err != nil {
		return WrapError(err, ErrStorage, "failed to list stale workflow instances")
	}
	if len(stale) == 0 {
		return nil
	}
	log.Info("Found %d stale workflow drafts older than %s", len(stale), cutoff.Format(time.DateOnly))

	for _, instance := range stale {
		switch instance.Kind {
		case store.WorkflowKindInvoice:
			job, err := s.dispatcher.DispatchOrRun(ctx, jobs.EnqueueRequest{
				Source: "reminder",
				Payload: jobs.JobPayload{
					Kind:        jobs.KindInvoiceDraft,
					SubjectID:   instance.SubjectID,
					RequestedBy: "reminder",
				},
			})
			if err != nil {
				log.Error("Failed to dispatch refresh for stale invoice draft %s: %v", instance.ID, err)
				continue
			}
			log.Info("Stale invoice draft %s (project %s) queued for refresh as job %s", instance.ID, instance.SubjectID, job.ID)
		default:
			log.Warn("Workflow draft %s (%s, subject %s) has been idle since %s", instance.ID, instance.Kind, instance.SubjectID, instance.UpdatedAt.Format(time.DateOnly))
		}
	}
	return nil
}

// ExecuteGenerationJob is the executor handed to the queue and the inline
// dispatcher. Jobs run without a user session, so Workspace calls use the
// configured service token.
func (s *AssistantService) ExecuteGenerationJob(ctx context.Context, job *jobs.GenerationJob) error {
	token := s.cfg.Workspace.ServiceToken

	switch job.Payload.Kind {
	case jobs.KindInvoiceDraft:
		if token == "" {
			return NewError(ErrConfig, "WORKSPACE_SERVICE_TOKEN is required for background invoice drafts")
		}
		ret, err := s.invoices.PrepareDraft(ctx, token, job.Payload.SubjectID)
		if err != nil {
			return fmt.Errorf("invoice draft for project %s: %w", job.Payload.SubjectID, err)
		}
		log.Info("Job %s refreshed invoice draft for project %s: %s", job.ID, job.Payload.SubjectID, ret.DraftLink)
		return nil

	case jobs.KindChangeOrderPDF:
		if token == "" {
			return NewError(ErrConfig, "WORKSPACE_SERVICE_TOKEN is required for background ÄTA documents")
		}
		if job.Payload.ProjectID == "" {
			return NewError(ErrValidation, "change order jobs need a project_id").
				WithContext("job_id", job.ID)
		}
		ret, err := s.changeOrders.PrepareDraft(ctx, token, job.Payload.ProjectID, job.Payload.SubjectID)
		if err != nil {
			return fmt.Errorf("change order document for %s: %w", job.Payload.SubjectID, err)
		}
		log.Info("Job %s regenerated change order document %s: %s", job.ID, job.Payload.SubjectID, ret.DraftLink)
		return nil

	case jobs.KindKnowledgeIndex:
		snippets, err := s.store.ListSnippets(ctx)
		if err != nil {
			return fmt.Errorf("knowledge index: %w", err)
		}
		log.Info("Job %s verified knowledge base: %d snippets available", job.ID, len(snippets))
		return nil

	default:
		return NewError(ErrValidation, fmt.Sprintf("unknown job kind %q", job.Payload.Kind)).
			WithContext("job_id", job.ID)
	}
}
