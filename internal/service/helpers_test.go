package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"grantsbackend/internal/events"
	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"
	"grantsbackend/internal/service"
	"grantsbackend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LifecycleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Action)
	}
	return out
}

// failingRecorder makes every audit write fail, so the unit of work around it
// must roll back.
type failingRecorder struct{ err error }

func (f failingRecorder) Record(context.Context, service.AuditEntry) error { return f.err }

type env struct {
	db        *gorm.DB
	budgets   service.BudgetSSOTService
	contracts service.ContractSSOTService
	audit     service.AuditService
	partners  service.PartnerService
	templates service.TemplateService
	ledger    repository.IdempotencyRepository
	pub       *recordingPublisher
	actor     uuid.UUID
}

func newEnv(t *testing.T) *env {
	return newEnvWithRecorder(t, nil)
}

// newEnvWithRecorder wires the services on a fresh database. A nil recorder
// means the real audit service.
func newEnvWithRecorder(t *testing.T, recorder service.AuditRecorder) *env {
	t.Helper()
	db := testutil.NewDB(t)
	logger := zaptest.NewLogger(t)
	clock := testutil.NewClock()

	tm := repository.NewTransactionManager(db, 5*time.Second)
	budgetRepo := repository.NewBudgetRepository(db)
	contractRepo := repository.NewContractRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	ledger := repository.NewIdempotencyRepository(db)

	auditService := service.NewAuditService(repository.NewAuditRepository(db))
	if recorder == nil {
		recorder = auditService
	}
	pub := &recordingPublisher{}
	opts := []service.Option{service.WithClock(clock.Now), service.WithPublisher(pub)}

	return &env{
		db:        db,
		budgets:   service.NewBudgetSSOTService(tm, budgetRepo, partnerRepo, templateRepo, ledger, recorder, logger, opts...),
		contracts: service.NewContractSSOTService(tm, contractRepo, budgetRepo, templateRepo, ledger, recorder, logger, opts...),
		audit:     auditService,
		partners:  service.NewPartnerService(partnerRepo, tm),
		templates: service.NewTemplateService(templateRepo, tm),
		ledger:    ledger,
		pub:       pub,
		actor:     uuid.New(),
	}
}

func (e *env) partner(t *testing.T, active bool) uuid.UUID {
	t.Helper()
	p, err := e.partners.CreatePartner(context.Background(), service.CreatePartnerRequest{
		Name:     "Riverside Health Collective",
		Type:     model.PartnerTypeGrantee,
		IsActive: &active,
	})
	require.NoError(t, err)
	return p.ID
}

func (e *env) budgetTemplate(t *testing.T) service.TemplateResponse {
	t.Helper()
	tpl, err := e.templates.CreateTemplate(context.Background(), service.CreateTemplateRequest{
		Kind:     model.TemplateKindBudget,
		Name:     "Standard field budget",
		Currency: "USD",
		Lines: []service.TemplateLinePayload{
			{Description: "Field staff", Unit: "month", DefaultQuantity: decimal.NewFromInt(12), DefaultUnitCost: decimal.NewFromInt(1000)},
			{Description: "Travel", Unit: "trip", DefaultQuantity: decimal.NewFromInt(4), DefaultUnitCost: decimal.NewFromInt(250)},
		},
	})
	require.NoError(t, err)
	return tpl
}

func (e *env) contractTemplate(t *testing.T) uuid.UUID {
	t.Helper()
	tpl, err := e.templates.CreateTemplate(context.Background(), service.CreateTemplateRequest{
		Kind: model.TemplateKindContract,
		Name: "Grant agreement",
		Body: []byte(`{"sections":["scope","payment"]}`),
	})
	require.NoError(t, err)
	return tpl.ID
}

func line(desc string, qty, cost int64) service.BudgetLineInput {
	return service.BudgetLineInput{
		Description: desc,
		Unit:        "unit",
		Quantity:    decimal.NewFromInt(qty),
		UnitCost:    decimal.NewFromInt(cost),
	}
}

func (e *env) draftBudget(t *testing.T, partnerID uuid.UUID, lines ...service.BudgetLineInput) service.BudgetResponse {
	t.Helper()
	b, err := e.budgets.CreateBudget(context.Background(), service.CreateBudgetInput{
		ProjectID: uuid.New(),
		PartnerID: partnerID,
		Currency:  "USD",
		Lines:     lines,
		ActorID:   e.actor,
	})
	require.NoError(t, err)
	return b
}

func (e *env) transition(t *testing.T, budgetID uuid.UUID, statuses ...string) service.BudgetResponse {
	t.Helper()
	var b service.BudgetResponse
	for _, s := range statuses {
		var err error
		b, err = e.budgets.TransitionStatus(context.Background(), service.TransitionBudgetInput{
			BudgetID:   budgetID,
			NextStatus: s,
			ActorID:    e.actor,
		})
		require.NoError(t, err, "transition to %s", s)
	}
	return b
}

func (e *env) approvedBudget(t *testing.T) service.BudgetResponse {
	t.Helper()
	b := e.draftBudget(t, e.partner(t, true), line("Vaccines", 100, 12))
	return e.transition(t, b.ID, model.BudgetStatusSubmitted, model.BudgetStatusApproved)
}

func (e *env) draftContract(t *testing.T, budget service.BudgetResponse) service.ContractResponse {
	t.Helper()
	c, err := e.contracts.CreateContract(context.Background(), service.CreateContractInput{
		ProjectID:  budget.ProjectID,
		PartnerID:  budget.PartnerID,
		BudgetID:   budget.ID,
		TemplateID: e.contractTemplate(t),
		Title:      "Vaccination outreach",
		ActorID:    e.actor,
	})
	require.NoError(t, err)
	return c
}

func (e *env) act(id uuid.UUID) service.ContractActionInput {
	return service.ContractActionInput{ContractID: id, ActorID: e.actor}
}

// signedContract walks a new contract on an approved budget up to SIGNED.
func (e *env) signedContract(t *testing.T) (service.ContractResponse, service.BudgetResponse) {
	t.Helper()
	ctx := context.Background()
	budget := e.approvedBudget(t)
	c := e.draftContract(t, budget)

	_, err := e.contracts.Generate(ctx, service.GenerateContractInput{ContractActionInput: e.act(c.ID), GeneratedDocxKey: "contracts/draft.docx"})
	require.NoError(t, err)
	_, err = e.contracts.SubmitForApproval(ctx, service.SubmitContractInput{ContractActionInput: e.act(c.ID), Provider: "docuflow", Ref: "APR-1"})
	require.NoError(t, err)
	_, err = e.contracts.MarkApproved(ctx, service.ApproveContractInput{ContractActionInput: e.act(c.ID), ApprovedDocxKey: "contracts/approved.docx"})
	require.NoError(t, err)
	_, err = e.contracts.SendForSign(ctx, service.SendForSignInput{ContractActionInput: e.act(c.ID), EnvelopeID: "env-42"})
	require.NoError(t, err)
	c, err = e.contracts.MarkSigned(ctx, service.MarkSignedInput{ContractActionInput: e.act(c.ID), SignedPdfKey: "contracts/signed.pdf"})
	require.NoError(t, err)
	return c, budget
}

func (e *env) trail(t *testing.T, entityType string, id uuid.UUID) []service.AuditLogResponse {
	t.Helper()
	logs, err := e.audit.GetEntityTrail(context.Background(), entityType, id.String())
	require.NoError(t, err)
	return logs
}

func actionsOf(logs []service.AuditLogResponse) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}
