package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/model"
	"grantsbackend/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countContracts(t *testing.T, e *env) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Contract{}).Count(&n).Error)
	return n
}

func TestCreateContractRequiresApprovedBudget(t *testing.T) {
	e := newEnv(t)
	draft := e.draftBudget(t, e.partner(t, true), line("x", 1, 1))

	_, err := e.contracts.CreateContract(context.Background(), service.CreateContractInput{
		ProjectID:  draft.ProjectID,
		PartnerID:  draft.PartnerID,
		BudgetID:   draft.ID,
		TemplateID: e.contractTemplate(t),
		Title:      "Too early",
		ActorID:    e.actor,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPreconditionFailed, apperr.KindOf(err))
	assert.Zero(t, countContracts(t, e))

	_, total, err := e.audit.GetAuditLogs(context.Background(), service.AuditFilter{EntityType: model.EntityContract})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateContractPreconditions(t *testing.T) {
	e := newEnv(t)
	budget := e.approvedBudget(t)
	contractTpl := e.contractTemplate(t)
	budgetTpl := e.budgetTemplate(t)

	base := service.CreateContractInput{
		ProjectID:  budget.ProjectID,
		PartnerID:  budget.PartnerID,
		BudgetID:   budget.ID,
		TemplateID: contractTpl,
		Title:      "Vaccination outreach",
		ActorID:    e.actor,
	}
	tests := []struct {
		name   string
		mutate func(in *service.CreateContractInput)
		kind   apperr.Kind
	}{
		{"unknown budget", func(in *service.CreateContractInput) { in.BudgetID = uuid.New() }, apperr.KindPreconditionFailed},
		{"other partner", func(in *service.CreateContractInput) { in.PartnerID = uuid.New() }, apperr.KindPreconditionFailed},
		{"other project", func(in *service.CreateContractInput) { in.ProjectID = uuid.New() }, apperr.KindPreconditionFailed},
		{"unknown template", func(in *service.CreateContractInput) { in.TemplateID = uuid.New() }, apperr.KindPreconditionFailed},
		{"budget template", func(in *service.CreateContractInput) { in.TemplateID = budgetTpl.ID }, apperr.KindPreconditionFailed},
		{"missing title", func(in *service.CreateContractInput) { in.Title = "  " }, apperr.KindValidation},
		{"missing budget", func(in *service.CreateContractInput) { in.BudgetID = uuid.Nil }, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := e.contracts.CreateContract(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err), err.Error())
		})
	}
	assert.Zero(t, countContracts(t, e))
}

func TestCreateContractNumbering(t *testing.T) {
	e := newEnv(t)
	budget := e.approvedBudget(t)

	first := e.draftContract(t, budget)
	second := e.draftContract(t, budget)
	assert.Equal(t, "CTR-20260115-00001", first.Number)
	assert.Equal(t, "CTR-20260115-00002", second.Number)
	assert.Equal(t, model.ContractStateDraft, first.State)
	assert.Empty(t, first.Substatus)

	_, err := e.contracts.CreateContract(context.Background(), service.CreateContractInput{
		ProjectID:  budget.ProjectID,
		PartnerID:  budget.PartnerID,
		BudgetID:   budget.ID,
		TemplateID: e.contractTemplate(t),
		Number:     first.Number,
		Title:      "Duplicate",
		ActorID:    e.actor,
	})
	assert.Equal(t, apperr.KindPreconditionFailed, apperr.KindOf(err))
	assert.EqualValues(t, 2, countContracts(t, e))
}

func TestGeneratedNumbersSkipCallerNumbers(t *testing.T) {
	e := newEnv(t)
	budget := e.approvedBudget(t)

	_, err := e.contracts.CreateContract(context.Background(), service.CreateContractInput{
		ProjectID:  budget.ProjectID,
		PartnerID:  budget.PartnerID,
		BudgetID:   budget.ID,
		TemplateID: e.contractTemplate(t),
		Number:     "CTR-20260115-00002",
		Title:      "Imported agreement",
		ActorID:    e.actor,
	})
	require.NoError(t, err)

	for _, want := range []string{"CTR-20260115-00003", "CTR-20260115-00004", "CTR-20260115-00005"} {
		c := e.draftContract(t, budget)
		assert.Equal(t, want, c.Number)
	}
	assert.EqualValues(t, 4, countContracts(t, e))
}

func TestContractLifecycle(t *testing.T) {
	e := newEnv(t)
	c, budget := e.signedContract(t)

	assert.Equal(t, model.ContractStateSigned, c.State)
	require.NotNil(t, c.GeneratedDocxKey)
	assert.Equal(t, "contracts/draft.docx", *c.GeneratedDocxKey)
	require.NotNil(t, c.ApprovedDocxKey)
	assert.Equal(t, "contracts/approved.docx", *c.ApprovedDocxKey)
	require.NotNil(t, c.SignedPdfKey)
	assert.Equal(t, "contracts/signed.pdf", *c.SignedPdfKey)

	approval, ok := c.Substatus["approval"].(map[string]any)
	require.True(t, ok, "approval substatus: %#v", c.Substatus)
	assert.Equal(t, "docuflow", approval["provider"])
	assert.Equal(t, "APR-1", approval["ref"])
	signing, ok := c.Substatus["signing"].(map[string]any)
	require.True(t, ok, "signing substatus: %#v", c.Substatus)
	assert.Equal(t, "env-42", signing["envelope_id"])

	active, err := e.contracts.Activate(context.Background(), e.act(c.ID))
	require.NoError(t, err)
	assert.Equal(t, model.ContractStateActive, active.State)

	assert.Equal(t, []string{
		model.ActionContractCreated,
		model.ActionContractGenerated,
		model.ActionContractSubmittedForApproval,
		model.ActionContractApproved,
		model.ActionContractSentForSign,
		model.ActionContractSigned,
		model.ActionContractActivated,
	}, actionsOf(e.trail(t, model.EntityContract, c.ID)))

	got, err := e.budgets.GetBudget(context.Background(), budget.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BudgetStatusLocked, got.Status)
}

func TestActivateLocksApprovedBudget(t *testing.T) {
	e := newEnv(t)
	c, budget := e.signedContract(t)

	_, err := e.contracts.Activate(context.Background(), e.act(c.ID))
	require.NoError(t, err)

	trail := e.trail(t, model.EntityBudget, budget.ID)
	last := trail[len(trail)-1]
	assert.Equal(t, model.ActionBudgetStatusChanged, last.Action)
	assert.JSONEq(t, `{"from":"APPROVED","to":"LOCKED","reason":"CONTRACT_ACTIVATED"}`, string(last.Details))

	pub := e.pub.actions()
	assert.Equal(t, model.ActionContractActivated, pub[len(pub)-1])
}

func TestActivateBeforeSignatureLeavesBudgetApproved(t *testing.T) {
	e := newEnv(t)
	budget := e.approvedBudget(t)
	c := e.draftContract(t, budget)
	_, err := e.contracts.Generate(context.Background(), service.GenerateContractInput{ContractActionInput: e.act(c.ID), GeneratedDocxKey: "k"})
	require.NoError(t, err)

	_, err = e.contracts.Activate(context.Background(), e.act(c.ID))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	got, err := e.budgets.GetBudget(context.Background(), budget.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BudgetStatusApproved, got.Status)

	contract, err := e.contracts.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContractStateGenerated, contract.State)
}

func TestActivateWithAlreadyLockedBudget(t *testing.T) {
	e := newEnv(t)
	c, budget := e.signedContract(t)
	e.transition(t, budget.ID, model.BudgetStatusLocked)
	budgetRows := len(e.trail(t, model.EntityBudget, budget.ID))

	active, err := e.contracts.Activate(context.Background(), e.act(c.ID))
	require.NoError(t, err)
	assert.Equal(t, model.ContractStateActive, active.State)
	assert.Len(t, e.trail(t, model.EntityBudget, budget.ID), budgetRows, "no second lock is recorded")
}

func TestCancelContract(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	draft := e.draftContract(t, e.approvedBudget(t))
	cancelled, err := e.contracts.Cancel(ctx, service.CancelContractInput{ContractActionInput: e.act(draft.ID), Reason: "partner withdrew"})
	require.NoError(t, err)
	assert.Equal(t, model.ContractStateCancelled, cancelled.State)
	cancellation, ok := cancelled.Substatus["cancellation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "partner withdrew", cancellation["reason"])
	assert.Equal(t, model.ContractStateDraft, cancellation["previous_state"])

	_, err = e.contracts.Cancel(ctx, service.CancelContractInput{ContractActionInput: e.act(draft.ID)})
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	signed, _ := e.signedContract(t)
	_, err = e.contracts.Cancel(ctx, service.CancelContractInput{ContractActionInput: e.act(signed.ID), Reason: "too late"})
	assert.Equal(t, apperr.KindLocked, apperr.KindOf(err))

	got, err := e.contracts.GetContract(ctx, signed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContractStateSigned, got.State)
}

func TestUpdateContract(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.draftContract(t, e.approvedBudget(t))

	title := "Vaccination outreach, phase 2"
	got, err := e.contracts.UpdateContract(ctx, service.UpdateContractInput{ContractID: c.ID, Title: &title, ActorID: e.actor})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)

	_, err = e.contracts.UpdateContract(ctx, service.UpdateContractInput{ContractID: c.ID, ActorID: e.actor})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	signed, _ := e.signedContract(t)
	_, err = e.contracts.UpdateContract(ctx, service.UpdateContractInput{ContractID: signed.ID, Title: &title, ActorID: e.actor})
	assert.Equal(t, apperr.KindLocked, apperr.KindOf(err))

	_, err = e.contracts.UpdateContract(ctx, service.UpdateContractInput{ContractID: uuid.New(), Title: &title, ActorID: e.actor})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestContractStepsOutOfOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.draftContract(t, e.approvedBudget(t))

	_, err := e.contracts.SubmitForApproval(ctx, service.SubmitContractInput{ContractActionInput: e.act(c.ID), Provider: "docuflow"})
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	_, err = e.contracts.MarkApproved(ctx, service.ApproveContractInput{ContractActionInput: e.act(c.ID)})
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	_, err = e.contracts.SendForSign(ctx, service.SendForSignInput{ContractActionInput: e.act(c.ID), EnvelopeID: "env"})
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	_, err = e.contracts.MarkSigned(ctx, service.MarkSignedInput{ContractActionInput: e.act(c.ID), SignedPdfKey: "k"})
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	_, err = e.contracts.Generate(ctx, service.GenerateContractInput{ContractActionInput: e.act(c.ID), GeneratedDocxKey: "k"})
	require.NoError(t, err)
	_, err = e.contracts.Generate(ctx, service.GenerateContractInput{ContractActionInput: e.act(c.ID), GeneratedDocxKey: "k"})
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err), "generate runs once")

	assert.Len(t, e.trail(t, model.EntityContract, c.ID), 2)
}

func TestContractStepValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := e.contracts.Generate(ctx, service.GenerateContractInput{ContractActionInput: e.act(id)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = e.contracts.SubmitForApproval(ctx, service.SubmitContractInput{ContractActionInput: e.act(id)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = e.contracts.SendForSign(ctx, service.SendForSignInput{ContractActionInput: e.act(id)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = e.contracts.MarkSigned(ctx, service.MarkSignedInput{ContractActionInput: e.act(id)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.contracts.Activate(ctx, e.act(id))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = e.contracts.GetContract(ctx, id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestIdempotentContractStep(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.draftContract(t, e.approvedBudget(t))

	in := service.GenerateContractInput{GeneratedDocxKey: "contracts/draft.docx"}
	in.ContractActionInput = e.act(c.ID)
	in.IdempotencyKey = "generate-" + c.ID.String()

	first, err := e.contracts.Generate(ctx, in)
	require.NoError(t, err)
	second, err := e.contracts.Generate(ctx, in)
	require.NoError(t, err, "a replay is not an invalid transition")
	assert.Equal(t, first, second)

	assert.Equal(t, []string{model.ActionContractCreated, model.ActionContractGenerated},
		actionsOf(e.trail(t, model.EntityContract, c.ID)))

	in.GeneratedDocxKey = "contracts/other.docx"
	_, err = e.contracts.Generate(ctx, in)
	assert.Equal(t, apperr.KindIdempotencyKeyConflict, apperr.KindOf(err))
}

func TestIdempotentActivateLocksOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c, budget := e.signedContract(t)

	in := e.act(c.ID)
	in.IdempotencyKey = "activate-" + c.ID.String()
	for i := 0; i < 3; i++ {
		got, err := e.contracts.Activate(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, model.ContractStateActive, got.State)
	}

	locks := 0
	for _, l := range e.trail(t, model.EntityBudget, budget.ID) {
		if l.Action == model.ActionBudgetStatusChanged {
			var after struct {
				Status string `json:"status"`
			}
			if assert.NoError(t, json.Unmarshal(l.AfterState, &after)) && after.Status == model.BudgetStatusLocked {
				locks++
			}
		}
	}
	assert.Equal(t, 1, locks)
}

// contractOp is one named lifecycle operation with a valid payload.
type contractOp struct {
	name string
	to   string
	run  func(ctx context.Context, e *env, id uuid.UUID) (service.ContractResponse, error)
}

var contractOps = []contractOp{
	{"generate", model.ContractStateGenerated, func(ctx context.Context, e *env, id uuid.UUID) (service.ContractResponse, error) {
		return e.contracts.Generate(ctx, service.GenerateContractInput{ContractActionInput: e.act(id), GeneratedDocxKey: "contracts/draft.docx"})
	}},
	{"submit", model.ContractStateSubmittedForApproval, func(ctx context.Context, e *env, id uuid.UUID) (service.ContractResponse, error) {
		return e.contracts.SubmitForApproval(ctx, service.SubmitContractInput{ContractActionInput: e.act(id), Provider: "docuflow", Ref: "APR-1"})
	}},
	{"approve", model.ContractStateApproved, func(ctx context.Context, e *env, id uuid.UUID) (service.ContractResponse, error) {
		return e.contracts.MarkApproved(ctx, service.ApproveContractInput{ContractActionInput: e.act(id)})
	}},
	{"send_for_sign", model.ContractStateSentForSign, func(ctx context.Context, e *env, id uuid.UUID) (service.ContractResponse, error) {
		return e.contracts.SendForSign(ctx, service.SendForSignInput{ContractActionInput: e.act(id), EnvelopeID: "env-42"})
	}},
	{"sign", model.ContractStateSigned, func(ctx context.Context, e *env, id uuid.UUID) (service.ContractResponse, error) {
		return e.contracts.MarkSigned(ctx, service.MarkSignedInput{ContractActionInput: e.act(id), SignedPdfKey: "contracts/signed.pdf"})
	}},
	{"activate", model.ContractStateActive, func(ctx context.Context, e *env, id uuid.UUID) (service.ContractResponse, error) {
		return e.contracts.Activate(ctx, e.act(id))
	}},
	{"cancel", model.ContractStateCancelled, func(ctx context.Context, e *env, id uuid.UUID) (service.ContractResponse, error) {
		return e.contracts.Cancel(ctx, service.CancelContractInput{ContractActionInput: e.act(id), Reason: "withdrawn"})
	}},
}

// contractIn creates a contract on a fresh approved budget and walks it to state.
func (e *env) contractIn(t *testing.T, state string) service.ContractResponse {
	t.Helper()
	ctx := context.Background()
	c := e.draftContract(t, e.approvedBudget(t))
	if state == model.ContractStateCancelled {
		c, err := contractOps[len(contractOps)-1].run(ctx, e, c.ID)
		require.NoError(t, err)
		return c
	}
	for _, op := range contractOps {
		if c.State == state {
			break
		}
		var err error
		c, err = op.run(ctx, e, c.ID)
		require.NoError(t, err, op.name)
	}
	require.Equal(t, state, c.State)
	return c
}

// forwardStep maps each state to the state its forward step leads to.
var forwardStep = map[string]string{
	model.ContractStateDraft:                model.ContractStateGenerated,
	model.ContractStateGenerated:            model.ContractStateSubmittedForApproval,
	model.ContractStateSubmittedForApproval: model.ContractStateApproved,
	model.ContractStateApproved:             model.ContractStateSentForSign,
	model.ContractStateSentForSign:          model.ContractStateSigned,
	model.ContractStateSigned:               model.ContractStateActive,
}

func TestContractTransitionTable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, from := range service.ContractStates() {
		c := e.contractIn(t, from)
		signed := from == model.ContractStateSigned || from == model.ContractStateActive

		for _, op := range contractOps {
			allowed := forwardStep[from] == op.to
			if op.to == model.ContractStateCancelled {
				allowed = !signed && from != model.ContractStateCancelled
			}
			if allowed {
				continue
			}
			t.Run(from+"/"+op.name, func(t *testing.T) {
				_, err := op.run(ctx, e, c.ID)
				require.Error(t, err)
				want := apperr.KindInvalidTransition
				if op.to == model.ContractStateCancelled && signed {
					want = apperr.KindLocked
				}
				assert.Equal(t, want, apperr.KindOf(err), err.Error())

				got, err := e.contracts.GetContract(ctx, c.ID)
				require.NoError(t, err)
				assert.Equal(t, from, got.State)
			})
		}
	}
}
