package service

import "grantsbackend/internal/model"

// budgetTransitions is the complete set of legal budget status changes.
var budgetTransitions = map[string][]string{
	model.BudgetStatusDraft:     {model.BudgetStatusSubmitted, model.BudgetStatusLocked},
	model.BudgetStatusSubmitted: {model.BudgetStatusApproved, model.BudgetStatusRejected, model.BudgetStatusDraft},
	model.BudgetStatusApproved:  {model.BudgetStatusLocked},
	model.BudgetStatusRejected:  {model.BudgetStatusDraft},
	model.BudgetStatusLocked:    {},
}

// BudgetStatuses lists every budget status in lifecycle order.
func BudgetStatuses() []string {
	return []string{
		model.BudgetStatusDraft,
		model.BudgetStatusSubmitted,
		model.BudgetStatusApproved,
		model.BudgetStatusRejected,
		model.BudgetStatusLocked,
	}
}

// CanTransitionBudget reports whether from -> to is in the budget table.
// Unknown statuses on either side are never allowed.
func CanTransitionBudget(from, to string) bool {
	for _, next := range budgetTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ContractStates lists every contract state in lifecycle order.
func ContractStates() []string {
	return []string{
		model.ContractStateDraft,
		model.ContractStateGenerated,
		model.ContractStateSubmittedForApproval,
		model.ContractStateApproved,
		model.ContractStateSentForSign,
		model.ContractStateSigned,
		model.ContractStateActive,
		model.ContractStateCancelled,
	}
}

// contractStep is one named contract operation: the states it may start
// from, the state it moves to and the audit action it records.
type contractStep struct {
	name   string
	from   []string
	to     string
	action string
}

func (s contractStep) allows(state string) bool {
	for _, f := range s.from {
		if f == state {
			return true
		}
	}
	return false
}

var (
	stepGenerate = contractStep{
		name:   "generate",
		from:   []string{model.ContractStateDraft},
		to:     model.ContractStateGenerated,
		action: model.ActionContractGenerated,
	}
	stepSubmitForApproval = contractStep{
		name:   "submit_for_approval",
		from:   []string{model.ContractStateGenerated},
		to:     model.ContractStateSubmittedForApproval,
		action: model.ActionContractSubmittedForApproval,
	}
	stepMarkApproved = contractStep{
		name:   "mark_approved",
		from:   []string{model.ContractStateSubmittedForApproval},
		to:     model.ContractStateApproved,
		action: model.ActionContractApproved,
	}
	stepSendForSign = contractStep{
		name:   "send_for_sign",
		from:   []string{model.ContractStateApproved},
		to:     model.ContractStateSentForSign,
		action: model.ActionContractSentForSign,
	}
	stepMarkSigned = contractStep{
		name:   "mark_signed",
		from:   []string{model.ContractStateSentForSign},
		to:     model.ContractStateSigned,
		action: model.ActionContractSigned,
	}
	stepActivate = contractStep{
		name:   "activate",
		from:   []string{model.ContractStateSigned},
		to:     model.ContractStateActive,
		action: model.ActionContractActivated,
	}
	stepCancel = contractStep{
		name: "cancel",
		from: []string{
			model.ContractStateDraft,
			model.ContractStateGenerated,
			model.ContractStateSubmittedForApproval,
			model.ContractStateApproved,
			model.ContractStateSentForSign,
		},
		to:     model.ContractStateCancelled,
		action: model.ActionContractCancelled,
	}
)

// contractSteps is every named contract operation.
var contractSteps = []contractStep{
	stepGenerate,
	stepSubmitForApproval,
	stepMarkApproved,
	stepSendForSign,
	stepMarkSigned,
	stepActivate,
	stepCancel,
}

// contractSigned reports whether the contract is past signature, after
// which it can no longer be edited or cancelled.
func contractSigned(state string) bool {
	return state == model.ContractStateSigned || state == model.ContractStateActive
}
