package minting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ticketforge/mint-engine/internal/model"
)

type TicketStore interface {
	Update(ctx context.Context, id string, patch model.TicketPatch) error
}

// CallbackReport lists what a callback handler managed to write.  Nothing is
// rolled back when a step fails: FailedStep and FailedID point at the update
// that broke so the remaining ones can be retried or fixed by hand.
type CallbackReport struct {
	TxHash                string
	TicketsUpdated        []string
	AuthorizationsUpdated []string
	FailedStep            string
	FailedID              string
}

const (
	StepTickets        = "tickets"
	StepAuthorizations = "authorizations"
)

// Complete reports whether every update went through.
func (r CallbackReport) Complete() bool { return r.FailedStep == "" }

// CallbackHandler applies chain outcomes of mint transactions.
type CallbackHandler struct {
	tickets        TicketStore
	authorizations AuthorizationStore
	logger         *slog.Logger
}

func NewCallbackHandler(tickets TicketStore, authorizations AuthorizationStore, logger *slog.Logger) *CallbackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackHandler{tickets: tickets, authorizations: authorizations, logger: logger}
}

// OnTicketMintingTransactionFailure cancels the predicted tickets and the
// authorizations of a failed mint transaction.
func (h *CallbackHandler) OnTicketMintingTransactionFailure(ctx context.Context, txHash string, payload model.CallbackPayload) (CallbackReport, error) {
	report := CallbackReport{TxHash: txHash}
	status := model.TicketCanceled
	if err := h.updateTickets(ctx, &report, payload.Tickets, model.TicketPatch{TransactionHash: &txHash, Status: &status}); err != nil {
		return report, err
	}
	for _, a := range payload.Authorizations {
		key := model.AuthorizationKey{ID: a.ID, Mode: model.ModeMint, Granter: a.Granter, Grantee: a.Grantee}
		if err := h.authorizations.Update(ctx, key, model.AuthorizationPatch{Cancelled: model.Bool(true)}); err != nil {
			report.FailedStep, report.FailedID = StepAuthorizations, a.ID
			h.logger.Error("mint failure callback incomplete", "txHash", txHash, "step", StepAuthorizations, "id", a.ID,
				"ticketsUpdated", len(report.TicketsUpdated), "authorizationsUpdated", len(report.AuthorizationsUpdated), "error", err)
			return report, fmt.Errorf("%w: %s: %v", ErrAuthorizationUpdateFailed, a.ID, err)
		}
		report.AuthorizationsUpdated = append(report.AuthorizationsUpdated, a.ID)
	}
	h.logger.Info("mint transaction failed, tickets cancelled", "txHash", txHash, "tickets", len(report.TicketsUpdated))
	return report, nil
}

// OnTicketMintingTransactionConfirmation records the transaction hash on the
// minted tickets.  Ticket status is left untouched.
func (h *CallbackHandler) OnTicketMintingTransactionConfirmation(ctx context.Context, txHash string, payload model.CallbackPayload) (CallbackReport, error) {
	report := CallbackReport{TxHash: txHash}
	if err := h.updateTickets(ctx, &report, payload.Tickets, model.TicketPatch{TransactionHash: &txHash}); err != nil {
		return report, err
	}
	h.logger.Info("mint transaction confirmed", "txHash", txHash, "tickets", len(report.TicketsUpdated))
	return report, nil
}

func (h *CallbackHandler) updateTickets(ctx context.Context, report *CallbackReport, ids []string, patch model.TicketPatch) error {
	for _, id := range ids {
		if err := h.tickets.Update(ctx, id, patch); err != nil {
			report.FailedStep, report.FailedID = StepTickets, id
			h.logger.Error("mint callback incomplete", "txHash", report.TxHash, "step", StepTickets, "id", id,
				"ticketsUpdated", len(report.TicketsUpdated), "error", err)
			return fmt.Errorf("%w: %s: %v", ErrTicketUpdateFailed, id, err)
		}
		report.TicketsUpdated = append(report.TicketsUpdated, id)
	}
	return nil
}
