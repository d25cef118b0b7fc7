package model

import "time"

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketMinting  TicketStatus = "minting"
	TicketReady    TicketStatus = "ready"
	TicketCanceled TicketStatus = "canceled"
)

// Ticket is a ticket whose identifier was predicted before its mint
// transaction confirmed.
type Ticket struct {
	ID              string       // tickets.id
	Owner           string       // tickets.owner
	CategoryID      string       // tickets.category_id
	GroupID         string       // tickets.group_id
	AuthorizationID string       // tickets.authorization_id
	Status          TicketStatus // tickets.status
	TransactionHash *string      // tickets.transaction_hash (nullable)
	CreatedAt       time.Time    // tickets.created_at
	UpdatedAt       time.Time    // tickets.updated_at
}

// TicketPatch lists the ticket columns callbacks may set.
type TicketPatch struct {
	TransactionHash *string
	Status          *TicketStatus
}

// PredictionInput is the tuple a ticket identifier is derived from.
type PredictionInput struct {
	Buyer           string
	CategoryID      string
	AuthorizationID string
	GroupID         string
}
