package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ticketforge/mint-engine/internal/minting"
	"github.com/ticketforge/mint-engine/internal/model"
)

const (
	TypeReconcileAuthorizations = "authorizations:reconcile"
	TypeBuildMintingSequence    = "minting:build_sequence"
	TypeMintingConfirmed        = minting.JobTicketMintingConfirmation
	TypeMintingFailed           = minting.JobTicketMintingFailure
)

// Queue names and their weights on the worker.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
}

// ReconcilePayload asks for the authorizations of a cart step to be replaced
// by Requested.
type ReconcilePayload struct {
	ActionSetID       string                      `json:"action_set_id"`
	Step              int                         `json:"step"`
	Requested         []model.TicketMintingFormat `json:"requested"`
	Prices            []model.Price               `json:"prices"`
	Fees              []string                    `json:"fees"`
	CommitType        string                      `json:"commit_type"`
	ExpirationMs      int64                       `json:"expiration_ms"`
	SignatureReadable bool                        `json:"signature_readable"`
	Grantee           string                      `json:"grantee"`
}

func (p ReconcilePayload) Expiration() time.Duration {
	return time.Duration(p.ExpirationMs) * time.Millisecond
}

type BuildSequencePayload struct {
	CartID     string `json:"cart_id"`
	CheckoutID string `json:"checkout_id"`
	GemOrderID string `json:"gem_order_id"`
}

// CallbackTaskPayload is the payload of minting callback jobs.
type CallbackTaskPayload struct {
	TxHash string                `json:"tx_hash"`
	Data   model.CallbackPayload `json:"job_data"`
}

func NewReconcileTask(p ReconcilePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReconcileAuthorizations, b,
		asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

func NewBuildSequenceTask(p BuildSequencePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBuildMintingSequence, b,
		asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewCallbackTask turns a callback descriptor into the job it names.  The
// task id is derived from the transaction so a redelivered status event does
// not run the callback twice.
func NewCallbackTask(txHash string, cb model.Callback) (*asynq.Task, error) {
	b, err := json.Marshal(CallbackTaskPayload{TxHash: txHash, Data: cb.Payload})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(cb.JobName, b,
		asynq.Queue(QueueCritical), asynq.MaxRetry(10), asynq.TaskID(cb.JobName+":"+txHash)), nil
}
