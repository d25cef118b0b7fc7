package model

import (
	"encoding/json"
	"fmt"
)

// CallbackKind tells which chain outcome a callback reacts to.
type CallbackKind string

const (
	CallbackConfirm CallbackKind = "confirm"
	CallbackFailure CallbackKind = "failure"
)

// AuthorizationRef identifies an authorization in callback payloads.  It is
// serialized as the triple [id, granter, grantee].
type AuthorizationRef struct {
	ID      string
	Granter string
	Grantee string
}

func (r AuthorizationRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{r.ID, r.Granter, r.Grantee})
}

func (r *AuthorizationRef) UnmarshalJSON(b []byte) error {
	var triple []string
	if err := json.Unmarshal(b, &triple); err != nil {
		return err
	}
	if len(triple) != 3 {
		return fmt.Errorf("authorization ref: expected 3 elements, got %d", len(triple))
	}
	r.ID, r.Granter, r.Grantee = triple[0], triple[1], triple[2]
	return nil
}

// CallbackPayload is the job data of a mint callback.
type CallbackPayload struct {
	Tickets        []string           `json:"tickets"`
	Authorizations []AuthorizationRef `json:"authorizations"`
}

// Callback is a job descriptor scheduled when the chain reports the outcome
// of a transaction.
type Callback struct {
	Kind    CallbackKind    `json:"kind"`
	JobName string          `json:"name"`
	Payload CallbackPayload `json:"job_data"`
}

// CartTransaction is one on-chain call of a minting sequence.  Data is the
// 0x prefixed ABI payload; Value is a base 10 wei amount.
type CartTransaction struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Data      string    `json:"data"`
	Value     string    `json:"value"`
	OnConfirm *Callback `json:"on_confirm,omitempty"`
	OnFailure *Callback `json:"on_failure,omitempty"`
}
