// Package ledger is the client side of the permissioned ledger gateway that
// anchors approved documents.
package ledger

import (
	"context"
	"time"

	"github.com/defensechain/defensechain/storage/model"
)

// Signature is the attestation of one approver over a document, signed with
// the key of the approver's organization
type Signature struct {
	Role           model.Role           `json:"role"`
	Email          string               `json:"email"`
	OrganizationID string               `json:"organizationId"`
	Algorithm      string               `json:"algorithm"`
	Signature      string               `json:"signature"`
	Timestamp      time.Time            `json:"timestamp"`
	Status         model.ApprovalStatus `json:"status"`
	Justification  string               `json:"justification,omitempty"`
}

// DocumentRecord is what gets registered on the ledger for an approved document
type DocumentRecord struct {
	User                 string              `json:"user"`
	DocumentID           string              `json:"documentId"`
	Version              int                 `json:"version"`
	MinutesHash          string              `json:"minutesHash"`
	MinutesCID           string              `json:"minutesCid"`
	EvaluationHash       string              `json:"evaluationHash,omitempty"`
	EvaluationCID        string              `json:"evaluationCid,omitempty"`
	StudentRegistrations []string            `json:"studentRegistrations"`
	DefenseDate          time.Time           `json:"defenseDate"`
	FinalGrade           float64             `json:"finalGrade"`
	Result               model.DefenseResult `json:"result"`
	Reason               string              `json:"reason,omitempty"`
	Signatures           []Signature         `json:"signatures"`
	ValidatedAt          time.Time           `json:"validatedAt"`
}

// Receipt is returned by the gateway after a successful registration
type Receipt struct {
	TxID string `json:"transactionId"`
}

// Verification is the answer of the gateway for a content address. Reason
// explains an invalid verification.
type Verification struct {
	Valid        bool            `json:"valid"`
	Reason       string          `json:"reason,omitempty"`
	DocumentType string          `json:"documentType,omitempty"`
	TxID         string          `json:"transactionId,omitempty"`
	Document     *DocumentRecord `json:"document,omitempty"`
}

// Health is the answer of the gateway health endpoint
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Gateway is the ledger gateway contract. Network failures are reported as
// model.DependencyUnavailableError.
type Gateway interface {
	HealthCheck(ctx context.Context) (*Health, error)
	RegisterDocument(ctx context.Context, record DocumentRecord) (*Receipt, error)
	VerifyDocument(ctx context.Context, user, contentAddress string) (*Verification, error)
}
