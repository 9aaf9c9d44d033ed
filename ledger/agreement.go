package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tidwall/gjson"

	"github.com/datanovaai/marketplace-backend/processor"
)

// AgreementStatus is the lifecycle state of a data-sharing agreement.
// Transitions are pending -> executed or pending -> revoked; both successors
// are terminal. The ledger program, not this client, enforces the machine.
type AgreementStatus string

const (
	StatusPending  AgreementStatus = "pending"
	StatusExecuted AgreementStatus = "executed"
	StatusRevoked  AgreementStatus = "revoked"
)

// Agreement is the on-chain payload of a data-sharing agreement account.
type Agreement struct {
	Owner          string          `json:"owner"`
	User           string          `json:"user"`
	DatasetID      string          `json:"dataset_id"`
	AccessDuration int64           `json:"access_duration"`
	Price          float64         `json:"price"`
	Status         AgreementStatus `json:"status"`
}

// instructionEnvelope is the wire shape of every agreement-program
// instruction's data field.
type instructionEnvelope struct {
	Instruction     string     `json:"instruction"`
	Agreement       *Agreement `json:"agreement,omitempty"`
	AmountLamports  uint64     `json:"amount_lamports,omitempty"`
	Lamports        uint64     `json:"lamports,omitempty"`
	Space           int        `json:"space,omitempty"`
	NewAccount      string     `json:"new_account,omitempty"`
	FundingAccount  string     `json:"funding_account,omitempty"`
	OwningProgramID string     `json:"owning_program_id,omitempty"`
}

// AgreementContract builds and submits the on-chain instructions of the
// agreement lifecycle against an abstract ledger Client.
type AgreementContract struct {
	programID     string
	client        Client
	space         int
	timeout       time.Duration
	confirmCreate bool
	processors    []processor.Processor
}

func NewAgreementContract(config map[string]interface{}, client Client) (*AgreementContract, error) {
	programID, ok := config["program_id"].(string)
	if !ok || programID == "" {
		return nil, fmt.Errorf("program_id must be specified")
	}

	space := 1000
	switch v := config["agreement_space"].(type) {
	case int:
		space = v
	case float64:
		space = int(v)
	}

	timeoutSeconds := 30
	switch v := config["timeout_seconds"].(type) {
	case int:
		timeoutSeconds = v
	case float64:
		timeoutSeconds = int(v)
	}

	confirmCreate := true
	if v, ok := config["confirm_create"].(bool); ok {
		confirmCreate = v
	}

	return &AgreementContract{
		programID:     programID,
		client:        client,
		space:         space,
		timeout:       time.Duration(timeoutSeconds) * time.Second,
		confirmCreate: confirmCreate,
	}, nil
}

func (c *AgreementContract) Subscribe(p processor.Processor) {
	c.processors = append(c.processors, p)
}

// CreateAgreement allocates a new agreement account sized for the serialized
// payload, reserves its rent-exemption balance from the owner, and submits a
// combined create+initialize transaction. By default it blocks until the
// ledger confirms the transaction, so a returned address always refers to an
// on-chain pending agreement; set confirm_create: false to skip the wait.
func (c *AgreementContract) CreateAgreement(ctx context.Context, owner, user, datasetID string, accessDuration int64, price float64) (string, error) {
	agreementAddress, err := NewAddress()
	if err != nil {
		return "", &LedgerError{Op: "create agreement", Err: err}
	}

	lamports, err := c.client.MinimumBalanceForRentExemption(ctx, c.space)
	if err != nil {
		return "", &LedgerError{Op: "estimate rent exemption", Err: err}
	}

	agreement := Agreement{
		Owner:          owner,
		User:           user,
		DatasetID:      datasetID,
		AccessDuration: accessDuration,
		Price:          price,
		Status:         StatusPending,
	}

	createData, err := json.Marshal(instructionEnvelope{
		Instruction:     "create_account",
		Lamports:        lamports,
		Space:           c.space,
		NewAccount:      agreementAddress,
		FundingAccount:  owner,
		OwningProgramID: c.programID,
	})
	if err != nil {
		return "", &LedgerError{Op: "create agreement", Err: err}
	}

	initData, err := json.Marshal(instructionEnvelope{
		Instruction: "initialize",
		Agreement:   &agreement,
	})
	if err != nil {
		return "", &LedgerError{Op: "create agreement", Err: err}
	}

	tx := Transaction{
		Instructions: []Instruction{
			{
				ProgramID: SystemProgramID,
				Accounts: []AccountMeta{
					{PublicKey: owner, IsSigner: true, IsWritable: true},
					{PublicKey: agreementAddress, IsSigner: true, IsWritable: true},
				},
				Data: createData,
			},
			{
				ProgramID: c.programID,
				Accounts: []AccountMeta{
					{PublicKey: agreementAddress, IsSigner: true, IsWritable: true},
					{PublicKey: owner, IsSigner: true, IsWritable: false},
				},
				Data: initData,
			},
		},
		Signers: []string{owner, agreementAddress},
	}

	signature, err := c.submit(ctx, "create agreement", tx)
	if err != nil {
		return "", err
	}

	if c.confirmCreate {
		confirmed, err := c.client.ConfirmTransaction(ctx, signature)
		if err != nil {
			return "", &LedgerError{Op: "confirm agreement creation", Err: err}
		}
		if !confirmed {
			return "", &LedgerError{Op: "confirm agreement creation",
				Err: fmt.Errorf("transaction %s not confirmed", signature)}
		}
	}

	c.emitStatus(ctx, agreementAddress, datasetID, StatusPending)
	return agreementAddress, nil
}

// ExecuteAgreement submits the user-authorized pending -> executed transition,
// transferring the payment to the owner. Sufficient-funds checking belongs to
// the caller; the ledger rejects the transition if the agreement is not
// pending or the user did not sign.
func (c *AgreementContract) ExecuteAgreement(ctx context.Context, agreementAddress, user string, paymentAmount float64) (string, error) {
	data, err := json.Marshal(instructionEnvelope{
		Instruction:    "execute",
		AmountLamports: uint64(paymentAmount * LamportsPerToken),
	})
	if err != nil {
		return "", &LedgerError{Op: "execute agreement", Err: err}
	}

	tx := Transaction{
		Instructions: []Instruction{{
			ProgramID: c.programID,
			Accounts: []AccountMeta{
				{PublicKey: agreementAddress, IsSigner: false, IsWritable: true},
				{PublicKey: user, IsSigner: true, IsWritable: true},
			},
			Data: data,
		}},
		Signers: []string{user},
	}

	signature, err := c.submit(ctx, "execute agreement", tx)
	if err != nil {
		return "", err
	}

	c.emitStatus(ctx, agreementAddress, "", StatusExecuted)
	return signature, nil
}

// VerifyAgreement fetches and decodes the on-chain agreement payload.
func (c *AgreementContract) VerifyAgreement(ctx context.Context, agreementAddress string) (*Agreement, error) {
	account, err := c.client.GetAccountInfo(ctx, agreementAddress)
	if err != nil {
		return nil, &LedgerError{Op: "fetch agreement", Err: err}
	}
	if account == nil || len(account.Data) == 0 {
		return nil, &NotFoundError{Address: agreementAddress}
	}

	// Probe the payload shape before committing to a full decode, so a
	// foreign account at this address reads as a decode failure, not as a
	// zero-valued agreement.
	if !gjson.ValidBytes(account.Data) || !gjson.GetBytes(account.Data, "status").Exists() {
		return nil, &DecodeError{Address: agreementAddress,
			Err: fmt.Errorf("payload is not an agreement record")}
	}

	var agreement Agreement
	if err := json.Unmarshal(account.Data, &agreement); err != nil {
		return nil, &DecodeError{Address: agreementAddress, Err: err}
	}
	return &agreement, nil
}

// RevokeAgreement submits the owner-authorized pending -> revoked transition.
func (c *AgreementContract) RevokeAgreement(ctx context.Context, agreementAddress, owner string) (string, error) {
	data, err := json.Marshal(instructionEnvelope{Instruction: "revoke"})
	if err != nil {
		return "", &LedgerError{Op: "revoke agreement", Err: err}
	}

	tx := Transaction{
		Instructions: []Instruction{{
			ProgramID: c.programID,
			Accounts: []AccountMeta{
				{PublicKey: agreementAddress, IsSigner: false, IsWritable: true},
				{PublicKey: owner, IsSigner: true, IsWritable: false},
			},
			Data: data,
		}},
		Signers: []string{owner},
	}

	signature, err := c.submit(ctx, "revoke agreement", tx)
	if err != nil {
		return "", err
	}

	c.emitStatus(ctx, agreementAddress, "", StatusRevoked)
	return signature, nil
}

func (c *AgreementContract) submit(ctx context.Context, op string, tx Transaction) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	signature, err := c.client.SubmitTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &LedgerError{Op: op, Reason: "timeout", Err: err}
		}
		return "", &LedgerError{Op: op, Err: err}
	}
	return signature, nil
}

func (c *AgreementContract) emitStatus(ctx context.Context, address, datasetID string, status AgreementStatus) {
	if len(c.processors) == 0 {
		return
	}
	if err := processor.ForwardToProcessors(ctx, processor.AgreementStatusEvent{
		Type:             processor.EventTypeAgreementStatus,
		AgreementAddress: address,
		DatasetID:        datasetID,
		Status:           string(status),
		Timestamp:        time.Now().UTC(),
	}, c.processors); err != nil {
		log.Printf("Warning: error forwarding agreement status event: %v", err)
	}
}
