package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const (
	accountOverheadBytes = 128
	rentLamportsPerByte  = 6960
)

// MemoryLedger is an in-process Client used by tests and local runs. It
// executes the system program's create_account and transfer plus the
// agreement program's initialize/execute/revoke instructions, enforcing the
// pending -> executed / pending -> revoked state machine and signer authority
// the way the on-chain program would.
type MemoryLedger struct {
	mu        sync.Mutex
	accounts  map[string]*Account
	confirmed map[string]bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts:  make(map[string]*Account),
		confirmed: make(map[string]bool),
	}
}

// Fund creates the account if needed and credits it. Test/fixture helper.
func (l *MemoryLedger) Fund(address string, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account := l.account(address)
	account.Balance += lamports
}

// account returns the existing account or creates an empty system-owned one.
// Callers must hold l.mu.
func (l *MemoryLedger) account(address string) *Account {
	if existing, ok := l.accounts[address]; ok {
		return existing
	}
	created := &Account{Address: address, Owner: SystemProgramID}
	l.accounts[address] = created
	return created
}

func (l *MemoryLedger) SubmitTransaction(ctx context.Context, tx Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	signers := make(map[string]bool, len(tx.Signers))
	for _, s := range tx.Signers {
		signers[s] = true
	}

	for _, instruction := range tx.Instructions {
		if err := l.executeInstruction(instruction, signers); err != nil {
			return "", err
		}
	}

	signature := "sig_" + uuid.NewString()
	l.confirmed[signature] = true
	return signature, nil
}

func (l *MemoryLedger) executeInstruction(instruction Instruction, signers map[string]bool) error {
	var envelope instructionEnvelope
	if err := json.Unmarshal(instruction.Data, &envelope); err != nil {
		return fmt.Errorf("malformed instruction data: %w", err)
	}

	for _, meta := range instruction.Accounts {
		if meta.IsSigner && !signers[meta.PublicKey] {
			return fmt.Errorf("missing signature from %s", meta.PublicKey)
		}
	}

	switch envelope.Instruction {
	case "create_account":
		return l.createAccount(envelope)
	case "initialize":
		return l.initializeAgreement(instruction, envelope)
	case "execute":
		return l.executeAgreement(instruction, envelope)
	case "revoke":
		return l.revokeAgreement(instruction)
	default:
		return fmt.Errorf("unknown instruction %q", envelope.Instruction)
	}
}

func (l *MemoryLedger) createAccount(envelope instructionEnvelope) error {
	funding := l.account(envelope.FundingAccount)
	if funding.Balance < envelope.Lamports {
		return fmt.Errorf("insufficient funds in %s", envelope.FundingAccount)
	}
	if existing, ok := l.accounts[envelope.NewAccount]; ok && existing.Owner != SystemProgramID {
		return fmt.Errorf("account %s already exists", envelope.NewAccount)
	}

	funding.Balance -= envelope.Lamports
	l.accounts[envelope.NewAccount] = &Account{
		Address: envelope.NewAccount,
		Owner:   envelope.OwningProgramID,
		Balance: envelope.Lamports,
	}
	return nil
}

func (l *MemoryLedger) initializeAgreement(instruction Instruction, envelope instructionEnvelope) error {
	if envelope.Agreement == nil {
		return fmt.Errorf("initialize instruction carries no agreement payload")
	}
	if envelope.Agreement.Status != StatusPending {
		return fmt.Errorf("new agreements must start pending")
	}

	account, err := l.writableAccount(instruction, 0)
	if err != nil {
		return err
	}
	if len(account.Data) != 0 {
		return fmt.Errorf("account %s is already initialized", account.Address)
	}

	payload, err := json.Marshal(envelope.Agreement)
	if err != nil {
		return fmt.Errorf("failed to serialize agreement: %w", err)
	}
	account.Data = payload
	return nil
}

func (l *MemoryLedger) executeAgreement(instruction Instruction, envelope instructionEnvelope) error {
	account, err := l.writableAccount(instruction, 0)
	if err != nil {
		return err
	}
	agreement, err := l.decodeAgreement(account)
	if err != nil {
		return err
	}
	if agreement.Status != StatusPending {
		return fmt.Errorf("cannot execute agreement in status %q", agreement.Status)
	}

	if len(instruction.Accounts) < 2 {
		return fmt.Errorf("execute instruction requires the paying user account")
	}
	payer := instruction.Accounts[1]
	if !payer.IsSigner {
		return fmt.Errorf("payer %s must sign the execution", payer.PublicKey)
	}
	if payer.PublicKey != agreement.User {
		return fmt.Errorf("only the agreement user may execute it")
	}

	payerAccount := l.account(payer.PublicKey)
	if payerAccount.Balance < envelope.AmountLamports {
		return fmt.Errorf("insufficient funds in %s", payer.PublicKey)
	}
	payerAccount.Balance -= envelope.AmountLamports
	l.account(agreement.Owner).Balance += envelope.AmountLamports

	agreement.Status = StatusExecuted
	return l.storeAgreement(account, agreement)
}

func (l *MemoryLedger) revokeAgreement(instruction Instruction) error {
	account, err := l.writableAccount(instruction, 0)
	if err != nil {
		return err
	}
	agreement, err := l.decodeAgreement(account)
	if err != nil {
		return err
	}
	if agreement.Status != StatusPending {
		return fmt.Errorf("cannot revoke agreement in status %q", agreement.Status)
	}

	if len(instruction.Accounts) < 2 {
		return fmt.Errorf("revoke instruction requires the owner account")
	}
	authority := instruction.Accounts[1]
	if !authority.IsSigner {
		return fmt.Errorf("owner %s must sign the revocation", authority.PublicKey)
	}
	if authority.PublicKey != agreement.Owner {
		return fmt.Errorf("only the agreement owner may revoke it")
	}

	agreement.Status = StatusRevoked
	return l.storeAgreement(account, agreement)
}

func (l *MemoryLedger) writableAccount(instruction Instruction, index int) (*Account, error) {
	if len(instruction.Accounts) <= index {
		return nil, fmt.Errorf("instruction is missing account %d", index)
	}
	meta := instruction.Accounts[index]
	if !meta.IsWritable {
		return nil, fmt.Errorf("account %s is not writable", meta.PublicKey)
	}
	account, ok := l.accounts[meta.PublicKey]
	if !ok {
		return nil, fmt.Errorf("account %s does not exist", meta.PublicKey)
	}
	return account, nil
}

func (l *MemoryLedger) decodeAgreement(account *Account) (*Agreement, error) {
	if len(account.Data) == 0 {
		return nil, fmt.Errorf("account %s holds no agreement", account.Address)
	}
	var agreement Agreement
	if err := json.Unmarshal(account.Data, &agreement); err != nil {
		return nil, fmt.Errorf("corrupt agreement payload in %s: %w", account.Address, err)
	}
	return &agreement, nil
}

func (l *MemoryLedger) storeAgreement(account *Account, agreement *Agreement) error {
	payload, err := json.Marshal(agreement)
	if err != nil {
		return fmt.Errorf("failed to serialize agreement: %w", err)
	}
	account.Data = payload
	return nil
}

func (l *MemoryLedger) GetAccountInfo(ctx context.Context, address string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.accounts[address]
	if !ok {
		return nil, nil
	}
	copied := *account
	copied.Data = append([]byte(nil), account.Data...)
	return &copied, nil
}

func (l *MemoryLedger) MinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return uint64(size+accountOverheadBytes) * rentLamportsPerByte, nil
}

func (l *MemoryLedger) ConfirmTransaction(ctx context.Context, signature string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.confirmed[signature], nil
}

func (l *MemoryLedger) GetBalance(ctx context.Context, address string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.accounts[address]
	if !ok {
		return 0, nil
	}
	return account.Balance, nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, from, to string, amount uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	source := l.account(from)
	if source.Balance < amount {
		return "", fmt.Errorf("insufficient funds in %s", from)
	}
	source.Balance -= amount
	l.account(to).Balance += amount

	signature := "sig_" + uuid.NewString()
	l.confirmed[signature] = true
	return signature, nil
}
