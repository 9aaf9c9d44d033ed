package ledger

import (
	"context"
	"crypto/rand"

	"github.com/mr-tron/base58"
)

// SystemProgramID identifies the ledger's built-in account/transfer program.
const SystemProgramID = "11111111111111111111111111111111"

// Lamports per whole token, for converting marketplace prices to the
// ledger's integer unit.
const LamportsPerToken = 1_000_000_000

// AccountMeta names one account an instruction touches.
type AccountMeta struct {
	PublicKey  string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Instruction is one program invocation inside a transaction.
type Instruction struct {
	ProgramID string        `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

// Transaction is an ordered list of instructions plus the public keys that
// sign it. Key custody and actual signing belong to the external wallet
// layer; this client only names the signers.
type Transaction struct {
	Instructions []Instruction `json:"instructions"`
	Signers      []string      `json:"signers"`
}

// Account is the ledger-side view of an account.
type Account struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Balance uint64 `json:"balance"`
	Data    []byte `json:"data"`
}

// Client is the external ledger collaborator. Implementations must return
// (nil, nil) from GetAccountInfo for an account that does not exist, so
// callers can distinguish not-found from transport failure.
type Client interface {
	SubmitTransaction(ctx context.Context, tx Transaction) (string, error)
	GetAccountInfo(ctx context.Context, address string) (*Account, error)
	MinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error)
	ConfirmTransaction(ctx context.Context, signature string) (bool, error)
	GetBalance(ctx context.Context, address string) (uint64, error)
	Transfer(ctx context.Context, from, to string, amount uint64) (string, error)
}

// NewAddress generates a fresh base58-encoded 32-byte account address.
func NewAddress() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base58.Encode(raw[:]), nil
}
