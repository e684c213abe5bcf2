package memory

import (
	"context"
	"errors"
	"sync"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"

	"github.com/holiman/uint256"
)

var ErrInsufficientBalance = errors.New("insufficient token balance")

// Transfer is one payout performed by a TokenLedger.
type Transfer struct {
	From   entities.AccountID
	To     entities.AccountID
	Amount uint256.Int
}

// TokenLedger is an in-process fungible token. Transfers are paid from the
// treasury account. Fail* hooks make the next calls fail for tests and demos.
type TokenLedger struct {
	mu        sync.Mutex
	token     string
	treasury  entities.AccountID
	balances  map[entities.AccountID]uint256.Int
	supply    uint256.Int
	transfers []Transfer

	failBalance  error
	failSupply   error
	failTransfer error
}

func NewTokenLedger(token string, treasury entities.AccountID) *TokenLedger {
	return &TokenLedger{
		token:    token,
		treasury: treasury.Normalize(),
		balances: make(map[entities.AccountID]uint256.Int),
	}
}

func (l *TokenLedger) Token() string {
	return l.token
}

// Mint credits account and grows the total supply.
func (l *TokenLedger) Mint(account entities.AccountID, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	value := uint256.NewInt(amount)
	balance := l.balances[account.Normalize()]
	balance.Add(&balance, value)
	l.balances[account.Normalize()] = balance
	l.supply.Add(&l.supply, value)
}

// SetSupply overrides the reported total supply without touching balances.
func (l *TokenLedger) SetSupply(supply uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supply = supply
}

func (l *TokenLedger) FailBalanceOf(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failBalance = err
}

func (l *TokenLedger) FailTotalSupply(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSupply = err
}

func (l *TokenLedger) FailTransfer(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failTransfer = err
}

func (l *TokenLedger) BalanceOf(_ context.Context, account entities.AccountID) (uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failBalance != nil {
		return uint256.Int{}, l.failBalance
	}
	return l.balances[account.Normalize()], nil
}

func (l *TokenLedger) TotalSupply(_ context.Context) (uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failSupply != nil {
		return uint256.Int{}, l.failSupply
	}
	return l.supply, nil
}

func (l *TokenLedger) Transfer(_ context.Context, to entities.AccountID, amount uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failTransfer != nil {
		return l.failTransfer
	}
	from := l.balances[l.treasury]
	if from.Lt(&amount) {
		return ErrInsufficientBalance
	}
	from.Sub(&from, &amount)
	l.balances[l.treasury] = from
	dest := l.balances[to.Normalize()]
	dest.Add(&dest, &amount)
	l.balances[to.Normalize()] = dest
	l.transfers = append(l.transfers, Transfer{From: l.treasury, To: to.Normalize(), Amount: amount})
	return nil
}

// Transfers returns a copy of the payouts performed so far.
func (l *TokenLedger) Transfers() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transfer(nil), l.transfers...)
}
