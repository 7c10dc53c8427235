package token

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"yeifinance/core/events"
	"yeifinance/core/state"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrUnauthorized          = errors.New("token: caller is not the mint authority")
	ErrInvalidAmount         = errors.New("token: amount must be a non-negative 256-bit integer")
	ErrSupplyOverflow        = errors.New("token: total supply exceeds 256 bits")
	ErrUnknownToken          = errors.New("token: unknown token")
	ErrTokenExists           = errors.New("token: symbol already registered")
	ErrInvalidMetadata       = errors.New("token: invalid metadata")
	ErrZeroAddress           = errors.New("token: zero address")
)

var ledgerErrors = []error{
	ErrInsufficientBalance,
	ErrInsufficientAllowance,
	ErrUnauthorized,
	ErrInvalidAmount,
	ErrSupplyOverflow,
	ErrUnknownToken,
	ErrTokenExists,
	ErrInvalidMetadata,
	ErrZeroAddress,
}

// IsLedgerError reports whether err was raised by a token ledger.
func IsLedgerError(err error) bool {
	for _, target := range ledgerErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var listKey = state.Key("token/list")

// Metadata describes a registered token.
type Metadata struct {
	Symbol        string
	Name          string
	Decimals      uint8
	MintAuthority common.Address
}

type record struct {
	Metadata    Metadata
	TotalSupply *big.Int
}

// NormalizeSymbol canonicalises token symbols for storage and lookup.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func metaKey(symbol string) []byte { return state.Key("token/meta", []byte(symbol)) }

func balanceKey(symbol string, addr common.Address) []byte {
	return state.Key("token/balance", []byte(symbol), addr.Bytes())
}

func allowanceKey(symbol string, owner, spender common.Address) []byte {
	return state.Key("token/allowance", []byte(symbol), owner.Bytes(), spender.Bytes())
}

// Ledger is a handle on one token's balances within a store.
type Ledger struct {
	store  state.Store
	record record
}

// Register creates a token with zero supply.
func Register(st state.Store, meta Metadata) (*Ledger, error) {
	meta.Symbol = NormalizeSymbol(meta.Symbol)
	meta.Name = strings.TrimSpace(meta.Name)
	if meta.Symbol == "" || meta.Name == "" {
		return nil, fmt.Errorf("%w: symbol and name required", ErrInvalidMetadata)
	}
	if meta.Decimals > 36 {
		return nil, fmt.Errorf("%w: decimals %d out of range", ErrInvalidMetadata, meta.Decimals)
	}
	if meta.MintAuthority == (common.Address{}) {
		return nil, fmt.Errorf("%w: mint authority required", ErrInvalidMetadata)
	}
	var existing record
	found, err := st.GetRLP(metaKey(meta.Symbol), &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, fmt.Errorf("%w: %s", ErrTokenExists, meta.Symbol)
	}
	rec := record{Metadata: meta, TotalSupply: big.NewInt(0)}
	if err := st.PutRLP(metaKey(meta.Symbol), rec); err != nil {
		return nil, err
	}
	symbols, err := List(st)
	if err != nil {
		return nil, err
	}
	symbols = append(symbols, meta.Symbol)
	sort.Strings(symbols)
	if err := st.PutRLP(listKey, symbols); err != nil {
		return nil, err
	}
	return &Ledger{store: st, record: rec}, nil
}

// Open returns the ledger of a registered token.
func Open(st state.Store, symbol string) (*Ledger, error) {
	normalized := NormalizeSymbol(symbol)
	var rec record
	found, err := st.GetRLP(metaKey(normalized), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, normalized)
	}
	if rec.TotalSupply == nil {
		rec.TotalSupply = big.NewInt(0)
	}
	return &Ledger{store: st, record: rec}, nil
}

// List returns every registered symbol in lexical order.
func List(st state.Store) ([]string, error) {
	var symbols []string
	if _, err := st.GetRLP(listKey, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

// Metadata returns the token's descriptive fields.
func (l *Ledger) Metadata() Metadata { return l.record.Metadata }

// Symbol returns the normalised symbol.
func (l *Ledger) Symbol() string { return l.record.Metadata.Symbol }

// TotalSupply returns the number of units in existence.
func (l *Ledger) TotalSupply() *big.Int { return new(big.Int).Set(l.record.TotalSupply) }

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr common.Address) (*big.Int, error) {
	return l.readAmount(balanceKey(l.Symbol(), addr))
}

// Allowance returns how much spender may move on owner's behalf.
func (l *Ledger) Allowance(owner, spender common.Address) (*big.Int, error) {
	return l.readAmount(allowanceKey(l.Symbol(), owner, spender))
}

// Mint creates amount units for to. Only the mint authority may mint.
func (l *Ledger) Mint(authority, to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if authority != l.record.Metadata.MintAuthority {
		return ErrUnauthorized
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	supply := new(big.Int).Add(l.record.TotalSupply, amount)
	if supply.BitLen() > 256 {
		return ErrSupplyOverflow
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	l.record.TotalSupply = supply
	if err := l.store.PutRLP(metaKey(l.Symbol()), l.record); err != nil {
		return err
	}
	if err := l.writeAmount(balanceKey(l.Symbol(), to), balance.Add(balance, amount)); err != nil {
		return err
	}
	l.store.AddLog(events.Transfer{Asset: l.Symbol(), To: to, Amount: new(big.Int).Set(amount), TxHash: state.TxHash(l.store)})
	return nil
}

// Burn destroys amount units held by from. Only the mint authority may burn.
func (l *Ledger) Burn(authority, from common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if authority != l.record.Metadata.MintAuthority {
		return ErrUnauthorized
	}
	balance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.record.TotalSupply = new(big.Int).Sub(l.record.TotalSupply, amount)
	if err := l.store.PutRLP(metaKey(l.Symbol()), l.record); err != nil {
		return err
	}
	if err := l.writeAmount(balanceKey(l.Symbol(), from), balance.Sub(balance, amount)); err != nil {
		return err
	}
	l.store.AddLog(events.Transfer{Asset: l.Symbol(), From: from, Amount: new(big.Int).Set(amount), TxHash: state.TxHash(l.store)})
	return nil
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from != to {
		toBalance, err := l.BalanceOf(to)
		if err != nil {
			return err
		}
		if err := l.writeAmount(balanceKey(l.Symbol(), from), fromBalance.Sub(fromBalance, amount)); err != nil {
			return err
		}
		if err := l.writeAmount(balanceKey(l.Symbol(), to), toBalance.Add(toBalance, amount)); err != nil {
			return err
		}
	}
	l.store.AddLog(events.Transfer{Asset: l.Symbol(), From: from, To: to, Amount: new(big.Int).Set(amount), TxHash: state.TxHash(l.store)})
	return nil
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := l.writeAmount(allowanceKey(l.Symbol(), owner, spender), amount); err != nil {
		return err
	}
	l.store.AddLog(events.Approval{Asset: l.Symbol(), Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount), TxHash: state.TxHash(l.store)})
	return nil
}

// TransferFrom moves amount from from to to using spender's allowance.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	return l.writeAmount(allowanceKey(l.Symbol(), from, spender), allowance.Sub(allowance, amount))
}

func (l *Ledger) readAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	found, err := l.store.GetRLP(key, amount)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (l *Ledger) writeAmount(key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		l.store.Delete(key)
		return nil
	}
	return l.store.PutRLP(key, amount)
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrInvalidAmount
	}
	return nil
}
