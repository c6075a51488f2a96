package paychan

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/x/cash"
)

// Payment is a single transfer instruction produced when cashing cheques or
// closing channel slots. Building a payment never moves funds; execution is
// the settler's job.
type Payment struct {
	Source      weave.Address
	Destination weave.Address
	// Contract is set only for a token denominated deployment and names
	// the token contract that must execute the transfer.
	Contract weave.Address
	Amount   coin.Coin
}

// newPayment builds the transfer instruction for the configured
// denomination. An amount in any other denomination is rejected.
func newPayment(conf *Configuration, src, dest weave.Address, amount coin.Coin) (*Payment, error) {
	if amount.Ticker != conf.Denom.Ticker {
		return nil, errors.Wrapf(errors.ErrCurrency,
			"unsupported denomination %q", amount.Ticker)
	}
	p := &Payment{
		Source:      src,
		Destination: dest,
		Amount:      amount,
	}
	if !conf.Denom.IsNative() {
		p.Contract = conf.Denom.Contract
	}
	return p, nil
}

// TokenMover executes a transfer on a token contract. It is an external
// collaborator: the ledger only produces the instruction.
type TokenMover interface {
	MoveTokens(db weave.KVStore, contract weave.Address, src, dest weave.Address, amount coin.Coin) error
}

// DenyTokenMover rejects every token transfer. Use it when the deployment
// settles in the native asset and no token contract is wired.
type DenyTokenMover struct{}

var _ TokenMover = DenyTokenMover{}

func (DenyTokenMover) MoveTokens(weave.KVStore, weave.Address, weave.Address, weave.Address, coin.Coin) error {
	return errors.Wrap(errors.ErrCurrency, "no token contract support")
}

// coinMover is the part of the cash controller the settler needs.
type coinMover interface {
	MoveCoins(store weave.KVStore, src weave.Address, dest weave.Address, amount coin.Coin) error
}

var _ coinMover = (cash.Controller)(nil)

// settler executes payment instructions against either the native ledger or
// a token contract.
type settler struct {
	bank   coinMover
	tokens TokenMover
}

func (s settler) pay(db weave.KVStore, p *Payment) error {
	if len(p.Contract) != 0 {
		return s.tokens.MoveTokens(db, p.Contract, p.Source, p.Destination, p.Amount)
	}
	return s.bank.MoveCoins(db, p.Source, p.Destination, p.Amount)
}

// PoolAccount returns the address holding every native channel deposit.
// Keeping all deposits on one account mirrors the escrow being owned by the
// ledger itself and lets a batch of cheques settle as a single transfer;
// per channel accounting is enforced by the channel records.
func PoolAccount() weave.Address {
	return weave.NewCondition("paychan", "escrow", []byte("pool")).Address()
}
