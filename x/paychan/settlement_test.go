package paychan

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	src := weavetest.NewCondition().Address()
	dest := weavetest.NewCondition().Address()
	contract := weavetest.NewCondition().Address()

	native := &Configuration{Denom: &Denom{Ticker: "IOV"}}
	p, err := newPayment(native, src, dest, coin.NewCoin(5, 0, "IOV"))
	require.NoError(t, err)
	assert.Empty(t, p.Contract)
	assert.Equal(t, coin.NewCoin(5, 0, "IOV"), p.Amount)

	_, err = newPayment(native, src, dest, coin.NewCoin(5, 0, "BTC"))
	assert.True(t, errors.ErrCurrency.Is(err))

	token := &Configuration{Denom: &Denom{Ticker: "GTB", Contract: contract}}
	p, err = newPayment(token, src, dest, coin.NewCoin(5, 0, "GTB"))
	require.NoError(t, err)
	assert.Equal(t, contract, p.Contract)
}

func TestSettlerDispatch(t *testing.T) {
	src := weavetest.NewCondition().Address()
	dest := weavetest.NewCondition().Address()
	contract := weavetest.NewCondition().Address()
	db := store.MemStore()

	bank := &movesRecorder{}
	tokens := &movesRecorder{}
	s := settler{bank: bank, tokens: tokens}

	err := s.pay(db, &Payment{
		Source:      src,
		Destination: dest,
		Amount:      coin.NewCoin(7, 0, "IOV"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, bank.calls)
	assert.Equal(t, 0, tokens.calls)

	err = s.pay(db, &Payment{
		Source:      src,
		Destination: dest,
		Contract:    contract,
		Amount:      coin.NewCoin(7, 0, "GTB"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, bank.calls)
	assert.Equal(t, 1, tokens.calls)
	assert.Equal(t, contract, tokens.contract)
}

func TestDenyTokenMover(t *testing.T) {
	err := DenyTokenMover{}.MoveTokens(nil, nil, nil, nil, coin.Coin{})
	assert.True(t, errors.ErrCurrency.Is(err))
}

// movesRecorder counts transfers so dispatch can be asserted. It serves both
// as the bank and as a token contract.
type movesRecorder struct {
	calls    int
	contract weave.Address
}

func (m *movesRecorder) MoveCoins(db weave.KVStore, src weave.Address, dest weave.Address, amount coin.Coin) error {
	m.calls++
	return nil
}

func (m *movesRecorder) MoveTokens(db weave.KVStore, contract weave.Address, src, dest weave.Address, amount coin.Coin) error {
	m.calls++
	m.contract = contract
	return nil
}
