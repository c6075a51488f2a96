package paychan_test

import (
	"testing"
	"time"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"

	"github.com/gotabit/micro-payment/x/paychan"
)

func TestQueryRecipients(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "paychan")

	sender := weavetest.NewCondition().Address()
	recipients := make([]*paychan.Recipient, 5)
	for i := range recipients {
		recipients[i] = &paychan.Recipient{
			RecipientKey: weavetest.NewCondition().Address(),
			MaxAmount:    coin.NewCoinp(int64(100*(i+1)), 0, "IOV"),
			FaceValue:    coin.NewCoinp(1, 0, "IOV"),
		}
	}
	bucket := paychan.NewBucket()
	_, err := bucket.Put(db, sender, &paychan.PaymentChannel{
		Metadata:   &weave.Metadata{Schema: 1},
		Operator:   weavetest.NewCondition().Address(),
		Recipients: recipients,
	})
	assert.Nil(t, err)

	qr := weave.NewQueryRouter()
	paychan.RegisterQuery(qr)
	h := qr.Handler("/paychans/recipients")
	if h == nil {
		t.Fatal("recipients query handler not registered")
	}

	query := func(t *testing.T, req *paychan.QueryRecipientsMsg) []weave.Model {
		t.Helper()
		raw, err := req.Marshal()
		assert.Nil(t, err)
		models, err := h.Query(db, "", raw)
		assert.Nil(t, err)
		return models
	}

	t.Run("pages are half open ranges", func(t *testing.T) {
		models := query(t, &paychan.QueryRecipientsMsg{ChannelKey: sender, Page: 0, Size_: 2})
		assert.Equal(t, 2, len(models))

		models = query(t, &paychan.QueryRecipientsMsg{ChannelKey: sender, Page: 2, Size_: 2})
		assert.Equal(t, 1, len(models))

		var r paychan.Recipient
		assert.Nil(t, r.Unmarshal(models[0].Value))
		assert.Equal(t, recipients[4].RecipientKey, r.RecipientKey)
	})

	t.Run("page beyond the end is empty", func(t *testing.T) {
		models := query(t, &paychan.QueryRecipientsMsg{ChannelKey: sender, Page: 9, Size_: 2})
		assert.Equal(t, 0, len(models))
	})

	t.Run("single recipient lookup", func(t *testing.T) {
		models := query(t, &paychan.QueryRecipientsMsg{
			ChannelKey:   sender,
			RecipientKey: recipients[2].RecipientKey,
		})
		assert.Equal(t, 1, len(models))
		var r paychan.Recipient
		assert.Nil(t, r.Unmarshal(models[0].Value))
		assert.Equal(t, recipients[2].MaxAmount, r.MaxAmount)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		raw, err := (&paychan.QueryRecipientsMsg{
			ChannelKey:   sender,
			RecipientKey: weavetest.NewCondition().Address(),
		}).Marshal()
		assert.Nil(t, err)
		_, err = h.Query(db, "", raw)
		assert.IsErr(t, errors.ErrNotFound, err)
	})

	t.Run("unknown channel", func(t *testing.T) {
		raw, err := (&paychan.QueryRecipientsMsg{
			ChannelKey: weavetest.NewCondition().Address(),
		}).Marshal()
		assert.Nil(t, err)
		_, err = h.Query(db, "", raw)
		assert.IsErr(t, errors.ErrNotFound, err)
	})
}

func TestQueryConfiguration(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "paychan")

	err := gconf.Save(db, "paychan", &paychan.Configuration{
		Metadata:        &weave.Metadata{Schema: 1},
		Owner:           weavetest.NewCondition().Address(),
		Denom:           &paychan.Denom{Ticker: "IOV"},
		AutoReleaseTime: weave.AsUnixDuration(time.Hour),
		MaxRecipients:   10,
	})
	assert.Nil(t, err)

	qr := weave.NewQueryRouter()
	paychan.RegisterQuery(qr)
	h := qr.Handler("/paychans/config")
	if h == nil {
		t.Fatal("config query handler not registered")
	}

	models, err := h.Query(db, "", nil)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(models))

	var conf paychan.Configuration
	assert.Nil(t, conf.Unmarshal(models[0].Value))
	assert.Equal(t, "IOV", conf.Denom.Ticker)
	assert.Equal(t, uint32(10), conf.MaxRecipients)
}
