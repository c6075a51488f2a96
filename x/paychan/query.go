package paychan

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/orm"
)

// defaultPageSize limits a recipient listing when the request does not name
// a page size.
const defaultPageSize = 50

// RegisterQuery registers all query handlers of this package.
func RegisterQuery(qr weave.QueryRouter) {
	bucket := NewBucket()
	bucket.Register("paychans", qr)
	qr.Register("/paychans/recipients", &recipientsQueryHandler{bucket: bucket})
	qr.Register("/paychans/config", &configQueryHandler{})
}

// recipientsQueryHandler serves the recipient slots of a single channel,
// either one slot by key or a page of the full list.
type recipientsQueryHandler struct {
	bucket orm.ModelBucket
}

var _ weave.QueryHandler = (*recipientsQueryHandler)(nil)

func (h *recipientsQueryHandler) Query(db weave.ReadOnlyKVStore, mod string, data []byte) ([]weave.Model, error) {
	if mod != weave.KeyQueryMod {
		return nil, errors.Wrapf(errors.ErrInput, "unsupported query mod %q", mod)
	}
	var req QueryRecipientsMsg
	if err := req.Unmarshal(data); err != nil {
		return nil, errors.Wrap(err, "unmarshal request")
	}
	if err := req.ChannelKey.Validate(); err != nil {
		return nil, errors.Wrap(err, "channel key")
	}

	var pc PaymentChannel
	if err := h.bucket.One(db, req.ChannelKey, &pc); err != nil {
		return nil, errors.Wrap(err, "load channel")
	}

	if len(req.RecipientKey) != 0 {
		r := pc.Recipient(req.RecipientKey)
		if r == nil {
			return nil, errors.Wrapf(errors.ErrNotFound, "recipient %s", req.RecipientKey)
		}
		return recipientModels(req.ChannelKey, []*Recipient{r})
	}

	size := req.Size_
	if size == 0 {
		size = defaultPageSize
	}
	start := int(req.Page) * int(size)
	if start >= len(pc.Recipients) {
		return nil, nil
	}
	end := start + int(size)
	if end > len(pc.Recipients) {
		end = len(pc.Recipients)
	}
	return recipientModels(req.ChannelKey, pc.Recipients[start:end])
}

func recipientModels(channelKey weave.Address, recipients []*Recipient) ([]weave.Model, error) {
	models := make([]weave.Model, 0, len(recipients))
	for _, r := range recipients {
		raw, err := r.Marshal()
		if err != nil {
			return nil, errors.Wrap(err, "marshal recipient")
		}
		key := make([]byte, 0, len(channelKey)+len(r.RecipientKey))
		key = append(key, channelKey...)
		key = append(key, r.RecipientKey...)
		models = append(models, weave.Pair(key, raw))
	}
	return models, nil
}

// configQueryHandler serves the current configuration.
type configQueryHandler struct{}

var _ weave.QueryHandler = (*configQueryHandler)(nil)

func (configQueryHandler) Query(db weave.ReadOnlyKVStore, mod string, data []byte) ([]weave.Model, error) {
	if mod != weave.KeyQueryMod {
		return nil, errors.Wrapf(errors.ErrInput, "unsupported query mod %q", mod)
	}
	conf, err := loadConf(db)
	if err != nil {
		return nil, err
	}
	raw, err := conf.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal configuration")
	}
	return []weave.Model{weave.Pair([]byte("paychan"), raw)}, nil
}
