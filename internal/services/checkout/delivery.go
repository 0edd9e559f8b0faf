package checkout

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/goblin987/ultramaxgoodbot/internal/infra/telegram"
	"github.com/goblin987/ultramaxgoodbot/internal/services/notify"
	"github.com/goblin987/ultramaxgoodbot/internal/ui"
)

const mediaGroupLimit = 10

type MediaSource interface {
	ForProducts(ctx context.Context, productIDs []int64) (map[int64][]model.ProductMedia, error)
	Open(ctx context.Context, m model.ProductMedia) (io.ReadCloser, error)
	Purge(ctx context.Context, items []model.ProductMedia) error
}

type ProductDeleter interface {
	DeleteMany(ctx context.Context, productIDs []int64) error
}

// Deliverer hands committed purchases to the buyer. Every step is best
// effort: failures are logged and the remaining steps still run.
type Deliverer struct {
	media    MediaSource
	products ProductDeleter
	sink     notify.Sink
	log      *zap.Logger
}

func NewDeliverer(media MediaSource, products ProductDeleter, sink notify.Sink, log *zap.Logger) *Deliverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deliverer{media: media, products: products, sink: sink, log: log}
}

func (d *Deliverer) Deliver(ctx context.Context, userID int64, result Result, snapshot model.BasketSnapshot) {
	if len(result.Purchases) == 0 {
		return
	}
	log := d.log.With(zap.Int64("user_id", userID))

	ids := result.ProductIDs()
	mediaByProduct := map[int64][]model.ProductMedia{}
	if d.media != nil {
		found, err := d.media.ForProducts(ctx, ids)
		if err != nil {
			log.Error("load purchase media failed", zap.Error(err))
		} else {
			mediaByProduct = found
		}
	}

	originals := make(map[int64]string, len(snapshot))
	for _, item := range snapshot {
		originals[item.ProductID] = item.OriginalText
	}

	d.send(ctx, log, userID, ui.PurchaseHeader, nil)
	for _, p := range result.Purchases {
		d.sendMedia(ctx, log, userID, p.ProductID, mediaByProduct[p.ProductID])
		d.send(ctx, log, userID, ui.PickupItem(p, originals[p.ProductID]), nil)
	}

	if d.products != nil {
		if err := d.products.DeleteMany(ctx, ids); err != nil {
			log.Error("delete delivered products failed", zap.Int64s("product_ids", ids), zap.Error(err))
		}
	}
	if d.media != nil {
		var all []model.ProductMedia
		for _, id := range ids {
			all = append(all, mediaByProduct[id]...)
		}
		if err := d.media.Purge(ctx, all); err != nil {
			log.Warn("purge delivered media failed", zap.Error(err))
		}
	}

	d.send(ctx, log, userID, ui.ThankYou, ui.BackToProfile())
}

func (d *Deliverer) sendMedia(ctx context.Context, log *zap.Logger, chatID, productID int64, items []model.ProductMedia) {
	if d.sink == nil || len(items) == 0 {
		return
	}

	var (
		group      []telegram.Media
		animations []telegram.Media
		closers    []io.Closer
	)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	for _, m := range items {
		out := telegram.Media{Kind: m.Kind, FileID: m.TelegramFileID}
		if out.FileID == "" {
			body, err := d.media.Open(ctx, m)
			if err != nil {
				log.Warn("no usable media source", zap.Int64("product_id", productID), zap.Int64("media_id", m.ID), zap.Error(err))
				continue
			}
			closers = append(closers, body)
			out.Reader = body
		}

		switch {
		case m.Kind.Groupable():
			group = append(group, out)
		case m.Kind == enums.MediaKindAnimation:
			animations = append(animations, out)
		default:
			log.Warn("unsupported media kind", zap.Int64("product_id", productID), zap.String("kind", string(m.Kind)))
		}
	}

	for start := 0; start < len(group); start += mediaGroupLimit {
		end := min(start+mediaGroupLimit, len(group))
		if err := d.sink.SendMediaGroup(ctx, chatID, group[start:end]); err != nil {
			log.Error("send purchase media group failed", zap.Int64("product_id", productID), zap.Error(err))
		}
	}
	for _, a := range animations {
		if err := d.sink.SendAnimation(ctx, chatID, a); err != nil {
			log.Error("send purchase animation failed", zap.Int64("product_id", productID), zap.Error(err))
		}
	}
}

func (d *Deliverer) send(ctx context.Context, log *zap.Logger, chatID int64, text string, kb telegram.Keyboard) {
	if d.sink == nil {
		return
	}
	if err := d.sink.SendText(ctx, chatID, text, kb); err != nil {
		log.Error("send purchase message failed", zap.Error(err))
	}
}
