package limiter

import (
	"context"

	"sol-fee-audit/internal/rpc"
)

// Operation names passed to Observer.
const (
	OpListSignatures = "list_signatures"
	OpGetTransaction = "get_transaction"
)

type guarded struct {
	api  rpc.API
	ctrl *Controller
}

// Guard routes every call of api through ctrl.
func Guard(api rpc.API, ctrl *Controller) rpc.API {
	return &guarded{api: api, ctrl: ctrl}
}

func (g *guarded) ListSignatures(ctx context.Context, address, before string, limit int) (rpc.SignaturePage, error) {
	var page rpc.SignaturePage
	err := g.ctrl.Do(ctx, OpListSignatures, func(ctx context.Context) error {
		var err error
		page, err = g.api.ListSignatures(ctx, address, before, limit)
		return err
	})
	return page, err
}

func (g *guarded) GetTransaction(ctx context.Context, signature string) (rpc.TxResult, error) {
	var res rpc.TxResult
	err := g.ctrl.Do(ctx, OpGetTransaction, func(ctx context.Context) error {
		var err error
		res, err = g.api.GetTransaction(ctx, signature)
		return err
	})
	return res, err
}

var _ rpc.API = (*guarded)(nil)
