package source

import (
	"context"

	"github.com/dexlens/indexer/internal/common"
)

// Source provides raw block data. It may be backed by a live node or by
// passive replay from existing storage; callers treat both uniformly.
type Source interface {
	FetchBlock(ctx context.Context, blockNumber uint64) (*common.RawBlock, error)
	FetchLatestBlock(ctx context.Context) (*common.RawBlock, error)
	RawBlockExists(ctx context.Context, blockNumber uint64) (bool, error)
	SaveRawBlock(ctx context.Context, block *common.RawBlock) (string, error)
}

// Listener is notified once per available block during a passive scan.
type Listener interface {
	OnNewBlock(blockNumber uint64, data *common.RawBlock, blockPath string) error
}
