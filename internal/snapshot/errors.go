package snapshot

import (
	"errors"

	"go.uber.org/zap"
)

var (
	errMissingCoin  = errors.New("bot coin has no definition")
	errMissingPrice = errors.New("no price for feed")
)

func logSkip(entity, id, feedId string, err error) {
	level := zap.L().Warn
	if errors.Is(err, errMissingPrice) {
		level = zap.L().Info
	}
	level("Skipping snapshot",
		zap.String("entity", entity),
		zap.String("id", id),
		zap.String("feed_id", feedId),
		zap.Error(err))
}
