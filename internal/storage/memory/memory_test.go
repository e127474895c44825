package memory

import (
	"testing"

	"github.com/stellar-expert/operations-notifier/internal/storage"
	"github.com/stellar-expert/operations-notifier/internal/storage/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}
