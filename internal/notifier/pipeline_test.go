package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stellar-expert/operations-notifier/internal/horizon"
	"github.com/stellar-expert/operations-notifier/internal/ingest"
	"github.com/stellar-expert/operations-notifier/internal/model"
	"github.com/stellar-expert/operations-notifier/internal/storage/memory"
	"github.com/stellar-expert/operations-notifier/pkg/log"
)

const (
	pipelineIssuer  = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	pipelineAccount = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
)

func pipelinePayment(token string) horizon.Transaction {
	return horizon.Transaction{
		Hash:          "hash-" + token,
		PagingToken:   token,
		SourceAccount: pipelineAccount,
		Fee:           100,
		CreatedAt:     "2024-01-01T00:00:00Z",
		Operations: []horizon.Operation{
			{Type: "payment", Destination: pipelineIssuer, Amount: "10", AssetCode: "USD", AssetIssuer: pipelineIssuer},
		},
	}
}

// Ingestion and delivery share the subscription set and run concurrently;
// every matched operation must be delivered exactly once and the drain must
// settle even when new work lands while a delivery is in flight.
func TestIngestionAndDeliveryInterleave(t *testing.T) {
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
	}))
	defer srv.Close()

	store := memory.New()
	ctx := context.Background()
	sub, err := store.CreateSubscription(ctx, &model.Subscription{
		Account:        pipelineIssuer,
		OperationTypes: []int{model.OpPayment},
		ReactionURL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	subs := staticSubs{sub}
	n, _ := newTestNotifier(t, store, subs)
	w := ingest.NewWatcher(ingest.WatcherOptions{
		Store:         store,
		Subscriptions: subs,
		OnNotify: func(subIDs []string) {
			n.MarkPending(subIDs)
			n.Wake()
		},
		Logger: log.NewLogger(log.WithLevel(log.ErrorLevel)),
	})

	const producers = 3
	const perProducer = 10
	const total = producers * perProducer
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				w.Enqueue(pipelinePayment(fmt.Sprintf("%d%03d000", p+1, i)))
			}
		}(p)
	}
	wg.Wait()

	waitFor(t, "all deliveries", func() bool { return delivered.Load() == total })
	n.Stop()

	if delivered.Load() != total {
		t.Fatalf("expected %d deliveries, got %d", total, delivered.Load())
	}
	s, err := store.FetchSubscription(ctx, sub.ID)
	if err != nil || s.Sent != total {
		t.Fatalf("delivery bookkeeping incomplete: %+v %v", s, err)
	}
	if nt, _ := store.FetchNextNotification(ctx, sub.ID); nt != nil {
		t.Fatalf("notification left pending after drain: %+v", nt)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
}
