package refid_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alovak/webpay-playground/internal/refid"
)

func TestNext(t *testing.T) {
	c := refid.NewCounter(164006)

	require.Equal(t, "#164006", c.Next())
	require.Equal(t, "#164007", c.Next())
	require.Equal(t, "#164008", c.Next())
}

func TestNextConcurrent(t *testing.T) {
	c := refid.NewCounter(1)

	const workers = 16
	const perWorker = 100

	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- c.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, workers*perWorker)
}
