package speedtest

import (
	"context"
	"sync"
	"time"

	"github.com/iaserrat/dnsspeed/internal/probe"
)

// Prober measures one candidate. Implementations must not block longer than
// their own bound and must always return a result.
type Prober interface {
	Probe(ctx context.Context, ip string) probe.Result
}

type Tester struct {
	prober    Prober
	batchSize int
	deadline  time.Duration
}

func New(opts Options) (*Tester, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	p, err := probe.NewProber(probe.DNSConfig{
		Domain:  opts.TestDomain,
		Port:    opts.Port,
		Timeout: opts.Timeout,
		Grace:   opts.Grace,
	})
	if err != nil {
		return nil, err
	}

	return newTester(p, opts), nil
}

func newTester(p Prober, opts Options) *Tester {
	opts = opts.withDefaults()
	return &Tester{
		prober:    p,
		batchSize: opts.BatchSize,
		deadline:  opts.Timeout + opts.Grace,
	}
}

// Run validates servers, probes them batch by batch and returns the
// reachable ones ranked by RTT.
func Run(ctx context.Context, servers []string, opts Options, obs Observer) ([]probe.Result, error) {
	if err := Validate(servers); err != nil {
		return nil, err
	}

	t, err := New(opts)
	if err != nil {
		return nil, err
	}

	return t.Run(ctx, servers, obs)
}

// Run probes servers in sequential batches. Probes that have not settled by
// their batch deadline are dropped, not counted as unreachable. Run does not
// return until every probe goroutine it started has finished, so no socket
// or observer call outlives it.
//
// Cancelling ctx stops further batches; the results ranked so far are
// returned along with ctx.Err().
func (t *Tester) Run(ctx context.Context, servers []string, obs Observer) ([]probe.Result, error) {
	if err := Validate(servers); err != nil {
		return nil, err
	}
	if obs == nil {
		obs = nopObserver{}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	defer wg.Wait()

	total := len(servers)
	settle := func(ip string) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		obs.ProbeSettled(completed, total, ip)
	}

	results := make([]probe.Result, 0, total)
	for i, batch := range splitBatches(servers, t.batchSize) {
		if err := ctx.Err(); err != nil {
			return Rank(results), err
		}
		obs.BatchStarted(i, len(batch))
		results = append(results, t.runBatch(ctx, batch, &wg, settle)...)
	}

	return Rank(results), nil
}

type indexedResult struct {
	idx int
	res probe.Result
}

func (t *Tester) runBatch(ctx context.Context, batch []string, wg *sync.WaitGroup, settle func(string)) []probe.Result {
	// buffered so that probes finishing after the deadline never block
	ch := make(chan indexedResult, len(batch))

	for i, ip := range batch {
		wg.Add(1)
		go func(i int, ip string) {
			defer wg.Done()
			res := t.prober.Probe(ctx, ip)
			settle(ip)
			ch <- indexedResult{idx: i, res: res}
		}(i, ip)
	}

	timer := time.NewTimer(t.deadline)
	defer timer.Stop()

	slots := make([]*probe.Result, len(batch))
collect:
	for pending := len(batch); pending > 0; pending-- {
		select {
		case r := <-ch:
			res := r.res
			slots[r.idx] = &res
		case <-timer.C:
			break collect
		}
	}

	out := make([]probe.Result, 0, len(batch))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}

	return out
}

func splitBatches(servers []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}

	batches := make([][]string, 0, (len(servers)+size-1)/size)
	for i := 0; i < len(servers); i += size {
		end := i + size
		if end > len(servers) {
			end = len(servers)
		}
		batches = append(batches, servers[i:end])
	}

	return batches
}
