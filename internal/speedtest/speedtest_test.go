package speedtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iaserrat/dnsspeed/internal/probe"
	"github.com/stretchr/testify/require"
)

type fakeResponse struct {
	rtt   time.Duration
	delay time.Duration
}

type fakeProber struct {
	responses map[string]fakeResponse

	inflight    atomic.Int32
	maxInflight atomic.Int32
	batch       atomic.Int32

	mu      sync.Mutex
	batchOf map[string]int32
}

func newFakeProber(responses map[string]fakeResponse) *fakeProber {
	return &fakeProber{responses: responses, batchOf: make(map[string]int32)}
}

func (f *fakeProber) Probe(ctx context.Context, ip string) probe.Result {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.batchOf[ip] = f.batch.Load()
	f.mu.Unlock()

	resp, ok := f.responses[ip]
	if !ok {
		return probe.Result{IP: ip, RTT: probe.Unreachable, Outcome: probe.OutcomeTimedOut}
	}
	if resp.delay > 0 {
		time.Sleep(resp.delay)
	}
	if resp.rtt == probe.Unreachable {
		return probe.Result{IP: ip, RTT: probe.Unreachable, Outcome: probe.OutcomeSocketError}
	}
	return probe.Result{IP: ip, RTT: resp.rtt, Outcome: probe.OutcomeReplied}
}

type recordingObserver struct {
	prober *fakeProber

	mu        sync.Mutex
	batches   []int
	completed []int
	totals    []int
	ips       []string
}

func (o *recordingObserver) BatchStarted(index, size int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.prober != nil {
		o.prober.batch.Store(int32(index))
	}
	o.batches = append(o.batches, size)
}

func (o *recordingObserver) ProbeSettled(completed, total int, ip string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, completed)
	o.totals = append(o.totals, total)
	o.ips = append(o.ips, ip)
}

func fastOptions() Options {
	return Options{Timeout: 40 * time.Millisecond, Grace: 10 * time.Millisecond, BatchSize: 100}
}

func TestIsValidIP(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"1.1.1.1", true},
		{"0.0.0.0", true},
		{"255.255.255.255", true},
		{"223.5.5.5", true},
		{"256.1.1.1", false},
		{"1.1.1", false},
		{"1.1.1.1.1", false},
		{"01.1.1.1", false},
		{"1.1.1.00", false},
		{"+1.1.1.1", false},
		{"-0.1.1.1", false},
		{"a.b.c.d", false},
		{"1..1.1", false},
		{"", false},
		{" 1.1.1.1", false},
		{"::1", false},
		{"2001:4860:4860::8888", false},
		{"not-an-ip", false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, IsValidIP(tc.in), "IsValidIP(%q)", tc.in)
	}
}

func TestRunEmptyList(t *testing.T) {
	_, err := Run(context.Background(), nil, Options{}, nil)

	var inputErr *InvalidInputError
	require.True(t, errors.As(err, &inputErr))
	require.Empty(t, inputErr.Invalid)
	require.Equal(t, "dns server list is empty", err.Error())
}

func TestRunNamesInvalidServers(t *testing.T) {
	_, err := Run(context.Background(), []string{"8.8.8.8", "not-an-ip", "1.1.1.01"}, Options{}, nil)

	var inputErr *InvalidInputError
	require.True(t, errors.As(err, &inputErr))
	require.Equal(t, []string{"not-an-ip", "1.1.1.01"}, inputErr.Invalid)
	require.Contains(t, err.Error(), "not-an-ip")
	require.Contains(t, err.Error(), "1.1.1.01")
}

func TestRunValidatesBeforeProbing(t *testing.T) {
	fp := newFakeProber(nil)
	tester := newTester(fp, fastOptions())

	_, err := tester.Run(context.Background(), []string{"1.1.1.1", "bogus"}, nil)
	require.Error(t, err)
	require.Empty(t, fp.batchOf)
}

func TestRunRejectsBadOptions(t *testing.T) {
	_, err := Run(context.Background(), []string{"1.1.1.1"}, Options{BatchSize: -1}, nil)
	require.Error(t, err)
}

func TestRunRanksByLatency(t *testing.T) {
	fp := newFakeProber(map[string]fakeResponse{
		"10.0.0.2": {rtt: 50 * time.Millisecond},
		"10.0.0.1": {rtt: 10 * time.Millisecond},
	})
	tester := newTester(fp, fastOptions())

	got, err := tester.Run(context.Background(), []string{"10.0.0.2", "10.0.0.1"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "10.0.0.1", got[0].IP)
	require.Equal(t, int64(10), got[0].Millis())
	require.Equal(t, "10.0.0.2", got[1].IP)
	require.Equal(t, int64(50), got[1].Millis())
}

func TestRunDropsSilentAndUnreachable(t *testing.T) {
	fp := newFakeProber(map[string]fakeResponse{
		"10.0.0.1": {rtt: 5 * time.Millisecond},
		"10.0.0.2": {rtt: probe.Unreachable},
		"10.0.0.3": {rtt: time.Millisecond, delay: 200 * time.Millisecond},
	})
	tester := newTester(fp, fastOptions())

	got, err := tester.Run(context.Background(), []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "10.0.0.1", got[0].IP)
}

func TestRunBatchesSequentially(t *testing.T) {
	responses := make(map[string]fakeResponse)
	servers := make([]string, 0, 250)
	for i := 0; i < 250; i++ {
		ip := fmt.Sprintf("10.0.%d.%d", i/100, i%100)
		servers = append(servers, ip)
		responses[ip] = fakeResponse{rtt: time.Duration(i%7) * time.Millisecond, delay: 2 * time.Millisecond}
	}
	fp := newFakeProber(responses)
	obs := &recordingObserver{prober: fp}
	tester := newTester(fp, Options{Timeout: time.Second, Grace: 100 * time.Millisecond, BatchSize: 100})

	got, err := tester.Run(context.Background(), servers, obs)
	require.NoError(t, err)
	require.Len(t, got, 250)
	require.Equal(t, []int{100, 100, 50}, obs.batches)
	require.LessOrEqual(t, fp.maxInflight.Load(), int32(100))

	for i, ip := range servers {
		require.Equal(t, int32(i/100), fp.batchOf[ip], "server %s probed in the wrong round", ip)
	}
}

func TestRunDeadlineIsPerBatch(t *testing.T) {
	fp := newFakeProber(map[string]fakeResponse{
		"10.0.0.1": {rtt: time.Millisecond, delay: 300 * time.Millisecond},
		"10.0.0.2": {rtt: 2 * time.Millisecond},
		"10.0.1.1": {rtt: 3 * time.Millisecond},
		"10.0.1.2": {rtt: 4 * time.Millisecond},
	})
	obs := &recordingObserver{prober: fp}
	tester := newTester(fp, Options{Timeout: 40 * time.Millisecond, Grace: 10 * time.Millisecond, BatchSize: 2})

	got, err := tester.Run(context.Background(), []string{"10.0.0.1", "10.0.0.2", "10.0.1.1", "10.0.1.2"}, obs)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, obs.batches)

	ips := make([]string, 0, len(got))
	for _, r := range got {
		ips = append(ips, r.IP)
	}
	require.Equal(t, []string{"10.0.0.2", "10.0.1.1", "10.0.1.2"}, ips)
}

func TestRunReportsProgress(t *testing.T) {
	fp := newFakeProber(map[string]fakeResponse{
		"10.0.0.1": {rtt: time.Millisecond},
		"10.0.0.2": {rtt: 2 * time.Millisecond},
		"10.0.0.3": {rtt: 3 * time.Millisecond},
	})
	obs := &recordingObserver{}
	tester := newTester(fp, Options{Timeout: time.Second, Grace: 0, BatchSize: 2})

	_, err := tester.Run(context.Background(), []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, obs)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, obs.completed)
	require.Equal(t, []int{3, 3, 3}, obs.totals)
	require.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, obs.ips)
}

func TestRunProgressFunc(t *testing.T) {
	fp := newFakeProber(map[string]fakeResponse{"10.0.0.1": {rtt: time.Millisecond}})
	tester := newTester(fp, fastOptions())

	var calls []string
	_, err := tester.Run(context.Background(), []string{"10.0.0.1"}, ProgressFunc(func(completed, total int, ip string) {
		calls = append(calls, fmt.Sprintf("%d/%d %s", completed, total, ip))
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"1/1 10.0.0.1"}, calls)
}

func TestRunIsDeterministic(t *testing.T) {
	responses := map[string]fakeResponse{
		"10.0.0.1": {rtt: 20 * time.Millisecond},
		"10.0.0.2": {rtt: 10 * time.Millisecond},
		"10.0.0.3": {rtt: 20 * time.Millisecond},
		"10.0.0.4": {rtt: 5 * time.Millisecond},
		"10.0.0.5": {rtt: probe.Unreachable},
	}
	servers := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}

	first, err := newTester(newFakeProber(responses), fastOptions()).Run(context.Background(), servers, nil)
	require.NoError(t, err)
	second, err := newTester(newFakeProber(responses), fastOptions()).Run(context.Background(), servers, nil)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, "10.0.0.4", first[0].IP)
	require.Equal(t, "10.0.0.2", first[1].IP)
	require.Equal(t, "10.0.0.1", first[2].IP)
	require.Equal(t, "10.0.0.3", first[3].IP)
}

func TestRunStopsOnCancel(t *testing.T) {
	fp := newFakeProber(map[string]fakeResponse{"10.0.0.1": {rtt: time.Millisecond}})
	obs := &recordingObserver{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := newTester(fp, fastOptions()).Run(ctx, []string{"10.0.0.1"}, obs)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, got)
	require.Empty(t, obs.batches)
}

func TestRank(t *testing.T) {
	in := []probe.Result{
		{IP: "a", RTT: 30 * time.Millisecond},
		{IP: "b", RTT: probe.Unreachable},
		{IP: "c", RTT: 10 * time.Millisecond},
		{IP: "d", RTT: 30 * time.Millisecond},
		{IP: "e", RTT: 0},
	}

	got := Rank(in)
	ips := make([]string, 0, len(got))
	for _, r := range got {
		ips = append(ips, r.IP)
	}
	require.Equal(t, []string{"e", "c", "a", "d"}, ips)
}

func TestTop(t *testing.T) {
	ranked := []probe.Result{{IP: "a"}, {IP: "b"}, {IP: "c"}}
	require.Len(t, Top(ranked, 2), 2)
	require.Len(t, Top(ranked, 5), 3)
	require.Empty(t, Top(ranked, -1))
}

func TestSplitBatches(t *testing.T) {
	servers := make([]string, 250)
	batches := splitBatches(servers, 100)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 100)
	require.Len(t, batches[1], 100)
	require.Len(t, batches[2], 50)

	require.Len(t, splitBatches(servers[:100], 100), 1)
}

func TestOptionsDeadline(t *testing.T) {
	require.Equal(t, 600*time.Millisecond, Options{}.Deadline())
	require.Equal(t, 50*time.Millisecond, fastOptions().Deadline())
}
