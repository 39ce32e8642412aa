package daemon_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/sensorsd/internal/daemon"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/sensors"
	"codeberg.org/mutker/sensorsd/internal/submit"
	"codeberg.org/mutker/sensorsd/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	initCalls int
	inits     chan struct{}
	values    map[string]float64
}

var chip = sensors.Chip{Prefix: "it87", Bus: sensors.Bus{Kind: sensors.BusISA}, Addr: 0x290}

func (p *stubProvider) Init(io.Reader) error {
	p.initCalls++
	if p.inits != nil {
		p.inits <- struct{}{}
	}
	return nil
}

func (p *stubProvider) Chips() ([]sensors.Chip, error) {
	return []sensors.Chip{chip}, nil
}

func (p *stubProvider) Features(sensors.Chip) ([]sensors.Feature, error) {
	return []sensors.Feature{
		{Number: 0, Label: "temp1"},
		{Number: 1, Label: "fan1"},
	}, nil
}

func (p *stubProvider) IsIgnored(sensors.Chip, sensors.Feature) bool { return false }

func (p *stubProvider) Read(_ sensors.Chip, f sensors.Feature) (float64, error) {
	return p.values[f.Label], nil
}

func (p *stubProvider) Cleanup() {}

func newProvider() *stubProvider {
	return &stubProvider{values: map[string]float64{"temp1": 40, "fan1": 1200}}
}

type submission struct {
	module, instance, record string
}

type recordingSubmitter struct {
	mu     sync.Mutex
	got    []submission
	fail   map[string]bool
	notify chan struct{}
}

func (s *recordingSubmitter) Submit(module, instance, record string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail[instance] {
		return assert.AnError
	}
	s.got = append(s.got, submission{module, instance, record})

	if s.notify != nil {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}

	return nil
}

func (s *recordingSubmitter) Close() error { return nil }

func (s *recordingSubmitter) submissions() []submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submission(nil), s.got...)
}

type recordingCollector struct {
	snapshots []*telemetry.ScanSnapshot
}

func (c *recordingCollector) Record(_ context.Context, s *telemetry.ScanSnapshot) error {
	c.snapshots = append(c.snapshots, s)
	return nil
}

func (c *recordingCollector) Close() error { return nil }

func fixedClock() time.Time {
	return time.Unix(1700000000, 0)
}

func TestRunOnce(t *testing.T) {
	catalog := sensors.NewCatalog(newProvider(), sensors.Options{})
	sub := &recordingSubmitter{}
	collector := &recordingCollector{}

	d := daemon.New(catalog, sub, time.Second, logger.Nop(),
		daemon.WithClock(fixedClock),
		daemon.WithCollector(collector),
	)
	require.NoError(t, catalog.Rebuild())

	cycle := d.RunOnce(context.Background())

	assert.Equal(t, []submission{
		{submit.Module, "it87-temp1", "1700000000:40.000"},
		{submit.Module, "it87-fan1", "1700000000:1200.000"},
	}, sub.submissions())
	assert.Equal(t, 2, cycle.Stats.Emitted)
	assert.Zero(t, cycle.SubmitFailures)

	require.Len(t, collector.snapshots, 1)
	assert.Equal(t, 2, collector.snapshots[0].Catalog.Entries)
	assert.Equal(t, uint64(1), collector.snapshots[0].Catalog.Generation)
	assert.Equal(t, 2, collector.snapshots[0].Cycle.Emitted)
}

func TestRunOnceCountsSubmitFailures(t *testing.T) {
	catalog := sensors.NewCatalog(newProvider(), sensors.Options{Scheme: sensors.Extended})
	sub := &recordingSubmitter{fail: map[string]bool{"it87-isa-0290/fanspeed-fan1": true}}
	collector := &recordingCollector{}

	d := daemon.New(catalog, sub, time.Second, logger.Nop(),
		daemon.WithClock(fixedClock),
		daemon.WithCollector(collector),
	)
	require.NoError(t, catalog.Rebuild())

	cycle := d.RunOnce(context.Background())

	assert.Equal(t, 1, cycle.SubmitFailures)
	assert.Equal(t, 2, cycle.Stats.Emitted)
	assert.Equal(t, []submission{
		{submit.Module, "it87-isa-0290/temperature-temp1", "1700000000:40.000"},
	}, sub.submissions())
	assert.Equal(t, 1, collector.snapshots[0].Cycle.SubmitFailures)
}

func TestOnceRebuildsBeforeScanning(t *testing.T) {
	provider := newProvider()
	catalog := sensors.NewCatalog(provider, sensors.Options{})
	sub := &recordingSubmitter{}

	d := daemon.New(catalog, sub, time.Second, logger.Nop(), daemon.WithClock(fixedClock))

	cycle := d.Once(context.Background())

	assert.Equal(t, 1, provider.initCalls)
	assert.Equal(t, 2, cycle.Stats.Emitted)
	assert.Len(t, sub.submissions(), 2)
}

func TestRunOnceEmptyCatalog(t *testing.T) {
	catalog := sensors.NewCatalog(newProvider(), sensors.Options{})
	sub := &recordingSubmitter{}

	d := daemon.New(catalog, sub, time.Second, logger.Nop())

	cycle := d.RunOnce(context.Background())
	assert.Zero(t, cycle.Stats.Entries)
	assert.Empty(t, sub.submissions())
}

func TestRunReloadAndStop(t *testing.T) {
	provider := newProvider()
	provider.inits = make(chan struct{}, 4)
	catalog := sensors.NewCatalog(provider, sensors.Options{})
	sub := &recordingSubmitter{notify: make(chan struct{}, 1)}

	d := daemon.New(catalog, sub, 5*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	waitFor := func() {
		select {
		case <-sub.notify:
		case <-time.After(5 * time.Second):
			t.Fatal("no readings submitted")
		}
	}

	waitInit := func() {
		select {
		case <-provider.inits:
		case <-time.After(5 * time.Second):
			t.Fatal("catalog not rebuilt")
		}
	}

	waitInit()
	waitFor()

	d.Reload()
	d.Reload()
	waitInit()
	waitFor()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	assert.GreaterOrEqual(t, provider.initCalls, 2)
	assert.GreaterOrEqual(t, len(sub.submissions()), 2)
}

func TestRunRejectsBadInterval(t *testing.T) {
	d := daemon.New(sensors.NewCatalog(newProvider(), sensors.Options{}), &recordingSubmitter{}, 0, logger.Nop())
	assert.Error(t, d.Run(context.Background()))
}

func TestHostname(t *testing.T) {
	name, err := daemon.Hostname(context.Background(), "configured")
	require.NoError(t, err)
	assert.Equal(t, "configured", name)

	name, err = daemon.Hostname(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}
