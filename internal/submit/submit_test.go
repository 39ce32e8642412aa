package submit_test

import (
	"encoding/json"
	"sync"
	"testing"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/sensors"
	"codeberg.org/mutker/sensorsd/internal/submit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type update struct {
	host, file, record string
	schema             sensors.ValueSchema
}

type memorySink struct {
	mu      sync.Mutex
	updates []update
}

func (s *memorySink) Update(host, file, record string, schema sensors.ValueSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update{host, file, record, schema})
	return nil
}

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	messages   []published
	publishErr error
	drains     int
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.messages = append(c.messages, published{subject, data})
	return nil
}

func (c *fakeConn) Drain() error {
	c.drains++
	return nil
}

func TestLocal(t *testing.T) {
	sink := &memorySink{}
	local := submit.NewLocal("box", sensors.NewWriter(sensors.Options{}, sink))

	require.NoError(t, local.Submit(submit.Module, "it87-temp1", "10:40.000"))

	err := local.Submit("cpu", "cpu0", "10:1.000")
	assert.True(t, errors.HasCode(err, submit.ErrUnknownModule))

	require.NoError(t, local.Close())
	err = local.Submit(submit.Module, "it87-temp1", "20:41.000")
	assert.True(t, errors.HasCode(err, submit.ErrClosed))

	assert.Equal(t, []update{
		{"box", "sensors-it87-temp1", "10:40.000", sensors.GenericSchema},
	}, sink.updates)
}

func TestPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := submit.NewPublisher(conn, "lab", "box", logger.Nop())

	require.NoError(t, p.Submit(submit.Module, "it87-isa-0290/voltage-in0", "10:1.104"))
	require.Len(t, conn.messages, 1)
	assert.Equal(t, "lab.sensors", conn.messages[0].subject)

	var msg submit.Message
	require.NoError(t, json.Unmarshal(conn.messages[0].data, &msg))
	assert.Equal(t, submit.Message{
		Host:     "box",
		Module:   "sensors",
		Instance: "it87-isa-0290/voltage-in0",
		Record:   "10:1.104",
	}, msg)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, conn.drains)

	err := p.Submit(submit.Module, "x", "1:1.000")
	assert.True(t, errors.HasCode(err, submit.ErrClosed))
}

func TestPublisherError(t *testing.T) {
	conn := &fakeConn{publishErr: assert.AnError}
	p := submit.NewPublisher(conn, "lab", "box", logger.Nop())

	err := p.Submit(submit.Module, "x", "1:1.000")
	assert.True(t, errors.HasCode(err, submit.ErrPublishFailed))
}

func TestReceiverRoundTrip(t *testing.T) {
	conn := &fakeConn{}
	p := submit.NewPublisher(conn, "lab", "remote", logger.Nop())
	require.NoError(t, p.Submit(submit.Module, "it87-isa-0290/voltage-in0", "10:1.104"))

	sink := &memorySink{}
	options := sensors.Options{Scheme: sensors.Extended}
	r := submit.NewReceiver(sensors.NewWriter(options, sink), logger.Nop())
	require.NoError(t, r.Handle(conn.messages[0].data))

	assert.Equal(t, []update{
		{"remote", "lm_sensors-it87-isa-0290/voltage-in0", "10:1.104", sensors.VoltageSchema},
	}, sink.updates)
}

func TestReceiverRejects(t *testing.T) {
	r := submit.NewReceiver(sensors.NewWriter(sensors.Options{}, &memorySink{}), logger.Nop())

	tests := []struct {
		name string
		data string
		code errors.ErrorCode
	}{
		{"not json", "10:1.0", submit.ErrInvalidMessage},
		{"other module", `{"host":"h","module":"cpu","instance":"c","record":"1:1.000"}`, submit.ErrUnknownModule},
		{"no host", `{"module":"sensors","instance":"c","record":"1:1.000"}`, submit.ErrInvalidMessage},
		{"no record", `{"host":"h","module":"sensors","instance":"c"}`, submit.ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Handle([]byte(tt.data))
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "sensorsd.sensors", submit.Subject("sensorsd", submit.Module))
}
