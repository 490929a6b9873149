package sem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOutput struct {
	name   string
	values []float64
	mutex  sync.Mutex
}

func newOutput(name string) *recordingOutput {
	return &recordingOutput{name: name}
}

func (o *recordingOutput) Name() string {
	return o.name
}

func (o *recordingOutput) Publish(value float64) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.values = append(o.values, value)
}

func (o *recordingOutput) Values() []float64 {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return append([]float64(nil), o.values...)
}

func TestLayouts(t *testing.T) {

	assert := assert.New(t)

	cases := []struct {
		command string
		body    string
		value   float64
	}{
		{"E", "E01234567", 1234.567},
		{"W", "W00000000", 0},
		{"V", "V99999999", 99999.999},
		{"U", "U00001000", 1},
		{"V1", "V00012345", 12.345},
		{"=M", "=M0123", 1230},
		{"D", "D1123456170526", float64(time.Date(2026, 5, 17, 12, 34, 56, 0, time.UTC).Unix())},
	}
	for _, c := range cases {
		layout, ok := LookupLayout(c.command)
		require.True(t, ok, c.command)
		value, err := layout.Parse(c.body)
		require.NoError(t, err, c.command)
		assert.InDelta(c.value, value, 1e-9, c.command)
	}
}

func TestLayoutRejectsInvalidValues(t *testing.T) {

	cases := []struct {
		command string
		body    string
	}{
		{"E", "E1234567"},
		{"E", "E123456789"},
		{"E", "E12345A78"},
		{"E", "W01234567"},
		{"V1", "V100012345"},
		{"=M", "M0123"},
		{"=M", "=M-123"},
		{"D", "D7123456170526"},
		{"D", "D1243456170526"},
		{"D", "D1126056170526"},
		{"D", "D1123460170526"},
		{"D", "D1123456001326"},
		{"D", "D1123456310226"},
		{"D", "D112345617052"},
	}
	for _, c := range cases {
		layout, ok := LookupLayout(c.command)
		require.True(t, ok, c.command)
		_, err := layout.Parse(c.body)
		assert.ErrorIs(t, err, ErrInvalidValue, "%s %s", c.command, c.body)
	}
}

func TestLookupLayoutUnsupported(t *testing.T) {

	for _, command := range []string{"", "X", "=Q", "M"} {
		_, ok := LookupLayout(command)
		assert.False(t, ok, command)
	}
	assert.Equal(t, []string{"=M", "D", "E", "U", "V", "W"}, SupportedCommands())
}

func TestRegistryAdd(t *testing.T) {

	registry := NewValueRegistry()

	require.NoError(t, registry.Add(newOutput("t1"), "E"))
	require.NoError(t, registry.Add(newOutput("power"), "=M"))

	assert.ErrorIs(t, registry.Add(newOutput("again"), "E"), ErrDuplicateCommand)
	assert.ErrorIs(t, registry.Add(newOutput("empty"), ""), ErrUnsupportedCommand)
	assert.ErrorIs(t, registry.Add(newOutput("unknown"), "X"), ErrUnsupportedCommand)
	assert.ErrorIs(t, registry.Add(nil, "W"), ErrUnsupportedCommand)

	bindings := registry.Bindings()
	require.Len(t, bindings, 2)
	assert.Equal(t, "E", bindings[0].Command)
	assert.Equal(t, "=M", bindings[1].Command)
}

func TestRegistryApply(t *testing.T) {

	assert := assert.New(t)

	registry := NewValueRegistry()
	t1 := newOutput("t1")
	power := newOutput("power")
	require.NoError(t, registry.Add(t1, "E"))
	require.NoError(t, registry.Add(power, "=M"))

	reading, err := registry.Apply("=M", "=M0042")
	require.NoError(t, err)
	assert.Equal("power", reading.Output)
	assert.Equal(420.0, reading.Value)
	assert.Equal([]float64{420}, power.Values())

	_, err = registry.Apply("W", "W00000001")
	assert.ErrorIs(err, ErrUnknownCommand)

	// a value that fails decoding is never published
	_, err = registry.Apply("E", "E0000000X")
	assert.ErrorIs(err, ErrInvalidValue)
	assert.Empty(t1.Values())

	_, err = registry.Apply("E", "E00002000")
	require.NoError(t, err)

	latest := registry.Latest()
	require.Len(t, latest, 2)
	assert.Equal("E", latest[0].Command)
	assert.Equal(2.0, latest[0].Value)
	assert.Equal("=M", latest[1].Command)
}
