package runtime

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

func celsius(v int) string { return strconv.Itoa(v) + "C" }

func TestTapMirrorsSourceChannels(t *testing.T) {
	c := newNamedCircuit(t, "app")
	cd := newPipeConduit[int](t, c, "sensors")

	tap, err := NewTap(cd, name.MustParse("celsius"), celsius)
	require.NoError(t, err)
	assert.Equal(t, KindTap, tap.Subject().Kind)
	assert.Same(t, cd.Subject(), tap.Subject().Enclosure)
	assert.Same(t, c, tap.Circuit())

	var (
		channels recorder[string]
		got      recorder[string]
	)
	s, err := NewSubscriber[string](c, nil, func(channel *Subject, reg *Registrar[string]) {
		path := channel.Name.Path()
		channels.record(path)
		_ = reg.Register(func(v string) { got.record(path + "=" + v) })
	})
	require.NoError(t, err)
	_, err = tap.Subscribe(s)
	require.NoError(t, err)
	res, err := tap.Reservoir()
	require.NoError(t, err)

	percept(t, cd, "boiler").Emit(90)
	percept(t, cd, "intake").Emit(12)
	percept(t, cd, "boiler").Emit(91)
	awaitCircuit(t, c)

	assert.Equal(t, []string{"boiler=90C", "intake=12C", "boiler=91C"}, got.snapshot())
	assert.Equal(t, []string{"boiler", "intake"}, channels.snapshot())

	captures := res.Drain()
	require.Len(t, captures, 3)
	assert.Equal(t, "91C", captures[2].Emission)
	assert.Equal(t, KindTap, captures[0].Subject.Enclosure.Kind)
}

func TestTapClose(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")
	tap, err := NewTap(cd, nil, celsius)
	require.NoError(t, err)

	var got recorder[string]
	s, err := NewSubscriber[string](c, nil, func(_ *Subject, reg *Registrar[string]) {
		_ = reg.Register(got.record)
	})
	require.NoError(t, err)
	_, err = tap.Subscribe(s)
	require.NoError(t, err)

	pipe := percept(t, cd, "x")
	pipe.Emit(1)
	awaitCircuit(t, c)

	require.NoError(t, tap.Close())
	require.NoError(t, tap.Close())
	assert.True(t, tap.Closed())
	pipe.Emit(2)
	awaitCircuit(t, c)

	assert.Equal(t, []string{"1C"}, got.snapshot())
	_, err = tap.Subscribe(s)
	assert.ErrorIs(t, err, errspkg.ErrTapClosed)
	_, err = tap.Reservoir()
	assert.ErrorIs(t, err, errspkg.ErrTapClosed)
}

func TestNewTapValidation(t *testing.T) {
	_, err := NewTap[*Pipe[int], int, string](nil, nil, celsius)
	assert.ErrorIs(t, err, errspkg.ErrConduitRequired)

	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")
	_, err = NewTap[*Pipe[int], int, string](cd, nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrMapperRequired)

	tap, err := NewTap(cd, nil, celsius)
	require.NoError(t, err)
	foreign, err := NewSubscriber[string](newTestCircuit(t), nil, func(*Subject, *Registrar[string]) {})
	require.NoError(t, err)
	_, err = tap.Subscribe(foreign)
	assert.ErrorIs(t, err, errspkg.ErrCircuitMismatch)
}
