package runtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

func observer(t *testing.T, c *Circuit, seen *recorder[string]) *Subscriber[int] {
	t.Helper()
	s, err := NewSubscriber[int](c, nil, func(channel *Subject, reg *Registrar[int]) {
		path := channel.Name.Path()
		_ = reg.Register(func(v int) { seen.record(fmt.Sprintf("%s:%d", path, v)) })
	})
	require.NoError(t, err)
	return s
}

func TestCellEmissionsFlowUpward(t *testing.T) {
	c := newNamedCircuit(t, "plant")
	var root recorder[int]
	site, err := NewCell[int](c, name.MustParse("site"), root.record)
	require.NoError(t, err)

	floor, err := site.Percept(name.MustParse("floor1"))
	require.NoError(t, err)
	again, err := site.Percept(name.MustParse("floor1"))
	require.NoError(t, err)
	assert.Same(t, floor, again)
	room, err := floor.Percept(name.MustParse("room7"))
	require.NoError(t, err)

	assert.Nil(t, site.Enclosure())
	assert.Same(t, site, floor.Enclosure())
	assert.Equal(t, "circuit:plant/cell:site/cell:floor1/cell:room7", room.Subject().String())

	var siteSeen, floorSeen recorder[string]
	siteSub, err := site.Subscribe(observer(t, c, &siteSeen))
	require.NoError(t, err)
	_, err = floor.Subscribe(observer(t, c, &floorSeen))
	require.NoError(t, err)
	res, err := site.Reservoir()
	require.NoError(t, err)

	site.Receive(1)
	floor.Receive(2)
	room.Receive(3)
	awaitCircuit(t, c)

	assert.Equal(t, []int{1, 2, 3}, root.snapshot())
	assert.Equal(t, []string{"floor1:2", "floor1:3"}, siteSeen.snapshot())
	assert.Equal(t, []string{"room7:3"}, floorSeen.snapshot())
	assert.Len(t, res.Drain(), 2)
	assert.Equal(t, uint64(3), c.Stats().Activations)

	require.NoError(t, siteSub.Close())
	room.Receive(4)
	awaitCircuit(t, c)
	assert.Equal(t, []int{1, 2, 3, 4}, root.snapshot())
	assert.Equal(t, []string{"floor1:2", "floor1:3"}, siteSeen.snapshot())
	assert.Equal(t, []string{"room7:3", "room7:4"}, floorSeen.snapshot())
}

func TestCellInputMapsValues(t *testing.T) {
	c := newTestCircuit(t)
	var root recorder[int]
	cell, err := NewCell[int](c, nil, root.record)
	require.NoError(t, err)

	in, err := CellInput(cell, func(s string) int { return len(s) })
	require.NoError(t, err)
	in.Emit("four")
	awaitCircuit(t, c)
	assert.Equal(t, []int{4}, root.snapshot())

	_, err = CellInput[string, int](cell, nil)
	assert.ErrorIs(t, err, errspkg.ErrMapperRequired)
}

func TestCellValidation(t *testing.T) {
	_, err := NewCell[int](nil, nil, func(int) {})
	assert.ErrorIs(t, err, errspkg.ErrCircuitRequired)

	c := newTestCircuit(t)
	_, err = NewCell[int](c, nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrReceptorRequired)

	cell, err := NewCell[int](c, nil, func(int) {})
	require.NoError(t, err)
	_, err = cell.Percept(nil)
	assert.ErrorIs(t, err, errspkg.ErrNameRequired)
}
