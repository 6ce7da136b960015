package handlers

import (
	"context"
	"testing"

	"github.com/pokemap/maptracker/internal/catalog"
	"github.com/pokemap/maptracker/internal/dispatcher"
	"github.com/pokemap/maptracker/internal/geo"
	"github.com/pokemap/maptracker/internal/selection"
	"github.com/pokemap/maptracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*dispatcher.Dispatcher, *selection.Store) {
	t.Helper()

	cat := catalog.New()
	require.NoError(t, cat.Add(core.Marker{ID: "pikachu-1", Category: core.CategoryStandard, X: 100, Y: 100, Width: 24, Height: 32}))
	require.NoError(t, cat.Add(core.Marker{ID: "tm-24", Category: core.CategoryTechnique, X: 300, Y: 50, Width: 12, Height: 12}))

	store := selection.New()
	d, err := dispatcher.New(slogDiscard())
	require.NoError(t, err)
	t.Cleanup(d.Close)

	NewService(Dependencies{Store: store, Catalog: cat}).Register(d)
	return d, store
}

func dispatch(t *testing.T, d *dispatcher.Dispatcher, e dispatcher.Event) any {
	t.Helper()
	res, err := d.Dispatch(context.Background(), e)
	require.NoError(t, err)
	return res
}

func TestRegister_AllCommands(t *testing.T) {
	d, _ := setup(t)

	assert.ElementsMatch(t, []string{CmdHoverEnter, CmdHoverLeave, CmdToggle, CmdClickAt, CmdState}, d.Commands())
}

func TestHover(t *testing.T) {
	d, store := setup(t)

	dispatch(t, d, dispatcher.Event{Command: CmdHoverEnter, Marker: "pikachu-1"})
	dispatch(t, d, dispatcher.Event{Command: CmdHoverEnter, Marker: "tm-24"})

	assert.False(t, store.IsHovered("pikachu-1"))
	assert.True(t, store.IsHovered("tm-24"))

	dispatch(t, d, dispatcher.Event{Command: CmdHoverLeave})
	assert.False(t, store.IsHovered("tm-24"))
}

func TestHover_RequiresMarker(t *testing.T) {
	d, _ := setup(t)

	_, err := d.Dispatch(context.Background(), dispatcher.Event{Command: CmdHoverEnter})
	assert.ErrorIs(t, err, ErrMissingMarker)
}

func TestToggle(t *testing.T) {
	d, store := setup(t)

	res := dispatch(t, d, dispatcher.Event{Command: CmdToggle, Marker: "pikachu-1"})
	assert.Equal(t, ToggleResult{ID: "pikachu-1", Selected: true, Known: true}, res)
	assert.True(t, store.IsSelected("pikachu-1"))

	res = dispatch(t, d, dispatcher.Event{Command: CmdToggle, Marker: "pikachu-1"})
	assert.Equal(t, ToggleResult{ID: "pikachu-1", Selected: false, Known: true}, res)
	assert.False(t, store.IsSelected("pikachu-1"))
}

func TestToggle_UnknownMarkerIsInert(t *testing.T) {
	d, store := setup(t)

	res := dispatch(t, d, dispatcher.Event{Command: CmdToggle, Marker: "ghost"})

	assert.Equal(t, ToggleResult{ID: "ghost", Selected: true, Known: false}, res)
	assert.True(t, store.IsSelected("ghost"))
}

func TestToggle_RequiresMarker(t *testing.T) {
	d, _ := setup(t)

	_, err := d.Dispatch(context.Background(), dispatcher.Event{Command: CmdToggle})
	assert.ErrorIs(t, err, ErrMissingMarker)
}

func TestClickAt(t *testing.T) {
	d, store := setup(t)

	res := dispatch(t, d, dispatcher.Event{Command: CmdClickAt, Args: []string{"110", "120"}})
	click := res.(ClickResult)
	require.True(t, click.Hit)
	assert.Equal(t, core.MarkerID("pikachu-1"), click.Toggle.ID)
	assert.True(t, store.IsSelected("pikachu-1"))

	res = dispatch(t, d, dispatcher.Event{Command: CmdClickAt, Args: []string{"305,55"}})
	assert.True(t, res.(ClickResult).Hit)
	assert.True(t, store.IsSelected("tm-24"))

	res = dispatch(t, d, dispatcher.Event{Command: CmdClickAt, Args: []string{"0", "0"}})
	assert.False(t, res.(ClickResult).Hit)
	assert.Equal(t, 2, store.Len())
}

func TestClickAt_BadCoordinates(t *testing.T) {
	d, _ := setup(t)

	_, err := d.Dispatch(context.Background(), dispatcher.Event{Command: CmdClickAt, Args: []string{"x"}})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}

func TestState(t *testing.T) {
	d, store := setup(t)
	store.ToggleSelect("tm-24")
	store.SetHover("pikachu-1")

	snap := dispatch(t, d, dispatcher.Event{Command: CmdState}).(core.Snapshot)

	assert.Equal(t, []core.MarkerID{"tm-24"}, snap.Selected)
	assert.Equal(t, core.MarkerID("pikachu-1"), snap.Hovered)
}

func TestNewService_NilCatalog(t *testing.T) {
	store := selection.New()
	s := NewService(Dependencies{Store: store})

	res, err := s.Toggle(context.Background(), dispatcher.Event{Marker: "a"})
	require.NoError(t, err)
	assert.False(t, res.(ToggleResult).Known)
}
