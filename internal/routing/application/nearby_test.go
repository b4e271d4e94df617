package application

import (
	"context"
	"errors"
	"testing"

	"fuel-registry/internal/geo"
	routing "fuel-registry/internal/routing/domain"

	"github.com/stretchr/testify/require"
)

type staticSource struct {
	stations []StationLocation
	err      error
}

func (s staticSource) Locations(context.Context) ([]StationLocation, error) {
	return s.stations, s.err
}

func located(id string, p geo.Point) StationLocation {
	return StationLocation{ID: id, Name: "Station " + id, Point: p, Located: true}
}

func TestNearbySearchOrdersByRoadDistance(t *testing.T) {
	rig, err := newRig(&stubProvider{})
	require.NoError(t, err)
	source := staticSource{stations: []StationLocation{
		located("far", agdal),
		located("near", hassan),
		located("casa", tooFarOff),
		{ID: "unlocated"},
	}}
	svc, err := NewNearbyService(source, rig.proxy)
	require.NoError(t, err)

	out, err := svc.Search(context.Background(), rabat, routing.Options{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "near", out[0].Station.ID)
	require.Equal(t, "far", out[1].Station.ID)
	require.Less(t, out[0].DistanceMeters, out[1].DistanceMeters)
	require.Greater(t, out[0].StraightKm, 0.0)
}

func TestNearbySearchDropsUnreachable(t *testing.T) {
	rig, err := newRig(&stubProvider{noRoute: map[int]bool{0: true}})
	require.NoError(t, err)
	svc, err := NewNearbyService(staticSource{stations: []StationLocation{located("a", hassan), located("b", agdal)}}, rig.proxy)
	require.NoError(t, err)

	out, err := svc.Search(context.Background(), rabat, routing.Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "b", out[0].Station.ID)
}

func TestNearbySearchErrors(t *testing.T) {
	ctx := context.Background()

	rig, err := newRig(&stubProvider{})
	require.NoError(t, err)
	svc, err := NewNearbyService(staticSource{stations: []StationLocation{located("casa", tooFarOff)}}, rig.proxy)
	require.NoError(t, err)
	_, err = svc.Search(ctx, rabat, routing.Options{})
	require.ErrorIs(t, err, routing.ErrNoStationsInRadius)
	require.Zero(t, rig.provider.calls.Load())

	rig, err = newRig(&stubProvider{noRoute: map[int]bool{0: true}})
	require.NoError(t, err)
	svc, err = NewNearbyService(staticSource{stations: []StationLocation{located("a", agdal)}}, rig.proxy)
	require.NoError(t, err)
	_, err = svc.Search(ctx, rabat, routing.Options{})
	require.ErrorIs(t, err, routing.ErrNoReachableStations)

	boom := errors.New("store down")
	svc, err = NewNearbyService(staticSource{err: boom}, rig.proxy)
	require.NoError(t, err)
	_, err = svc.Search(ctx, rabat, routing.Options{})
	require.ErrorIs(t, err, boom)
}

func TestNearbySearchCapsCandidates(t *testing.T) {
	rig, err := newRig(&stubProvider{})
	require.NoError(t, err)
	var stations []StationLocation
	for i := 0; i < 40; i++ {
		stations = append(stations, located(string(rune('A'+i)), geo.Point{Lat: rabat.Lat + float64(i)*0.001, Lng: rabat.Lng}))
	}
	svc, err := NewNearbyService(staticSource{stations: stations}, rig.proxy, WithMaxCandidates(10))
	require.NoError(t, err)

	out, err := svc.Search(context.Background(), rabat, routing.Options{})
	require.NoError(t, err)
	require.Len(t, out, 10)
	require.Equal(t, "A", out[0].Station.ID)
}
