// Package registrysource exposes registry stations to the nearby search.
package registrysource

import (
	"context"
	"errors"

	"fuel-registry/internal/geo"
	registry "fuel-registry/internal/registry/domain"
	"fuel-registry/internal/routing/application"
)

// StationLister lists denormalized stations.
type StationLister interface {
	ListAll(ctx context.Context) ([]registry.StationWithDetails, error)
}

// Source adapts a StationLister into an application.StationSource.
type Source struct {
	lister StationLister
}

var _ application.StationSource = (*Source)(nil)

// New constructs a source.
func New(lister StationLister) (*Source, error) {
	if lister == nil {
		return nil, errors.New("registry source: nil lister")
	}
	return &Source{lister: lister}, nil
}

// Locations returns every station. Stations at (0,0) were saved without usable
// coordinates and are marked unlocated.
func (s *Source) Locations(ctx context.Context) ([]application.StationLocation, error) {
	views, err := s.lister.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.StationLocation, 0, len(views))
	for _, v := range views {
		p := geo.Point{Lat: v.Station.Latitude, Lng: v.Station.Longitude}
		out = append(out, application.StationLocation{
			ID:        v.Station.ID,
			Code:      v.Station.Code,
			Name:      v.Station.Name,
			Address:   v.Station.Address,
			BrandName: v.Brand.Name,
			Point:     p,
			Located:   p.Lat != 0 || p.Lng != 0,
		})
	}
	return out, nil
}
