package application

import (
	"context"
	"errors"
	"sort"
	"time"

	"fuel-registry/internal/docstore"
	"fuel-registry/internal/observability/metrics"
	registry "fuel-registry/internal/registry/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultReadConcurrency = 8

// Reader reconstructs station views from their stored rows.
type Reader struct {
	store       docstore.Store
	logger      zerolog.Logger
	concurrency int
}

// ReaderOption customizes the reader.
type ReaderOption func(*Reader)

// WithReadConcurrency bounds how many stations are assembled at once.
func WithReadConcurrency(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewReader constructs a reader.
func NewReader(store docstore.Store, logger zerolog.Logger, opts ...ReaderOption) (*Reader, error) {
	if store == nil {
		return nil, errors.New("reader: nil store")
	}
	r := &Reader{store: store, logger: logger, concurrency: defaultReadConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ListAll returns every station ordered by code.
func (r *Reader) ListAll(ctx context.Context) ([]registry.StationWithDetails, error) {
	start := time.Now()
	docs, err := r.store.List(ctx, registry.CollectionStations)
	if err != nil {
		metrics.ObserveStationOp("list", metrics.ResultError, time.Since(start))
		return nil, storageErr("list stations", err)
	}
	out, err := r.assembleAll(ctx, docs)
	metrics.ObserveStationOp("list", metrics.ResultOf(err), time.Since(start))
	return out, err
}

// ListByIDs returns the requested stations ordered by code; unknown ids are skipped.
func (r *Reader) ListByIDs(ctx context.Context, ids []string) ([]registry.StationWithDetails, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	docs, err := docstore.FindInChunks(ctx, r.store, registry.CollectionStations, "id", values)
	if err != nil {
		return nil, storageErr("find stations", err)
	}
	return r.assembleAll(ctx, docs)
}

// Get returns one station view.
func (r *Reader) Get(ctx context.Context, id string) (registry.StationWithDetails, error) {
	doc, err := r.store.Get(ctx, registry.CollectionStations, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return registry.StationWithDetails{}, registry.ErrNotFound
		}
		return registry.StationWithDetails{}, storageErr("get station", err)
	}
	var station registry.Station
	if err := doc.Decode(&station); err != nil {
		return registry.StationWithDetails{}, storageErr("decode station", err)
	}
	return r.assemble(ctx, station), nil
}

func (r *Reader) assembleAll(ctx context.Context, docs []docstore.Doc) ([]registry.StationWithDetails, error) {
	stations := make([]registry.Station, 0, len(docs))
	for _, doc := range docs {
		var station registry.Station
		if err := doc.Decode(&station); err != nil {
			r.logger.Warn().Err(err).Str("station_id", doc.ID).Msg("skipping undecodable station")
			continue
		}
		if station.ID == "" {
			station.ID = doc.ID
		}
		stations = append(stations, station)
	}
	sort.SliceStable(stations, func(i, j int) bool { return stations[i].Code < stations[j].Code })

	out := make([]registry.StationWithDetails, len(stations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range stations {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = r.assemble(gctx, stations[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// assemble resolves every reference of a station. Unresolvable references
// degrade to Unknown placeholders so one bad row does not fail the list.
func (r *Reader) assemble(ctx context.Context, station registry.Station) registry.StationWithDetails {
	view := registry.StationWithDetails{
		Station:        station,
		Authorizations: []registry.Authorization{},
		Capacities:     []registry.StorageCapacity{},
	}

	view.Brand = registry.UnknownBrand(station.BrandID)
	var brand registry.Brand
	if r.load(ctx, station.ID, registry.CollectionBrands, station.BrandID, &brand) {
		view.Brand = brand
	}

	view.Commune = registry.UnknownCommune(station.CommuneID)
	view.Province = registry.UnknownProvince("")
	var commune registry.Commune
	if r.load(ctx, station.ID, registry.CollectionCommunes, station.CommuneID, &commune) {
		view.Commune = commune
		view.Province = registry.UnknownProvince(commune.ProvinceID)
		var province registry.Province
		if r.load(ctx, station.ID, registry.CollectionProvinces, commune.ProvinceID, &province) {
			view.Province = province
		}
	}

	view.Manager = registry.UnknownManager(station.ManagerID)
	var manager registry.Manager
	if r.load(ctx, station.ID, registry.CollectionManagers, station.ManagerID, &manager) {
		view.Manager = manager
	}

	if station.OwnerID != "" {
		view.Owner = r.loadOwner(ctx, station.ID, station.OwnerID)
		view.Owner.Name = view.Owner.DisplayName()
	}

	var auths []registry.Authorization
	if r.loadChildren(ctx, station.ID, registry.CollectionAuthorizations, func(doc docstore.Doc) error {
		var auth registry.Authorization
		if err := doc.Decode(&auth); err != nil {
			return err
		}
		auths = append(auths, auth)
		return nil
	}) {
		view.Authorizations = append(view.Authorizations, auths...)
	}

	var capacities []registry.StorageCapacity
	if r.loadChildren(ctx, station.ID, registry.CollectionCapacities, func(doc docstore.Doc) error {
		var capacity registry.StorageCapacity
		if err := doc.Decode(&capacity); err != nil {
			return err
		}
		capacities = append(capacities, capacity)
		return nil
	}) {
		sort.SliceStable(capacities, func(i, j int) bool { return capacities[i].FuelType < capacities[j].FuelType })
		view.Capacities = append(view.Capacities, capacities...)
	}
	return view
}

func (r *Reader) loadOwner(ctx context.Context, stationID, ownerID string) *registry.OwnerView {
	var owner registry.Owner
	if !r.load(ctx, stationID, registry.CollectionOwners, ownerID, &owner) {
		return registry.UnknownOwner(ownerID)
	}
	view := &registry.OwnerView{ID: ownerID, Kind: owner.Kind}

	switch owner.Kind {
	case registry.OwnerIndividual:
		var detail registry.OwnerIndividualDetail
		if r.loadDetail(ctx, stationID, registry.CollectionOwnerIndividuals, ownerID, &detail) {
			view.FirstName, view.LastName = detail.FirstName, detail.LastName
			return view
		}
	case registry.OwnerCorporate:
		var detail registry.OwnerCorporateDetail
		if r.loadDetail(ctx, stationID, registry.CollectionOwnerCorporates, ownerID, &detail) {
			view.CompanyName = detail.CompanyName
			return view
		}
	}
	unknown := registry.UnknownOwner(ownerID)
	unknown.Kind = owner.Kind
	return unknown
}

func (r *Reader) load(ctx context.Context, stationID, collection, id string, dst any) bool {
	if id == "" {
		r.warnUnknown(stationID, collection, id, docstore.ErrNotFound)
		return false
	}
	doc, err := r.store.Get(ctx, collection, id)
	if err == nil {
		err = doc.Decode(dst)
	}
	if err != nil {
		r.warnUnknown(stationID, collection, id, err)
		return false
	}
	return true
}

func (r *Reader) loadDetail(ctx context.Context, stationID, collection, ownerID string, dst any) bool {
	docs, err := r.store.FindEqual(ctx, collection, "owner_id", ownerID)
	if err == nil && len(docs) == 0 {
		err = docstore.ErrNotFound
	}
	if err == nil {
		err = docs[0].Decode(dst)
	}
	if err != nil {
		r.warnUnknown(stationID, collection, ownerID, err)
		return false
	}
	return true
}

func (r *Reader) loadChildren(ctx context.Context, stationID, collection string, each func(docstore.Doc) error) bool {
	docs, err := r.store.FindEqual(ctx, collection, "station_id", stationID)
	if err != nil {
		r.logger.Warn().Err(err).Str("station_id", stationID).Str("collection", collection).Msg("station children unreadable")
		return false
	}
	for _, doc := range docs {
		if err := each(doc); err != nil {
			r.logger.Warn().Err(err).Str("station_id", stationID).Str("collection", collection).Str("id", doc.ID).Msg("skipping undecodable row")
		}
	}
	return true
}

func (r *Reader) warnUnknown(stationID, collection, id string, err error) {
	metrics.IncUnknownReference(collection)
	r.logger.Warn().
		Err(err).
		Str("station_id", stationID).
		Str("collection", collection).
		Str("ref_id", id).
		Msg("reference unresolved, rendering Unknown")
}
