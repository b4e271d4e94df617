package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fuel-registry/internal/docstore"
	"fuel-registry/internal/observability/metrics"
	registry "fuel-registry/internal/registry/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Writer creates and updates station aggregates.
// Every write of one operation is committed in a single batch.
type Writer struct {
	store    docstore.Store
	resolver *Resolver
	codes    *CodeAllocator
	clock    Clock
	newID    func() string
	logger   zerolog.Logger
}

// WriterOption customizes the writer.
type WriterOption func(*Writer)

// WithWriterClock assigns a clock.
func WithWriterClock(clock Clock) WriterOption {
	return func(w *Writer) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// WithWriterIDGenerator overrides uuid generation for aggregate rows.
func WithWriterIDGenerator(fn func() string) WriterOption {
	return func(w *Writer) {
		if fn != nil {
			w.newID = fn
		}
	}
}

// WithWriterLogger assigns a logger.
func WithWriterLogger(logger zerolog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// NewWriter constructs a writer.
func NewWriter(store docstore.Store, resolver *Resolver, codes *CodeAllocator, opts ...WriterOption) (*Writer, error) {
	if store == nil {
		return nil, errors.New("writer: nil store")
	}
	if resolver == nil {
		return nil, errors.New("writer: nil resolver")
	}
	if codes == nil {
		return nil, errors.New("writer: nil code allocator")
	}
	w := &Writer{
		store:    store,
		resolver: resolver,
		codes:    codes,
		clock:    systemClock{},
		newID:    uuid.NewString,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

type references struct {
	brandID   string
	communeID string
	managerID string
	ownerID   string
	ops       []docstore.Op
}

func (w *Writer) resolveReferences(ctx context.Context, sub registry.Submission) (references, error) {
	var refs references
	add := func(kind string, res Resolution) string {
		if res.IsNew {
			metrics.IncReferenceCreated(kind)
		}
		refs.ops = append(refs.ops, res.Ops...)
		return res.ID
	}

	brand, err := w.resolver.ResolveBrand(ctx, sub.BrandName, sub.BrandLegalName)
	if err != nil {
		return refs, err
	}
	refs.brandID = add("brand", brand)

	province, err := w.resolver.ResolveProvince(ctx, sub.ProvinceName)
	if err != nil {
		return refs, err
	}
	provinceID := add("province", province)

	commune, err := w.resolver.ResolveCommune(ctx, sub.CommuneName, provinceID)
	if err != nil {
		return refs, err
	}
	refs.communeID = add("commune", commune)

	manager, err := w.resolver.ResolveManager(ctx, sub.ManagerNationalID, sub.ManagerFirstName, sub.ManagerLastName, sub.ManagerPhone)
	if err != nil {
		return refs, err
	}
	refs.managerID = add("manager", manager)

	owner, err := w.resolver.ResolveOwner(ctx, sub.Owner)
	if err != nil {
		return refs, err
	}
	if owner.ID != "" {
		refs.ownerID = add("owner", owner)
	}
	return refs, nil
}

// Create writes a new station aggregate and returns the station id.
func (w *Writer) Create(ctx context.Context, sub registry.Submission) (string, error) {
	start := time.Now()
	id, err := w.create(ctx, sub)
	metrics.ObserveStationOp("create", metrics.ResultOf(err), time.Since(start))
	return id, err
}

func (w *Writer) create(ctx context.Context, sub registry.Submission) (string, error) {
	if err := checkAuthorizations(sub.Authorizations); err != nil {
		return "", err
	}
	refs, err := w.resolveReferences(ctx, sub)
	if err != nil {
		return "", err
	}
	code, err := w.codes.NextCode(ctx)
	if err != nil {
		return "", err
	}

	now := w.clock.Now().UTC()
	stationID := w.newID()
	station := registry.Station{
		ID:             stationID,
		Code:           code,
		Name:           strings.TrimSpace(sub.Name),
		Address:        strings.TrimSpace(sub.Address),
		Latitude:       parseCoordinate(sub.Latitude),
		Longitude:      parseCoordinate(sub.Longitude),
		Status:         sub.Status,
		Type:           sub.Type,
		ManagementType: sub.ManagementType,
		BrandID:        refs.brandID,
		CommuneID:      refs.communeID,
		ManagerID:      refs.managerID,
		OwnerID:        refs.ownerID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ops := append(refs.ops, docstore.Set(registry.CollectionStations, stationID, station))
	for _, entry := range sub.Authorizations {
		if entry.IsEmpty() {
			continue
		}
		authID := w.newID()
		ops = append(ops, docstore.Set(registry.CollectionAuthorizations, authID, authorizationRow(authID, stationID, entry)))
	}
	for _, capacity := range capacityInputs(sub) {
		liters, ok := parseLiters(capacity.raw)
		if !ok {
			continue
		}
		capID := w.newID()
		ops = append(ops, docstore.Set(registry.CollectionCapacities, capID, registry.StorageCapacity{
			ID:        capID,
			FuelType:  capacity.fuel,
			Liters:    liters,
			StationID: stationID,
		}))
	}

	if err := w.store.Commit(ctx, ops); err != nil {
		return "", storageErr("commit create", err)
	}
	w.logger.Debug().Str("station_id", stationID).Int64("code", code).Int("writes", len(ops)).Msg("station created")
	return stationID, nil
}

// Update rewrites an existing station aggregate.
// Only the first non-empty authorization entry is applied, replacing the station's first
// existing authorization. Capacities are replaced wholesale with Diesel and Premium rows.
func (w *Writer) Update(ctx context.Context, stationID string, sub registry.Submission) error {
	start := time.Now()
	err := w.update(ctx, stationID, sub)
	metrics.ObserveStationOp("update", metrics.ResultOf(err), time.Since(start))
	return err
}

func (w *Writer) update(ctx context.Context, stationID string, sub registry.Submission) error {
	if stationID == "" {
		return registry.ErrNotFound
	}
	if err := checkAuthorizations(sub.Authorizations); err != nil {
		return err
	}
	if _, err := w.store.Get(ctx, registry.CollectionStations, stationID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return registry.ErrNotFound
		}
		return storageErr("load station", err)
	}

	refs, err := w.resolveReferences(ctx, sub)
	if err != nil {
		return err
	}

	ops := append(refs.ops, docstore.Update(registry.CollectionStations, stationID, map[string]any{
		"name":            strings.TrimSpace(sub.Name),
		"address":         strings.TrimSpace(sub.Address),
		"latitude":        parseCoordinate(sub.Latitude),
		"longitude":       parseCoordinate(sub.Longitude),
		"status":          sub.Status,
		"type":            sub.Type,
		"management_type": sub.ManagementType,
		"brand_id":        refs.brandID,
		"commune_id":      refs.communeID,
		"manager_id":      refs.managerID,
		"owner_id":        refs.ownerID,
		"updated_at":      w.clock.Now().UTC(),
	}))

	if entry, ok := firstAuthorization(sub.Authorizations); ok {
		existing, err := w.store.FindEqual(ctx, registry.CollectionAuthorizations, "station_id", stationID)
		if err != nil {
			return storageErr("find authorizations", err)
		}
		authID := w.newID()
		if len(existing) > 0 {
			authID = existing[0].ID
		}
		ops = append(ops, docstore.Set(registry.CollectionAuthorizations, authID, authorizationRow(authID, stationID, entry)))
	}

	capacities, err := w.store.FindEqual(ctx, registry.CollectionCapacities, "station_id", stationID)
	if err != nil {
		return storageErr("find capacities", err)
	}
	for _, doc := range capacities {
		ops = append(ops, docstore.Delete(registry.CollectionCapacities, doc.ID))
	}
	for _, capacity := range capacityInputs(sub) {
		liters, _ := parseLiters(capacity.raw)
		capID := w.newID()
		ops = append(ops, docstore.Set(registry.CollectionCapacities, capID, registry.StorageCapacity{
			ID:        capID,
			FuelType:  capacity.fuel,
			Liters:    liters,
			StationID: stationID,
		}))
	}

	if err := w.store.Commit(ctx, ops); err != nil {
		if opErr, ok := docstore.FailedOp(err); ok && errors.Is(opErr, docstore.ErrNotFound) &&
			opErr.Collection == registry.CollectionStations && opErr.ID == stationID {
			return registry.ErrNotFound
		}
		return storageErr("commit update", err)
	}
	w.logger.Debug().Str("station_id", stationID).Int("writes", len(ops)).Msg("station updated")
	return nil
}

// checkAuthorizations rejects non-empty entries without a known type.
func checkAuthorizations(entries []registry.AuthorizationEntry) error {
	var fields map[string]string
	for i, entry := range entries {
		if entry.IsEmpty() || entry.Type.Known() {
			continue
		}
		if fields == nil {
			fields = map[string]string{}
		}
		tag := "oneof"
		if entry.Type == "" {
			tag = "required_with"
		}
		fields[fmt.Sprintf("authorizations[%d].type", i)] = tag
	}
	if fields != nil {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func authorizationRow(id, stationID string, entry registry.AuthorizationEntry) registry.Authorization {
	return registry.Authorization{
		ID:        id,
		Type:      entry.Type,
		Number:    strings.TrimSpace(entry.Number),
		Date:      strings.TrimSpace(entry.Date),
		StationID: stationID,
	}
}

func firstAuthorization(entries []registry.AuthorizationEntry) (registry.AuthorizationEntry, bool) {
	for _, entry := range entries {
		if !entry.IsEmpty() {
			return entry, true
		}
	}
	return registry.AuthorizationEntry{}, false
}

type capacityInput struct {
	fuel registry.FuelType
	raw  string
}

func capacityInputs(sub registry.Submission) []capacityInput {
	return []capacityInput{
		{fuel: registry.FuelDiesel, raw: sub.DieselLiters},
		{fuel: registry.FuelPremium, raw: sub.PremiumLiters},
	}
}

// parseCoordinate returns 0 for blank or unparseable input.
func parseCoordinate(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}

func parseLiters(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, false
	}
	return value, true
}
