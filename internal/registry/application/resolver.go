package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"fuel-registry/internal/docstore"
	registry "fuel-registry/internal/registry/domain"

	"github.com/google/uuid"
)

// Resolution is the outcome of resolving one reference entity.
// Ops must be committed in the caller's batch for the id to exist.
type Resolution struct {
	ID    string
	IsNew bool
	Ops   []docstore.Op
}

type keyField struct {
	name  string
	value string
}

// Resolver finds reference entities by natural key or stages their creation.
// It keeps no state between calls.
type Resolver struct {
	store docstore.Store
	newID func() string
}

// ResolverOption configures the resolver.
type ResolverOption func(*Resolver)

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(fn func() string) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewResolver constructs a resolver.
func NewResolver(store docstore.Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("resolver: nil store")
	}
	r := &Resolver{store: store, newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ResolveProvince resolves a province by name.
func (r *Resolver) ResolveProvince(ctx context.Context, name string) (Resolution, error) {
	name = strings.TrimSpace(name)
	return r.resolve(ctx, registry.CollectionProvinces,
		[]keyField{{"name", name}},
		func(id string) any { return registry.Province{ID: id, Name: name} },
		nil)
}

// ResolveCommune resolves a commune by (name, province id).
func (r *Resolver) ResolveCommune(ctx context.Context, name, provinceID string) (Resolution, error) {
	name = strings.TrimSpace(name)
	return r.resolve(ctx, registry.CollectionCommunes,
		[]keyField{{"name", name}, {"province_id", provinceID}},
		func(id string) any { return registry.Commune{ID: id, Name: name, ProvinceID: provinceID} },
		nil)
}

// ResolveBrand resolves a brand by name and overwrites its legal name on a hit.
func (r *Resolver) ResolveBrand(ctx context.Context, name, legalName string) (Resolution, error) {
	name = strings.TrimSpace(name)
	legalName = strings.TrimSpace(legalName)
	return r.resolve(ctx, registry.CollectionBrands,
		[]keyField{{"name", name}},
		func(id string) any { return registry.Brand{ID: id, Name: name, LegalName: legalName} },
		map[string]any{"legal_name": legalName})
}

// ResolveManager resolves a manager by national id and overwrites name and phone on a hit.
func (r *Resolver) ResolveManager(ctx context.Context, nationalID, firstName, lastName, phone string) (Resolution, error) {
	nationalID = strings.TrimSpace(nationalID)
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	phone = strings.TrimSpace(phone)
	return r.resolve(ctx, registry.CollectionManagers,
		[]keyField{{"national_id", nationalID}},
		func(id string) any {
			return registry.Manager{ID: id, NationalID: nationalID, FirstName: firstName, LastName: lastName, Phone: phone}
		},
		map[string]any{"first_name": firstName, "last_name": lastName, "phone": phone})
}

// ResolveOwner resolves an owner through the detail table of its kind.
// An input without a usable name resolves to an empty id.
func (r *Resolver) ResolveOwner(ctx context.Context, input registry.OwnerInput) (Resolution, error) {
	if input.IsEmpty() {
		return Resolution{}, nil
	}

	var (
		collection string
		keys       []keyField
	)
	switch input.Kind {
	case registry.OwnerIndividual:
		collection = registry.CollectionOwnerIndividuals
		keys = []keyField{
			{"last_name", strings.TrimSpace(input.LastName)},
			{"first_name", strings.TrimSpace(input.FirstName)},
		}
	case registry.OwnerCorporate:
		collection = registry.CollectionOwnerCorporates
		keys = []keyField{{"company_name", strings.TrimSpace(input.CompanyName)}}
	}

	match, err := r.find(ctx, collection, keys)
	if err != nil {
		return Resolution{}, err
	}
	if match != nil {
		var detail struct {
			OwnerID string `json:"owner_id"`
		}
		if err := json.Unmarshal(match, &detail); err != nil {
			return Resolution{}, storageErr("decode owner detail", err)
		}
		if detail.OwnerID != "" {
			return Resolution{ID: detail.OwnerID}, nil
		}
	}

	ownerID := r.newID()
	detailID := r.newID()
	ops := []docstore.Op{
		docstore.Set(registry.CollectionOwners, ownerID, registry.Owner{ID: ownerID, Kind: input.Kind}),
	}
	switch input.Kind {
	case registry.OwnerIndividual:
		ops = append(ops, docstore.Set(collection, detailID, registry.OwnerIndividualDetail{
			ID:        detailID,
			OwnerID:   ownerID,
			FirstName: keys[1].value,
			LastName:  keys[0].value,
		}))
	case registry.OwnerCorporate:
		ops = append(ops, docstore.Set(collection, detailID, registry.OwnerCorporateDetail{
			ID:          detailID,
			OwnerID:     ownerID,
			CompanyName: keys[0].value,
		}))
	}
	return Resolution{ID: ownerID, IsNew: true, Ops: ops}, nil
}

func (r *Resolver) resolve(ctx context.Context, collection string, keys []keyField, create func(id string) any, mutable map[string]any) (Resolution, error) {
	if keys[0].value == "" {
		return Resolution{}, ErrEmptyNaturalKey
	}
	match, err := r.find(ctx, collection, keys)
	if err != nil {
		return Resolution{}, err
	}
	if match == nil {
		id := r.newID()
		return Resolution{ID: id, IsNew: true, Ops: []docstore.Op{docstore.Set(collection, id, create(id))}}, nil
	}

	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(match, &ref); err != nil {
		return Resolution{}, storageErr("decode "+collection, err)
	}
	res := Resolution{ID: ref.ID}
	if len(mutable) > 0 {
		res.Ops = []docstore.Op{docstore.Update(collection, ref.ID, mutable)}
	}
	return res, nil
}

// find queries by the first key and filters the remaining keys in memory.
// The first match in id order wins.
func (r *Resolver) find(ctx context.Context, collection string, keys []keyField) (json.RawMessage, error) {
	docs, err := r.store.FindEqual(ctx, collection, keys[0].name, keys[0].value)
	if err != nil {
		return nil, storageErr("find "+collection, err)
	}
	for _, doc := range docs {
		var fields map[string]any
		if err := json.Unmarshal(doc.Data, &fields); err != nil {
			return nil, storageErr("decode "+collection, err)
		}
		if matchesKeys(fields, keys[1:]) {
			return doc.Data, nil
		}
	}
	return nil, nil
}

func matchesKeys(fields map[string]any, keys []keyField) bool {
	for _, key := range keys {
		value, _ := fields[key.name].(string)
		if value != key.value {
			return false
		}
	}
	return true
}
