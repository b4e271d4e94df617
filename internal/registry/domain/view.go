package registry

// OwnerView is an owner joined with its detail row.
type OwnerView struct {
	ID          string    `json:"id"`
	Kind        OwnerKind `json:"kind"`
	Name        string    `json:"name"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
}

// DisplayName returns the human name of the owner.
func (o OwnerView) DisplayName() string {
	if o.Kind == OwnerCorporate && o.CompanyName != "" {
		return o.CompanyName
	}
	name := o.FirstName
	if o.LastName != "" {
		if name != "" {
			name += " "
		}
		name += o.LastName
	}
	return name
}

// StationWithDetails is the denormalized station view.
type StationWithDetails struct {
	Station        Station           `json:"station"`
	Brand          Brand             `json:"brand"`
	Commune        Commune           `json:"commune"`
	Province       Province          `json:"province"`
	Manager        Manager           `json:"manager"`
	Owner          *OwnerView        `json:"owner,omitempty"`
	Authorizations []Authorization   `json:"authorizations"`
	Capacities     []StorageCapacity `json:"capacities"`
}

// UnknownBrand is the placeholder for a dangling brand reference.
func UnknownBrand(id string) Brand {
	return Brand{ID: id, Name: UnknownName}
}

// UnknownCommune is the placeholder for a dangling commune reference.
func UnknownCommune(id string) Commune {
	return Commune{ID: id, Name: UnknownName}
}

// UnknownProvince is the placeholder for a dangling province reference.
func UnknownProvince(id string) Province {
	return Province{ID: id, Name: UnknownName}
}

// UnknownManager is the placeholder for a dangling manager reference.
func UnknownManager(id string) Manager {
	return Manager{ID: id, FirstName: UnknownName}
}

// UnknownOwner is the placeholder for a dangling owner reference.
func UnknownOwner(id string) *OwnerView {
	return &OwnerView{ID: id, FirstName: UnknownName}
}
