package registry

import (
	"errors"
	"time"
)

// Collection names in the document store.
const (
	CollectionProvinces        = "provinces"
	CollectionCommunes         = "communes"
	CollectionBrands           = "brands"
	CollectionManagers         = "managers"
	CollectionOwners           = "owners"
	CollectionOwnerIndividuals = "owner_individuals"
	CollectionOwnerCorporates  = "owner_corporates"
	CollectionStations         = "stations"
	CollectionAuthorizations   = "authorizations"
	CollectionCapacities       = "storage_capacities"
	CollectionAnalyses         = "analyses"
	CollectionCounters         = "counters"
)

// UnknownName is rendered for references that cannot be resolved.
const UnknownName = "Unknown"

// ErrNotFound is returned when a station does not exist.
var ErrNotFound = errors.New("registry: not found")

// OwnerKind tags which detail table an owner lives in.
type OwnerKind string

const (
	OwnerIndividual OwnerKind = "individual"
	OwnerCorporate  OwnerKind = "corporate"
)

// FuelType is a storage capacity fuel.
type FuelType string

const (
	FuelDiesel  FuelType = "Diesel"
	FuelPremium FuelType = "Premium"
)

// AuthorizationType classifies an administrative authorization.
type AuthorizationType string

const (
	AuthorizationCreation       AuthorizationType = "creation"
	AuthorizationTransformation AuthorizationType = "transformation"
	AuthorizationTransfer       AuthorizationType = "transfer"
	AuthorizationBrandChange    AuthorizationType = "brand_change"
)

// Known reports whether t is one of the registered authorization types.
func (t AuthorizationType) Known() bool {
	switch t {
	case AuthorizationCreation, AuthorizationTransformation, AuthorizationTransfer, AuthorizationBrandChange:
		return true
	}
	return false
}

// Province is keyed by name.
type Province struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Commune is keyed by (name, province_id).
type Commune struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProvinceID string `json:"province_id"`
}

// Brand is keyed by name; legal_name is overwritten on every reference.
type Brand struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LegalName string `json:"legal_name"`
}

// Manager is keyed by national_id.
type Manager struct {
	ID         string `json:"id"`
	NationalID string `json:"national_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
}

// Owner is the parent row of exactly one detail row.
type Owner struct {
	ID   string    `json:"id"`
	Kind OwnerKind `json:"kind"`
}

// OwnerIndividualDetail is the detail row of an individual owner.
type OwnerIndividualDetail struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// OwnerCorporateDetail is the detail row of a corporate owner.
type OwnerCorporateDetail struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	CompanyName string `json:"company_name"`
}

// Station is the aggregate root.
type Station struct {
	ID             string    `json:"id"`
	Code           int64     `json:"code"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Status         string    `json:"status"`
	Type           string    `json:"type"`
	ManagementType string    `json:"management_type"`
	BrandID        string    `json:"brand_id"`
	CommuneID      string    `json:"commune_id"`
	ManagerID      string    `json:"manager_id"`
	OwnerID        string    `json:"owner_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Authorization belongs to one station.
type Authorization struct {
	ID        string            `json:"id"`
	Type      AuthorizationType `json:"type"`
	Number    string            `json:"number"`
	Date      string            `json:"date"`
	StationID string            `json:"station_id"`
}

// StorageCapacity belongs to one station.
type StorageCapacity struct {
	ID        string   `json:"id"`
	FuelType  FuelType `json:"fuel_type"`
	Liters    float64  `json:"liters"`
	StationID string   `json:"station_id"`
}

// Analysis is a fuel quality analysis of one station.
type Analysis struct {
	ID        string    `json:"id"`
	Product   string    `json:"product"`
	Code      string    `json:"code"`
	Result    string    `json:"result"`
	Date      string    `json:"date"`
	StationID string    `json:"station_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Counter is a monotonic counter document.
type Counter struct {
	Value int64 `json:"value"`
}
