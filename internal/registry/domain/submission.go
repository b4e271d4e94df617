package registry

import "strings"

// Submission is the flat station form as entered by an operator.
// Numeric fields arrive as strings and are parsed by the writer.
type Submission struct {
	Name           string `json:"name" validate:"required"`
	Address        string `json:"address"`
	Latitude       string `json:"latitude" validate:"required,latitude"`
	Longitude      string `json:"longitude" validate:"required,longitude"`
	Status         string `json:"status"`
	Type           string `json:"type"`
	ManagementType string `json:"management_type"`

	BrandName      string `json:"brand_name" validate:"required"`
	BrandLegalName string `json:"brand_legal_name"`
	ProvinceName   string `json:"province_name" validate:"required"`
	CommuneName    string `json:"commune_name" validate:"required"`

	ManagerNationalID string `json:"manager_national_id" validate:"required"`
	ManagerFirstName  string `json:"manager_first_name"`
	ManagerLastName   string `json:"manager_last_name"`
	ManagerPhone      string `json:"manager_phone"`

	Owner OwnerInput `json:"owner"`

	Authorizations []AuthorizationEntry `json:"authorizations" validate:"dive"`

	DieselLiters  string `json:"diesel_liters" validate:"omitempty,liters"`
	PremiumLiters string `json:"premium_liters" validate:"omitempty,liters"`
}

// OwnerInput is the tagged owner variant of a submission.
// Only the arm matching Kind is read.
type OwnerInput struct {
	Kind        OwnerKind `json:"kind" validate:"omitempty,oneof=individual corporate"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	CompanyName string    `json:"company_name"`
}

// IsEmpty reports whether the input names no owner for its kind.
func (o OwnerInput) IsEmpty() bool {
	switch o.Kind {
	case OwnerIndividual:
		return strings.TrimSpace(o.FirstName) == "" && strings.TrimSpace(o.LastName) == ""
	case OwnerCorporate:
		return strings.TrimSpace(o.CompanyName) == ""
	default:
		return true
	}
}

// AuthorizationEntry is one authorization line of a submission.
type AuthorizationEntry struct {
	Type   AuthorizationType `json:"type" validate:"required_with=Number Date,omitempty,oneof=creation transformation transfer brand_change"`
	Number string            `json:"number"`
	Date   string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// IsEmpty reports whether the entry carries neither a number nor a date.
func (a AuthorizationEntry) IsEmpty() bool {
	return strings.TrimSpace(a.Number) == "" && strings.TrimSpace(a.Date) == ""
}

// AnalysisInput is a new analysis for a station.
type AnalysisInput struct {
	Product string `json:"product" validate:"required"`
	Code    string `json:"code"`
	Result  string `json:"result" validate:"required"`
	Date    string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}
