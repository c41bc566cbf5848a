package models

import "time"

type Token struct {
	ID                string     `json:"id"`
	Number            int        `json:"number"`
	CustomerName      string     `json:"customer_name"`
	DepartmentID      string     `json:"department_id"`
	DepartmentName    string     `json:"department_name"`
	Priority          string     `json:"priority"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	AppointmentTime   *time.Time `json:"appointment_time,omitempty"`
	ServiceType       string     `json:"service_type,omitempty"`
	EstimatedWaitTime int        `json:"estimated_wait_time"`
	ServedAt          *time.Time `json:"served_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusServing   = "serving"
	StatusCompleted = "completed"
)

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// PriorityRank orders priorities for queue sorting; higher serves first.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func ValidPriority(priority string) bool {
	return PriorityRank(priority) > 0
}

type Department struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Color          string  `json:"color"`
	AvgWaitTime    int     `json:"avg_wait_time"`
	TokenPrefix    string  `json:"token_prefix"`
	CurrentServing *string `json:"current_serving"`
}

type BusinessConfig struct {
	Name                 string               `json:"name"`
	LogoURL              string               `json:"logo_url"`
	ThemeColor           string               `json:"theme_color"`
	BusinessType         string               `json:"business_type"`
	TypeSpecificSettings TypeSpecificSettings `json:"type_specific_settings"`
}

type TypeSpecificSettings struct {
	ServiceTypes []string `json:"service_types"`
}

const (
	BusinessTypeHospital = "hospital"
	BusinessTypeStore    = "store"
	BusinessTypeBank     = "bank"
)

func ValidBusinessType(businessType string) bool {
	switch businessType {
	case BusinessTypeHospital, BusinessTypeStore, BusinessTypeBank:
		return true
	default:
		return false
	}
}

// DefaultServiceTypes returns the service-type labels preloaded for a
// business type when the organization has not configured its own.
func DefaultServiceTypes(businessType string) []string {
	switch businessType {
	case BusinessTypeStore:
		return []string{"Checkout", "Customer Service", "Returns", "Click & Collect"}
	case BusinessTypeBank:
		return []string{"Deposit", "Withdrawal", "Enquiries", "Loan Application"}
	default:
		return []string{"Consultation", "Check-up", "Procedure", "Vaccination"}
	}
}

type QueueStats struct {
	TotalWaiting   int `json:"total_waiting"`
	TotalServing   int `json:"total_serving"`
	TotalCompleted int `json:"total_completed"`
	AvgWaitTime    int `json:"avg_wait_time"`
}

// Snapshot is the full durable state of one tenant: everything the engine
// needs to resume after a restart, written as a single record.
type Snapshot struct {
	BusinessConfig  BusinessConfig `json:"business_config"`
	Departments     []Department   `json:"departments"`
	Queue           []Token        `json:"queue"`
	CompletedTokens []Token        `json:"completed_tokens"`
	TokenCounter    int            `json:"token_counter"`
}

func DefaultBusinessConfig() BusinessConfig {
	return BusinessConfig{
		Name:         "MQ System",
		ThemeColor:   "#14B8A6",
		BusinessType: BusinessTypeHospital,
		TypeSpecificSettings: TypeSpecificSettings{
			ServiceTypes: DefaultServiceTypes(BusinessTypeHospital),
		},
	}
}

// DefaultDepartments seeds a fresh tenant with the stock hospital layout.
func DefaultDepartments() []Department {
	return []Department{
		{ID: "general", Name: "General Medicine", Color: "#3b82f6", AvgWaitTime: 15, TokenPrefix: "GEN"},
		{ID: "emergency", Name: "Emergency", Color: "#ef4444", AvgWaitTime: 5, TokenPrefix: "EMG"},
		{ID: "cardiology", Name: "Cardiology", Color: "#8b5cf6", AvgWaitTime: 25, TokenPrefix: "CAR"},
		{ID: "orthopedics", Name: "Orthopedics", Color: "#06b6d4", AvgWaitTime: 20, TokenPrefix: "ORT"},
		{ID: "pediatrics", Name: "Pediatrics", Color: "#10b981", AvgWaitTime: 18, TokenPrefix: "PED"},
		{ID: "pharmacy", Name: "Pharmacy", Color: "#f59e0b", AvgWaitTime: 10, TokenPrefix: "PHA"},
	}
}

func DefaultSnapshot() Snapshot {
	return Snapshot{
		BusinessConfig: DefaultBusinessConfig(),
		Departments:    DefaultDepartments(),
		TokenCounter:   1,
	}
}
