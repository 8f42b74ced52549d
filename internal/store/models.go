package store

import "time"

type User struct {
	ID                    string
	Email                 string
	Name                  string
	Image                 string
	EmailVerified         bool
	Role                  string
	Department            string
	Permissions           []string
	Preferences           Preferences
	Profile               Profile
	PasswordHash          string
	VerificationToken     string
	VerificationExpiresAt *time.Time
	Banned                bool
	BanReason             string
	LastLoginAt           *time.Time
	LoginCount            int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Preferences struct {
	Theme         string                  `json:"theme,omitempty"`
	Notifications NotificationPreferences `json:"notifications"`
	Language      string                  `json:"language,omitempty"`
}

type NotificationPreferences struct {
	Email     bool `json:"email"`
	Push      bool `json:"push"`
	Marketing bool `json:"marketing"`
}

type Profile struct {
	Bio       string `json:"bio,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Location  string `json:"location,omitempty"`
	Website   string `json:"website,omitempty"`
	Github    string `json:"github,omitempty"`
	Linkedin  string `json:"linkedin,omitempty"`
	X         string `json:"x,omitempty"`
}

type Organization struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Membership struct {
	OrgID     string
	UserID    string
	Role      string
	UserEmail string
	UserName  string
	OrgName   string
	CreatedAt time.Time
}

type Invitation struct {
	ID         string
	OrgID      string
	Email      string
	Role       string
	Token      string
	InvitedBy  string
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// Location is shared by projects, equipment, activities and incidents. Each
// entity fills the subset it records.
type Location struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Address  string  `json:"address,omitempty"`
	Suburb   string  `json:"suburb,omitempty"`
	State    string  `json:"state,omitempty"`
	Postcode string  `json:"postcode,omitempty"`
	Zone     string  `json:"zone,omitempty"`
	Site     string  `json:"site,omitempty"`
}

type ProjectMetadata struct {
	ContractNumber string  `json:"contractNumber,omitempty"`
	ProjectCode    string  `json:"projectCode,omitempty"`
	Client         string  `json:"client,omitempty"`
	Value          float64 `json:"value,omitempty"`
}

type Project struct {
	ID          string
	OrgID       string
	Name        string
	Description string
	Status      string
	Progress    int
	StartDate   time.Time
	EndDate     *time.Time
	Budget      float64
	Spent       float64
	ManagerID   string
	Location    *Location
	Priority    string
	Tags        []string
	Metadata    ProjectMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Task struct {
	ID             string
	OrgID          string
	ProjectID      string
	Title          string
	Description    string
	Status         string
	Priority       string
	AssigneeID     string
	DueDate        *time.Time
	CompletedAt    *time.Time
	EstimatedHours *float64
	ActualHours    *float64
	Dependencies   []string
	Tags           []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Resource struct {
	ID             string
	OrgID          string
	ProjectID      string
	Name           string
	Type           string
	Quantity       float64
	Unit           string
	Cost           float64
	Supplier       string
	Status         string
	DeliveryDate   *time.Time
	ReturnDate     *time.Time
	Specifications map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Equipment struct {
	ID                  string
	OrgID               string
	ProjectID           string
	Name                string
	Type                string
	Status              string
	Location            *Location
	OperatorID          string
	MaintenanceSchedule string
	LastMaintenance     *time.Time
	NextMaintenance     *time.Time
	HourlyRate          float64
	DailyRate           float64
	Specifications      map[string]any
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Weather struct {
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	WindSpeed   float64 `json:"windSpeed"`
	Humidity    float64 `json:"humidity"`
}

type SiteActivity struct {
	ID          string
	OrgID       string
	ProjectID   string
	Type        string
	Description string
	RecordedBy  string
	Location    *Location
	Photos      []string
	Weather     *Weather
	OccurredAt  time.Time
	CreatedAt   time.Time
}

type SafetyIncident struct {
	ID              string
	OrgID           string
	ProjectID       string
	Type            string
	Severity        string
	Description     string
	ReportedBy      string
	Location        *Location
	Photos          []string
	Resolved        bool
	ResolvedAt      *time.Time
	ResolutionNotes string
	OccurredAt      time.Time
	CreatedAt       time.Time
}

type IncidentStats struct {
	Total      int            `json:"total"`
	Resolved   int            `json:"resolved"`
	Pending    int            `json:"pending"`
	BySeverity map[string]int `json:"bySeverity"`
}

type Document struct {
	ID         string
	OrgID      string
	ProjectID  string
	Name       string
	Type       string
	ObjectKey  string
	URL        string
	UploadedBy string
	Size       int64
	MimeType   string
	Tags       []string
	Metadata   map[string]any
	CreatedAt  time.Time
}

type Notification struct {
	ID        string
	OrgID     string
	UserID    string
	Title     string
	Message   string
	Type      string
	Read      bool
	ReadAt    *time.Time
	Data      map[string]any
	DedupeKey string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

type AnalyticsSample struct {
	ID         string
	OrgID      string
	ProjectID  string
	Metric     string
	Value      float64
	Unit       string
	OccurredAt time.Time
	Metadata   map[string]any
}

type Plan struct {
	ID       string
	Name     string
	PriceID  string
	Amount   int64
	Currency string
	Interval string
	Features []string
	IsActive bool
}

type Subscription struct {
	ID                string
	UserID            string
	PlanID            string
	Status            string
	Amount            int64
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	ExternalID        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type SubscriptionAnalytics struct {
	Total    int   `json:"total"`
	Active   int   `json:"active"`
	Canceled int   `json:"canceled"`
	PastDue  int   `json:"pastDue"`
	Revenue  int64 `json:"revenue"`
}

type EmailRecord struct {
	ID             string
	Provider       string
	ProviderID     string
	Template       string
	Recipient      string
	Subject        string
	Status         string
	IdempotencyKey string
	LastError      string
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type EmailEvent struct {
	ID         string
	EmailID    string
	ProviderID string
	EventType  string
	Data       map[string]any
	OccurredAt time.Time
}
