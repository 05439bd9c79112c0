package ugibdd

import "time"

// Employee is the application-level identity behind an authenticated subject.
type Employee struct {
	ID         int64     `json:"id,omitzero" gorm:"primaryKey;autoIncrement"`
	AuthUserID string    `json:"auth_user_id" gorm:"uniqueIndex;not null"`
	Nickname   string    `json:"nickname" gorm:"uniqueIndex;not null"`
	Rank       string    `json:"rank"`
	Department string    `json:"department"`
	Category   Category  `json:"category" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at,omitzero" gorm:"autoCreateTime"`
}

// TableName sets the table name for gorm
func (Employee) TableName() string { return TableEmployees }

// KuspStatus is the lifecycle state of a KUSP record.
type KuspStatus string

const (
	KuspNew        KuspStatus = "new"
	KuspInProgress KuspStatus = "in_progress"
	KuspClosed     KuspStatus = "closed"
)

// Valid reports whether s is a known KUSP status.
func (s KuspStatus) Valid() bool {
	return s == KuspNew || s == KuspInProgress || s == KuspClosed
}

// HistoryEntry is one line of a KUSP record's history.
type HistoryEntry struct {
	TS     time.Time `json:"ts"`
	User   string    `json:"user"`
	Action string    `json:"action"`
	Note   string    `json:"note,omitempty"`
}

// KuspRecord is an incident registry entry.
type KuspRecord struct {
	ID           int64          `json:"id,omitzero" gorm:"primaryKey;autoIncrement"`
	KuspNumber   string         `json:"kusp_number" gorm:"index"`
	TicketNumber string         `json:"ticket_number,omitempty" gorm:"index"`
	CreatedBy    string         `json:"created_by"`
	CreatedByID  int64          `json:"created_by_id,omitzero"`
	ReporterName string         `json:"reporter_name"`
	Contact      string         `json:"contact,omitempty"`
	Type         string         `json:"type,omitempty"`
	Location     string         `json:"location,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	Description  string         `json:"description"`
	Status       KuspStatus     `json:"status"`
	ReceivedByID *string        `json:"received_by_id"`
	AssignedByID *string        `json:"assigned_by_id"`
	AssignedToID *string        `json:"assigned_to_id"`
	History      []HistoryEntry `json:"history" gorm:"serializer:json;type:jsonb"`
	CreatedAt    time.Time      `json:"created_at,omitzero" gorm:"autoCreateTime"`
}

// TableName sets the table name for gorm
func (KuspRecord) TableName() string { return TableKusps }

// ProtocolStatus is the lifecycle state of a protocol.
type ProtocolStatus string

const (
	ProtocolActive   ProtocolStatus = "active"
	ProtocolArchived ProtocolStatus = "archived"
)

// Valid reports whether s is a known protocol status.
func (s ProtocolStatus) Valid() bool {
	return s == ProtocolActive || s == ProtocolArchived
}

// ProtocolRecord is an administrative violation report.
type ProtocolRecord struct {
	ID             int64  `json:"id,omitzero" gorm:"primaryKey;autoIncrement"`
	ProtocolNumber string `json:"protocol_number" gorm:"uniqueIndex"`
	ProtocolDate   string `json:"protocol_date" validate:"required"`
	ProtocolTime   string `json:"protocol_time" validate:"required"`
	ProtocolPlace  string `json:"protocol_place" validate:"required"`
	OfficialName   string `json:"official_name" validate:"required"`

	ViolatorLastname      string `json:"violator_lastname" validate:"required"`
	ViolatorFirstname     string `json:"violator_firstname" validate:"required"`
	ViolatorPatronymic    string `json:"violator_patronymic,omitempty"`
	ViolatorBirthDate     string `json:"violator_birth_date,omitempty"`
	ViolatorBirthPlace    string `json:"violator_birth_place,omitempty"`
	ViolatorLanguageSkill string `json:"violator_russian_language_skill,omitempty" gorm:"column:violator_russian_language_skill"`
	ViolatorDriverLicense string `json:"violator_driver_license" validate:"required"`
	ViolatorLicenseNumber string `json:"violator_driver_license_number,omitempty" gorm:"column:violator_driver_license_number;index"`
	VehicleMakeModel      string `json:"vehicle_make_model" validate:"required"`
	VehicleLicensePlate   string `json:"vehicle_license_plate" validate:"required"`
	VehicleOwner          string `json:"vehicle_owner,omitempty"`
	VehicleRegisteredInfo string `json:"vehicle_registered_info,omitempty"`
	OffenseDatetime       string `json:"offense_datetime" validate:"required"`
	OffensePlace          string `json:"offense_place,omitempty"`
	OffenseDescription    string `json:"offense_description" validate:"required"`
	OffenseViolationPoint string `json:"offense_violation_point" validate:"required"`
	OffenseSpecialEquip   string `json:"offense_special_equipment,omitempty" gorm:"column:offense_special_equipment"`
	OffenseArticleNumber  string `json:"offense_article_number" validate:"required"`
	OffenseArticlePart    string `json:"offense_article_part" validate:"required"`
	ExplanatoryNote       string `json:"explanatory_note,omitempty"`
	SignatureData         string `json:"signature_data,omitempty"`

	Status        ProtocolStatus `json:"status"`
	CreatedByID   string         `json:"created_by_id"`
	CreatedByName string         `json:"created_by_name"`
	UpdatedByID   string         `json:"updated_by_id,omitempty"`
	UpdatedByName string         `json:"updated_by_name,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitzero" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at,omitzero" gorm:"autoUpdateTime"`
}

// TableName sets the table name for gorm
func (ProtocolRecord) TableName() string { return TableProtocols }

// TsuType names the external action a TSU order requests.
type TsuType string

const (
	TsuFine            TsuType = "fine"
	TsuLicense         TsuType = "license"
	TsuWantedPerson    TsuType = "wanted_person"
	TsuWantedCar       TsuType = "wanted_car"
	TsuWantedCarRemove TsuType = "wanted_car_remove"
)

// Valid reports whether t is a known order type.
func (t TsuType) Valid() bool {
	switch t {
	case TsuFine, TsuLicense, TsuWantedPerson, TsuWantedCar, TsuWantedCarRemove:
		return true
	}
	return false
}

// TargetsCar reports whether the order is addressed by plate rather than nickname.
func (t TsuType) TargetsCar() bool {
	return t == TsuWantedCar || t == TsuWantedCarRemove
}

// TsuStatus is the lifecycle state of a TSU order.
type TsuStatus string

const (
	TsuActive    TsuStatus = "active"
	TsuCompleted TsuStatus = "completed"
	TsuExpired   TsuStatus = "expired"
)

// TsuOrder is an outbound lead requesting an external action.
type TsuOrder struct {
	ID              int64      `json:"id,omitzero" gorm:"primaryKey;autoIncrement"`
	Type            TsuType    `json:"type"`
	TargetNick      string     `json:"target_nick,omitempty"`
	Amount          *int       `json:"amount"`
	Days            *int       `json:"days"`
	Stars           *int       `json:"stars"`
	CarPlate        string     `json:"car_plate,omitempty"`
	CarRegion       string     `json:"car_region,omitempty"`
	Reason          string     `json:"reason"`
	InitiatorNick   string     `json:"initiator_nick"`
	ExpiresAt       time.Time  `json:"expires_at,omitzero"`
	Status          TsuStatus  `json:"status"`
	CreatedByID     string     `json:"created_by_id"`
	CreatedByName   string     `json:"created_by_name"`
	CompletedAt     *time.Time `json:"completed_at"`
	CompletedByID   *string    `json:"completed_by_id"`
	CompletedByName *string    `json:"completed_by_name"`
	CreatedAt       time.Time  `json:"created_at,omitzero" gorm:"autoCreateTime"`
}

// TableName sets the table name for gorm
func (TsuOrder) TableName() string { return TableTsuOrders }

// Target returns the nickname or plate the order is about.
func (o TsuOrder) Target() string {
	if o.TargetNick != "" {
		return o.TargetNick
	}
	return o.CarPlate
}

// ActionLog is one row of the shared action log.
type ActionLog struct {
	ID            int64          `json:"id,omitzero" gorm:"primaryKey;autoIncrement"`
	UserID        *string        `json:"user_id" gorm:"index"`
	UserName      string         `json:"user_name"`
	UserCategory  string         `json:"user_category,omitempty"`
	ActionType    string         `json:"action_type" gorm:"index"`
	ActionDetails map[string]any `json:"action_details" gorm:"serializer:json;type:jsonb"`
	EntityType    string         `json:"entity_type,omitempty"`
	EntityID      string         `json:"entity_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitzero" gorm:"autoCreateTime;index"`
}

// TableName sets the table name for gorm
func (ActionLog) TableName() string { return TableActionLogs }
