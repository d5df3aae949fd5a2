package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	s, ok := value.([]byte)
	if !ok {
		return nil
	}
	*j = append((*j)[0:0], s...)
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// User model
type User struct {
	BaseModel
	Username string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:255;uniqueIndex"`
	Phone    string `json:"phone" gorm:"size:20"`
	Role     string `json:"role" gorm:"size:50;not null;default:'student';type:enum('owner','admin','instructor','student')"` // owner, admin, instructor, student
	Status   string `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive','suspended')"`       // active, inactive, suspended
	Avatar   string `json:"avatar" gorm:"size:500"`

	// Relationships
	Instructor *Instructor `json:"instructor,omitempty" gorm:"foreignKey:UserID"`
}

// Instructor model. The Schedules column is the authoritative schedule
// document for the instructor; subject and section copies are mirrors of it.
type Instructor struct {
	BaseModel
	UserID      uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	FirstName   string `json:"first_name" gorm:"size:100"`
	LastName    string `json:"last_name" gorm:"size:100"`
	Department  string `json:"department" gorm:"size:100"`
	Designation string `json:"designation" gorm:"size:100"`
	Active      bool   `json:"active" gorm:"default:true"`
	Schedules   JSON   `json:"schedules" gorm:"type:json"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Subject model. Schedules holds denormalized copies of every schedule
// taught under this subject, tagged with the originating schedule id and
// instructor id. The copies are a read optimization, not a second source
// of truth.
type Subject struct {
	BaseModel
	Code          string `json:"code" gorm:"size:100;not null;uniqueIndex"`
	Name          string `json:"name" gorm:"size:255;not null"`
	Department    string `json:"department" gorm:"size:100"`
	Description   string `json:"description" gorm:"type:text"`
	Units         int    `json:"units" gorm:"default:3"`
	Status        string `json:"status" gorm:"size:50;default:'active';type:enum('active','inactive')"` // active, inactive
	InstructorIDs JSON   `json:"instructor_ids" gorm:"type:json"`
	Schedules     JSON   `json:"schedules" gorm:"type:json"`
}

// Section model. Schedule is a single denormalized copy that must always
// equal one of the assigned instructor's schedules.
type Section struct {
	BaseModel
	Code         string `json:"code" gorm:"size:100;not null;uniqueIndex"`
	SubjectID    uint   `json:"subject_id" gorm:"not null"`
	InstructorID uint   `json:"instructor_id"`
	Capacity     int    `json:"capacity" gorm:"default:40"`
	StudentIDs   JSON   `json:"student_ids" gorm:"type:json"`
	Schedule     JSON   `json:"schedule" gorm:"type:json"`

	// Relationships
	Subject    Subject    `json:"subject,omitempty" gorm:"foreignKey:SubjectID"`
	Instructor Instructor `json:"instructor,omitempty" gorm:"foreignKey:InstructorID"`
}

// PropagationTask is the durable marker for a mirror write that failed after
// the authoritative instructor write committed. The reconciler retries
// pending tasks until they settle or exhaust their attempts.
type PropagationTask struct {
	BaseModel
	ScheduleID   string `json:"schedule_id" gorm:"size:64;not null;index"`
	InstructorID uint   `json:"instructor_id" gorm:"not null"`
	SubjectID    uint   `json:"subject_id"`
	SectionID    uint   `json:"section_id"`
	Action       string `json:"action" gorm:"size:50;not null;type:enum('upsert_subject','set_section','remove_subject_copy','clear_section','replace_roster')"`
	Payload      JSON   `json:"payload" gorm:"type:json"`
	Status       string `json:"status" gorm:"size:50;not null;default:'pending';type:enum('pending','completed','failed')"` // pending, completed, failed
	Attempts     int    `json:"attempts" gorm:"default:0"`
	LastError    string `json:"last_error" gorm:"type:text"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID  uint       `json:"user_id" gorm:"not null"`
	Title   string     `json:"title" gorm:"size:255;not null"`
	Message string     `json:"message" gorm:"type:text;not null"`
	Type    string     `json:"type" gorm:"size:50;not null;type:enum('info','warning','error','success')"` // info, warning, error, success
	Read    bool       `json:"read" gorm:"default:false"`
	ReadAt  *time.Time `json:"read_at"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
