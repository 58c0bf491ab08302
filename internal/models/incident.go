package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity — уровень серьезности инцидента
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Status — статус жизненного цикла инцидента.
// Движок не запрещает обратные переходы (resolved -> reported),
// применяется то, что подтвердил бэкенд.
type Status string

const (
	StatusReported   Status = "reported"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// Известные категории инцидентов. Набор открыт для расширения на стороне бэкенда.
const (
	TypeAccident       = "accident"
	TypeFire           = "fire"
	TypeMedical        = "medical"
	TypeInfrastructure = "infrastructure"
	TypePublicSafety   = "public_safety"
)

// Incident — авторитетная запись об инциденте, выдается бэкендом.
// Любая пришедшая запись полностью заменяет локальную с тем же ID.
type Incident struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	MediaURL    *string   `json:"media_url,omitempty"`
	Severity    Severity  `json:"severity"`
	Status      Status    `json:"status"`
	IsVerified  bool      `json:"is_verified"`
	// PossibleDuplicateOf заполняется внешним процессом дедупликации.
	// Ссылка справочная, указанный ID может отсутствовать в локальной выборке.
	PossibleDuplicateOf *uuid.UUID     `json:"possible_duplicate_of,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	Notes               []IncidentNote `json:"notes"`
}

// IncidentNote — заметка ответственного. Список заметок заменяется целиком
// содержимым последней авторитетной записи, по отдельности заметки не сливаются.
type IncidentNote struct {
	ID        uuid.UUID `json:"id"`
	Note      string    `json:"note"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}
