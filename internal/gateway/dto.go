package gateway

import (
	"github.com/shenikar/incident_reporting_system/internal/models"
)

// CreateIncidentRequest DTO для создания инцидента гражданином.
// Аутентификация не требуется, сообщать можно анонимно.
type CreateIncidentRequest struct {
	Type        string          `json:"type" validate:"required,oneof=accident fire medical infrastructure public_safety"`
	Description string          `json:"description" validate:"required"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	MediaURL    *string         `json:"media_url,omitempty"`
	Severity    models.Severity `json:"severity" validate:"required,oneof=low medium high"`
}

// UpdateIncidentRequest DTO для частичного обновления инцидента.
// Поля-указатели отличают "не менять" от нулевого значения: в PATCH уходит
// ровно то, что явно задано. Note добавляет новую заметку, Author без Note
// смысла не имеет; отсутствующий Author бэкенд заменяет служебной меткой.
type UpdateIncidentRequest struct {
	Status     *models.Status   `json:"status,omitempty" validate:"omitempty,oneof=reported in_progress resolved"`
	Severity   *models.Severity `json:"severity,omitempty" validate:"omitempty,oneof=low medium high"`
	IsVerified *bool            `json:"is_verified,omitempty"`
	Note       *string          `json:"note,omitempty"`
	Author     *string          `json:"author,omitempty"`
}

// TokenResponse DTO ответа на логин
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
}

// uploadResponse — ответ бэкенда на загрузку медиафайла
type uploadResponse struct {
	URL string `json:"url"`
}
