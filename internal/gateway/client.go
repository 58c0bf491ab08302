package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/sirupsen/logrus"
)

// Client — шлюз мутаций и загрузки снапшота. Работает по схеме
// fire-and-confirm: локальное состояние меняет только вызывающая сторона
// и только на основании подтвержденной бэкендом записи, поэтому откаты
// оптимистичных вставок не нужны.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	validate   *validator.Validate

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:   logger,
		validate: validator.New(),
	}
}

// SetToken устанавливает bearer-токен для аутентифицированных мутаций
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// FetchIncidents загружает полный снапшот инцидентов
func (c *Client) FetchIncidents(ctx context.Context) ([]models.Incident, error) {
	log := c.logger.WithFields(logrus.Fields{
		"component": "gateway",
		"method":    "FetchIncidents",
	})
	log.Info("Fetching incident snapshot")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/incidents", nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: could not build snapshot request: %w", err)
	}

	var incidents []models.Incident
	if err := c.do(req, &incidents); err != nil {
		log.WithError(err).Error("Failed to fetch incident snapshot")
		return nil, fmt.Errorf("gateway: could not fetch incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incident snapshot fetched")
	return incidents, nil
}

// CreateIncident отправляет новое сообщение об инциденте и возвращает
// авторитетную запись с присвоенным бэкендом ID и временными метками.
// Черновик проверяется до отправки, при ошибке валидации запрос не уходит.
func (c *Client) CreateIncident(ctx context.Context, draft CreateIncidentRequest) (*models.Incident, error) {
	log := c.logger.WithFields(logrus.Fields{
		"component": "gateway",
		"method":    "CreateIncident",
		"type":      draft.Type,
	})

	if err := c.validate.Struct(draft); err != nil {
		log.WithError(err).Warn("Incident draft failed validation")
		return nil, fmt.Errorf("gateway: invalid incident draft: %w", err)
	}

	body, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("gateway: could not marshal incident draft: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/incidents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: could not build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	incident := &models.Incident{}
	if err := c.do(req, incident); err != nil {
		log.WithError(err).Error("Failed to create incident")
		return nil, fmt.Errorf("gateway: could not create incident: %w", err)
	}

	log.WithField("incident_id", incident.ID).Info("Incident created")
	return incident, nil
}

// UpdateIncident отправляет частичное обновление от имени аутентифицированной
// роли. Без токена запрос не уходит и возвращается ErrAuthRequired.
func (c *Client) UpdateIncident(ctx context.Context, id uuid.UUID, update UpdateIncidentRequest) (*models.Incident, error) {
	log := c.logger.WithFields(logrus.Fields{
		"component":   "gateway",
		"method":      "UpdateIncident",
		"incident_id": id,
	})

	if c.currentToken() == "" {
		log.Warn("Incident update attempted without credential")
		return nil, fmt.Errorf("gateway: could not update incident: %w", ErrAuthRequired)
	}

	if err := c.validate.Struct(update); err != nil {
		log.WithError(err).Warn("Incident update failed validation")
		return nil, fmt.Errorf("gateway: invalid incident update: %w", err)
	}

	body, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("gateway: could not marshal incident update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/incidents/"+id.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: could not build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	incident := &models.Incident{}
	if err := c.do(req, incident); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && (statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden) {
			log.WithField("status", statusErr.Code).Warn("Incident update rejected by backend")
			return nil, fmt.Errorf("gateway: could not update incident: %w", ErrAuthRequired)
		}
		log.WithError(err).Error("Failed to update incident")
		return nil, fmt.Errorf("gateway: could not update incident: %w", err)
	}

	log.Info("Incident updated")
	return incident, nil
}

// Login обменивает учетные данные на bearer-токен (OAuth2 password flow).
// Полученный токен нужно установить через SetToken.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	log := c.logger.WithFields(logrus.Fields{
		"component": "gateway",
		"method":    "Login",
		"username":  username,
	})

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("grant_type", "password")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("gateway: could not build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	token := &TokenResponse{}
	if err := c.do(req, token); err != nil {
		log.WithError(err).Warn("Login failed")
		return nil, fmt.Errorf("gateway: login failed: %w", err)
	}

	log.WithField("role", token.Role).Info("Authenticated against backend")
	return token, nil
}

// UploadMedia загружает медиафайл и возвращает URL для media_url черновика.
// Для движка это сквозная операция, содержимое файла не интерпретируется.
func (c *Client) UploadMedia(ctx context.Context, filename string, content io.Reader) (string, error) {
	log := c.logger.WithFields(logrus.Fields{
		"component": "gateway",
		"method":    "UploadMedia",
		"filename":  filename,
	})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("gateway: could not build multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("gateway: could not read media content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("gateway: could not finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/media/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("gateway: could not build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	var uploaded uploadResponse
	if err := c.do(req, &uploaded); err != nil {
		log.WithError(err).Error("Failed to upload media")
		return "", fmt.Errorf("gateway: could not upload media: %w", err)
	}

	log.Info("Media uploaded")
	return uploaded.URL, nil
}

func (c *Client) authorize(req *http.Request) {
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// do выполняет запрос и декодирует JSON-ответ. Не-2xx статус — *StatusError.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{Code: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
