// Package backendtest поднимает in-memory двойник бэкенда платформы
// инцидентов: REST-эндпоинты, логин и поток /ws/incidents. Используется
// тестами шлюза, подписчика и сессии вместо живого сервера.
package backendtest

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shenikar/incident_reporting_system/internal/gateway"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

// DefaultNoteAuthor подставляется, когда PATCH несет заметку без автора
const DefaultNoteAuthor = "anonymous"

// Server — фейковый бэкенд. Инциденты хранятся в памяти в порядке создания,
// каждое создание и обновление транслируется всем websocket-подписчикам.
type Server struct {
	httpSrv  *httptest.Server
	upgrader websocket.Upgrader
	validate *validator.Validate

	username string
	password string
	role     string

	mu        sync.Mutex
	incidents map[uuid.UUID]models.Incident
	order     []uuid.UUID
	tokens    map[string]string
	conns     map[*websocket.Conn]struct{}
}

// NewServer запускает двойник. username/password — учетка, которую принимает
// /auth/login; выданные токены авторизуют PATCH-запросы.
func NewServer(username, password string) *Server {
	s := &Server{
		validate:  validator.New(),
		username:  username,
		password:  password,
		role:      "responder",
		incidents: make(map[uuid.UUID]models.Incident),
		tokens:    make(map[string]string),
		conns:     make(map[*websocket.Conn]struct{}),
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/incidents", s.listIncidents)
	router.POST("/incidents", s.createIncident)
	router.PATCH("/incidents/:id", s.updateIncident)
	router.POST("/auth/login", s.login)
	router.POST("/media/upload", s.uploadMedia)
	router.GET("/ws/incidents", s.serveFeed)

	s.httpSrv = httptest.NewServer(router)
	return s
}

// URL возвращает базовый http-адрес двойника
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// FeedURL возвращает ws-адрес потока событий
func (s *Server) FeedURL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + "/ws/incidents"
}

// Close останавливает сервер и рвет все подписки
func (s *Server) Close() {
	s.DropConnections()
	s.httpSrv.Close()
}

// Seed кладет инциденты в хранилище без трансляции событий
func (s *Server) Seed(incidents ...models.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, incident := range incidents {
		if _, ok := s.incidents[incident.ID]; !ok {
			s.order = append(s.order, incident.ID)
		}
		s.incidents[incident.ID] = incident
	}
}

// Incident возвращает текущую запись по ID
func (s *Server) Incident(id uuid.UUID) (models.Incident, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.incidents[id]
	return incident, ok
}

// Broadcast шлет произвольный конверт всем подписчикам потока
func (s *Server) Broadcast(event string, data any) {
	s.broadcastJSON(map[string]any{"event": event, "data": data})
}

// BroadcastRaw шлет сырой текстовый кадр, в том числе невалидный JSON
func (s *Server) BroadcastRaw(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

// DropConnections рвет все активные websocket-соединения, имитируя сбой сети
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
}

// WaitForSubscriber ждет хотя бы одной активной подписки на поток
func (s *Server) WaitForSubscriber(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.conns)
		s.mu.Unlock()
		if n > 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (s *Server) listIncidents(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Incident, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.incidents[id])
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) createIncident(c *gin.Context) {
	var input gateway.CreateIncidentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	incident := models.Incident{
		ID:          uuid.New(),
		Type:        input.Type,
		Description: input.Description,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		MediaURL:    input.MediaURL,
		Severity:    input.Severity,
		Status:      models.StatusReported,
		IsVerified:  false,
		CreatedAt:   now,
		UpdatedAt:   now,
		Notes:       []models.IncidentNote{},
	}

	s.mu.Lock()
	s.incidents[incident.ID] = incident
	s.order = append(s.order, incident.ID)
	s.mu.Unlock()

	s.Broadcast("incident_created", incident)
	c.JSON(http.StatusOK, incident)
}

func (s *Server) updateIncident(c *gin.Context) {
	if !s.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}

	var input gateway.UpdateIncidentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	incident, ok := s.incidents[id]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	if input.Status != nil {
		incident.Status = *input.Status
	}
	if input.Severity != nil {
		incident.Severity = *input.Severity
	}
	if input.IsVerified != nil {
		incident.IsVerified = *input.IsVerified
	}
	if input.Note != nil {
		author := DefaultNoteAuthor
		if input.Author != nil {
			author = *input.Author
		}
		incident.Notes = append(incident.Notes, models.IncidentNote{
			ID:        uuid.New(),
			Note:      *input.Note,
			Author:    author,
			CreatedAt: time.Now().UTC(),
		})
	}
	incident.UpdatedAt = time.Now().UTC()
	s.incidents[id] = incident
	s.mu.Unlock()

	s.Broadcast("incident_updated", incident)
	c.JSON(http.StatusOK, incident)
}

func (s *Server) login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	if username != s.username || password != s.password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = s.role
	s.mu.Unlock()

	c.JSON(http.StatusOK, gateway.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        s.role,
	})
}

func (s *Server) uploadMedia(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	ext := filepath.Ext(file.Filename)
	c.JSON(http.StatusOK, gin.H{"url": s.httpSrv.URL + "/media/" + uuid.NewString() + ext})
}

func (s *Server) serveFeed(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	// входящие сообщения клиента не интерпретируются
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) authorized(c *gin.Context) bool {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(header, "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

func (s *Server) broadcastJSON(message any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteJSON(message); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}
