package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/feed"
	"github.com/shenikar/incident_reporting_system/internal/gateway"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/store"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=session.go -destination=mocks/mock_backend.go -package=mocks

// Backend определяет контракт бэкенда для сессии, реализуется gateway.Client
type Backend interface {
	FetchIncidents(ctx context.Context) ([]models.Incident, error)
	CreateIncident(ctx context.Context, draft gateway.CreateIncidentRequest) (*models.Incident, error)
	UpdateIncident(ctx context.Context, id uuid.UUID, update gateway.UpdateIncidentRequest) (*models.Incident, error)
}

// Stats — сводка по текущей выборке для слоя отображения
type Stats struct {
	Total      int `json:"total"`
	Verified   int `json:"verified"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
}

// Session владеет хранилищем, шлюзом и подпиской одной активной сессии
// просмотра. Ровно одно хранилище на сессию: и гражданская, и
// ответственная вьюхи работают через один и тот же движок согласования.
type Session struct {
	backend Backend
	store   *store.Store
	cfg     *config.Config
	logger  *logrus.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

func New(backend Backend, cfg *config.Config, logger *logrus.Logger) *Session {
	return &Session{
		backend: backend,
		store:   store.New(logger),
		cfg:     cfg,
		logger:  logger,
	}
}

// Start загружает снапшот и запускает подписку на поток событий.
// Ошибка загрузки снапшота фиксируется в хранилище и возвращается
// вызывающей стороне, но не мешает подписке: так ведет себя и исходный
// клиент, где лента живет независимо от результата первичной загрузки.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{
		"component": "session",
		"method":    "Start",
	})
	log.Info("Starting incident session")

	s.store.BeginLoad()
	snapshot, err := s.backend.FetchIncidents(runCtx)
	if err != nil {
		log.WithError(err).Error("Initial snapshot fetch failed")
		s.store.FinishLoad(err)
	} else {
		s.store.ReplaceAll(snapshot)
		s.store.FinishLoad(nil)
	}

	subscriber := feed.NewSubscriber(s.cfg.FeedURL, s.store, s.logger, s.cfg.ReconnectBaseDelay, s.cfg.ReconnectMaxDelay)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		subscriber.Run(runCtx)
	}()

	if err != nil {
		return fmt.Errorf("session: snapshot fetch failed: %w", err)
	}
	return nil
}

// Stop закрывает подписку и дожидается остановки фоновых горутин.
// Ответ на мутацию, пришедший после остановки, безопасно теряется.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.WithField("component", "session").Info("Incident session stopped")
}

// Create отправляет новое сообщение об инциденте и вливает подтвержденную
// запись в хранилище. Локальных оптимистичных вставок нет: отклоненный
// бэкендом инцидент никогда не появится в выборке.
func (s *Session) Create(ctx context.Context, draft gateway.CreateIncidentRequest) (*models.Incident, error) {
	created, err := s.backend.CreateIncident(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("session: could not create incident: %w", err)
	}
	s.store.Ingest(*created)
	return created, nil
}

// Update отправляет частичное обновление и вливает подтвержденную запись
// тем же путем, что и события потока
func (s *Session) Update(ctx context.Context, id uuid.UUID, update gateway.UpdateIncidentRequest) (*models.Incident, error) {
	updated, err := s.backend.UpdateIncident(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("session: could not update incident: %w", err)
	}
	s.store.Ingest(*updated)
	return updated, nil
}

// Incidents возвращает упорядоченную выборку для отрисовки
func (s *Session) Incidents() []models.Incident {
	return s.store.GetAll()
}

func (s *Session) Loading() bool {
	return s.store.Loading()
}

func (s *Session) LastError() error {
	return s.store.LastError()
}

// ComputeStats считает сводку по текущей выборке
func (s *Session) ComputeStats() Stats {
	stats := Stats{}
	for _, incident := range s.store.GetAll() {
		stats.Total++
		if incident.IsVerified {
			stats.Verified++
		}
		switch incident.Status {
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusResolved:
			stats.Resolved++
		}
	}
	return stats
}
