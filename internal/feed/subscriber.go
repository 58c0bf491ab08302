package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/sirupsen/logrus"
)

// Имена событий потока. Неизвестные имена игнорируются, чтобы старый клиент
// переживал расширение протокола на стороне бэкенда.
const (
	eventIncidentCreated = "incident_created"
	eventIncidentUpdated = "incident_updated"
)

// envelope — конверт одного текстового кадра потока
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Ingester — точка приема декодированных событий, обычно *store.Store
type Ingester interface {
	Ingest(incident models.Incident)
}

// Subscriber держит одну логическую подписку на поток событий бэкенда.
// Обрыв соединения приводит к переподключению с экспоненциальной задержкой.
// События, пропущенные между обрывом и переподключением, не восстанавливаются:
// пробел закрывает только следующая загрузка полного снапшота. Это осознанное
// ограничение, унаследованное от протокола потока.
type Subscriber struct {
	url       string
	ingester  Ingester
	logger    *logrus.Logger
	baseDelay time.Duration
	maxDelay  time.Duration
}

func NewSubscriber(url string, ingester Ingester, logger *logrus.Logger, baseDelay, maxDelay time.Duration) *Subscriber {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Subscriber{
		url:       url,
		ingester:  ingester,
		logger:    logger,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

// Run блокирует до отмены контекста, поддерживая подписку живой.
// Каждое успешно декодированное событие синхронно передается в Ingester
// в порядке доставки транспортом.
func (s *Subscriber) Run(ctx context.Context) {
	log := s.logger.WithFields(logrus.Fields{
		"component": "feed",
		"url":       s.url,
	})

	delay := s.baseDelay
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Feed subscriber stopped")
				return
			}
			log.WithError(err).Warnf("Failed to connect to incident feed. Retrying in %v", delay)
			if !sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, s.maxDelay)
			continue
		}

		log.Info("Connected to incident feed")
		delay = s.baseDelay
		s.readLoop(ctx, conn, log)
		conn.Close()

		if ctx.Err() != nil {
			log.Info("Feed subscriber stopped")
			return
		}
		// после переподключения часть событий может быть потеряна,
		// актуализация — через повторную загрузку снапшота
		log.Warnf("Incident feed connection lost. Reconnecting in %v", delay)
		if !sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, s.maxDelay)
	}
}

// readLoop читает кадры до ошибки чтения или отмены контекста
func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn, log *logrus.Entry) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		// закрытие соединения — единственный способ прервать блокирующий ReadMessage
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Debug("Feed read interrupted")
			}
			return
		}
		s.handleFrame(payload, log)
	}
}

// handleFrame декодирует один кадр. Любой сбой декодирования логируется и
// проглатывается: подписка обязана пережить мусор в потоке.
func (s *Subscriber) handleFrame(payload []byte, log *logrus.Entry) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.WithError(err).Warn("Dropping malformed feed frame")
		return
	}

	switch env.Event {
	case eventIncidentCreated, eventIncidentUpdated:
		var incident models.Incident
		if err := json.Unmarshal(env.Data, &incident); err != nil {
			log.WithError(err).WithField("event", env.Event).Warn("Dropping feed frame with malformed incident payload")
			return
		}
		s.ingester.Ingest(incident)
	default:
		log.WithField("event", env.Event).Debug("Ignoring unrecognized feed event")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2 // Экспоненциальная задержка
	if next > max {
		return max
	}
	return next
}
