package store

import (
	"sync"

	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/reconcile"
	"github.com/sirupsen/logrus"
)

// Store — локальное хранилище согласованной выборки инцидентов одной сессии.
// Все изменения проходят через reconcile, поэтому выборка всегда уникальна
// по ID и отсортирована. Мьютекс заменяет однопоточную run-to-completion
// модель исходного клиента: горутина подписчика и вызывающие стороны
// обращаются к хранилищу конкурентно.
type Store struct {
	logger *logrus.Logger

	mu        sync.RWMutex
	incidents []models.Incident
	loading   bool
	lastErr   error
}

func New(logger *logrus.Logger) *Store {
	return &Store{logger: logger}
}

// GetAll возвращает копию текущей выборки в порядке политики сортировки
func (s *Store) GetAll() []models.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Incident, len(s.incidents))
	copy(result, s.incidents)
	return result
}

// Ingest вливает одну авторитетную запись. Единая точка входа для событий
// потока и для подтвержденных ответов на собственные мутации — логика
// слияния одна, расхождений между "чужим событием" и "своей записью" нет.
func (s *Store) Ingest(incident models.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.incidents)
	s.incidents = reconcile.Merge(s.incidents, incident)

	s.logger.WithFields(logrus.Fields{
		"component":   "store",
		"incident_id": incident.ID,
		"status":      incident.Status,
		"total":       len(s.incidents),
		"inserted":    len(s.incidents) > before,
	}).Debug("Incident ingested")
}

// ReplaceAll заменяет всю выборку снапшотом. Вызывается один раз на старте сессии.
func (s *Store) ReplaceAll(snapshot []models.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.incidents = reconcile.MergeSnapshot(snapshot)

	s.logger.WithFields(logrus.Fields{
		"component": "store",
		"total":     len(s.incidents),
	}).Info("Incident snapshot applied")
}

// BeginLoad помечает начало загрузки снапшота
func (s *Store) BeginLoad() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = true
	s.lastErr = nil
}

// FinishLoad фиксирует завершение загрузки. При ошибке хранилище остается
// пустым, автоматических повторов нет — решение за вызывающей стороной.
func (s *Store) FinishLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.lastErr = err
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Len возвращает размер текущей выборки
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}
