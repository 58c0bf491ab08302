package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/backendtest"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/gateway"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/session/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// newTestSession — вспомогательная функция для создания сессии с мок-бэкендом.
// Адрес потока указывает в никуда: подписчик тихо переподключается в фоне,
// на unit-тесты это не влияет.
func newTestSession(t *testing.T) (*Session, *mocks.MockBackend) {
	ctrl := gomock.NewController(t)
	backendMock := mocks.NewMockBackend(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		FeedURL:            "ws://127.0.0.1:1/ws/incidents",
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
	}

	return New(backendMock, cfg, logger), backendMock
}

func sessionIncident(severity models.Severity, status models.Status, createdAt time.Time) models.Incident {
	return models.Incident{
		ID:        uuid.New(),
		Type:      models.TypePublicSafety,
		Severity:  severity,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestStart_SnapshotFillsStore(t *testing.T) {
	// Подготовка
	sess, backendMock := newTestSession(t)
	now := time.Now()
	snapshot := []models.Incident{
		sessionIncident(models.SeverityLow, models.StatusReported, now),
		sessionIncident(models.SeverityHigh, models.StatusReported, now),
	}

	// Ожидания
	backendMock.EXPECT().FetchIncidents(gomock.Any()).Return(snapshot, nil).Times(1)

	// Действие
	err := sess.Start(context.Background())
	defer sess.Stop()

	// Проверки: снапшот применен и отсортирован
	require.NoError(t, err)
	assert.False(t, sess.Loading())
	assert.NoError(t, sess.LastError())

	incidents := sess.Incidents()
	require.Len(t, incidents, 2)
	assert.Equal(t, models.SeverityHigh, incidents[0].Severity)
}

func TestStart_SnapshotFailureLeavesStoreEmpty(t *testing.T) {
	// Подготовка
	sess, backendMock := newTestSession(t)
	fetchErr := errors.New("connection refused")

	// Ожидания: повторных попыток загрузки нет
	backendMock.EXPECT().FetchIncidents(gomock.Any()).Return(nil, fetchErr).Times(1)

	// Действие
	err := sess.Start(context.Background())
	defer sess.Stop()

	// Проверки: ошибка возвращена и зафиксирована, хранилище пустое
	require.Error(t, err)
	assert.ErrorIs(t, sess.LastError(), fetchErr)
	assert.False(t, sess.Loading())
	assert.Empty(t, sess.Incidents())
}

func TestStart_SecondStartRejected(t *testing.T) {
	sess, backendMock := newTestSession(t)
	backendMock.EXPECT().FetchIncidents(gomock.Any()).Return(nil, nil).Times(1)

	require.NoError(t, sess.Start(context.Background()))
	defer sess.Stop()

	err := sess.Start(context.Background())
	assert.ErrorContains(t, err, "already started")
}

func TestCreate_ConfirmedIncidentIngested(t *testing.T) {
	// Подготовка
	sess, backendMock := newTestSession(t)
	now := time.Now()
	confirmed := sessionIncident(models.SeverityHigh, models.StatusReported, now)
	draft := gateway.CreateIncidentRequest{
		Type:        models.TypePublicSafety,
		Description: "Обрыв линии электропередачи",
		Severity:    models.SeverityHigh,
	}

	// Ожидания
	backendMock.EXPECT().CreateIncident(gomock.Any(), draft).Return(&confirmed, nil).Times(1)

	// Действие
	created, err := sess.Create(context.Background(), draft)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, confirmed.ID, created.ID)
	require.Len(t, sess.Incidents(), 1)
	assert.Equal(t, confirmed.ID, sess.Incidents()[0].ID)
}

func TestCreate_FailureLeavesStoreUntouched(t *testing.T) {
	// Подготовка
	sess, backendMock := newTestSession(t)
	backendErr := errors.New("backend responded with status 500")

	// Ожидания
	backendMock.EXPECT().CreateIncident(gomock.Any(), gomock.Any()).Return(nil, backendErr).Times(1)

	// Действие
	created, err := sess.Create(context.Background(), gateway.CreateIncidentRequest{})

	// Проверки: никаких оптимистичных вставок
	require.Error(t, err)
	assert.Nil(t, created)
	assert.Empty(t, sess.Incidents())
}

func TestUpdate_ConfirmedIncidentReplacesExisting(t *testing.T) {
	// Подготовка
	sess, backendMock := newTestSession(t)
	now := time.Now()
	existing := sessionIncident(models.SeverityMedium, models.StatusReported, now)
	backendMock.EXPECT().FetchIncidents(gomock.Any()).Return([]models.Incident{existing}, nil).Times(1)
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Stop()

	updated := existing
	updated.Status = models.StatusResolved
	updated.UpdatedAt = now.Add(time.Minute)
	status := models.StatusResolved
	request := gateway.UpdateIncidentRequest{Status: &status}

	// Ожидания
	backendMock.EXPECT().UpdateIncident(gomock.Any(), existing.ID, request).Return(&updated, nil).Times(1)

	// Действие
	result, err := sess.Update(context.Background(), existing.ID, request)

	// Проверки: одна запись, статус обновлен
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, result.Status)
	incidents := sess.Incidents()
	require.Len(t, incidents, 1)
	assert.Equal(t, models.StatusResolved, incidents[0].Status)
}

func TestUpdate_AuthRequiredSurfaced(t *testing.T) {
	// Подготовка
	sess, backendMock := newTestSession(t)
	id := uuid.New()

	// Ожидания
	backendMock.EXPECT().
		UpdateIncident(gomock.Any(), id, gomock.Any()).
		Return(nil, gateway.ErrAuthRequired).
		Times(1)

	// Действие
	verified := true
	result, err := sess.Update(context.Background(), id, gateway.UpdateIncidentRequest{IsVerified: &verified})

	// Проверки
	require.ErrorIs(t, err, gateway.ErrAuthRequired)
	assert.Nil(t, result)
	assert.Empty(t, sess.Incidents())
}

func TestComputeStats(t *testing.T) {
	// Подготовка
	sess, backendMock := newTestSession(t)
	now := time.Now()
	verified := sessionIncident(models.SeverityHigh, models.StatusInProgress, now)
	verified.IsVerified = true
	snapshot := []models.Incident{
		verified,
		sessionIncident(models.SeverityLow, models.StatusReported, now),
		sessionIncident(models.SeverityMedium, models.StatusResolved, now),
	}
	backendMock.EXPECT().FetchIncidents(gomock.Any()).Return(snapshot, nil).Times(1)
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Stop()

	// Действие
	stats := sess.ComputeStats()

	// Проверки
	assert.Equal(t, Stats{Total: 3, Verified: 1, InProgress: 1, Resolved: 1}, stats)
}

// TestSession_EndToEnd гоняет сессию против фейкового бэкенда: снапшот,
// живые события, собственные мутации и эхо собственных записей в потоке.
func TestSession_EndToEnd(t *testing.T) {
	// Подготовка
	backend := backendtest.NewServer("responder", "responder123")
	defer backend.Close()

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	client := gateway.NewClient(backend.URL(), 5*time.Second, logger)
	cfg := &config.Config{
		APIBaseURL:         backend.URL(),
		FeedURL:            backend.FeedURL(),
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  100 * time.Millisecond,
	}
	sess := New(client, cfg, logger)

	require.NoError(t, sess.Start(context.Background()))
	defer sess.Stop()
	require.True(t, backend.WaitForSubscriber(2*time.Second))

	// Действие 1: собственное создание — подтвержденная запись плюс эхо в потоке
	created, err := sess.Create(context.Background(), gateway.CreateIncidentRequest{
		Type:        models.TypeFire,
		Description: "Возгорание на складе",
		Latitude:    55.75,
		Longitude:   37.61,
		Severity:    models.SeverityHigh,
	})
	require.NoError(t, err)

	// Проверки: эхо не плодит дубликатов
	assert.Never(t, func() bool {
		count := 0
		for _, incident := range sess.Incidents() {
			if incident.ID == created.ID {
				count++
			}
		}
		return count != 1
	}, 300*time.Millisecond, 20*time.Millisecond, "эхо собственной записи создало дубликат")

	// Действие 2: чужое создание приходит только через поток
	other := gateway.NewClient(backend.URL(), 5*time.Second, logger)
	foreign, err := other.CreateIncident(context.Background(), gateway.CreateIncidentRequest{
		Type:        models.TypeMedical,
		Description: "Человеку стало плохо на улице",
		Severity:    models.SeverityMedium,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, incident := range sess.Incidents() {
			if incident.ID == foreign.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond, "событие потока не дошло до хранилища")

	// Действие 3: аутентифицированное обновление
	token, err := client.Login(context.Background(), "responder", "responder123")
	require.NoError(t, err)
	client.SetToken(token.AccessToken)

	status := models.StatusResolved
	updated, err := sess.Update(context.Background(), created.ID, gateway.UpdateIncidentRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, updated.Status)

	// Проверки: после остановки события потока больше не применяются
	sess.Stop()
	sizeAfterStop := len(sess.Incidents())
	_, err = other.CreateIncident(context.Background(), gateway.CreateIncidentRequest{
		Type:        models.TypeAccident,
		Description: "ДТП на перекрестке",
		Severity:    models.SeverityLow,
	})
	require.NoError(t, err)
	assert.Never(t, func() bool {
		return len(sess.Incidents()) != sizeAfterStop
	}, 300*time.Millisecond, 20*time.Millisecond, "после Stop остались висящие подписки")
}
