package reconcile

import (
	"sort"

	"github.com/shenikar/incident_reporting_system/internal/models"
)

// severityRank возвращает ранг серьезности для сортировки.
// Неизвестные значения уходят в конец списка.
func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityHigh:
		return 0
	case models.SeverityMedium:
		return 1
	case models.SeverityLow:
		return 2
	}
	return 3
}

// statusRank возвращает ранг статуса для сортировки
func statusRank(s models.Status) int {
	switch s {
	case models.StatusReported:
		return 0
	case models.StatusInProgress:
		return 1
	case models.StatusResolved:
		return 2
	}
	return 3
}

// Compare задает общий порядок инцидентов: по серьезности (high раньше),
// затем по статусу (reported раньше), затем по created_at (новые раньше).
// Возвращает отрицательное число, если a раньше b, положительное — если позже.
// Полные совпадения всех трех ключей не упорядочены: такие записи могут
// оказаться в любом взаимном порядке, полагаться на стабильность нельзя.
func Compare(a, b models.Incident) int {
	if d := severityRank(a.Severity) - severityRank(b.Severity); d != 0 {
		return d
	}
	if d := statusRank(a.Status) - statusRank(b.Status); d != 0 {
		return d
	}
	switch {
	case a.CreatedAt.After(b.CreatedAt):
		return -1
	case a.CreatedAt.Before(b.CreatedAt):
		return 1
	}
	return 0
}

// Sort сортирует список на месте согласно Compare
func Sort(incidents []models.Incident) {
	sort.Slice(incidents, func(i, j int) bool {
		return Compare(incidents[i], incidents[j]) < 0
	})
}
