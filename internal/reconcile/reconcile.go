package reconcile

import (
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

// MergeSnapshot строит рабочую выборку заново из полного снапшота бэкенда.
// Дубликаты по ID схлопываются, выигрывает последнее вхождение.
// Входной срез не модифицируется.
func MergeSnapshot(snapshot []models.Incident) []models.Incident {
	index := make(map[uuid.UUID]int, len(snapshot))
	result := make([]models.Incident, 0, len(snapshot))
	for _, incident := range snapshot {
		if pos, ok := index[incident.ID]; ok {
			result[pos] = incident
			continue
		}
		index[incident.ID] = len(result)
		result = append(result, incident)
	}
	Sort(result)
	return result
}

// Merge вливает одну авторитетную запись (событие потока или ответ на мутацию)
// в текущую выборку и возвращает новую. Запись с уже известным ID заменяется
// целиком, поля не сливаются. Защита от устаревших событий: если локальная
// запись имеет более поздний updated_at, входящая отбрасывается
// (политика last-updated-wins). При равных updated_at выигрывает входящая,
// поэтому повторное применение того же события идемпотентно.
// Входной срез не модифицируется.
func Merge(current []models.Incident, incoming models.Incident) []models.Incident {
	result := make([]models.Incident, 0, len(current)+1)
	replaced := false
	for _, incident := range current {
		if incident.ID == incoming.ID {
			replaced = true
			if incident.UpdatedAt.After(incoming.UpdatedAt) {
				// локальная запись свежее, событие пришло с опозданием
				result = append(result, incident)
			} else {
				result = append(result, incoming)
			}
			continue
		}
		result = append(result, incident)
	}
	if !replaced {
		result = append(result, incoming)
	}
	Sort(result)
	return result
}
