package messages

import "time"

// PackageUpdated публикуется воркером после успешного sync; trackit-api по
// нему обновляет redis-кэш summary. Уведомление, не источник данных:
// состояние всегда перечитывается из БД.
type PackageUpdated struct {
	PackageID uint64    `json:"package_id"`
	CheckedAt time.Time `json:"checked_at"`

	Status    string `json:"status,omitempty"`
	NewEvents int    `json:"new_events"`

	Error *string `json:"error,omitempty"`
}
