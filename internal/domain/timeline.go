package domain

import "time"

// TimelineEvent — событие истории заказа (смена статуса, изменение позиций, удаление).
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
