package models

const (
	StayShortTerm = "SHORT_TERM"
	StayLongTerm  = "LONG_TERM"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCancelled = "cancelled"
)

// BookingSource marks bookings created through the storefront checkout.
const BookingSource = "storefront"

const (
	// DefaultSessionTTL время жизни неактивной сессии оформления заказа
	DefaultSessionTTL = 24 * 60 * 60 // 24 часа в секундах

	// DefaultSnapshotTTL время жизни снимка корзины в Redis
	DefaultSnapshotTTL = 24 * 60 * 60

	// DefaultBackendTimeout таймаут запросов к бэкенду бронирования
	DefaultBackendTimeout = 10 // секунд

	// DefaultAvailabilityCacheTTL время жизни кэша доступности в Redis
	DefaultAvailabilityCacheTTL = 60 // секунд

	// DefaultRateLimitRPS лимит запросов к бэкенду
	DefaultRateLimitRPS   = 20
	DefaultRateLimitBurst = 5
)
