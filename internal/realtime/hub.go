// Пакет realtime — реестр живых realtime-подключений.
// Hub хранит множество открытых сессий, сгруппированных по principal id,
// и рассылает события всем сессиям владельца (fan-out). Состояние
// существует только в памяти процесса: при рестарте все подключения
// обязаны пройти handshake заново.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики реестра подключений
var (
	// wsConnections — текущее количество живых подключений.
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ff_ws_connections",
		Help: "Текущее количество живых realtime-подключений",
	})

	// notificationsTotal — количество вызовов notify по результату доставки.
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ff_notifications_total",
			Help: "Количество отправленных уведомлений по результату",
		},
		[]string{"delivered"},
	)

	// notificationsDropped — события, отброшенные из-за переполнения буфера сессии.
	notificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ff_notifications_dropped_total",
		Help: "Количество событий, отброшенных медленными сессиями",
	})
)

// sessionBuffer — ёмкость буфера исходящих событий одной сессии.
// Переполненный буфер означает мёртвую или безнадёжно медленную сессию:
// события для неё отбрасываются, отправитель не блокируется.
const sessionBuffer = 16

// Event — событие, доставляемое живым сессиям.
type Event struct {
	// Name — имя события (например, "file_received")
	Name string `json:"event"`
	// Payload — полезная нагрузка события
	Payload any `json:"payload,omitempty"`
}

// Session — одно живое подключение, привязанное к principal на всё
// время жизни. Получает события через буферизованный канал; транспортный
// код читает Events и пишет в сокет.
type Session struct {
	principalID string
	events      chan Event
	closeOnce   sync.Once
}

// PrincipalID возвращает владельца сессии.
func (s *Session) PrincipalID() string {
	return s.principalID
}

// Events возвращает канал входящих событий сессии.
// Канал закрывается при Unregister.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Hub — потокобезопасный реестр живых сессий по principal id.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	logger   *slog.Logger
}

// NewHub создаёт пустой реестр. Реестр не персистентен:
// строится заново при каждом старте процесса.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*Session]struct{}),
		logger:   logger.With(slog.String("component", "hub")),
	}
}

// Register создаёт сессию и добавляет её в множество владельца.
// Несколько сессий одного владельца (телефон + ПК + вкладка) сосуществуют.
func (h *Hub) Register(principalID string) *Session {
	sess := &Session{
		principalID: principalID,
		events:      make(chan Event, sessionBuffer),
	}

	h.mu.Lock()
	set, ok := h.sessions[principalID]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[principalID] = set
	}
	set[sess] = struct{}{}
	count := len(set)
	h.mu.Unlock()

	wsConnections.Inc()
	h.logger.Debug("Сессия зарегистрирована",
		slog.String("principal", principalID),
		slog.Int("sessions", count),
	)

	return sess
}

// Unregister удаляет сессию из реестра и закрывает её канал событий.
// Идемпотентна: повторный вызов безопасен.
func (h *Hub) Unregister(sess *Session) {
	if sess == nil {
		return
	}

	h.mu.Lock()
	removed := false
	if set, ok := h.sessions[sess.principalID]; ok {
		if _, member := set[sess]; member {
			delete(set, sess)
			removed = true
			if len(set) == 0 {
				delete(h.sessions, sess.principalID)
			}
		}
	}
	if removed {
		// Закрываем канал под write-блокировкой: Notify шлёт события
		// под read-блокировкой, поэтому отправка в закрытый канал исключена.
		sess.closeOnce.Do(func() {
			close(sess.events)
		})
	}
	h.mu.Unlock()

	if !removed {
		return
	}

	wsConnections.Dec()

	h.logger.Debug("Сессия удалена",
		slog.String("principal", sess.principalID),
	)
}

// Notify рассылает событие всем живым сессиям владельца.
// Возвращает true, если на момент вызова существовала хотя бы одна
// сессия ("было кому доставить"); это best-effort сигнал, а не
// подтверждение доставки удалённой стороной. Отсутствие сессий —
// не ошибка, возвращается false.
//
// Отправка неблокирующая: событие для сессии с переполненным буфером
// отбрасывается, медленное подключение не задерживает остальных.
func (h *Hub) Notify(principalID, event string, payload any) bool {
	// Отправка выполняется под read-блокировкой: Unregister закрывает
	// канал только под write-блокировкой, гонка с close исключена.
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.sessions[principalID]
	targets := make([]*Session, 0, len(set))
	for sess := range set {
		targets = append(targets, sess)
	}

	if len(targets) == 0 {
		notificationsTotal.WithLabelValues("false").Inc()
		h.logger.Debug("Нет живых сессий для доставки",
			slog.String("principal", principalID),
			slog.String("event", event),
		)
		return false
	}

	evt := Event{Name: event, Payload: payload}
	for _, sess := range targets {
		select {
		case sess.events <- evt:
		default:
			notificationsDropped.Inc()
			h.logger.Debug("Буфер сессии переполнен, событие отброшено",
				slog.String("principal", principalID),
				slog.String("event", event),
			)
		}
	}

	notificationsTotal.WithLabelValues("true").Inc()
	h.logger.Debug("Событие разослано",
		slog.String("principal", principalID),
		slog.String("event", event),
		slog.Int("sessions", len(targets)),
	)

	return true
}

// SessionCount возвращает количество живых сессий владельца.
func (h *Hub) SessionCount(principalID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[principalID])
}
