// Пакет auth — верификация bearer-токенов.
// Verifier реализует каскад из упорядоченных стратегий:
//
//	1. local_hs256 — локальная проверка подписи общим секретом (быстрый путь).
//	   Отказ этой стратегии для HS256-токена окончателен: неверная подпись
//	   под локальным секретом означает подделку, другие уровни не пробуются.
//	2. jwks_rs256 — локальная проверка RS256-подписи по JWKS authority
//	   (опционально). Отказ не окончателен — решение остаётся за authority.
//	3. authority — разрешение токена через API identity authority.
//	4. admin_fallback — деградированный режим: при недоступности authority
//	   токен с валидным по виду sub/exp принимается, если административный
//	   API подтверждает существование пользователя. Подпись НЕ проверяется.
//	   Включается флагом конфигурации и громко логируется.
//
// Наружу каскад отдаёт единообразный отказ (ErrRejected) — вызывающий код
// не узнаёт, какая стратегия отказала; детали уходят только в лог.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/UtviklerenSiteAS/FlashFiles/internal/authority"
)

// ErrRejected — единообразный отказ верификации.
// Причина отказа наружу не раскрывается.
var ErrRejected = errors.New("невалидный или просроченный токен")

// verificationsTotal — количество верификаций по стратегиям и результатам.
var verificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ff_auth_verifications_total",
		Help: "Количество верификаций токенов по стратегиям и результатам",
	},
	[]string{"tier", "result"},
)

// AuthorityAPI — подмножество клиента authority, используемое каскадом.
type AuthorityAPI interface {
	ResolveToken(ctx context.Context, token string) (*authority.User, error)
	GetUserByID(ctx context.Context, userID string) (*authority.User, error)
}

// outcome — трёхзначный результат одной стратегии.
type outcome int

const (
	// outcomeSkipped — стратегия неприменима или не дала решения, пробуем следующую
	outcomeSkipped outcome = iota
	// outcomeAccepted — токен принят, каскад завершён
	outcomeAccepted
	// outcomeRejected — окончательный отказ, следующие стратегии не пробуются
	outcomeRejected
)

// credential — разобранный (но не проверенный) токен.
type credential struct {
	// raw — исходная строка токена
	raw string
	// alg — заявленный алгоритм подписи из заголовка
	alg string
	// claims — незаверенные claims (используются только для условий каскада)
	claims jwt.RegisteredClaims
}

// attempt — состояние одной верификации, разделяемое стратегиями каскада.
type attempt struct {
	cred *credential
	// authorityErr — ошибка стратегии authority; её наличие
	// открывает доступ к admin_fallback
	authorityErr error
}

// strategy — одна стратегия каскада.
type strategy interface {
	// name — имя стратегии для логов и метрик
	name() string
	// verify возвращает principal при принятии токена
	verify(ctx context.Context, att *attempt) (string, outcome)
}

// Options — параметры создания Verifier.
type Options struct {
	// Secret — общий секрет HS256. Пустой — локальная проверка отключена.
	Secret string
	// Keyfunc — JWKS keyfunc для локальной проверки RS256 (nil — отключена).
	Keyfunc keyfunc.Keyfunc
	// Leeway — допустимое отклонение времени при проверке exp/nbf.
	Leeway time.Duration
	// DegradedFallback — разрешить admin_fallback при недоступности authority.
	DegradedFallback bool
}

// Verifier — каскадный верификатор bearer-токенов.
type Verifier struct {
	strategies []strategy
	logger     *slog.Logger
}

// NewVerifier создаёт верификатор с каскадом стратегий.
// Порядок стратегий фиксирован; неприменимые уровни пропускаются на лету.
func NewVerifier(opts Options, client AuthorityAPI, logger *slog.Logger) *Verifier {
	log := logger.With(slog.String("component", "verifier"))

	strategies := []strategy{
		&localHS256{secret: []byte(opts.Secret), leeway: opts.Leeway},
		&jwksRS256{kf: opts.Keyfunc, leeway: opts.Leeway, logger: log},
		&authorityTier{client: client},
		&adminFallback{client: client, enabled: opts.DegradedFallback, leeway: opts.Leeway, logger: log},
	}

	return &Verifier{
		strategies: strategies,
		logger:     log,
	}
}

// Verify проверяет bearer-токен и возвращает principal id.
// Любой отказ наружу — единообразный ErrRejected; какая стратегия
// отказала, видно только во внутреннем логе.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (string, error) {
	start := time.Now()

	rawToken = strings.TrimSpace(rawToken)

	// Структурная проверка до любой криптографии:
	// токен обязан состоять из трёх сегментов.
	if strings.Count(rawToken, ".") != 2 {
		v.logger.Debug("Токен отвергнут: некорректная структура",
			slog.Duration("elapsed", time.Since(start)),
		)
		verificationsTotal.WithLabelValues("parse", "rejected").Inc()
		return "", ErrRejected
	}

	cred, err := parseCredential(rawToken)
	if err != nil {
		v.logger.Debug("Токен отвергнут: ошибка разбора",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		verificationsTotal.WithLabelValues("parse", "rejected").Inc()
		return "", ErrRejected
	}

	att := &attempt{cred: cred}

	for _, s := range v.strategies {
		principal, out := s.verify(ctx, att)

		switch out {
		case outcomeAccepted:
			verificationsTotal.WithLabelValues(s.name(), "accepted").Inc()
			v.logger.Info("Токен принят",
				slog.String("tier", s.name()),
				slog.String("principal", principal),
				slog.Duration("elapsed", time.Since(start)),
			)
			return principal, nil

		case outcomeRejected:
			verificationsTotal.WithLabelValues(s.name(), "rejected").Inc()
			v.logger.Warn("Токен отвергнут",
				slog.String("tier", s.name()),
				slog.Duration("elapsed", time.Since(start)),
			)
			return "", ErrRejected

		case outcomeSkipped:
			continue
		}
	}

	// Ни одна стратегия не приняла токен
	verificationsTotal.WithLabelValues("cascade", "rejected").Inc()
	v.logger.Warn("Токен отвергнут: каскад исчерпан",
		slog.Bool("authority_unavailable", att.authorityErr != nil),
		slog.Duration("elapsed", time.Since(start)),
	)
	return "", ErrRejected
}

// parseCredential разбирает токен без проверки подписи.
// Claims используются только для условий каскада (sub, exp),
// ни одно решение о приёме на них не основано.
func parseCredential(raw string) (*credential, error) {
	claims := &jwt.RegisteredClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, err
	}

	alg, _ := token.Header["alg"].(string)

	return &credential{
		raw:    raw,
		alg:    alg,
		claims: *claims,
	}, nil
}

// --- Стратегия 1: локальная проверка HS256 ---

// localHS256 — локальная проверка подписи общим секретом.
// Применима только к HS256-токенам при настроенном секрете.
// Отказ окончателен: подделанная подпись под локальным секретом
// не может быть "исправлена" обращением к authority.
type localHS256 struct {
	secret []byte
	leeway time.Duration
}

func (s *localHS256) name() string { return "local_hs256" }

func (s *localHS256) verify(_ context.Context, att *attempt) (string, outcome) {
	if len(s.secret) == 0 || att.cred.alg != "HS256" {
		return "", outcomeSkipped
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(att.cred.raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !token.Valid {
		return "", outcomeRejected
	}

	if claims.Subject == "" {
		return "", outcomeRejected
	}

	return claims.Subject, outcomeAccepted
}

// --- Стратегия 2: локальная проверка RS256 через JWKS ---

// jwksRS256 — локальная проверка RS256-подписи по ключам JWKS authority.
// Опциональный быстрый путь для асимметричных токенов. Отказ не
// окончателен: решение остаётся за самим authority.
type jwksRS256 struct {
	kf     keyfunc.Keyfunc
	leeway time.Duration
	logger *slog.Logger
}

func (s *jwksRS256) name() string { return "jwks_rs256" }

func (s *jwksRS256) verify(ctx context.Context, att *attempt) (string, outcome) {
	if s.kf == nil || att.cred.alg != "RS256" {
		return "", outcomeSkipped
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(att.cred.raw, claims, s.kf.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !token.Valid {
		s.logger.Debug("JWKS-проверка не пройдена, передаём authority",
			slog.String("error", errString(err)),
		)
		return "", outcomeSkipped
	}

	if claims.Subject == "" {
		return "", outcomeSkipped
	}

	return claims.Subject, outcomeAccepted
}

// --- Стратегия 3: разрешение токена через authority ---

// authorityTier — обращение к API identity authority.
// Любая ошибка (отказ или недоступность) записывается в attempt
// и открывает доступ к admin_fallback.
type authorityTier struct {
	client AuthorityAPI
}

func (s *authorityTier) name() string { return "authority" }

func (s *authorityTier) verify(ctx context.Context, att *attempt) (string, outcome) {
	if s.client == nil {
		return "", outcomeSkipped
	}

	user, err := s.client.ResolveToken(ctx, att.cred.raw)
	if err != nil {
		att.authorityErr = err
		return "", outcomeSkipped
	}

	return user.ID, outcomeAccepted
}

// --- Стратегия 4: деградированный режим при недоступности authority ---

// adminFallback — принимает токен БЕЗ проверки подписи, если authority
// недоступен, незаверенные sub и exp выглядят валидно и административный
// API подтверждает существование пользователя. Осознанно ослабленная
// гарантия для переживания сбоев authority; каждый приём логируется WARN.
type adminFallback struct {
	client  AuthorityAPI
	enabled bool
	leeway  time.Duration
	logger  *slog.Logger
}

func (s *adminFallback) name() string { return "admin_fallback" }

func (s *adminFallback) verify(ctx context.Context, att *attempt) (string, outcome) {
	if !s.enabled || s.client == nil {
		return "", outcomeSkipped
	}
	// Только после ошибки authority
	if att.authorityErr == nil {
		return "", outcomeSkipped
	}

	claims := att.cred.claims
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return "", outcomeSkipped
	}
	// Незаверенный exp обязан быть в будущем
	if !claims.ExpiresAt.After(time.Now().Add(-s.leeway)) {
		return "", outcomeSkipped
	}

	user, err := s.client.GetUserByID(ctx, claims.Subject)
	if err != nil {
		s.logger.Debug("admin_fallback: пользователь не подтверждён",
			slog.String("subject", claims.Subject),
			slog.String("error", err.Error()),
		)
		return "", outcomeSkipped
	}

	s.logger.Warn("Токен принят в деградированном режиме: подпись НЕ проверена",
		slog.String("principal", user.ID),
		slog.String("authority_error", att.authorityErr.Error()),
	)

	return user.ID, outcomeAccepted
}

// errString возвращает текст ошибки или пустую строку для nil.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
