// auth.go — middleware аутентификации HTTP запросов.
//
// Токен извлекается из заголовка Authorization (Bearer) либо, как
// резервный вариант для прямых ссылок скачивания, из query-параметра
// token. Проверка делегируется каскаду верификации; любой отказ даёт
// единый ответ 401 UNAUTHORIZED без деталей причины.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/UtviklerenSiteAS/FlashFiles/internal/api/errors"
)

// TokenVerifier — каскад проверки токенов.
type TokenVerifier interface {
	// Verify возвращает идентификатор субъекта токена либо ошибку отказа.
	Verify(ctx context.Context, rawToken string) (string, error)
}

type contextKey string

// principalKey — ключ контекста для идентификатора аутентифицированного
// пользователя.
const principalKey contextKey = "principal"

// Auth возвращает middleware, требующий валидный токен на каждом запросе.
func Auth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "auth_middleware"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				log.Debug("Запрос без токена",
					slog.String("path", r.URL.Path),
				)
				apierrors.Unauthorized(w, "Authentication required")
				return
			}

			principalID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				// Единый ответ для любой причины отказа
				log.Debug("Токен отклонён",
					slog.String("path", r.URL.Path),
				)
				apierrors.Unauthorized(w, "Authentication required")
				return
			}

			// Отдаём principal вышестоящему RequestLogger
			if holder, ok := r.Context().Value(principalHolderKey).(*principalHolder); ok {
				holder.id = principalID
			}

			ctx := context.WithValue(r.Context(), principalKey, principalID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken достаёт токен из заголовка Authorization либо из
// query-параметра token (резерв для прямых ссылок скачивания).
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// PrincipalFromContext возвращает идентификатор аутентифицированного
// пользователя, положенный middleware Auth.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey).(string)
	return id, ok
}
