// jwks.go — создание keyfunc из JWKS endpoint authority.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
)

// NewJWKSKeyfunc создаёт keyfunc с фоновым обновлением ключей из jwksURL.
// NoErrorReturnFirstHTTPReq позволяет стартовать, даже если JWKS endpoint
// ещё недоступен (например, при одновременном запуске процессов).
func NewJWKSKeyfunc(jwksURL string, clientTimeout, refreshInterval time.Duration, logger *slog.Logger) (keyfunc.Keyfunc, error) {
	httpClient := &http.Client{Timeout: clientTimeout}

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return kf, nil
}
