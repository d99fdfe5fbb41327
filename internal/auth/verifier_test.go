package auth

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/UtviklerenSiteAS/FlashFiles/internal/authority"
)

// testLogger — логгер для тестов, пишет только ошибки.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeAuthority — счётная заглушка API authority.
type fakeAuthority struct {
	resolveUser *authority.User
	resolveErr  error
	adminUser   *authority.User
	adminErr    error

	resolveCalls int
	adminCalls   int
}

func (f *fakeAuthority) ResolveToken(_ context.Context, _ string) (*authority.User, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.resolveUser, nil
}

func (f *fakeAuthority) GetUserByID(_ context.Context, _ string) (*authority.User, error) {
	f.adminCalls++
	if f.adminErr != nil {
		return nil, f.adminErr
	}
	return f.adminUser, nil
}

const testSecret = "test-secret-key"

// signHS256 создаёт HS256-токен с указанными subject и exp.
func signHS256(t *testing.T, secret, subject string, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Ошибка подписи токена: %v", err)
	}
	return signed
}

func newTestVerifier(opts Options, client AuthorityAPI) *Verifier {
	return NewVerifier(opts, client, testLogger())
}

func TestVerify_LocalHS256Accepted(t *testing.T) {
	fake := &fakeAuthority{}
	v := newTestVerifier(Options{Secret: testSecret, Leeway: 30 * time.Second}, fake)

	token := signHS256(t, testSecret, "user-1", time.Now().Add(time.Hour))

	principal, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify вернул ошибку: %v", err)
	}
	if principal != "user-1" {
		t.Errorf("Principal: хотели user-1, получили %s", principal)
	}
	// Локальная проверка не требует обращений к authority
	if fake.resolveCalls != 0 || fake.adminCalls != 0 {
		t.Errorf("Authority вызван при локальной проверке: resolve=%d admin=%d",
			fake.resolveCalls, fake.adminCalls)
	}
}

// Неверная подпись под локальным секретом — подделка.
// Отказ окончателен: authority не должен вызываться.
func TestVerify_TamperedHS256RejectedTerminally(t *testing.T) {
	fake := &fakeAuthority{resolveUser: &authority.User{ID: "user-1"}}
	v := newTestVerifier(Options{Secret: testSecret, Leeway: 30 * time.Second}, fake)

	token := signHS256(t, "другой-секрет", "user-1", time.Now().Add(time.Hour))

	_, err := v.Verify(context.Background(), token)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("хотели ErrRejected, получили %v", err)
	}
	if fake.resolveCalls != 0 {
		t.Errorf("Authority вызван после окончательного локального отказа: %d", fake.resolveCalls)
	}
}

func TestVerify_ExpiredHS256Rejected(t *testing.T) {
	fake := &fakeAuthority{}
	v := newTestVerifier(Options{Secret: testSecret, Leeway: 30 * time.Second}, fake)

	token := signHS256(t, testSecret, "user-1", time.Now().Add(-time.Hour))

	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrRejected) {
		t.Fatalf("хотели ErrRejected, получили %v", err)
	}
}

func TestVerify_AuthorityResolves(t *testing.T) {
	fake := &fakeAuthority{resolveUser: &authority.User{ID: "user-2"}}
	// Локальный секрет не настроен — решает authority
	v := newTestVerifier(Options{Leeway: 30 * time.Second}, fake)

	token := signHS256(t, "внешний-секрет", "user-2", time.Now().Add(time.Hour))

	principal, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify вернул ошибку: %v", err)
	}
	if principal != "user-2" {
		t.Errorf("Principal: хотели user-2, получили %s", principal)
	}
	if fake.resolveCalls != 1 {
		t.Errorf("ResolveToken: хотели 1 вызов, получили %d", fake.resolveCalls)
	}
}

func TestVerify_AuthorityRejects(t *testing.T) {
	fake := &fakeAuthority{
		resolveErr: authority.ErrTokenRejected,
		adminErr:   authority.ErrUserNotFound,
	}
	v := newTestVerifier(Options{DegradedFallback: true, Leeway: 30 * time.Second}, fake)

	token := signHS256(t, "внешний-секрет", "user-3", time.Now().Add(time.Hour))

	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrRejected) {
		t.Fatalf("хотели ErrRejected, получили %v", err)
	}
}

func TestVerify_FallbackAcceptsOnAuthorityOutage(t *testing.T) {
	fake := &fakeAuthority{
		resolveErr: errors.New("authority недоступен"),
		adminUser:  &authority.User{ID: "user-4"},
	}
	v := newTestVerifier(Options{DegradedFallback: true, Leeway: 30 * time.Second}, fake)

	token := signHS256(t, "внешний-секрет", "user-4", time.Now().Add(time.Hour))

	principal, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify вернул ошибку: %v", err)
	}
	if principal != "user-4" {
		t.Errorf("Principal: хотели user-4, получили %s", principal)
	}
	if fake.adminCalls != 1 {
		t.Errorf("GetUserByID: хотели 1 вызов, получили %d", fake.adminCalls)
	}
}

// Просроченный по незаверенному exp токен не проходит даже
// в деградированном режиме.
func TestVerify_FallbackRejectsExpiredClaims(t *testing.T) {
	fake := &fakeAuthority{
		resolveErr: errors.New("authority недоступен"),
		adminUser:  &authority.User{ID: "user-5"},
	}
	v := newTestVerifier(Options{DegradedFallback: true, Leeway: 30 * time.Second}, fake)

	token := signHS256(t, "внешний-секрет", "user-5", time.Now().Add(-time.Hour))

	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrRejected) {
		t.Fatalf("хотели ErrRejected, получили %v", err)
	}
	if fake.adminCalls != 0 {
		t.Errorf("GetUserByID вызван для просроченного токена: %d", fake.adminCalls)
	}
}

func TestVerify_FallbackDisabled(t *testing.T) {
	fake := &fakeAuthority{
		resolveErr: errors.New("authority недоступен"),
		adminUser:  &authority.User{ID: "user-6"},
	}
	v := newTestVerifier(Options{DegradedFallback: false, Leeway: 30 * time.Second}, fake)

	token := signHS256(t, "внешний-секрет", "user-6", time.Now().Add(time.Hour))

	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrRejected) {
		t.Fatalf("хотели ErrRejected, получили %v", err)
	}
	if fake.adminCalls != 0 {
		t.Errorf("GetUserByID вызван при выключенном fallback: %d", fake.adminCalls)
	}
}

func TestVerify_MalformedToken(t *testing.T) {
	fake := &fakeAuthority{resolveUser: &authority.User{ID: "user-1"}}
	v := newTestVerifier(Options{Secret: testSecret}, fake)

	cases := []struct {
		name  string
		token string
	}{
		{"пустая строка", ""},
		{"не JWT", "not-a-token"},
		{"два сегмента", "aaa.bbb"},
		{"четыре сегмента", "aaa.bbb.ccc.ddd"},
		{"мусор в сегментах", "!!!.???.###"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tc.token); !errors.Is(err, ErrRejected) {
				t.Fatalf("хотели ErrRejected, получили %v", err)
			}
		})
	}

	// Структурно невалидные токены не доходят до authority
	if fake.resolveCalls != 0 {
		t.Errorf("ResolveToken вызван для невалидной структуры: %d", fake.resolveCalls)
	}
}
