// sweeper.go — фоновая очистка истёкших файлов.
//
// Цикл: скан метаданных (expires_at < now) → для каждой записи удаление
// байтов с диска, затем удаление строки метаданных. Запускается как
// горутина с немедленным первым проходом и периодическим тикером
// (FF_SWEEP_INTERVAL). Очистка никогда не завершает процесс: любые
// ошибки логируются, следующий тик повторяет попытку.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/UtviklerenSiteAS/FlashFiles/internal/repository"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/storage/filestore"
)

// Prometheus метрики очистки
var (
	// sweepRunsTotal — количество проходов очистки.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ff_sweep_runs_total",
		Help: "Общее количество проходов очистки",
	})

	// sweepReclaimedTotal — количество удалённых истёкших файлов.
	sweepReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ff_sweep_files_reclaimed_total",
		Help: "Общее количество файлов, удалённых очисткой",
	})

	// sweepErrorsTotal — количество ошибок при обработке записей.
	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ff_sweep_errors_total",
		Help: "Общее количество ошибок очистки",
	})

	// sweepDurationSeconds — длительность прохода очистки.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ff_sweep_duration_seconds",
		Help:    "Длительность прохода очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного прохода очистки.
type SweepResult struct {
	// Scanned — количество найденных истёкших записей
	Scanned int
	// Reclaimed — количество удалённых записей метаданных
	Reclaimed int
	// Errors — количество ошибок при обработке записей
	Errors int
	// ScanFailed — скан метаданных не удался, проход прерван целиком
	ScanFailed bool
	// Duration — длительность прохода
	Duration time.Duration
}

// Sweeper — фоновая очистка истёкших файлов.
type Sweeper struct {
	repo     repository.FileRepository
	store    *filestore.FileStore
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc

	// now подменяется в тестах
	now func() time.Time
}

// NewSweeper создаёт сервис очистки.
func NewSweeper(
	repo repository.FileRepository,
	store *filestore.FileStore,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		repo:     repo,
		store:    store,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину очистки: немедленный первый проход,
// затем периодический тикер. Вызывается один раз при старте приложения.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Очистка запущена",
		slog.String("interval", s.interval.String()),
	)
}

// Stop отменяет будущие тики. Уже идущий проход не прерывается.
// Безопасен при незапущенной очистке.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (s *Sweeper) run(ctx context.Context) {
	// Первый проход — сразу после старта
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход очистки.
// Потокобезопасен: mutex исключает параллельные проходы; удаления
// при этом идемпотентны (delete-if-exists) на случай гонки с рестартом.
//
// Ошибка скана прерывает проход целиком (повтор на следующем тике);
// ошибка обработки одной записи логируется, остальные записи продолжаются.
func (s *Sweeper) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	now := s.now().UTC()

	expired, err := s.repo.ListExpired(ctx, now)
	if err != nil {
		// Скан не удался — ничего не удаляем, повтор на следующем тике
		s.logger.Error("Ошибка скана истёкших файлов, проход прерван",
			slog.String("error", err.Error()),
		)
		result.ScanFailed = true
		result.Duration = time.Since(start)
		sweepRunsTotal.Inc()
		sweepErrorsTotal.Inc()
		sweepDurationSeconds.Observe(result.Duration.Seconds())
		return result
	}

	result.Scanned = len(expired)

	if len(expired) == 0 {
		result.Duration = time.Since(start)
		sweepRunsTotal.Inc()
		sweepDurationSeconds.Observe(result.Duration.Seconds())
		s.logger.Debug("Истёкших файлов нет")
		return result
	}

	s.logger.Info("Найдены истёкшие файлы",
		slog.Int("count", len(expired)),
	)

	for _, rec := range expired {
		// 1. Удаляем байты. Отсутствие файла на диске — не ошибка,
		// только диагностическая заметка.
		existed, delErr := s.store.DeleteFile(rec.StoragePath)
		if delErr != nil {
			s.logger.Error("Ошибка удаления файла с диска",
				slog.String("file_id", rec.FileID),
				slog.String("storage_path", rec.StoragePath),
				slog.String("error", delErr.Error()),
			)
			result.Errors++
			// Метаданные всё равно удаляем, чтобы не копить вечные
			// осиротевшие строки; ошибка байтов уже зафиксирована
		} else if !existed {
			s.logger.Warn("Файла уже не было на диске",
				slog.String("file_id", rec.FileID),
				slog.String("storage_path", rec.StoragePath),
			)
		}

		// 2. Удаляем строку метаданных
		if err := s.repo.Delete(ctx, rec.FileID); err != nil {
			s.logger.Error("Ошибка удаления метаданных",
				slog.String("file_id", rec.FileID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		result.Reclaimed++
		s.logger.Debug("Истёкший файл удалён",
			slog.String("file_id", rec.FileID),
			slog.String("filename", rec.Filename),
		)
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepReclaimedTotal.Add(float64(result.Reclaimed))
	sweepErrorsTotal.Add(float64(result.Errors))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Проход очистки завершён",
		slog.Int("scanned", result.Scanned),
		slog.Int("reclaimed", result.Reclaimed),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
