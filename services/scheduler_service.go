package services

import (
	"context"
	"time"

	"lendingapp/utils"

	"github.com/robfig/cron/v3"
)

// SchedulerService запускает периодические задачи сервиса
type SchedulerService struct {
	cron     *cron.Cron
	rates    *RateProvider
	schedule string
	timeout  time.Duration
}

// NewSchedulerService создает новый экземпляр SchedulerService
func NewSchedulerService(rates *RateProvider, schedule string, timeout time.Duration) *SchedulerService {
	cronLogger := cron.PrintfLogger(utils.NewStdLogger())
	return &SchedulerService{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		rates:    rates,
		schedule: schedule,
		timeout:  timeout,
	}
}

// Start регистрирует задачи и запускает планировщик.
// Ставка загружается сразу, не дожидаясь первого срабатывания.
func (s *SchedulerService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.refreshRates); err != nil {
		return err
	}
	utils.LogInfo("Обновление ключевой ставки по расписанию %s", s.schedule)

	go s.refreshRates()
	s.cron.Start()
	return nil
}

// Stop останавливает планировщик и ждет завершения запущенных задач
func (s *SchedulerService) Stop() context.Context {
	return s.cron.Stop()
}

// refreshRates обновляет кэш ставки центрального банка
func (s *SchedulerService) refreshRates() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.rates.Refresh(ctx); err != nil {
		utils.LogError("Ошибка при обновлении ключевой ставки: %v", err)
	}
}
