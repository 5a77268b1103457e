package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"lendingapp/utils"

	"github.com/beevik/etree"
)

// ErrNoRate - в ответе центрального банка нет ни одной ставки
var ErrNoRate = errors.New("central bank response contains no rate")

// RateProvider отдает годовую ставку для калькулятора: ключевую ставку
// центрального банка из кэша, а пока ее нет, значение из конфигурации.
type RateProvider struct {
	client      *http.Client
	url         string
	defaultRate float64

	mu        sync.RWMutex
	rate      float64
	fetchedAt time.Time
}

// NewRateProvider создает провайдер; пустой url отключает загрузку
func NewRateProvider(url string, defaultRate float64, timeout time.Duration) *RateProvider {
	return &RateProvider{
		client:      &http.Client{Timeout: timeout},
		url:         url,
		defaultRate: defaultRate,
	}
}

// Current возвращает последнюю загруженную ставку и признак того, что она настоящая
func (p *RateProvider) Current() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.fetchedAt.IsZero() {
		return p.defaultRate, false
	}
	return p.rate, true
}

// Refresh загружает ставку и обновляет кэш; при ошибке кэш не трогается
func (p *RateProvider) Refresh(ctx context.Context) error {
	if p.url == "" {
		return nil
	}

	startTime := time.Now()
	rate, err := p.GetCentralBankRate(ctx)
	utils.LogOperation("Загрузка ключевой ставки", startTime, err)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.rate = rate
	p.fetchedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// GetCentralBankRate получает текущую ключевую ставку центрального банка
func (p *RateProvider) GetCentralBankRate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ошибка запроса ставки: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("центральный банк ответил статусом %d", resp.StatusCode)
	}

	// Ответ небольшой, ограничиваем на случай мусора
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	return parseKeyRate(body)
}

// parseKeyRate разбирает ответ вида <KeyRate><KR><DT>..</DT><Rate>..</Rate></KR>..</KeyRate>
// и возвращает ставку с самой поздней датой.
func parseKeyRate(body []byte) (float64, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return 0, fmt.Errorf("ошибка разбора XML: %w", err)
	}

	var (
		latest time.Time
		rate   float64
		found  bool
	)
	for _, kr := range doc.FindElements("//KR") {
		rateElem := kr.SelectElement("Rate")
		if rateElem == nil {
			continue
		}
		// В выгрузках встречается десятичная запятая
		value, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(rateElem.Text()), ",", ".", 1), 64)
		if err != nil || value < 0 {
			continue
		}

		var date time.Time
		if dt := kr.SelectElement("DT"); dt != nil {
			date, _ = time.Parse(time.RFC3339, strings.TrimSpace(dt.Text()))
		}
		if !found || date.After(latest) {
			latest = date
			rate = value
			found = true
		}
	}

	if !found {
		return 0, ErrNoRate
	}
	return rate, nil
}
