package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthChecker 数据库健康检查器
type HealthChecker struct {
	db       *sql.DB
	logger   *logrus.Logger
	interval time.Duration

	mu        sync.RWMutex
	healthy   bool
	lastCheck time.Time
	lastError error
	latency   time.Duration
}

// HealthCheckResult 健康检查结果
type HealthCheckResult struct {
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	ResponseTime string    `json:"response_time,omitempty"`
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(db *sql.DB, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		db:       db,
		logger:   logger,
		interval: 30 * time.Second,
	}
}

// SetCheckInterval 设置后台检查间隔
func (hc *HealthChecker) SetCheckInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.interval = interval
}

// Run 周期性检查直到 ctx 结束
func (hc *HealthChecker) Run(ctx context.Context) {
	hc.mu.RLock()
	interval := hc.interval
	hc.mu.RUnlock()

	hc.logger.Info("Starting database health checker")
	hc.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hc.logger.Info("Database health checker stopped")
			return
		case <-ticker.C:
			hc.Check(ctx)
		}
	}
}

// Check 执行单次检查
func (hc *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(ctx)
	elapsed := time.Since(start)

	hc.mu.Lock()
	wasHealthy := hc.healthy
	hc.lastCheck = time.Now()
	hc.lastError = err
	hc.latency = elapsed
	hc.healthy = err == nil
	hc.mu.Unlock()

	if err != nil {
		hc.logger.WithFields(logrus.Fields{
			"error":         err.Error(),
			"response_time": elapsed,
		}).Warn("Database health check failed")
		return err
	}
	if !wasHealthy {
		hc.logger.WithField("response_time", elapsed).Info("Database connection healthy")
	}
	return nil
}

// IsHealthy 最近一次检查是否成功
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.healthy
}

// Result 最近一次检查的详情
func (hc *HealthChecker) Result() HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	r := HealthCheckResult{Healthy: hc.healthy, LastCheck: hc.lastCheck}
	if hc.lastError != nil {
		r.LastError = hc.lastError.Error()
	}
	if !hc.lastCheck.IsZero() {
		r.ResponseTime = hc.latency.String()
	}
	return r
}
