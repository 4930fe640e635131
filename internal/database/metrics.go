package database

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolCollector 把 sql.DB 连接池统计导出为 Prometheus 指标
type PoolCollector struct {
	db *sql.DB

	open     *prometheus.Desc
	inUse    *prometheus.Desc
	idle     *prometheus.Desc
	waitTime *prometheus.Desc
}

// NewPoolCollector 创建连接池指标收集器，name 区分不同连接池
func NewPoolCollector(db *sql.DB, name string) *PoolCollector {
	labels := prometheus.Labels{"pool": name}
	return &PoolCollector{
		db:       db,
		open:     prometheus.NewDesc("edurag_db_connections_open", "Open database connections", nil, labels),
		inUse:    prometheus.NewDesc("edurag_db_connections_in_use", "Database connections in use", nil, labels),
		idle:     prometheus.NewDesc("edurag_db_connections_idle", "Idle database connections", nil, labels),
		waitTime: prometheus.NewDesc("edurag_db_wait_seconds_total", "Time spent waiting for a connection", nil, labels),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitTime
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Stats()
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stats.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stats.Idle))
	ch <- prometheus.MustNewConstMetric(c.waitTime, prometheus.CounterValue, stats.WaitDuration.Seconds())
}
