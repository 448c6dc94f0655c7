package history

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/fedflow/internal/database"
	"github.com/BaSui01/fedflow/session"
)

// Config 数据库配置
type Config struct {
	// 驱动类型: sqlite, postgres, mysql；为空则禁用
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" json:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" json:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" json:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" json:"-" env:"PASSWORD"`
	// 数据库名；sqlite 下为文件路径
	Name string `yaml:"name" json:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" json:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 健康检查间隔，0 为不检查
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	// 写入失败时的最大尝试次数
	WriteAttempts int `yaml:"write_attempts" json:"write_attempts" env:"WRITE_ATTEMPTS"`
}

// PoolConfig 提取连接池参数
func (c Config) PoolConfig() database.PoolConfig {
	return database.PoolConfig{
		MaxOpenConns:        c.MaxOpenConns,
		MaxIdleConns:        c.MaxIdleConns,
		ConnMaxLifetime:     c.ConnMaxLifetime,
		HealthCheckInterval: c.HealthCheckInterval,
	}
}

// DSN 返回数据库连接字符串
func (c Config) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Name,
		)
	case "sqlite":
		return c.Name
	default:
		return ""
	}
}

// Enabled 是否配置了持久化驱动
func (c Config) Enabled() bool {
	return c.Driver != "" && c.Driver != "none"
}

// PhaseTransition 是一条阶段迁移记录
type PhaseTransition struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RunID       string    `gorm:"size:64;index:idx_run_participant" json:"run_id"`
	Participant string    `gorm:"size:255;index:idx_run_participant" json:"participant"`
	Coordinator bool      `json:"coordinator"`
	FromPhase   string    `gorm:"size:32" json:"from"`
	ToPhase     string    `gorm:"size:32" json:"to"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName 指定表名
func (PhaseTransition) TableName() string {
	return "fedflow_phase_transitions"
}

// Journal 是可探活、可关闭的 session.Journal
type Journal interface {
	session.Journal
	Ping(ctx context.Context) error
	Close() error
}

// NopJournal 丢弃所有记录
type NopJournal struct{}

func (NopJournal) RecordTransition(context.Context, session.Transition) error { return nil }
func (NopJournal) Ping(context.Context) error { return nil }
func (NopJournal) Close() error { return nil }

// GormJournal 基于 gorm 的迁移日志
type GormJournal struct {
	pool     *database.Pool
	attempts int
	logger   *zap.Logger
}

// Open 根据配置打开迁移日志
func Open(cfg Config, log *zap.Logger) (Journal, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled() {
		return NopJournal{}, nil
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported history driver: %s (supported: sqlite, postgres, mysql)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	pool, err := database.NewPool(db, cfg.PoolConfig(), log)
	if err != nil {
		return nil, err
	}

	j, err := NewGormJournal(pool, cfg.WriteAttempts, log)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	log.Info("History journal connected", zap.String("driver", cfg.Driver))
	return j, nil
}

// NewGormJournal 在连接池上创建日志并自动迁移表结构。attempts < 1 时按 3 次处理。
func NewGormJournal(pool *database.Pool, attempts int, log *zap.Logger) (*GormJournal, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if attempts < 1 {
		attempts = 3
	}
	if err := pool.DB().AutoMigrate(&PhaseTransition{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &GormJournal{
		pool:     pool,
		attempts: attempts,
		logger:   log.With(zap.String("component", "history")),
	}, nil
}

// RecordTransition 实现 session.Journal
func (j *GormJournal) RecordTransition(ctx context.Context, t session.Transition) error {
	row := PhaseTransition{
		RunID:       t.RunID,
		Participant: t.Participant,
		Coordinator: t.Coordinator,
		FromPhase:   t.From.String(),
		ToPhase:     t.To.String(),
		DurationMS:  t.Duration.Milliseconds(),
		Error:       t.Err,
		CreatedAt:   t.At,
	}
	err := j.pool.WithTransactionRetry(ctx, j.attempts, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		j.logger.Warn("record transition failed",
			zap.String("run_id", t.RunID),
			zap.Stringer("to", t.To),
			zap.Error(err))
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// List 返回一次运行的全部迁移，按写入顺序
func (j *GormJournal) List(ctx context.Context, runID string) ([]PhaseTransition, error) {
	var rows []PhaseTransition
	err := j.pool.DB().WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return rows, nil
}

// Runs 返回出现过的运行 ID
func (j *GormJournal) Runs(ctx context.Context) ([]string, error) {
	var ids []string
	err := j.pool.DB().WithContext(ctx).
		Model(&PhaseTransition{}).
		Distinct("run_id").
		Order("run_id").
		Pluck("run_id", &ids).Error
	return ids, err
}

// Ping 检查数据库连接
func (j *GormJournal) Ping(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

// Close 关闭底层连接
func (j *GormJournal) Close() error {
	return j.pool.Close()
}
