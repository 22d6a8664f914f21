// config/schema.go
package config

import (
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/gormdb"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/http_server"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/prometheus"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/redis"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/telemetry"
)

// AppConfig 应用程序配置结构
type AppConfig struct {
	APPInfo      *APPInfo                      `yaml:"app_info" json:"app_info"`
	Logging      *logging.LoggingConfig        `yaml:"logging" json:"logging"`
	Prometheus   *prometheus.Config            `yaml:"prometheus" json:"prometheus"`
	Redis        *redis.Config                 `yaml:"redis" json:"redis"`
	MySQLGORM    *gormdb.Config                `yaml:"mysql_gorm" json:"mysql_gorm"`
	PostgresGORM *gormdb.Config                `yaml:"postgres_gorm" json:"postgres_gorm"`
	Telemetry    *telemetry.Config             `yaml:"telemetry" json:"telemetry"`
	HTTPServer   *http_server.HTTPServerConfig `yaml:"http_server" json:"http_server"`

	// BizConfig 业务配置 (biz_config 小节), 由 Loader 二次解码到业务指针
	BizConfig any `yaml:"biz_config" json:"biz_config"`
}

type APPInfo struct {
	APPName string `yaml:"app_name" json:"app_name"`
	ENV     string `yaml:"env" json:"env"`
}
