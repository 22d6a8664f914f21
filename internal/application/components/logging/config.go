// components/logging/config.go
package logging

import "time"

// LoggingConfig 日志配置
type LoggingConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Level        string        `yaml:"level" json:"level"`
	Format       string        `yaml:"format" json:"format"` // json | console
	Output       string        `yaml:"output" json:"output"` // stdout | stderr | file | <path>
	FileConfig   *FileConfig   `yaml:"file_config,omitempty" json:"file_config,omitempty"`
	RotateConfig *RotateConfig `yaml:"rotate_config,omitempty" json:"rotate_config,omitempty"`
}

// FileConfig 文件输出配置
type FileConfig struct {
	Dir      string `yaml:"dir" json:"dir"`
	Filename string `yaml:"filename" json:"filename"`
}

// RotateConfig lumberjack 轮转配置
type RotateConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	MaxSizeMB  int           `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int           `yaml:"max_backups" json:"max_backups"`
	MaxAge     time.Duration `yaml:"max_age" json:"max_age"`
	Compress   bool          `yaml:"compress" json:"compress"`
}

func (c *LoggingConfig) applyDefaults() {
	if c.Level == "" {
		c.Level = "INFO"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
	if c.Output == "file" && c.FileConfig == nil {
		c.FileConfig = &FileConfig{Dir: "./logs", Filename: "taskmanager"}
	}
	if c.RotateConfig != nil && c.RotateConfig.MaxSizeMB <= 0 {
		c.RotateConfig.MaxSizeMB = 100
	}
}

// Validate checks explicit rules; defaults are applied first by the builder.
func (c *LoggingConfig) Validate() error {
	if c.RotateConfig != nil && c.RotateConfig.Enabled && c.RotateConfig.MaxAge < 0 {
		return errNegativeMaxAge
	}
	return nil
}
