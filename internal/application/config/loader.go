// config/loader.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
)

// Loader 配置加载器
type Loader struct {
	env        string
	configPath string
	// bizConfig: 业务方传入的指针, 用于填充 biz_config 小节
	bizConfig any
}

func NewLoader(env string, configPath string) *Loader {
	if env == "" {
		env = consts.ENV_DEVELOPMENT
	}
	if configPath == "" {
		configPath = consts.DEFAULT_CONFIG_PATH
	}
	return &Loader{env: env, configPath: configPath}
}

// SetBizConfig 注入业务配置指针, 需要在 LoadConfig 之前调用。已有字段值作为默认值保留。
func (l *Loader) SetBizConfig(b any) error {
	if b == nil {
		return nil
	}
	if reflect.TypeOf(b).Kind() != reflect.Ptr {
		return fmt.Errorf("SetBizConfig expects a pointer, got %T", b)
	}
	l.bizConfig = b
	return nil
}

// LoadConfig 先整体解析 AppConfig, 再把 biz_config 子树二次反序列化到业务指针。
func (l *Loader) LoadConfig() (*AppConfig, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg AppConfig
	ext := strings.ToLower(filepath.Ext(l.configPath))
	if err := unmarshal(ext, data, &cfg); err != nil {
		return nil, err
	}

	if l.bizConfig != nil {
		if cfg.BizConfig != nil {
			if err := decodeBizSection(ext, cfg.BizConfig, l.bizConfig); err != nil {
				return nil, fmt.Errorf("decode biz_config failed: %w", err)
			}
		}
		cfg.BizConfig = l.bizConfig
	}
	if cfg.APPInfo == nil {
		cfg.APPInfo = &APPInfo{}
	}
	if cfg.APPInfo.ENV == "" {
		cfg.APPInfo.ENV = l.env
	}
	return &cfg, nil
}

func unmarshal(ext string, data []byte, out any) error {
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	return nil
}

// decodeBizSection re-marshals the generic subtree and decodes it into target, keeping target's defaults.
func decodeBizSection(ext string, raw any, target any) error {
	var (
		b   []byte
		err error
	)
	switch ext {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(raw)
	case ".json":
		b, err = json.Marshal(raw)
	default:
		return fmt.Errorf("unsupported format: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("re-marshal biz_config failed: %w", err)
	}
	return unmarshal(ext, b, target)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
