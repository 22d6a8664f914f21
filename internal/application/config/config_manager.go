package config

import "fmt"

type ConfigManager struct {
	loader    *Loader
	appConfig *AppConfig
}

func NewConfigManager(env string, configPath string) *ConfigManager {
	return &ConfigManager{loader: NewLoader(env, configPath)}
}

// SetBizConfig 在加载前设置业务配置指针
func (cm *ConfigManager) SetBizConfig(b any) error {
	return cm.loader.SetBizConfig(b)
}

func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.appConfig
}

func (cm *ConfigManager) LoadConfig() error {
	if err := validateConfigFilePath(cm.loader.configPath); err != nil {
		return err
	}
	cfg, err := cm.loader.LoadConfig()
	if err != nil {
		return err
	}
	if err := validateAppConfig(cfg); err != nil {
		return err
	}
	cm.appConfig = cfg
	return nil
}

// Validatable is implemented by biz config structs that check themselves after decoding.
type Validatable interface {
	Validate() error
}

func validateAppConfig(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if v, ok := cfg.BizConfig.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid biz_config: %w", err)
		}
	}
	return nil
}

func validateConfigFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("config file path cannot be empty")
	}
	if !fileExists(path) {
		return fmt.Errorf("config file does not exist: %s", path)
	}
	return nil
}
