package telemetry

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) *TelemetryComponent {
	cfg.applyDefaults()
	return NewTelemetryComponent(cfg)
}
