package consts

const (
	ENV_PRODUCTION  = "production"
	ENV_DEVELOPMENT = "development"
	ENV_TEST        = "test"

	DEFAULT_CONFIG_PATH = "config/config.yaml"

	KEY_TraceID = "trace_id"
	KEY_NodeID  = "node_id"
)
