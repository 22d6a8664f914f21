package consts

const (
	COMP_STORE_TASK      = "task_store"
	COMP_SVC_DEFINITIONS = "task_definitions"
	COMP_SVC_PARTITIONER = "task_partitioner"
	COMP_SVC_EVENTS      = "claim_events"
	COMP_SVC_CLAIMING    = "claiming_engine"
	COMP_SVC_DEAD_LETTER = "dead_letter_sweeper"
	COMP_CTRL_CLAIM      = "claim_ctrl"
)
