package postgresql

// migrations returns the versioned schema for the journey engine store.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				settings JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_org_status
				ON workflows (organization_id, status);

			CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				organization_id TEXT NOT NULL,
				status TEXT NOT NULL,
				current_node_id TEXT NOT NULL DEFAULT '',
				path JSONB NOT NULL DEFAULT '[]',
				facts JSONB NOT NULL DEFAULT '[]',
				trigger_type TEXT NOT NULL DEFAULT '',
				wait_until TIMESTAMP WITH TIME ZONE,
				retry_count INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				error_node_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow_contact
				ON executions (workflow_id, contact_id);
			CREATE INDEX IF NOT EXISTS idx_executions_waiting
				ON executions (wait_until) WHERE status = 'waiting';

			CREATE TABLE IF NOT EXISTS workflow_schedules (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				type TEXT NOT NULL,
				scheduled_at TIMESTAMP WITH TIME ZONE,
				interval_minutes INTEGER NOT NULL DEFAULT 0,
				start_at TIMESTAMP WITH TIME ZONE,
				end_at TIMESTAMP WITH TIME ZONE,
				cron_expression TEXT NOT NULL DEFAULT '',
				timezone TEXT NOT NULL DEFAULT '',
				tag_filter TEXT NOT NULL DEFAULT '',
				contact_limit INTEGER NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				next_execution_at TIMESTAMP WITH TIME ZONE,
				last_execution_at TIMESTAMP WITH TIME ZONE,
				last_execution_status TEXT NOT NULL DEFAULT '',
				execution_count INTEGER NOT NULL DEFAULT 0,
				max_executions INTEGER NOT NULL DEFAULT 0,
				processing_until TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_schedules_due
				ON workflow_schedules (next_execution_at) WHERE active = TRUE;

			CREATE TABLE IF NOT EXISTS execution_logs (
				id TEXT PRIMARY KEY,
				execution_id TEXT NOT NULL,
				node_id TEXT NOT NULL,
				node_type TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				input JSONB,
				output JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				error_code TEXT NOT NULL DEFAULT '',
				metadata JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_execution_logs_execution
				ON execution_logs (execution_id);
		`,
	}
}
