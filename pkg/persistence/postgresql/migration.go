package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create templates table
			CREATE TABLE templates (
				id UUID PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				title VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				managers JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_templates_project_id ON templates(project_id);
			CREATE INDEX idx_templates_created_at ON templates(created_at);

			-- Create template_steps table
			CREATE TABLE template_steps (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
				step_order INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				operator JSONB NOT NULL DEFAULT '{}',
				kind VARCHAR(50) NOT NULL CHECK (kind IN ('form', 'review')),
				form JSONB,
				review JSONB
			);

			CREATE INDEX idx_template_steps_template_id ON template_steps(template_id);
			CREATE UNIQUE INDEX idx_template_steps_order ON template_steps(template_id, step_order);

			-- Create tickets table
			CREATE TABLE tickets (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES templates(id),
				title VARCHAR(255) NOT NULL,
				created_by VARCHAR(255) NOT NULL,
				finished BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tickets_template_id ON tickets(template_id);
			CREATE INDEX idx_tickets_finished ON tickets(finished);
			CREATE INDEX idx_tickets_created_at ON tickets(created_at);

			-- Create ticket_steps table
			CREATE TABLE ticket_steps (
				id UUID PRIMARY KEY,
				ticket_id UUID NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
				template_step_id UUID NOT NULL,
				step_order INT NOT NULL,
				assignee_id VARCHAR(255),
				finished BOOLEAN NOT NULL DEFAULT FALSE,
				outcome JSONB
			);

			CREATE INDEX idx_ticket_steps_ticket_id ON ticket_steps(ticket_id);
			CREATE INDEX idx_ticket_steps_assignee_id ON ticket_steps(assignee_id);
			CREATE UNIQUE INDEX idx_ticket_steps_order ON ticket_steps(ticket_id, step_order);

			-- Create uploads table
			CREATE TABLE uploads (
				id UUID PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				digest VARCHAR(64) NOT NULL,
				mime VARCHAR(255) NOT NULL,
				size BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_uploads_owner_id ON uploads(owner_id);

			-- Create directory tables
			CREATE TABLE users (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL
			);

			CREATE TABLE labels (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL
			);

			CREATE TABLE users_labels (
				user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				label_id VARCHAR(255) NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
				PRIMARY KEY (user_id, label_id)
			);

			CREATE INDEX idx_users_labels_label_id ON users_labels(label_id);
		`,
	}
}
