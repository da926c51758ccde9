package secrets

// DefaultRules returns the built-in detection rules, tuned for what people
// paste into work chats.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "private-key",
			Description: "PEM private key header",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Severity:    "high",
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key id",
			Pattern:     `(?:AKIA|ASIA|AGPA|AIDA|AROA)[A-Z0-9]{16}`,
			Severity:    "high",
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}`,
			Severity:    "high",
		},
		{
			ID:          "gitlab-token",
			Description: "GitLab personal access token",
			Pattern:     `glpat-[A-Za-z0-9\-]{20,}`,
			Severity:    "high",
		},
		{
			ID:          "slack-token",
			Description: "Slack token",
			Pattern:     `xox[baprs]-[A-Za-z0-9\-]{10,}`,
			Severity:    "high",
		},
		{
			ID:          "telegram-bot-token",
			Description: "Telegram bot token",
			Pattern:     `\b[0-9]{8,10}:[A-Za-z0-9_-]{35}\b`,
			Severity:    "high",
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API key",
			Pattern:     `sk-ant-[A-Za-z0-9_\-]{32,}`,
			Severity:    "high",
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Pattern:     `sk-(?:proj-)?[A-Za-z0-9_\-]{32,}`,
			Severity:    "high",
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    "medium",
		},
		{
			ID:          "connection-url",
			Description: "Connection URL with embedded credentials",
			Pattern:     `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp|nats)://[^:\s/]+:[^@\s]+@\S+`,
			Severity:    "high",
		},
		{
			ID:          "password-assignment",
			Description: "Password or secret given inline",
			Pattern:     `(?i)(?:password|passwd|pwd|secret|token|пароль)\s*[:=]\s*\S{6,}`,
			Keywords:    []string{"password", "passwd", "pwd", "secret", "token", "пароль"},
			Severity:    "high",
		},
		{
			ID:          "api-key-assignment",
			Description: "API key given inline",
			Pattern:     `(?i)api[_-]?key\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}`,
			Keywords:    []string{"api"},
			Severity:    "high",
		},
	}
}
