package ruleengine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// commandCategory is one family of dangerous shell commands, each with its
// own severity (aegis-agent/internal/analysis/command_rules.py
// DANGEROUS_COMMANDS + _get_severity_for_category).
type commandCategory struct {
	name     string
	severity models.Severity
	reason   string
	patterns []*regexp.Regexp
}

func compileCategory(name string, severity models.Severity, reason string, patterns ...string) commandCategory {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile("(?i)" + p)
	}
	return commandCategory{name: name, severity: severity, reason: reason, patterns: compiled}
}

var dangerousCategories = []commandCategory{
	compileCategory("data_destruction", models.SeverityCritical, "command can destroy data or system files",
		`\brm\s+-rf\s+/`, `\bdd\s+if=`, `\bmkfs\.`, `\bshred\b`, `:\(\)\{.*:\|:&\};:`),
	compileCategory("privilege_escalation", models.SeverityHigh, "attempt to gain elevated privileges",
		`\bsudo\s+`, `\bsu\s+`, `\bsudo\s+-i`, `\bsudo\s+su`, `chmod\s+[u+]?s\b`),
	compileCategory("network_recon", models.SeverityMedium, "network reconnaissance or scanning activity",
		`\bnmap\b`, `\bnc\s+-l`, `\bnetcat\b`, `\bmasscan\b`, `\bping\s+-c\s+\d+`),
	compileCategory("data_exfiltration", models.SeverityCritical, "potential data theft to an external system",
		`\bscp\s+.*@\d+\.\d+`, `\brsync\s+.*@`, `\bcurl\s+.*-F`, `\bwget\s+.*-O-\s+\|`, `\bbase64\b.*\|.*curl`),
	compileCategory("reverse_shell", models.SeverityCritical, "reverse shell or remote access attempt",
		`bash\s+-i\s+>&\s+/dev/tcp/`, `nc.*-e\s+/bin/[bs]h`, `python.*socket.*connect`, `perl.*Socket.*connect`, `/bin/sh.*0>&1`),
	compileCategory("crypto_mining", models.SeverityHigh, "unauthorized cryptocurrency mining",
		`\bxmrig\b`, `\bminerd\b`, `\bcpuminer\b`, `\bccminer\b`, `stratum\+tcp://`),
	compileCategory("persistence", models.SeverityHigh, "attempt to establish persistence on the system",
		`crontab\s+-e`, `at\s+now\s+\+`, `systemctl\s+(enable|start)`, `\.bashrc`, `\.bash_profile`, `authorized_keys`),
	compileCategory("credential_access", models.SeverityCritical, "accessing credential files or clearing the audit trail",
		`/etc/shadow`, `/etc/passwd`, `\.ssh/id_rsa`, `\.aws/credentials`, `\.docker/config\.json`, `history\s+-c`),
}

var suspiciousArgPatterns = []*regexp.Regexp{
	regexp.MustCompile(`--no-check-certificate`),
	regexp.MustCompile(`-k\b`),
	regexp.MustCompile(`--insecure`),
	regexp.MustCompile(`/dev/null\s+2>&1`),
	regexp.MustCompile(`&\s*$`),
}

var obfuscationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\\x[0-9a-f]{2}`),
	regexp.MustCompile(`\$\([^)]{50,}\)`),
	regexp.MustCompile(`(?i)eval\s+`),
	regexp.MustCompile(`(?i)base64\s+-d`),
	regexp.MustCompile(`\$\{.*:.*:.*\}`),
}

var massFileOpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`find\s+.*-exec\s+.*\{\}`),
	regexp.MustCompile(`for.*in.*\*.*do`),
	regexp.MustCompile(`xargs\s+`),
}

var massFileOps = []string{"rm", "mv", "chmod", "chown", "encrypt", "openssl"}

// commandRuleDetector is R3: suspicious shell command detection. Unlike R1/R2
// it is stateless per evaluation (no window), only cooldown-gated per
// (rule, command prefix) pair, matching _should_skip_alert's use of the
// first 50 characters of the command as the dedup key.
type commandRuleDetector struct {
	cooldown *cooldownTable
}

func newCommandRuleDetector(cooldown time.Duration) *commandRuleDetector {
	return &commandRuleDetector{cooldown: newCooldownTable(cooldown)}
}

func (d *commandRuleDetector) evaluate(ev models.CommandEvent, now time.Time, agentID string) *models.Alert {
	if ev.Command == "" {
		return nil
	}

	ruleName, severity, details := checkDangerousCommand(ev.Command)
	if ruleName == "" {
		ruleName, severity, details = checkSuspiciousArguments(ev.Command)
	}
	if ruleName == "" {
		ruleName, severity, details = checkObfuscation(ev.Command)
	}
	if ruleName == "" {
		ruleName, severity, details = checkMassFileOperation(ev.Command)
	}
	if ruleName == "" {
		return nil
	}

	key := ruleName + ":" + truncate(ev.Command, 50)
	if !d.cooldown.allow(key, now) {
		return nil
	}

	details["user"] = ev.User
	details["shell"] = ev.Shell
	details["working_directory"] = ev.WorkingDirectory

	return newAlert(agentID, ruleName, severity, now, details)
}

func checkDangerousCommand(command string) (string, models.Severity, map[string]interface{}) {
	for _, cat := range dangerousCategories {
		for _, p := range cat.patterns {
			if p.MatchString(command) {
				return fmt.Sprintf("Dangerous Command Detected: %s", titleCase(cat.name)), cat.severity, map[string]interface{}{
					"command":  command,
					"category": cat.name,
					"reason":   cat.reason,
				}
			}
		}
	}
	return "", "", nil
}

func checkSuspiciousArguments(command string) (string, models.Severity, map[string]interface{}) {
	for _, p := range suspiciousArgPatterns {
		if p.MatchString(command) {
			return "Suspicious Command Arguments", models.SeverityMedium, map[string]interface{}{
				"command": command,
				"reason":  "command uses potentially malicious arguments",
			}
		}
	}
	return "", "", nil
}

func checkObfuscation(command string) (string, models.Severity, map[string]interface{}) {
	for _, p := range obfuscationPatterns {
		if p.MatchString(command) {
			return "Obfuscated Command Detected", models.SeverityHigh, map[string]interface{}{
				"command": command,
				"reason":  "command uses obfuscation to hide intent",
			}
		}
	}
	return "", "", nil
}

func checkMassFileOperation(command string) (string, models.Severity, map[string]interface{}) {
	lower := strings.ToLower(command)
	for _, p := range massFileOpPatterns {
		if !p.MatchString(command) {
			continue
		}
		for _, op := range massFileOps {
			if strings.Contains(lower, op) {
				return "Mass File Operation Detected", models.SeverityHigh, map[string]interface{}{
					"command":   command,
					"operation": op,
					"reason":    "command performs operations on multiple files (potential ransomware)",
				}
			}
		}
	}
	return "", "", nil
}

func titleCase(category string) string {
	parts := strings.Split(category, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
