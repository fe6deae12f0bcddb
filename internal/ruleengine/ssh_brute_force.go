package ruleengine

import (
	"strings"
	"sync"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// R1: SSH brute force. Tracks failed-login timestamps per source IP in a
// fixed window; once the count within the window reaches threshold, fires
// once per cooldown period (grounded on aegis-agent's
// internal/analysis/engine.py _check_ssh_brute_force).
type sshBruteForceDetector struct {
	threshold int
	window    time.Duration
	cooldown  *cooldownTable

	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newSSHBruteForceDetector(threshold int, window, cooldown time.Duration) *sshBruteForceDetector {
	return &sshBruteForceDetector{
		threshold: threshold,
		window:    window,
		cooldown:  newCooldownTable(cooldown),
		attempts:  map[string][]time.Time{},
	}
}

// isFailedSSH mirrors rules.py's check_failed_ssh.
func isFailedSSH(message string) bool {
	if strings.Contains(message, "Failed password for") {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "authentication failure") && strings.Contains(lower, "sshd")
}

// extractSourceIP parses "Failed password for ... from <ip> port ..." the
// same way the original agent does: split on "from " then " port ".
func extractSourceIP(message string) string {
	idx := strings.Index(message, "from ")
	if idx < 0 {
		return ""
	}
	rest := message[idx+len("from "):]
	portIdx := strings.Index(rest, " port ")
	if portIdx < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:portIdx])
}

func (d *sshBruteForceDetector) evaluate(rec models.LogRecord, now time.Time, agentID string) *models.Alert {
	message := rec.Message()
	if !isFailedSSH(message) {
		return nil
	}
	ip := extractSourceIP(message)
	if ip == "" {
		return nil
	}

	d.mu.Lock()
	cutoff := now.Add(-d.window)
	attempts := append(d.attempts[ip], now)
	trimmed := attempts[:0]
	for _, t := range attempts {
		if !t.Before(cutoff) {
			trimmed = append(trimmed, t)
		}
	}
	d.attempts[ip] = trimmed
	count := len(trimmed)
	d.mu.Unlock()

	if count < d.threshold {
		return nil
	}
	if !d.cooldown.allow("ssh_brute_force:"+ip, now) {
		return nil
	}

	return newAlert(agentID, "Agent: SSH Brute Force Detected", models.SeverityHigh, now, map[string]interface{}{
		"source_ip":       ip,
		"attempt_count":   count,
		"window_seconds":  int(d.window.Seconds()),
		"sample_message":  message,
		"hostname":        rec.Host,
	})
}
