// Package policy classifies proposed tool actions by risk and matches shell
// commands against the operator-maintained allowlist.
package policy

import (
	"regexp"
	"strings"
)

// Risk is the classification recorded on an approval entry.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// Pattern tables for shell command classification. Order matters: HIGH is
// checked before MEDIUM.
var highRiskCommands = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\b`), // recursive delete
	regexp.MustCompile(`\brm\s+-r\b`),
	regexp.MustCompile(`\b(sudo|su)\b`),                                // privilege escalation
	regexp.MustCompile(`\b(chmod|chown|chgrp)\b`),                      // permission/ownership change
	regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`),          // shutdown family
	regexp.MustCompile(`\binit\s+[06]\b`),
	regexp.MustCompile(`\bdd\b.*\bof=/dev/`),                           // raw block-device write
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`\b(killall|pkill)\b`),                          // mass kill
	regexp.MustCompile(`\bkill\s+-9\s+-1\b`),
}

var mediumRiskCommands = []*regexp.Regexp{
	regexp.MustCompile(`\b(apt|apt-get|yum|dnf|pacman|brew|pip3?|npm|gem|cargo)\s+(install|add|remove|uninstall)\b`),
	regexp.MustCompile(`\bgit\s+push\s+.*--force\b`),
	regexp.MustCompile(`\bgit\s+(reset\s+--hard|clean\s+-[a-zA-Z]*f|branch\s+-D)\b`),
	regexp.MustCompile(`\bdocker\s+(rm|rmi|kill|stop|prune|system\s+prune)\b`),
	regexp.MustCompile(`\bkubectl\s+(delete|apply|scale|drain|cordon|rollout)\b`),
	regexp.MustCompile(`\b(systemctl|service)\s+(start|stop|restart|reload|enable|disable|mask)\b`),
	regexp.MustCompile(`\blaunchctl\s+(load|unload|bootstrap|bootout)\b`),
}

// criticalPathPrefixes are filesystem prefixes whose mutation is HIGH risk.
var criticalPathPrefixes = []string{
	"/etc/", "/boot/", "/usr/", "/bin/", "/sbin/", "/var/", "/dev/",
	"/System/", "/Library/",
}

// credentialDirFragments flag writes into credential stores.
var credentialDirFragments = []string{
	".ssh", ".aws", ".gnupg", ".gpg", ".kube", ".docker/config",
}

// ClassifyCommand returns the risk class for a shell command per the ledger
// rules: destructive or privileged patterns are HIGH, mutating-but-common
// operations are MEDIUM, everything else LOW.
func ClassifyCommand(command string) Risk {
	cmd := strings.TrimSpace(command)
	for _, re := range highRiskCommands {
		if re.MatchString(cmd) {
			return RiskHigh
		}
	}
	for _, re := range mediumRiskCommands {
		if re.MatchString(cmd) {
			return RiskMedium
		}
	}
	return RiskLow
}

// ClassifyFileWrite returns the risk class for writing to path. Critical OS
// prefixes, credential directories, .env files and anything smelling of
// secrets are HIGH; other writes are MEDIUM.
func ClassifyFileWrite(path string) Risk {
	p := strings.TrimSpace(path)
	lower := strings.ToLower(p)

	for _, prefix := range criticalPathPrefixes {
		if strings.HasPrefix(p, prefix) {
			return RiskHigh
		}
	}
	for _, frag := range credentialDirFragments {
		if strings.Contains(p, frag) {
			return RiskHigh
		}
	}
	base := lower
	if i := strings.LastIndexByte(lower, '/'); i >= 0 {
		base = lower[i+1:]
	}
	if base == ".env" || strings.HasPrefix(base, ".env.") {
		return RiskHigh
	}
	if strings.Contains(lower, "secret") || strings.Contains(lower, "password") || strings.Contains(lower, "credential") {
		return RiskHigh
	}
	return RiskMedium
}

// ClassifyToolCall maps a tool call to its risk class for the approval
// ledger. Tools without a special rule default to LOW.
func ClassifyToolCall(toolName string, args map[string]any) Risk {
	switch toolName {
	case "execute_command":
		cmd, _ := args["command"].(string)
		risk := ClassifyCommand(cmd)
		if risk == RiskLow {
			// A gated shell command is at least MEDIUM: it only reaches the
			// ledger because the allowlist did not cover it.
			return RiskMedium
		}
		return risk
	case "write_file", "edit_session":
		path, _ := args["path"].(string)
		if path == "" {
			path, _ = args["session_file"].(string)
		}
		return ClassifyFileWrite(path)
	case "slack_send":
		// Outbound external message.
		return RiskMedium
	default:
		return RiskLow
	}
}
