package policy

import "testing"

func TestClassifyCommand(t *testing.T) {
	cases := []struct {
		command string
		want    Risk
	}{
		{"ls -la", RiskLow},
		{"cat README.md", RiskLow},
		{"git status", RiskLow},
		{"rm -rf /tmp/build", RiskHigh},
		{"rm -fr ./cache", RiskHigh},
		{"sudo apt-get update", RiskHigh},
		{"chmod 777 /data", RiskHigh},
		{"shutdown -h now", RiskHigh},
		{"dd if=/dev/zero of=/dev/sda", RiskHigh},
		{"mkfs.ext4 /dev/sdb1", RiskHigh},
		{"pkill -f node", RiskHigh},
		{"pip install requests", RiskMedium},
		{"npm install left-pad", RiskMedium},
		{"git push origin main --force", RiskMedium},
		{"git reset --hard HEAD~3", RiskMedium},
		{"docker rm web", RiskMedium},
		{"kubectl delete pod api-0", RiskMedium},
		{"systemctl restart nginx", RiskMedium},
		{"echo hello", RiskLow},
	}
	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			if got := ClassifyCommand(tc.command); got != tc.want {
				t.Errorf("ClassifyCommand(%q) = %s, want %s", tc.command, got, tc.want)
			}
		})
	}
}

func TestClassifyFileWrite(t *testing.T) {
	cases := []struct {
		path string
		want Risk
	}{
		{"notes/todo.md", RiskMedium},
		{"/etc/hosts", RiskHigh},
		{"/usr/local/bin/tool", RiskHigh},
		{"/home/dev/.ssh/authorized_keys", RiskHigh},
		{"configs/.env", RiskHigh},
		{".env.production", RiskHigh},
		{"deploy/secrets.yaml", RiskHigh},
		{"db/password.txt", RiskHigh},
		{"src/main.go", RiskMedium},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			if got := ClassifyFileWrite(tc.path); got != tc.want {
				t.Errorf("ClassifyFileWrite(%q) = %s, want %s", tc.path, got, tc.want)
			}
		})
	}
}

func TestClassifyToolCall(t *testing.T) {
	t.Run("gated command is at least medium", func(t *testing.T) {
		got := ClassifyToolCall("execute_command", map[string]any{"command": "make deploy"})
		if got != RiskMedium {
			t.Errorf("got %s, want MEDIUM", got)
		}
	})

	t.Run("destructive command stays high", func(t *testing.T) {
		got := ClassifyToolCall("execute_command", map[string]any{"command": "sudo rm -rf /data"})
		if got != RiskHigh {
			t.Errorf("got %s, want HIGH", got)
		}
	})

	t.Run("file write uses path", func(t *testing.T) {
		got := ClassifyToolCall("write_file", map[string]any{"path": "/etc/crontab"})
		if got != RiskHigh {
			t.Errorf("got %s, want HIGH", got)
		}
	})

	t.Run("edit_session falls back to session_file", func(t *testing.T) {
		got := ClassifyToolCall("edit_session", map[string]any{"session_file": "executor-1.session.yaml"})
		if got != RiskMedium {
			t.Errorf("got %s, want MEDIUM", got)
		}
	})

	t.Run("slack_send is medium", func(t *testing.T) {
		if got := ClassifyToolCall("slack_send", nil); got != RiskMedium {
			t.Errorf("got %s, want MEDIUM", got)
		}
	})

	t.Run("unknown tool is low", func(t *testing.T) {
		if got := ClassifyToolCall("read_file", map[string]any{"path": "a.txt"}); got != RiskLow {
			t.Errorf("got %s, want LOW", got)
		}
	})
}
