package matchday_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// composeService はdocker-compose.ymlから指定サービスのブロックを切り出す。
func composeService(content, name string) string {
	start := strings.Index(content, "\n  "+name+":\n")
	if start < 0 {
		return ""
	}
	rest := content[start+1:]
	lines := strings.Split(rest, "\n")
	var block []string
	for i, line := range lines {
		// インデントが浅い行で次のサービスまたはトップレベルキーに達する
		if i > 0 && line != "" && !strings.HasPrefix(line, "   ") {
			break
		}
		block = append(block, line)
	}
	return strings.Join(block, "\n")
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") {
		t.Errorf("final stage should use distroless, got: %s", lastFrom)
	}
}

func TestDockerfileBuildsMatchdayBinary(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "./cmd/matchday") {
		t.Error("Dockerfile should build ./cmd/matchday")
	}
	if !strings.Contains(content, `ENTRYPOINT ["/usr/local/bin/matchday"]`) {
		t.Error("Dockerfile should use the matchday binary as ENTRYPOINT")
	}
}

// distrolessにはシェルもcurlもないため、ヘルスチェックはバイナリのサブコマンドで行う
func TestDockerfileHealthcheckUsesSubcommand(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, `"healthcheck"]`) {
		t.Error("Dockerfile HEALTHCHECK should run the healthcheck subcommand")
	}
}

func TestDockerComposeServices(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	for _, svc := range []string{"db", "migrate", "api", "worker"} {
		if composeService(content, svc) == "" {
			t.Errorf("docker-compose.yml should contain service %q", svc)
		}
	}
	if !strings.Contains(composeService(content, "db"), "image: postgres:") {
		t.Error("db service should use the PostgreSQL image")
	}
}

func TestDockerComposeSubcommands(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	for svc, cmd := range map[string]string{"api": "serve", "worker": "worker", "migrate": "migrate"} {
		if !strings.Contains(composeService(content, svc), `command: ["`+cmd+`"]`) {
			t.Errorf("%s service should run the %q subcommand", svc, cmd)
		}
	}
}

func TestDockerComposeEgressIsolation(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	if !strings.Contains(content, "internal: true") {
		t.Error("docker-compose.yml should define an internal network")
	}
	if !strings.Contains(composeService(content, "api"), "- external") {
		t.Error("api service should reach external APIs")
	}
	if strings.Contains(composeService(content, "worker"), "- external") {
		t.Error("worker service should not have egress")
	}
}
