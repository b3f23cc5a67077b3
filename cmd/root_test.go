package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/config"
	"github.com/sells-group/lead-intel/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"serve", "migrate", "import", "queue", "xref", "enrich", "rescore", "webhooks"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "lead-intel", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestValidationMode(t *testing.T) {
	assert.Equal(t, "serve", validationMode(serveCmd))
	assert.Equal(t, "enrich", validationMode(enrichCmd))
	assert.Equal(t, "import", validationMode(importCmd))
	assert.Equal(t, "migrate", validationMode(migrateCmd))
	assert.Equal(t, "queue", validationMode(queueGenerateCmd))
	assert.Equal(t, "queue", validationMode(rootCmd))
}

func TestApplyLogFlags(t *testing.T) {
	t.Cleanup(func() { logLevel, logFormat = "", "" })

	c := &config.Config{Log: config.LogConfig{Level: "info", Format: "json"}}
	applyLogFlags(c)
	assert.Equal(t, config.LogConfig{Level: "info", Format: "json"}, c.Log)

	logLevel, logFormat = "debug", "console"
	applyLogFlags(c)
	assert.Equal(t, config.LogConfig{Level: "debug", Format: "console"}, c.Log)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestQueueCommand_Flags(t *testing.T) {
	require.NotNil(t, queueCmd.PersistentFlags().Lookup("date"))
	flag := queueGenerateCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "-1", flag.DefValue)
}

func TestEnrichCommand_RejectsBadIDs(t *testing.T) {
	err := enrichCmd.RunE(enrichCmd, []string{"12", "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid owner id "abc"`)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:   config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "leads.db")},
		Server:  config.ServerConfig{PageSize: 25},
		Scoring: config.ScoringConfig{RejectedWindowDays: 30, HighWindowDays: 30, NormalWindowDays: 90},
		Queue:   config.QueueConfig{Timezone: "America/Sao_Paulo"},
		Enrich:  config.EnrichConfig{Concurrency: 2, TimeoutSecs: 1, FreshnessDays: 30, MaxAttempts: 1},
		Webhook: config.WebhookConfig{Workers: 1, MaxAttempts: 1, BackoffSecs: []int{1}, TimeoutSecs: 1, QueueSize: 4},
		Locks:   config.LocksConfig{WaitMs: 100},
		Import:  config.ImportConfig{TempDir: t.TempDir(), TimeoutSecs: 5},
	}
}

func TestNewApp_WiresSQLite(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NoError(t, a.Store.Ping(ctx))
	res, err := a.Queue.Generate(ctx, "2026-05-04", 0)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.NotNil(t, a.server(testConfig(t)).Handler())
}

func TestNewApp_BadTimezone(t *testing.T) {
	c := testConfig(t)
	c.Queue.Timezone = "Mars/Olympus"
	_, err := newApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}

func TestNewApp_BadScoringWindows(t *testing.T) {
	c := testConfig(t)
	c.Scoring.NormalWindowDays = 10
	_, err := newApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "normal_window_days")
}

func TestWebhookConfig_Backoff(t *testing.T) {
	wc := webhookConfig(config.WebhookConfig{BackoffSecs: []int{1, 30}})
	assert.Equal(t, []time.Duration{time.Second, 30 * time.Second}, wc.Backoff)
}

func TestFormatQueue(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	formatQueue(&buf, []model.ContactQueueItem{
		{ID: 7, OwnerID: 3, Position: 1, Priority: model.PriorityCritical, Status: model.QueueStatusPending, Reason: "rejected 2 days ago"},
		{ID: 8, OwnerID: 4, Position: 2, Priority: model.PriorityLow, Status: model.QueueStatusSkipped, Reason: strings.Repeat("x", 80)},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "critical")
	assert.Contains(t, lines[2], "rejected 2 days ago")
	assert.Contains(t, lines[3], "skipped")
	assert.True(t, strings.HasSuffix(lines[3], "..."))
}

func TestFormatWebhooks(t *testing.T) {
	color.NoColor = true
	at := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatWebhooks(&buf, []model.WebhookConfig{
		{ID: 1, EventType: "lead.converted", URL: "https://hooks.example.com/a", IsActive: true, LastTriggeredAt: &at},
		{ID: 2, EventType: "lead.deleted", URL: "https://hooks.example.com/b", FailureCount: 3},
	})
	out := buf.String()
	assert.Contains(t, out, "2026-05-04 12:30")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "no")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "São ...", truncate("São Paulo e região", 7))
}
