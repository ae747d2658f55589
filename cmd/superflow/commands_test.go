package main

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftai-co-in/superflow/internal/email"
	"github.com/craftai-co-in/superflow/internal/netutil"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/server"
	"github.com/craftai-co-in/superflow/internal/store"
)

type capturingSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (c *capturingSender) Send(_ context.Context, msg email.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *capturingSender) messages() []email.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]email.Message(nil), c.sent...)
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestVersionCmd(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := Version, BuildTime, GitCommit
	defer func() {
		Version, BuildTime, GitCommit = oldVersion, oldBuildTime, oldGitCommit
	}()

	Version = "1.2.3"
	BuildTime = "2026-10-01"
	GitCommit = "abcdef"
	output := execute(t, "version")
	assert.Contains(t, output, "Superflow 1.2.3")
	assert.Contains(t, output, "Built: 2026-10-01")
	assert.Contains(t, output, "Commit: abcdef")

	BuildTime = "unknown"
	GitCommit = "unknown"
	output = execute(t, "version")
	assert.NotContains(t, output, "Built:")
	assert.NotContains(t, output, "Commit:")
}

func TestPlansCmd(t *testing.T) {
	output := execute(t, "plans")
	assert.Contains(t, output, "PLAN")
	assert.Contains(t, output, "INR 499.00")
	assert.Contains(t, output, "unlimited")
}

func TestSweepCmdDowngradesExpiredPlans(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SUPERFLOW_DATA_DIR", dir)
	t.Setenv("SUPERFLOW_PORT", "")
	t.Setenv("SUPERFLOW_FREE_URL", "")
	t.Setenv("SUPERFLOW_PREMIUM_URL", "")
	t.Setenv("CASHFREE_ENV", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	t.Setenv("SUPERFLOW_LOG_FILE", "")

	s, err := store.Open(dir)
	require.NoError(t, err)
	ctx := context.Background()
	u := &store.User{Email: "lapsed@example.com"}
	require.NoError(t, s.CreateUser(ctx, u))
	past := time.Now().Add(-time.Hour)
	_, err = s.SetPlan(ctx, u.ID, plans.PlanPro, 100, &past)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	sender := &capturingSender{}
	oldNotifierFor := notifierFor
	notifierFor = func(cfg *server.Config, _ *netutil.Dialer) *email.Notifier {
		return email.NewNotifier(sender, cfg.EmailFrom, cfg.PremiumURL+"/dashboard", cfg.FreeURL+"/upgrade")
	}
	t.Cleanup(func() { notifierFor = oldNotifierFor })

	output := execute(t, "sweep")
	assert.Contains(t, output, "Downgraded 1 expired plan(s)")

	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "lapsed@example.com", sent[0].To)
	assert.Equal(t, "plan-expired", sent[0].Tag)

	s, err = store.Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, plans.PlanFree, got.PlanType)
	assert.False(t, got.IsPremium)
}
