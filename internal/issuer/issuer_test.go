package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/store"
)

func newTestIssuer(ttl time.Duration, onExpire func()) *Issuer {
	i := New(store.NewMemory(), ttl, onExpire)
	i.now = func() time.Time { return time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC) }
	return i
}

func TestIssuePayloadAndCountdown(t *testing.T) {
	i := newTestIssuer(2*time.Minute, nil)

	p, err := i.Issue(context.Background(), "mr-jones")
	require.NoError(t, err)
	assert.Equal(t, "mr-jones", p.Subject)
	assert.Equal(t, i.now().UnixMilli(), p.Timestamp)

	active, remaining, ok := i.Active()
	require.True(t, ok)
	assert.Equal(t, p, active)
	assert.Equal(t, 120, remaining)

	raw, err := p.Encode()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "mr-jones", decoded["subject"])
}

func TestIssueRequiresIdentity(t *testing.T) {
	i := newTestIssuer(time.Minute, nil)
	_, err := i.Issue(context.Background(), "")
	assert.Error(t, err)
}

func TestIssueReplacesActiveCountdown(t *testing.T) {
	i := newTestIssuer(2*time.Minute, nil)

	first, err := i.Issue(context.Background(), "mr-jones")
	require.NoError(t, err)
	second, err := i.Issue(context.Background(), "mr-jones")
	require.NoError(t, err)

	active, remaining, ok := i.Active()
	require.True(t, ok)
	assert.Equal(t, second, active)
	assert.Equal(t, 120, remaining)
	_ = first

	// Two issuances, two log entries, most recent first.
	history := i.History(context.Background())
	require.Len(t, history, 2)
	assert.Equal(t, "QR Generation", history[0].Type)
	assert.Equal(t, "mr-jones", history[0].Subject)
}

func TestCountdownExpiryInvalidatesCode(t *testing.T) {
	expired := make(chan struct{})
	i := newTestIssuer(time.Second, func() { close(expired) })

	_, err := i.Issue(context.Background(), "mr-jones")
	require.NoError(t, err)

	select {
	case <-expired:
	case <-time.After(3 * time.Second):
		t.Fatal("countdown never fired")
	}
	_, _, ok := i.Active()
	assert.False(t, ok, "expired code is invalidated")
}

func TestCancelStopsCountdownWithoutExpiry(t *testing.T) {
	fired := false
	i := newTestIssuer(time.Second, func() { fired = true })

	_, err := i.Issue(context.Background(), "mr-jones")
	require.NoError(t, err)
	i.Cancel()

	_, _, ok := i.Active()
	assert.False(t, ok)

	time.Sleep(1500 * time.Millisecond)
	assert.False(t, fired, "cancel must not fire the expiry side effect")
}

func TestRenderPNG(t *testing.T) {
	i := newTestIssuer(time.Minute, nil)
	png, err := i.RenderPNG(Payload{Subject: "mr-jones", Timestamp: 1000}, 200)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestClearHistory(t *testing.T) {
	i := newTestIssuer(time.Minute, nil)
	_, err := i.Issue(context.Background(), "mr-jones")
	require.NoError(t, err)
	require.NotEmpty(t, i.History(context.Background()))

	require.NoError(t, i.ClearHistory(context.Background()))
	assert.Empty(t, i.History(context.Background()))
}

func TestSessionCodes(t *testing.T) {
	i := newTestIssuer(time.Minute, nil)

	first, err := i.NewSessionCode(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^SESSION-\d{8}-\d{6}-\d{1,4}$`), first.Code)

	second, err := i.NewSessionCode(context.Background())
	require.NoError(t, err)

	codes := i.Sessions(context.Background())
	require.Len(t, codes, 2)
	assert.Equal(t, second.Code, codes[0].Code, "most recent first")
	assert.Equal(t, first.Code, codes[1].Code)
}
