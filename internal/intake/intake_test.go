package intake

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/record"
	"qrattend/internal/store"
)

func newTestIntake(t *testing.T) (*Intake, *record.Store) {
	t.Helper()
	records := record.NewStore(store.NewMemory())
	// cooldown 0 keeps sequential scans in one test from tripping the busy flag
	in := New(records, 0, 0, 0)
	return in, records
}

func payload(subject string, ts int64) string {
	return fmt.Sprintf(`{"subject":%q,"timestamp":%d}`, subject, ts)
}

func atMillis(in *Intake, ms int64) {
	in.now = func() time.Time { return time.UnixMilli(ms) }
}

func TestScanCommitsValidPayload(t *testing.T) {
	in, records := newTestIntake(t)
	atMillis(in, 1000)

	rec, err := in.Scan(context.Background(), payload("Math", 1000), "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Math", rec.Subject)
	assert.Equal(t, "alice", rec.StudentName)
	assert.Equal(t, int64(1000), rec.ScannedAt)
	assert.Equal(t, int64(1000), rec.QRTimestamp)
	assert.Equal(t, time.UnixMilli(1000).Format(record.DateLayout), rec.Date)
	assert.Equal(t, time.UnixMilli(1000).Format(record.MonthLayout), rec.Month)

	assert.Len(t, records.Load(context.Background()), 1)
}

func TestScanRejectsDuplicateWithinWindow(t *testing.T) {
	in, records := newTestIntake(t)
	atMillis(in, 1000)

	_, err := in.Scan(context.Background(), payload("Math", 1000), "alice")
	require.NoError(t, err)

	// Same subject/student again shortly after: suppressed.
	atMillis(in, 5000)
	rec, err := in.Scan(context.Background(), payload("Math", 1000), "alice")
	assert.ErrorIs(t, err, ErrAlreadyRecorded)
	assert.Nil(t, rec)
	assert.Len(t, records.Load(context.Background()), 1)

	// A regenerated code within the 5-minute window is the same event.
	atMillis(in, 130_000)
	_, err = in.Scan(context.Background(), payload("Math", 130_000), "alice")
	assert.ErrorIs(t, err, ErrAlreadyRecorded)

	// Outside the window it is a new attendance event.
	atMillis(in, 400_000)
	_, err = in.Scan(context.Background(), payload("Math", 400_000), "alice")
	assert.NoError(t, err)
	assert.Len(t, records.Load(context.Background()), 2)
}

func TestScanDuplicateScopedToStudentAndSubject(t *testing.T) {
	in, _ := newTestIntake(t)
	atMillis(in, 1000)

	_, err := in.Scan(context.Background(), payload("Math", 1000), "alice")
	require.NoError(t, err)

	_, err = in.Scan(context.Background(), payload("Math", 1000), "bob")
	assert.NoError(t, err, "other students may scan the same code")

	_, err = in.Scan(context.Background(), payload("Physics", 1000), "alice")
	assert.NoError(t, err, "other subjects are separate events")
}

func TestScanRejectsExpired(t *testing.T) {
	in, records := newTestIntake(t)

	atMillis(in, 121_001)
	rec, err := in.Scan(context.Background(), payload("Math", 1000), "alice")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Nil(t, rec)
	assert.Empty(t, records.Load(context.Background()))

	// Exactly at the window boundary the code is still valid.
	atMillis(in, 121_000)
	_, err = in.Scan(context.Background(), payload("Math", 1000), "alice")
	assert.NoError(t, err)
}

func TestScanRejectsMalformedPayload(t *testing.T) {
	in, records := newTestIntake(t)
	atMillis(in, 1000)

	for _, raw := range []string{"", "   ", "not json", `"just a string"`} {
		rec, err := in.Scan(context.Background(), raw, "alice")
		assert.ErrorIs(t, err, ErrMalformedPayload, "payload %q", raw)
		assert.Nil(t, rec)
	}
	assert.Empty(t, records.Load(context.Background()))
}

func TestScanRejectsMissingFields(t *testing.T) {
	in, _ := newTestIntake(t)
	atMillis(in, 1000)

	cases := []string{
		`{}`,
		`{"subject":"Math"}`,
		`{"timestamp":1000}`,
		`{"subject":"","timestamp":1000}`,
		`{"subject":"Math","timestamp":0}`,
		`{"subject":null,"timestamp":1000}`,
	}
	for _, raw := range cases {
		_, err := in.Scan(context.Background(), raw, "alice")
		assert.ErrorIs(t, err, ErrMissingFields, "payload %s", raw)
	}
}

func TestScanRejectsInvalidFields(t *testing.T) {
	in, _ := newTestIntake(t)
	atMillis(in, 1000)

	cases := []string{
		`{"subject":"M","timestamp":1000}`,                    // too short
		`{"subject":"` + longSubject(51) + `","timestamp":1}`, // too long
		`{"subject":"Math<script>","timestamp":1000}`,
		`{"subject":"Ma&th","timestamp":1000}`,
		`{"subject":42,"timestamp":1000}`,
		`{"subject":"Math","timestamp":"abc"}`,
		`{"subject":"Math","timestamp":true}`,
	}
	for _, raw := range cases {
		_, err := in.Scan(context.Background(), raw, "alice")
		assert.ErrorIs(t, err, ErrInvalidField, "payload %s", raw)
	}
}

func TestScanTrimsSubjectAndAcceptsNumericString(t *testing.T) {
	in, _ := newTestIntake(t)
	atMillis(in, 1000)

	rec, err := in.Scan(context.Background(), `{"subject":"  Math  ","timestamp":"1000"}`, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Math", rec.Subject)
	assert.Equal(t, int64(1000), rec.QRTimestamp)
}

func TestScanBusyFlagAndCooldown(t *testing.T) {
	records := record.NewStore(store.NewMemory())
	in := New(records, 0, 0, 60*time.Millisecond)
	atMillis(in, 1000)

	_, err := in.Scan(context.Background(), payload("Math", 1000), "alice")
	require.NoError(t, err)

	// Immediately after completion the flag is still held for the cooldown.
	_, err = in.Scan(context.Background(), payload("Physics", 1000), "alice")
	assert.ErrorIs(t, err, ErrScanInProgress)
	assert.Len(t, records.Load(context.Background()), 1)

	time.Sleep(120 * time.Millisecond)
	_, err = in.Scan(context.Background(), payload("Physics", 1000), "alice")
	assert.NoError(t, err)
}

func TestValidateSubject(t *testing.T) {
	got, err := ValidateSubject("  Linear Algebra ")
	require.NoError(t, err)
	assert.Equal(t, "Linear Algebra", got)

	for _, bad := range []string{"x", `a"b`, "a'b", "a<b", "a>b", "a&b", longSubject(51)} {
		_, err := ValidateSubject(bad)
		assert.ErrorIs(t, err, ErrInvalidField, "subject %q", bad)
	}
}

func longSubject(n int) string {
	s := make([]byte, n)
	for i := range s {
		s[i] = 'a'
	}
	return string(s)
}
