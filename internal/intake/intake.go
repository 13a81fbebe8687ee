package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/record"
)

// Rejection outcomes. Each scan attempt terminates in exactly one
// outcome; no partial record is ever committed.
var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingFields    = errors.New("payload missing required fields")
	ErrInvalidField     = errors.New("invalid payload field")
	ErrExpired          = errors.New("qr code expired")
	ErrAlreadyRecorded  = errors.New("attendance already recorded")
	ErrScanInProgress   = errors.New("scan already in progress")
)

// Intake validates scanned payloads and commits accepted ones.
type Intake struct {
	records   *record.Store
	expiry    time.Duration
	dupWindow time.Duration
	cooldown  time.Duration

	// busy serializes attempts; it is held through validation and for
	// the cooldown after completion, so rapid re-decodes of the same
	// frame are dropped rather than queued.
	busy atomic.Bool
	now  func() time.Time
}

// New creates an intake over the record store. Non-positive durations
// take the defaults: 2m expiry, 5m duplicate window, 2s cooldown. The
// duplicate window is wider than the expiry window on purpose, so scans
// of a regenerated code still count as the same attendance event.
func New(records *record.Store, expiry, dupWindow, cooldown time.Duration) *Intake {
	if expiry <= 0 {
		expiry = 2 * time.Minute
	}
	if dupWindow <= 0 {
		dupWindow = 5 * time.Minute
	}
	if cooldown < 0 {
		cooldown = 2 * time.Second
	}
	return &Intake{
		records:   records,
		expiry:    expiry,
		dupWindow: dupWindow,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Scan runs one attempt through
// decode → parse → field checks → expiry → duplicate → commit.
// It fails closed: the first failing step rejects the attempt. A call
// arriving while another is in flight (or cooling down) returns
// ErrScanInProgress and is otherwise a no-op.
func (in *Intake) Scan(ctx context.Context, raw, studentName string) (*record.AttendanceRecord, error) {
	if !in.busy.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer in.release()

	if studentName == "" {
		return nil, fmt.Errorf("%w: no student logged in", ErrInvalidField)
	}

	subject, ts, err := parsePayload(raw)
	if err != nil {
		return nil, err
	}

	now := in.now()
	if now.UnixMilli()-ts > in.expiry.Milliseconds() {
		return nil, ErrExpired
	}

	if in.alreadyRecorded(ctx, studentName, subject, ts) {
		return nil, ErrAlreadyRecorded
	}

	rec := record.AttendanceRecord{
		ID:          uuid.NewString(),
		Subject:     subject,
		StudentName: studentName,
		Date:        now.Format(record.DateLayout),
		Time:        now.Format(record.TimeLayout),
		Month:       now.Format(record.MonthLayout),
		ScannedAt:   now.UnixMilli(),
		QRTimestamp: ts,
	}
	if err := in.records.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	return &rec, nil
}

// release holds the busy flag for the cooldown before clearing it.
func (in *Intake) release() {
	if in.cooldown == 0 {
		in.busy.Store(false)
		return
	}
	time.AfterFunc(in.cooldown, func() { in.busy.Store(false) })
}

// alreadyRecorded reports whether the store holds a record for the same
// (student, subject) whose payload timestamp falls within the duplicate
// window of ts.
func (in *Intake) alreadyRecorded(ctx context.Context, studentName, subject string, ts int64) bool {
	window := in.dupWindow.Milliseconds()
	for _, r := range in.records.Load(ctx) {
		if r.StudentName != studentName || r.Subject != subject {
			continue
		}
		delta := r.QRTimestamp - ts
		if delta < 0 {
			delta = -delta
		}
		if delta < window {
			return true
		}
	}
	return false
}

// parsePayload runs the decode/parse/field-validation steps, returning
// the trimmed subject and the payload timestamp in epoch ms.
func parsePayload(raw string) (string, int64, error) {
	if strings.TrimSpace(raw) == "" {
		return "", 0, ErrMalformedPayload
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "", 0, ErrMalformedPayload
	}

	subjVal, hasSubject := obj["subject"]
	tsVal, hasTimestamp := obj["timestamp"]
	if !hasSubject || !hasTimestamp || subjVal == nil || tsVal == nil {
		return "", 0, ErrMissingFields
	}

	subjStr, ok := subjVal.(string)
	if !ok {
		return "", 0, fmt.Errorf("%w: subject is not a string", ErrInvalidField)
	}
	if subjStr == "" {
		return "", 0, ErrMissingFields
	}
	subject, err := ValidateSubject(subjStr)
	if err != nil {
		return "", 0, err
	}

	ts, err := parseTimestamp(tsVal)
	if err != nil {
		return "", 0, err
	}
	if ts == 0 {
		return "", 0, ErrMissingFields
	}
	return subject, ts, nil
}

// ValidateSubject trims and checks a subject name: length in [2,50] and
// none of < > & " '.
func ValidateSubject(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return "", fmt.Errorf("%w: subject too short", ErrInvalidField)
	}
	if len(s) > 50 {
		return "", fmt.Errorf("%w: subject too long", ErrInvalidField)
	}
	if strings.ContainsAny(s, `<>&"'`) {
		return "", fmt.Errorf("%w: subject contains invalid characters", ErrInvalidField)
	}
	return s, nil
}

// parseTimestamp accepts a JSON number or a numeric string and requires
// a finite integral value.
func parseTimestamp(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("%w: timestamp not finite", ErrInvalidField)
		}
		return int64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: timestamp not a number", ErrInvalidField)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("%w: timestamp not a number", ErrInvalidField)
	}
}
