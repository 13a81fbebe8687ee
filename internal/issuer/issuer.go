package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"qrattend/internal/store"
)

// Payload is the content encoded into a QR code. Wire format is UTF-8
// JSON, schema {subject: string, timestamp: integer epoch ms}.
type Payload struct {
	Subject   string `json:"subject"`
	Timestamp int64  `json:"timestamp"`
}

// Encode serializes the payload to its wire form.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// HistoryEntry is one line of the issuance audit log.
type HistoryEntry struct {
	Subject string `json:"subject"`
	Time    string `json:"time"`
	Type    string `json:"type"`
}

const historyTimeLayout = "2006-01-02 15:04:05"

// Issuer produces QR payloads for a teaching session and owns the
// single active countdown. Issuing while a countdown runs cancels the
// previous one; at most one code is active per issuer.
type Issuer struct {
	kv       store.KV
	ttl      time.Duration
	onExpire func()
	now      func() time.Time

	mu        sync.Mutex
	active    *Payload
	remaining int // seconds left on the countdown
	stop      chan struct{}
}

// New creates an issuer with the given code validity window. onExpire
// fires once when the countdown reaches zero (after the active code has
// been invalidated); it may be nil.
func New(kv store.KV, ttl time.Duration, onExpire func()) *Issuer {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Issuer{
		kv:       kv,
		ttl:      ttl,
		onExpire: onExpire,
		now:      time.Now,
	}
}

// Issue creates a payload for identity stamped with the current time,
// records it in the issuance log, and (re)starts the countdown.
func (i *Issuer) Issue(ctx context.Context, identity string) (Payload, error) {
	if identity == "" {
		return Payload{}, errors.New("identity required")
	}
	now := i.now()
	p := Payload{Subject: identity, Timestamp: now.UnixMilli()}

	if err := i.appendHistory(ctx, HistoryEntry{
		Subject: identity,
		Time:    now.Format(historyTimeLayout),
		Type:    "QR Generation",
	}); err != nil {
		return Payload{}, err
	}

	i.mu.Lock()
	if i.stop != nil {
		close(i.stop)
	}
	stop := make(chan struct{})
	i.stop = stop
	i.active = &p
	i.remaining = int(i.ttl / time.Second)
	i.mu.Unlock()

	go i.countdown(stop)
	return p, nil
}

// countdown ticks once per second, decrementing the shared counter.
// Reaching zero invalidates the active code and fires onExpire.
func (i *Issuer) countdown(stop chan struct{}) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			i.mu.Lock()
			if i.stop != stop {
				i.mu.Unlock()
				return
			}
			i.remaining--
			if i.remaining > 0 {
				i.mu.Unlock()
				continue
			}
			i.active = nil
			i.remaining = 0
			i.stop = nil
			i.mu.Unlock()
			if i.onExpire != nil {
				i.onExpire()
			}
			return
		}
	}
}

// Active returns the current payload and the seconds left on its
// countdown, or false when no code is active.
func (i *Issuer) Active() (Payload, int, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active == nil {
		return Payload{}, 0, false
	}
	return *i.active, i.remaining, true
}

// Cancel stops the countdown and invalidates the active code without
// firing onExpire.
func (i *Issuer) Cancel() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stop != nil {
		close(i.stop)
		i.stop = nil
	}
	i.active = nil
	i.remaining = 0
}

// RenderPNG encodes the payload as a QR image, correction level H.
func (i *Issuer) RenderPNG(p Payload, size int) ([]byte, error) {
	if size <= 0 {
		size = 200
	}
	raw, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(string(raw), qrcode.High, size)
}

// History returns the issuance log, most recent first. Unreadable state
// yields an empty log.
func (i *Issuer) History(ctx context.Context) []HistoryEntry {
	raw, ok, err := i.kv.Get(ctx, store.KeyQRHistory)
	if err != nil || !ok {
		return nil
	}
	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	return entries
}

// ClearHistory wipes the issuance log.
func (i *Issuer) ClearHistory(ctx context.Context) error {
	return i.kv.Delete(ctx, store.KeyQRHistory)
}

// appendHistory prepends one entry. The log is unbounded.
func (i *Issuer) appendHistory(ctx context.Context, e HistoryEntry) error {
	entries := append([]HistoryEntry{e}, i.History(ctx)...)
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return i.kv.Set(ctx, store.KeyQRHistory, string(raw))
}
