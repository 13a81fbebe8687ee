package issuer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"qrattend/internal/store"
)

// SessionCode is a record from the alternate session-code issuance path:
// a human-readable code rather than a scannable payload.
type SessionCode struct {
	Code string `json:"code"`
	Time string `json:"time"`
}

// NewSessionCode generates a SESSION-YYYYMMDD-HHMMSS-<rand> code and
// prepends it to the session log.
func (i *Issuer) NewSessionCode(ctx context.Context) (SessionCode, error) {
	now := i.now()
	sc := SessionCode{
		Code: fmt.Sprintf("SESSION-%s-%s-%d", now.Format("20060102"), now.Format("150405"), rand.Intn(10000)),
		Time: now.Format(historyTimeLayout),
	}
	codes := append([]SessionCode{sc}, i.Sessions(ctx)...)
	raw, err := json.Marshal(codes)
	if err != nil {
		return SessionCode{}, err
	}
	if err := i.kv.Set(ctx, store.KeySessions, string(raw)); err != nil {
		return SessionCode{}, err
	}
	return sc, nil
}

// Sessions returns the session-code log, most recent first.
func (i *Issuer) Sessions(ctx context.Context) []SessionCode {
	raw, ok, err := i.kv.Get(ctx, store.KeySessions)
	if err != nil || !ok {
		return nil
	}
	var codes []SessionCode
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil
	}
	return codes
}
