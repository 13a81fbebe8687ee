package intake

import (
	"context"

	"qrattend/internal/record"
)

// Frame is one decoded camera frame attributed to the scanning student.
type Frame struct {
	Student string
	Payload string
}

// Feed is the single-slot buffer between the camera decode loop and the
// intake consumer. The camera decodes at a fixed rate and redelivers on
// the next frame, so frames arriving while the slot is full are dropped
// rather than queued.
type Feed struct {
	frames chan Frame
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{frames: make(chan Frame, 1)}
}

// Offer hands a frame to the consumer without blocking; it reports
// whether the frame was accepted or dropped.
func (f *Feed) Offer(fr Frame) bool {
	select {
	case f.frames <- fr:
		return true
	default:
		return false
	}
}

// Consume drains the feed until ctx is done, running each frame through
// Scan. onResult receives every processed frame with its outcome; it may
// be nil.
func (in *Intake) Consume(ctx context.Context, feed *Feed, onResult func(Frame, *record.AttendanceRecord, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case fr := <-feed.frames:
			rec, err := in.Scan(ctx, fr.Payload, fr.Student)
			if onResult != nil {
				onResult(fr, rec, err)
			}
		}
	}
}
