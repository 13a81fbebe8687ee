package record_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qrattend/internal/record"
)

func testRecords() []record.AttendanceRecord {
	return []record.AttendanceRecord{
		sample("1", "Math", "alice", "2026-09-01", "09:00:00"),
		sample("2", "Math", "bob", "2026-09-02", "10:00:00"),
		sample("3", "Physics", "alice", "2026-09-01", "11:00:00"),
		sample("4", "Math", "alice", "2026-08-30", "09:00:00"),
	}
}

func TestFilterConjunctive(t *testing.T) {
	recs := testRecords()

	bySubject := record.Filter(recs, record.Query{Subject: "Math"})
	assert.Len(t, bySubject, 3)

	byDate := record.Filter(recs, record.Query{Date: "2026-09-01"})
	assert.Len(t, byDate, 2)

	byMonth := record.Filter(recs, record.Query{Month: "2026-09"})
	assert.Len(t, byMonth, 3)

	both := record.Filter(recs, record.Query{Subject: "Math", Date: "2026-09-01"})
	assert.Len(t, both, 1)
	assert.Equal(t, "1", both[0].ID)

	// Chaining single-field filters equals one combined filter.
	chained := record.Filter(record.Filter(recs, record.Query{Subject: "Math"}), record.Query{Date: "2026-09-01"})
	assert.Equal(t, both, chained)
}

func TestFilterEmptyQueryPassesAll(t *testing.T) {
	recs := testRecords()
	assert.Equal(t, recs, record.Filter(recs, record.Query{}))
	assert.True(t, record.Query{}.Empty())
	assert.False(t, record.Query{Subject: "Math"}.Empty())
}

func TestSortedViewMostRecentFirst(t *testing.T) {
	got := record.SortedView(testRecords())

	var order []string
	for _, r := range got {
		order = append(order, r.ID)
	}
	assert.Equal(t, []string{"2", "3", "1", "4"}, order)
}

func TestSortedViewDoesNotMutateInput(t *testing.T) {
	recs := testRecords()
	_ = record.SortedView(recs)
	assert.Equal(t, "1", recs[0].ID)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, []string{"Math", "Physics"}, record.Subjects(testRecords()))
	assert.Empty(t, record.Subjects(nil))
}
