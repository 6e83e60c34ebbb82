package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"huddle.app/relay/core/db/sqlc"
	"huddle.app/relay/internal/model"
)

type executedQuery struct {
	sql  string
	args []any
}

// fakeDBTX answers sqlc queries by name.
type fakeDBTX struct {
	executed []executedQuery
	rows     map[string]fakeRow // keyed by sqlc query name
	queryErr error
}

func (f *fakeDBTX) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.executed = append(f.executed, executedQuery{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (f *fakeDBTX) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.executed = append(f.executed, executedQuery{sql: sql, args: args})
	return nil, f.queryErr
}

func (f *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	f.executed = append(f.executed, executedQuery{sql: sql, args: args})
	for name, row := range f.rows {
		if strings.Contains(sql, "-- name: "+name+" ") {
			return row
		}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (f *fakeDBTX) queryNames() []string {
	names := make([]string, 0, len(f.executed))
	for _, q := range f.executed {
		name := strings.TrimPrefix(q.sql, "-- name: ")
		names = append(names, strings.Fields(name)[0])
	}
	return names
}

type fakeRow struct {
	rec *sqlc.InteractionRecord
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.rec.ID
	*dest[1].(*int64) = r.rec.ConversationID
	*dest[2].(*int64) = r.rec.UserMessageID
	*dest[3].(**int64) = r.rec.AiMessageID
	*dest[4].(*string) = r.rec.Status
	*dest[5].(*int32) = r.rec.Attempt
	*dest[6].(**string) = r.rec.Model
	*dest[7].(**int64) = r.rec.DurationMs
	*dest[8].(**string) = r.rec.Error
	*dest[9].(*time.Time) = r.rec.CreatedAt
	*dest[10].(**time.Time) = r.rec.CompletedAt
	return nil
}

var _ = Describe("interactionRecordStore.Complete", func() {
	var (
		ctx     context.Context
		db      *fakeDBTX
		records InteractionRecordStore
		aiMsgID int64
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = &fakeDBTX{rows: map[string]fakeRow{}}
		records = NewStores(sqlc.New(db)).InteractionRecords()
		aiMsgID = 77
	})

	succeeded := func() model.InteractionOutcome {
		gpt := "gpt-4o-mini"
		return model.InteractionOutcome{
			Status:      model.InteractionStatusSucceeded,
			AIMessageID: &aiMsgID,
			Model:       &gpt,
			DurationMs:  1200,
		}
	}

	It("writes the outcome through the pending-only update", func() {
		completed := time.Now()
		gpt := "gpt-4o-mini"
		duration := int64(1200)
		db.rows["CompleteInteractionRecord"] = fakeRow{rec: &sqlc.InteractionRecord{
			ID: 5, UserMessageID: 3, AiMessageID: &aiMsgID, Status: "succeeded", Attempt: 1,
			Model: &gpt, DurationMs: &duration, CompletedAt: &completed,
		}}

		rec, err := records.Complete(ctx, 5, succeeded())
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Status).To(Equal(model.InteractionStatusSucceeded))
		Expect(*rec.AIMessageID).To(Equal(aiMsgID))

		Expect(db.queryNames()).To(Equal([]string{"CompleteInteractionRecord"}))
		update := db.executed[0]
		Expect(update.sql).To(ContainSubstring("WHERE id = $1 AND status = 'pending'"))
		Expect(update.args[0]).To(Equal(int64(5)))
		Expect(update.args[1]).To(Equal("succeeded"))
	})

	It("reports ErrNotPending and writes nothing else when the record is already terminal", func() {
		db.rows["GetInteractionRecord"] = fakeRow{rec: &sqlc.InteractionRecord{ID: 5, Status: "failed", Attempt: 1}}

		rec, err := records.Complete(ctx, 5, succeeded())
		Expect(err).To(MatchError(ErrNotPending))
		Expect(rec).To(BeNil())
		Expect(db.queryNames()).To(Equal([]string{"CompleteInteractionRecord", "GetInteractionRecord"}))
	})

	It("reports ErrNotFound when the record does not exist", func() {
		_, err := records.Complete(ctx, 5, succeeded())
		Expect(err).To(MatchError(ErrNotFound))
		Expect(db.queryNames()).To(Equal([]string{"CompleteInteractionRecord", "GetInteractionRecord"}))
	})

	It("passes driver errors through without the fallback lookup", func() {
		db.rows["CompleteInteractionRecord"] = fakeRow{err: errors.New("connection reset")}

		_, err := records.Complete(ctx, 5, succeeded())
		Expect(err).To(MatchError("connection reset"))
		Expect(db.queryNames()).To(Equal([]string{"CompleteInteractionRecord"}))
	})

	It("rejects a non-terminal status before touching the database", func() {
		_, err := records.Complete(ctx, 5, model.InteractionOutcome{Status: model.InteractionStatusPending})
		Expect(err).To(MatchError(ContainSubstring("non-terminal")))
		Expect(db.executed).To(BeEmpty())
	})

	It("clips the model name and error detail to their column widths", func() {
		long := strings.Repeat("m", 300)
		detail := strings.Repeat("x", 900)
		outcome := model.InteractionOutcome{
			Status: model.InteractionStatusFailed,
			Model:  &long,
			Error:  &detail,
		}

		_, _ = records.Complete(ctx, 5, outcome)
		args := db.executed[0].args
		Expect([]rune(*args[3].(*string))).To(HaveLen(model.MaxInteractionModelLen))
		Expect([]rune(*args[5].(*string))).To(HaveLen(model.MaxInteractionErrorLen))
	})
})

var _ = Describe("interactionRecordStore.ListForMessage", func() {
	It("maps driver errors to store sentinels", func() {
		db := &fakeDBTX{queryErr: pgx.ErrNoRows}
		records := NewStores(sqlc.New(db)).InteractionRecords()

		_, err := records.ListForMessage(context.Background(), 3)
		Expect(err).To(MatchError(ErrNotFound))
	})
})
