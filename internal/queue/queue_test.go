package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"huddle.app/relay/internal/model"
)

// fakeRedis satisfies redis.Cmdable by embedding; only XAdd is implemented.
type fakeRedis struct {
	redis.Cmdable
	added []*redis.XAddArgs
	err   error
}

func (f *fakeRedis) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.added = append(f.added, a)
	cmd.SetVal("1700000000000-0")
	return cmd
}

// stringify mimics what comes back from XREADGROUP: every value is a string.
func stringify(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = fmt.Sprint(v)
	}
	return out
}

var _ = Describe("DispatchJob encoding", func() {
	job := DispatchJob{
		RecordID: 77,
		Message: model.Message{
			ID:             42,
			ConversationID: 7,
			SenderID:       "patient-1",
			Kind:           model.MessageKindText,
			Body:           "Hello, I need help",
			CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC),
		},
		Attempt: 2,
		TraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
	}

	It("decodes what the producer writes", func() {
		decoded, err := ParseJob(stringify(job.values()))
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(Equal(job))
	})

	It("defaults attempt and kind", func() {
		values := stringify(job.values())
		delete(values, "attempt")
		delete(values, "kind")

		decoded, err := ParseJob(values)
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded.Attempt).To(Equal(1))
		Expect(decoded.Message.Kind).To(Equal(model.MessageKindText))
	})

	DescribeTable("rejects malformed entries",
		func(mutate func(map[string]any), msg string) {
			values := stringify(job.values())
			mutate(values)
			_, err := ParseJob(values)
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("missing record", func(v map[string]any) { delete(v, "record_id") }, "missing record_id"),
		Entry("bad message id", func(v map[string]any) { v["message_id"] = "abc" }, "parsing message_id"),
		Entry("missing body", func(v map[string]any) { delete(v, "body") }, "missing body"),
		Entry("bad timestamp", func(v map[string]any) { v["created_at"] = "yesterday" }, "parsing created_at"),
	)

	It("wraps stream entries into deliveries", func() {
		d, err := ParseDelivery(redis.XMessage{ID: "1-1", Values: stringify(job.values())})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.ID).To(Equal("1-1"))
		Expect(d.Job.RecordID).To(Equal(int64(77)))
	})
})

var _ = Describe("redisProducer", func() {
	It("appends the job to the stream", func() {
		fake := &fakeRedis{}
		producer := NewRedisProducer(fake, "relay_dispatch", nil)

		err := producer.Enqueue(context.Background(), DispatchJob{RecordID: 1, Message: model.Message{ID: 2, ConversationID: 3, SenderID: "u", Body: "hi"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(fake.added).To(HaveLen(1))
		Expect(fake.added[0].Stream).To(Equal("relay_dispatch"))
		Expect(fake.added[0].Values).To(HaveKeyWithValue("record_id", int64(1)))
		Expect(fake.added[0].Values).To(HaveKeyWithValue("attempt", 1))
	})

	It("wraps redis errors", func() {
		fake := &fakeRedis{err: errors.New("READONLY")}
		producer := NewRedisProducer(fake, "relay_dispatch", nil)

		err := producer.Enqueue(context.Background(), DispatchJob{RecordID: 1})
		Expect(err).To(MatchError(ContainSubstring("enqueue dispatch job")))
	})
})
