package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"huddle.app/relay/core/db/sqlc"
	"huddle.app/relay/internal/model"
)

var _ = Describe("mapError", func() {
	It("maps no rows to ErrNotFound", func() {
		Expect(mapError(fmt.Errorf("get: %w", pgx.ErrNoRows))).To(MatchError(ErrNotFound))
	})

	It("maps unique violations to ErrAlreadyExists", func() {
		err := &pgconn.PgError{Code: "23505", ConstraintName: "interaction_records_message_attempt_key"}
		Expect(mapError(err)).To(MatchError(ErrAlreadyExists))
	})

	It("passes other errors through", func() {
		boom := errors.New("connection reset")
		Expect(mapError(boom)).To(Equal(boom))
		Expect(mapError(nil)).To(BeNil())
	})
})

var _ = Describe("TruncateError", func() {
	It("keeps short details as they are", func() {
		detail := "ai call timed out"
		Expect(*TruncateError(&detail)).To(Equal(detail))
	})

	It("clips long details to the column width in characters", func() {
		detail := strings.Repeat("é", 800)
		clipped := TruncateError(&detail)
		Expect([]rune(*clipped)).To(HaveLen(model.MaxInteractionErrorLen))
	})

	It("leaves nil alone", func() {
		Expect(TruncateError(nil)).To(BeNil())
	})
})

var _ = Describe("row conversion", func() {
	It("converts interaction records", func() {
		aiID := int64(9)
		completed := time.Now()
		rec := toInteractionRecordModel(sqlc.InteractionRecord{
			ID:            1,
			UserMessageID: 2,
			AiMessageID:   &aiID,
			Status:        "succeeded",
			Attempt:       2,
			CompletedAt:   &completed,
		})

		Expect(rec.Status).To(Equal(model.InteractionStatusSucceeded))
		Expect(rec.Status.IsTerminal()).To(BeTrue())
		Expect(rec.Attempt).To(Equal(2))
		Expect(*rec.AIMessageID).To(Equal(int64(9)))
	})

	It("converts members with their conversation role", func() {
		m := toMemberModel(sqlc.ConversationMember{ConversationID: 3, UserID: "u1", Role: "Patient"})
		Expect(m.Role.Normalize()).To(Equal(model.RolePatient))
	})
})
