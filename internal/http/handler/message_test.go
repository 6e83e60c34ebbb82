package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"huddle.app/relay/internal/http/handler"
	"huddle.app/relay/internal/http/middleware"
	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/routing"
	"huddle.app/relay/internal/service"
)

var _ = Describe("MessageHandler", func() {
	var (
		router *gin.Engine
		svc    *mockMessageService
	)

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	BeforeEach(func() {
		router = gin.New()
		svc = &mockMessageService{}
		h := handler.NewMessageHandler(svc, "X-Trace-Id")
		router.POST("/conversations/:id/messages", middleware.RequireUser(), h.Send)
		router.GET("/conversations/:id/messages", middleware.RequireUser(), h.History)
		router.GET("/messages/:id", middleware.RequireUser(), h.Get)
		router.POST("/messages/:id/redispatch", h.Redispatch)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.UserIDHeader, "patient-1")
		req.Header.Set("X-Trace-Id", "trace-abc")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Send", func() {
		It("returns 201 with string ids and the pending interaction", func() {
			var got service.SendParams
			svc.sendFn = func(_ context.Context, params service.SendParams) (*service.SendResult, error) {
				got = params
				return &service.SendResult{
					Message: &model.Message{
						ID:             1850000000000000001,
						ConversationID: 7,
						SenderID:       params.SenderID,
						Kind:           model.MessageKindText,
						Body:           params.Body,
						CreatedAt:      created,
					},
					Decision: routing.Decision{RequiresAIDispatch: true, Reason: routing.ReasonRequester},
					Record: &model.InteractionRecord{
						ID:             1850000000000000002,
						ConversationID: 7,
						UserMessageID:  1850000000000000001,
						Status:         model.InteractionStatusPending,
						Attempt:        1,
						CreatedAt:      created,
					},
					Enqueued: true,
				}, nil
			}

			w := do(http.MethodPost, "/conversations/7/messages", `{"body":"Hello, I need help"}`)

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(got.ConversationID).To(Equal(int64(7)))
			Expect(got.SenderID).To(Equal("patient-1"))
			Expect(got.Channel).To(Equal(service.ChannelHTTP))
			Expect(got.TraceID).To(Equal("trace-abc"))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["requires_ai_dispatch"]).To(BeTrue())
			Expect(resp["message"].(map[string]any)["id"]).To(Equal("1850000000000000001"))
			Expect(resp["interaction"].(map[string]any)["status"]).To(Equal("pending"))
		})

		DescribeTable("maps service errors",
			func(err error, status int) {
				svc.sendFn = func(context.Context, service.SendParams) (*service.SendResult, error) {
					return nil, err
				}
				w := do(http.MethodPost, "/conversations/7/messages", `{"body":"hi"}`)
				Expect(w.Code).To(Equal(status))
			},
			Entry("validation", fmt.Errorf("%w: body is empty", service.ErrInvalidMessage), http.StatusBadRequest),
			Entry("missing conversation", service.ErrConversationNotFound, http.StatusNotFound),
			Entry("not a member", service.ErrNotMember, http.StatusForbidden),
			Entry("unexpected", errors.New("boom"), http.StatusInternalServerError),
		)

		It("returns 400 on a malformed conversation id", func() {
			w := do(http.MethodPost, "/conversations/abc/messages", `{"body":"hi"}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 on a missing body", func() {
			w := do(http.MethodPost, "/conversations/7/messages", `{}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 401 without a user", func() {
			req := httptest.NewRequest(http.MethodPost, "/conversations/7/messages", bytes.NewBufferString(`{"body":"hi"}`))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("History", func() {
		It("passes the cursor and returns the next one on a full page", func() {
			var got service.HistoryParams
			svc.historyFn = func(_ context.Context, params service.HistoryParams) ([]model.Message, error) {
				got = params
				return []model.Message{
					{ID: 30, ConversationID: 7, SenderID: "doctor-1", Kind: model.MessageKindText, Body: "b", CreatedAt: created},
					{ID: 20, ConversationID: 7, SenderID: "patient-1", Kind: model.MessageKindText, Body: "a", CreatedAt: created},
				}, nil
			}

			w := do(http.MethodGet, "/conversations/7/messages?before=40&limit=2", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(*got.BeforeID).To(Equal(int64(40)))
			Expect(got.Limit).To(Equal(2))
			Expect(got.UserID).To(Equal("patient-1"))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["messages"]).To(HaveLen(2))
			Expect(resp["next_before"]).To(Equal("20"))
		})

		It("omits the cursor on a short page", func() {
			svc.historyFn = func(context.Context, service.HistoryParams) ([]model.Message, error) {
				return []model.Message{{ID: 20, ConversationID: 7, CreatedAt: created}}, nil
			}

			w := do(http.MethodGet, "/conversations/7/messages", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).NotTo(ContainSubstring("next_before"))
		})

		It("returns 400 on a bad cursor", func() {
			w := do(http.MethodGet, "/conversations/7/messages?before=xyz", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Get", func() {
		It("returns 404 for a missing message", func() {
			w := do(http.MethodGet, "/messages/5", "")
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Redispatch", func() {
		It("returns 202 with the new attempt", func() {
			svc.redispatchFn = func(_ context.Context, messageID int64, traceID string) (*model.InteractionRecord, error) {
				Expect(messageID).To(Equal(int64(10)))
				Expect(traceID).To(Equal("trace-abc"))
				return &model.InteractionRecord{ID: 11, UserMessageID: 10, Status: model.InteractionStatusPending, Attempt: 2, CreatedAt: created}, nil
			}

			w := do(http.MethodPost, "/messages/10/redispatch", "")
			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(w.Body.String()).To(ContainSubstring(`"attempt":2`))
		})

		It("returns 409 on a conflict", func() {
			svc.redispatchFn = func(context.Context, int64, string) (*model.InteractionRecord, error) {
				return nil, fmt.Errorf("%w: latest attempt 1 is pending", service.ErrDispatchConflict)
			}

			w := do(http.MethodPost, "/messages/10/redispatch", "")
			Expect(w.Code).To(Equal(http.StatusConflict))
		})
	})
})
