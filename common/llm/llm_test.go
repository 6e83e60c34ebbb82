package llm_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"huddle.app/relay/common/llm"
)

var _ = Describe("SanitizeName", func() {
	DescribeTable("sanitizes user IDs for the name parameter",
		func(input, expected string) {
			Expect(llm.SanitizeName(input)).To(Equal(expected))
		},
		Entry("valid id unchanged", "patient_42", "patient_42"),
		Entry("dots replaced", "dr.house", "dr_house"),
		Entry("@ replaced", "nurse@ward3", "nurse_ward3"),
		Entry("hyphens preserved", "user-7", "user-7"),
		Entry("spaces replaced", "dr house", "dr_house"),
		Entry("long id truncated to 64 chars", strings.Repeat("a", 100), strings.Repeat("a", 64)),
		Entry("exactly 64 chars unchanged", strings.Repeat("b", 64), strings.Repeat("b", 64)),
		Entry("empty string unchanged", "", ""),
	)
})

var _ = Describe("New", func() {
	It("requires an API key", func() {
		_, err := llm.New(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(MatchError(ContainSubstring("API key")))
	})

	It("rejects unknown providers", func() {
		_, err := llm.New(llm.Config{Provider: "mistral", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	It("defaults to OpenAI with a default model", func() {
		client, err := llm.New(llm.Config{APIKey: "k"})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("gpt-4o-mini"))
	})

	It("builds an Anthropic client with the configured model", func() {
		client, err := llm.New(llm.Config{Provider: llm.ProviderAnthropic, APIKey: "k", Model: "claude-haiku-4-5"})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("claude-haiku-4-5"))
	})
})

var _ = Describe("Classify", func() {
	DescribeTable("buckets chat errors",
		func(err error, expected string) {
			Expect(llm.Classify(err)).To(Equal(expected))
		},
		Entry("nil", nil, ""),
		Entry("deadline", fmt.Errorf("openai chat: %w", context.DeadlineExceeded), llm.ErrorKindTimeout),
		Entry("canceled", context.Canceled, llm.ErrorKindCanceled),
		Entry("rate limited", fmt.Errorf("openai chat: %w", &openai.Error{StatusCode: 429}), llm.ErrorKindRateLimited),
		Entry("server error", &openai.Error{StatusCode: 503}, llm.ErrorKindServer),
		Entry("client error", &openai.Error{StatusCode: 400}, llm.ErrorKindClient),
		Entry("no response", errors.New("dial tcp: connection refused"), llm.ErrorKindNetwork),
	)
})
