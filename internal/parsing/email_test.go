package parsing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseEmailAddress", func() {
	It("finds a plain address", func() {
		Expect(ParseEmailAddress("someone@example.com")).To(Equal("someone@example.com"))
	})

	It("finds an address with dots and dashes", func() {
		Expect(ParseEmailAddress("first.last-x@sub-domain.example.co.uk")).
			To(Equal("first.last-x@sub-domain.example.co.uk"))
	})

	It("pulls the address out of surrounding words", func() {
		Expect(ParseEmailAddress("register me as someone@example.com please")).
			To(Equal("someone@example.com"))
	})

	It("returns the first of several addresses", func() {
		Expect(ParseEmailAddress("a@example.com b@example.com")).To(Equal("a@example.com"))
	})

	It("returns empty for text without an address", func() {
		Expect(ParseEmailAddress("no address here")).To(BeEmpty())
		Expect(ParseEmailAddress("half@way")).To(BeEmpty())
		Expect(ParseEmailAddress("")).To(BeEmpty())
	})
})
