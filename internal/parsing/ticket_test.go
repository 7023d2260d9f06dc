package parsing

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mberti/spesa/internal/calendar"
)

const trenitaliaText = `
RICEVUTA DI PAGAMENTO
Treno 10911 - 2' Classe
Partenza: MILANO CENTRALE Ore 19:37 - 13/12/2019
Arrivo: BERGAMO
Totale pagato: 9.90 €
`

const trenordText = `
Biglietto di corsa semplice
MILANO PORTA GARIBALDI - MONZA
Valido il 10 dic 2019
Prezzo 2,60 €
`

var _ = Describe("ParseTicket", func() {
	It("reads a Trenitalia ticket", func() {
		e := ParseTicket(trenitaliaText)

		Expect(e).NotTo(BeNil())
		Expect(e.Amount).To(Equal("9.90"))
		Expect(e.PayedOn).To(Equal(calendar.Date(2019, time.December, 13)))
		Expect(e.Description).To(Equal("Trenitalia ticket"))
	})

	It("reads a Trenord ticket, normalizing the comma amount", func() {
		e := ParseTicket(trenordText)

		Expect(e).NotTo(BeNil())
		Expect(e.Amount).To(Equal("2.60"))
		Expect(e.PayedOn).To(Equal(calendar.Date(2019, time.December, 10)))
		Expect(e.Description).To(Equal("Trenord ticket"))
	})

	It("prefers Trenitalia when both date formats appear", func() {
		e := ParseTicket(trenitaliaText + trenordText)

		Expect(e).NotTo(BeNil())
		Expect(e.Description).To(Equal("Trenitalia ticket"))
	})

	It("rejects text from no known operator", func() {
		Expect(ParseTicket("boarding pass LIN-FCO seat 12A")).To(BeNil())
	})

	It("rejects a matching ticket with an unreadable amount", func() {
		Expect(ParseTicket("Ore 19:37 - 13/12/2019 and nothing else")).To(BeNil())
	})

	It("rejects a Trenord date with an unknown month name", func() {
		Expect(ParseTicket("Valido il 10 xyz 2019 Prezzo 2,60 €")).To(BeNil())
	})
})
