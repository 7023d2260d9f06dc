package expense

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		baseDir string
		storage *LocalStorage
		payedOn = time.Date(2020, time.January, 10, 0, 0, 0, 0, time.UTC)
	)

	BeforeEach(func() {
		baseDir = filepath.Join(GinkgoT().TempDir(), "proofs")
		var err error
		storage, err = NewLocalStorage(baseDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the base directory", func() {
		Expect(baseDir).To(BeADirectory())
	})

	Describe("Save", func() {
		It("groups proofs by payment date", func() {
			path, err := storage.Save(payedOn, "ticket.pdf", []byte("data"))

			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join("2020-01-10", "ticket.pdf")))
			Expect(filepath.Join(baseDir, path)).To(BeARegularFile())
		})

		It("ignores directory components in the filename", func() {
			path, err := storage.Save(payedOn, "../../escape.pdf", []byte("data"))

			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join("2020-01-10", "escape.pdf")))
		})

		It("suffixes colliding names instead of overwriting", func() {
			first, err := storage.Save(payedOn, "ticket.pdf", []byte("first"))
			Expect(err).NotTo(HaveOccurred())
			second, err := storage.Save(payedOn, "ticket.pdf", []byte("second"))
			Expect(err).NotTo(HaveOccurred())
			third, err := storage.Save(payedOn, "ticket.pdf", []byte("third"))
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(Equal(filepath.Join("2020-01-10", "ticket_1.pdf")))
			Expect(third).To(Equal(filepath.Join("2020-01-10", "ticket_2.pdf")))

			Expect(storage.Get(first)).To(Equal([]byte("first")))
			Expect(storage.Get(second)).To(Equal([]byte("second")))
			Expect(storage.Get(third)).To(Equal([]byte("third")))
		})
	})

	Describe("Get", func() {
		It("returns what Save stored", func() {
			path, err := storage.Save(payedOn, "ticket.pdf", []byte("data"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("data")))
		})

		It("fails for an unknown path", func() {
			_, err := storage.Get("2020-01-10/nothing.pdf")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes the proof file", func() {
			path, err := storage.Save(payedOn, "ticket.pdf", []byte("data"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete(path)).To(Succeed())

			_, err = os.Stat(filepath.Join(baseDir, path))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})
})
