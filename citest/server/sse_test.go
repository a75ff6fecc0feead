package server_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/conductor-html/conductor/internal/server"
)

var _ = Describe("SSE Event Streaming", func() {
	var doc *server.DocumentSummary

	BeforeEach(func() {
		var err error
		doc, err = client.CreateDocument(ctx, playgroundPage)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if doc != nil {
			client.DeleteDocument(ctx, doc.ID)
		}
	})

	Describe("GET /event", func() {
		It("should return SSE content-type and cache headers", func() {
			req, err := http.NewRequest("GET", testServer.BaseURL+"/event", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Accept", "text/event-stream")

			httpClient := &http.Client{Timeout: 5 * time.Second}
			resp, err := httpClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		})

		It("should greet new connections with server.connected", func() {
			sse := testServer.SSEClient()
			Expect(sse.Connect(ctx, "/event")).To(Succeed())
			defer sse.Close()

			_, err := sse.WaitFor("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should stream the full dispatch lifecycle", func() {
			sse := testServer.SSEClient()
			Expect(sse.Connect(ctx, "/event")).To(Succeed())
			defer sse.Close()

			_, err := sse.WaitFor("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			_, err = client.Dispatch(ctx, doc.ID, "--text:set:streamed", "#status")
			Expect(err).NotTo(HaveOccurred())

			dispatched, err := sse.WaitForDocument("command.dispatched", doc.ID, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(dispatched.Properties).NotTo(BeNil())

			_, err = sse.WaitForDocument("command.succeeded", doc.ID, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			_, err = sse.WaitForDocument("command.completed", doc.ID, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should stream document replacement and teardown", func() {
			sse := testServer.SSEClient()
			Expect(sse.Connect(ctx, "/event")).To(Succeed())
			defer sse.Close()

			_, err := sse.WaitFor("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.Put(ctx, "/document/"+doc.ID, map[string]string{
				"html": `<html><head><title>Swap</title></head><body></body></html>`,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())

			_, err = sse.WaitForDocument("document.loaded", doc.ID, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			Expect(client.DeleteDocument(ctx, doc.ID)).To(Succeed())

			_, err = sse.WaitForDocument("document.closed", doc.ID, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			doc = nil
		})

		It("should narrow the feed with a documentID filter", func() {
			other, err := client.CreateDocument(ctx, playgroundPage)
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteDocument(ctx, other.ID)

			sse := testServer.SSEClient()
			Expect(sse.Connect(ctx, "/event?documentID="+other.ID)).To(Succeed())
			defer sse.Close()

			_, err = sse.WaitFor("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			// Activity on the unfiltered document must not leak in.
			_, err = client.Dispatch(ctx, doc.ID, "--text:set:other", "#status")
			Expect(err).NotTo(HaveOccurred())
			_, err = client.Dispatch(ctx, other.ID, "--text:set:mine", "#status")
			Expect(err).NotTo(HaveOccurred())

			got, err := sse.WaitFor("command.dispatched", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.DocumentID).To(Equal(other.ID))

			for _, e := range sse.Events() {
				Expect(e.DocumentID).To(Or(BeEmpty(), Equal(other.ID)))
			}
		})
	})
})
