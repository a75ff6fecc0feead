package server_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/conductor-html/conductor/citest/testutil"
	"github.com/conductor-html/conductor/internal/server"
	"github.com/conductor-html/conductor/pkg/types"
)

const playgroundPage = `<html>
<head><title>Playground</title></head>
<body>
  <button id="toggle" command-on="click" command="--toggle" commandfor="#panel">Panel</button>
  <button id="save" command="--text:set:saved" commandfor="#status">Save</button>
  <div id="panel" hidden>Settings</div>
  <p id="status">idle</p>
</body>
</html>`

var _ = Describe("Server Endpoints Integration Tests", func() {
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

	// ==================== Document Endpoints ====================
	Describe("Document Endpoints", func() {
		Describe("GET /document", func() {
			It("should list hosted documents", func() {
				resp, err := client.Get(ctx, "/document")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())

				var docs []server.DocumentSummary
				Expect(resp.JSON(&docs)).To(Succeed())
				Expect(len(docs)).To(BeNumerically(">=", 1))

				found := false
				for _, d := range docs {
					if d.ID == doc.ID {
						found = true
						break
					}
				}
				Expect(found).To(BeTrue())
			})
		})

		Describe("POST /document", func() {
			It("should report title, element count, and bindings", func() {
				Expect(doc.ID).NotTo(BeEmpty())
				Expect(doc.Info).NotTo(BeNil())
				Expect(doc.Info.Title).To(Equal("Playground"))
				Expect(doc.Info.Elements).To(BeNumerically(">", 0))
				Expect(doc.Info.Triggers).To(Equal(1))
			})

			It("should reject a body with neither html nor path", func() {
				resp, err := client.Post(ctx, "/document", map[string]string{})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(400))
			})
		})

		Describe("GET /document/{documentID}", func() {
			It("should retrieve the document by ID", func() {
				retrieved, err := client.GetDocument(ctx, doc.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(retrieved.ID).To(Equal(doc.ID))
				Expect(retrieved.Info.Title).To(Equal("Playground"))
			})

			It("should return 404 for a non-existent document", func() {
				resp, err := client.Get(ctx, "/document/non-existent-id")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})
		})

		Describe("PUT /document/{documentID}", func() {
			It("should replace the markup in place", func() {
				resp, err := client.Put(ctx, "/document/"+doc.ID, map[string]string{
					"html": `<html><head><title>Revised</title></head><body><p id="status">fresh</p></body></html>`,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())

				var updated server.DocumentSummary
				Expect(resp.JSON(&updated)).To(Succeed())
				Expect(updated.ID).To(Equal(doc.ID))
				Expect(updated.Info.Title).To(Equal("Revised"))

				html, err := client.DocumentHTML(ctx, doc.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(html).To(ContainSubstring("fresh"))
				Expect(html).NotTo(ContainSubstring("Settings"))
			})

			It("should reject an empty replacement", func() {
				resp, err := client.Put(ctx, "/document/"+doc.ID, map[string]string{})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(400))
			})
		})

		Describe("DELETE /document/{documentID}", func() {
			It("should delete the document", func() {
				victim, err := client.CreateDocument(ctx, playgroundPage)
				Expect(err).NotTo(HaveOccurred())

				Expect(client.DeleteDocument(ctx, victim.ID)).To(Succeed())

				resp, err := client.Get(ctx, "/document/"+victim.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})
		})

		Describe("GET /document/{documentID}/html", func() {
			It("should serialize the live tree", func() {
				html, err := client.DocumentHTML(ctx, doc.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(html).To(ContainSubstring(`id="panel"`))
				Expect(html).To(ContainSubstring("hidden"))
			})
		})

		Describe("GET /document/{documentID}/triggers", func() {
			It("should list live event bindings", func() {
				resp, err := client.Get(ctx, "/document/"+doc.ID+"/triggers")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())

				var triggers []types.TriggerInfo
				Expect(resp.JSON(&triggers)).To(Succeed())
				Expect(triggers).To(HaveLen(1))
				Expect(triggers[0].Event).To(Equal("click"))
				Expect(triggers[0].ElementID).To(Equal("toggle"))
				Expect(triggers[0].Commands).To(Equal("--toggle"))
			})
		})

		Describe("GET /document/{documentID}/select", func() {
			It("should return matched elements", func() {
				resp, err := client.Get(ctx, "/document/"+doc.ID+"/select",
					testutil.WithQuery(map[string]string{"selector": "button"}))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())

				var matches []server.ElementInfo
				Expect(resp.JSON(&matches)).To(Succeed())
				Expect(matches).To(HaveLen(2))
				Expect(matches[0].Tag).To(Equal("button"))
				Expect(matches[0].ID).To(Equal("toggle"))
			})

			It("should require a selector", func() {
				resp, err := client.Get(ctx, "/document/"+doc.ID+"/select")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(400))
			})
		})
	})

	// ==================== Dispatch Endpoints ====================
	Describe("Dispatch Endpoints", func() {
		Describe("POST /document/{documentID}/dispatch", func() {
			It("should run a command against a target", func() {
				res, err := client.Dispatch(ctx, doc.ID, "--text:set:hello", "#status")
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(types.StatusSucceeded))
				Expect(res.Invocation.Name).To(Equal("--text"))
				Expect(res.Invocation.Source).To(Equal(types.SourceAPI))

				html, err := client.DocumentHTML(ctx, doc.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(html).To(ContainSubstring(">hello</p>"))
			})

			It("should answer unknown commands with a recovery hint", func() {
				resp, err := client.Post(ctx, "/document/"+doc.ID+"/dispatch", map[string]string{
					"command": "--togle",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))

				var body server.ErrorResponse
				Expect(resp.JSON(&body)).To(Succeed())
				Expect(body.Error.Code).To(Equal("UNKNOWN_COMMAND"))
				Expect(body.Error.Details["recovery"]).To(ContainSubstring("--toggle"))
			})

			It("should require a command", func() {
				resp, err := client.Post(ctx, "/document/"+doc.ID+"/dispatch", map[string]string{})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(400))
			})
		})

		Describe("POST /document/{documentID}/event", func() {
			It("should fire a bound event and run its commands", func() {
				fired, err := client.FireEvent(ctx, doc.ID, map[string]any{
					"type":   "click",
					"target": "#toggle",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(fired.Dispatched).To(Equal(1))

				html, err := client.DocumentHTML(ctx, doc.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(panelHidden(html)).To(BeFalse(), "first click should reveal the panel")

				fired, err = client.FireEvent(ctx, doc.ID, map[string]any{
					"type":   "click",
					"target": "#toggle",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(fired.Dispatched).To(Equal(1))

				html, err = client.DocumentHTML(ctx, doc.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(panelHidden(html)).To(BeTrue(), "second click should hide it again")
			})

			It("should reject a target that matches nothing", func() {
				resp, err := client.Post(ctx, "/document/"+doc.ID+"/event", map[string]string{
					"type":   "click",
					"target": "#missing",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(400))
			})
		})

		Describe("POST /document/{documentID}/activate", func() {
			It("should run the element's declared command", func() {
				res, err := client.Activate(ctx, doc.ID, "#save")
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(types.StatusSucceeded))

				html, err := client.DocumentHTML(ctx, doc.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(html).To(ContainSubstring(">saved</p>"))
			})

			It("should return 404 when the selector matches nothing", func() {
				resp, err := client.Post(ctx, "/document/"+doc.ID+"/activate", map[string]string{
					"selector": "#missing",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})
		})
	})

	// ==================== Command Endpoints ====================
	Describe("Command Endpoints", func() {
		Describe("GET /command", func() {
			It("should list the built-in pack sorted by name", func() {
				resp, err := client.Get(ctx, "/command")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())

				var cmds []types.CommandInfo
				Expect(resp.JSON(&cmds)).To(Succeed())
				Expect(len(cmds)).To(BeNumerically(">=", 10))

				names := make([]string, 0, len(cmds))
				toggleBuiltin := false
				for _, c := range cmds {
					names = append(names, c.Name)
					if c.Name == "--toggle" {
						toggleBuiltin = c.Builtin
					}
				}
				Expect(names).To(ContainElements("--text", "--toggle", "--fetch"))
				Expect(toggleBuiltin).To(BeTrue())
				for i := 1; i < len(names); i++ {
					Expect(names[i-1] < names[i]).To(BeTrue(), "list should be sorted")
				}
			})

			It("should return 404 for an unknown documentID filter", func() {
				resp, err := client.Get(ctx, "/command",
					testutil.WithQuery(map[string]string{"documentID": "bogus"}))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})
		})

		Describe("GET /command/{name}", func() {
			It("should resolve with or without the prefix", func() {
				for _, name := range []string{"--toggle", "toggle"} {
					resp, err := client.Get(ctx, "/command/"+name)
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.IsSuccess()).To(BeTrue())

					var info types.CommandInfo
					Expect(resp.JSON(&info)).To(Succeed())
					Expect(info.Name).To(Equal("--toggle"))
				}
			})

			It("should return 404 for an unregistered name", func() {
				resp, err := client.Get(ctx, "/command/definitely-not-a-command")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})
		})
	})

	// ==================== Config Endpoint ====================
	Describe("GET /config", func() {
		It("should return the effective configuration", func() {
			resp, err := client.Get(ctx, "/config")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())

			var cfg types.Config
			Expect(resp.JSON(&cfg)).To(Succeed())
		})
	})
})

// panelHidden reports whether the #panel div still carries the hidden
// attribute in the serialized markup. The renderer emits the whole
// document on one line, so the check is scoped to the opening tag.
func panelHidden(html string) bool {
	i := strings.Index(html, `id="panel"`)
	if i < 0 {
		return false
	}
	start := strings.LastIndex(html[:i], "<")
	end := strings.Index(html[i:], ">")
	if start < 0 || end < 0 {
		return false
	}
	return strings.Contains(html[start:i+end], "hidden")
}
