package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

const redacted = "[redacted]"

// MessageOutput receives full dumps of HTTP exchanges.
type MessageOutput interface {
	Write(id string, contents string)
}

type exchangeKey struct{}

// exchange follows a single request through the resty hooks.
type exchange struct {
	id    uint64
	start time.Time
}

type restyHooks struct {
	tel    API
	output MessageOutput
	last   atomic.Uint64
}

// InstrumentResty reports every request made by `client` to `tel`. When `output` is
// not nil every exchange is also dumped to it, with password form fields redacted.
func InstrumentResty(client *resty.Client, tel API, output MessageOutput) {
	hooks := &restyHooks{tel: tel, output: output}
	client.OnBeforeRequest(hooks.before)
	client.OnAfterResponse(hooks.after)
	client.OnError(hooks.failed)
}

func (h *restyHooks) before(_ *resty.Client, req *resty.Request) error {
	ex := exchange{id: h.last.Add(1), start: time.Now()}
	h.tel.ReportDebug(report_resty_request, ex.id, req.Method, req.URL)
	req.SetContext(context.WithValue(req.Context(), exchangeKey{}, ex))
	return nil
}

func (h *restyHooks) after(_ *resty.Client, res *resty.Response) error {
	ex, ok := res.Request.Context().Value(exchangeKey{}).(exchange)
	if !ok {
		return nil
	}
	h.tel.ReportDebug(report_resty_response, ex.id, time.Since(ex.start).String(), res.Status())
	if h.output != nil {
		var dump strings.Builder
		dumpRequest(&dump, res.Request)
		dumpResponse(&dump, res)
		h.output.Write(strconv.FormatUint(ex.id, 10), dump.String())
	}
	return nil
}

func (h *restyHooks) failed(req *resty.Request, err error) {
	ex, ok := req.Context().Value(exchangeKey{}).(exchange)
	var elapsed time.Duration
	if ok {
		elapsed = time.Since(ex.start)
	}
	h.tel.ReportBroken(report_resty_response, err, req.Method, req.URL, elapsed)
	if h.output != nil && ok {
		var dump strings.Builder
		dumpRequest(&dump, req)
		fmt.Fprintf(&dump, "\n< %s\n", err)
		h.output.Write(strconv.FormatUint(ex.id, 10), dump.String())
	}
}

func dumpRequest(w *strings.Builder, req *resty.Request) {
	fmt.Fprintf(w, "> %s %s\n", req.Method, req.URL)
	headers := req.Header
	if req.RawRequest != nil {
		headers = req.RawRequest.Header
	}
	dumpHeaders(w, "> ", headers)
	if req.RawRequest != nil {
		w.WriteString("\n")
		w.WriteString(redactForm(readBody(req.RawRequest)))
		w.WriteString("\n")
	}
}

func dumpResponse(w *strings.Builder, res *resty.Response) {
	fmt.Fprintf(w, "\n< %d", res.StatusCode())
	if location := res.Header().Get("Location"); location != "" {
		fmt.Fprintf(w, " %s", location)
	}
	w.WriteString("\n")
	dumpHeaders(w, "< ", res.Header())
	w.WriteString("\n")
	w.WriteString(res.String())
}

// dumpHeaders writes headers sorted by name so dumps of the same exchange diff cleanly.
func dumpHeaders(w *strings.Builder, prefix string, headers http.Header) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, value := range headers[name] {
			fmt.Fprintf(w, "%s%s: %s\n", prefix, name, value)
		}
	}
}

func readBody(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("<unreadable body: %s>", err)
	}
	contents, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("<unreadable body: %s>", err)
	}
	return string(contents)
}

// redactForm hides the value of every url-encoded field whose name mentions a
// password, bodies that are not forms are returned as is.
func redactForm(body string) string {
	if !strings.Contains(body, "password") {
		return body
	}
	form, err := url.ParseQuery(body)
	if err != nil {
		return body
	}
	for name := range form {
		if strings.Contains(name, "password") {
			form[name] = []string{redacted}
		}
	}
	return form.Encode()
}
